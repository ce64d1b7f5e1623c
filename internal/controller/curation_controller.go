package controller

import (
	"context"
	"time"

	"ai-feed-curator/internal/dto"
	"ai-feed-curator/internal/pkg/serverutils"
	"ai-feed-curator/internal/service"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/events"

	"github.com/gofiber/fiber/v2"
)

// requestTimeout bounds the bus round-trip behind each control endpoint.
const requestTimeout = 5 * time.Second

type ICurationController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Stop(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	SetInterests(ctx *fiber.Ctx) error
	Evaluate(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	ExportLog(ctx *fiber.Ctx) error
}

type curationController struct {
	bus             *bus.Bus
	curationService service.ICurationService
}

func NewCurationController(b *bus.Bus, curationService service.ICurationService) ICurationController {
	return &curationController{
		bus:             b,
		curationService: curationService,
	}
}

func (c *curationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/curation/v1")
	h.Post("start", c.Start)
	h.Post("stop", c.Stop)
	h.Post("retry", c.Retry)
	h.Post("interests", c.SetInterests)
	h.Post("evaluate", c.Evaluate)
	h.Get("status", c.Status)
	h.Get("log/export", c.ExportLog)
}

func (c *curationController) Start(ctx *fiber.Ctx) error {
	var req dto.StartCurationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx.Context(), requestTimeout)
	defer cancel()

	reply, err := c.bus.Request(reqCtx, bus.TopicInbound, events.New(events.TypeStartCuration, dto.ToPayload(req)))
	if err != nil {
		return err
	}

	result, err := dto.FromPayload[dto.StartCurationResult](reply.Data)
	if err != nil {
		return err
	}
	if result.Declined {
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponse(result.Reason))
	}
	return ctx.JSON(serverutils.SuccessResponse("Curation started", result))
}

func (c *curationController) Stop(ctx *fiber.Ctx) error {
	var req dto.StopCurationRequest
	_ = ctx.BodyParser(&req)

	reqCtx, cancel := context.WithTimeout(ctx.Context(), requestTimeout)
	defer cancel()

	reply, err := c.bus.Request(reqCtx, bus.TopicInbound, events.New(events.TypeStopCuration, dto.ToPayload(req)))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Curation stopped", reply.Data))
}

func (c *curationController) Retry(ctx *fiber.Ctx) error {
	if err := c.bus.Publish(bus.TopicInbound, events.New(events.TypeRetryAILoad, nil)); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Model load retry requested", nil))
}

func (c *curationController) SetInterests(ctx *fiber.Ctx) error {
	var req dto.SetInterestsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.bus.Publish(bus.TopicInbound, events.New(events.TypeSetInterests, dto.ToPayload(req))); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Interests updated", nil))
}

// Evaluate is the HTTP ingress for observers that cannot publish to the bus
// directly. Fire-and-forget, matching the EVALUATE_TWEET contract.
func (c *curationController) Evaluate(ctx *fiber.Ctx) error {
	var req dto.EvaluateTweetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := c.bus.Publish(bus.TopicInbound, events.New(events.TypeEvaluateTweet, dto.ToPayload(req))); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Evaluation queued", nil))
}

func (c *curationController) Status(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Status", c.curationService.Status()))
}

func (c *curationController) ExportLog(ctx *fiber.Ctx) error {
	entries, err := c.curationService.DumpLog()
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Curation log", entries))
}
