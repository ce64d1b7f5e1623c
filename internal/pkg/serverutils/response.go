package serverutils

import (
	"errors"

	"ai-feed-curator/pkg/errs"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

func ErrorResponse(message string) Response {
	return Response{Success: false, Message: message}
}

// ValidateRequest runs struct-tag validation on a parsed request body.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}

// ErrorHandlerMiddleware converts downstream errors into the JSON envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := fiber.StatusInternalServerError
		var validationErrs validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrs), errors.Is(err, errs.ErrInvalidInput):
			status = fiber.StatusBadRequest
		case errors.Is(err, errs.ErrTimeout):
			status = fiber.StatusGatewayTimeout
		}

		return ctx.Status(status).JSON(ErrorResponse(err.Error()))
	}
}
