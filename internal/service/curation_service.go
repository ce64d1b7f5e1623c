package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"ai-feed-curator/internal/constant"
	"ai-feed-curator/internal/dto"
	"ai-feed-curator/internal/model"
	"ai-feed-curator/internal/pkg/logger"
	"ai-feed-curator/internal/repository/contract"
	"ai-feed-curator/internal/repository/memory"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/classify"
	"ai-feed-curator/pkg/events"
	"ai-feed-curator/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
)

type ICurationService interface {
	// Consume starts the orchestration loop: a single goroutine draining the
	// inbound topic and routing every message.
	Consume(ctx context.Context) error

	// Status returns the current session state for the HTTP surface.
	Status() dto.StatusUpdate

	// DumpLog exports the full decision history.
	DumpLog() ([]model.DecisionLogEntry, error)
}

type curationService struct {
	bus          *bus.Bus
	lifecycle    ILifecycleService
	bridge       IBridgeService
	engine       *classify.Engine
	interestRepo *memory.InterestCache
	settingsRepo contract.SettingsRepository
	decisionRepo contract.DecisionLogRepository
	logger       logger.ILogger

	// state is owned by the Consume loop; the mutex only covers external
	// readers (Status).
	mu       sync.RWMutex
	state    model.SessionState
	settings model.InterestSettings

	keepAliveStop  chan struct{}
	retryScheduled bool
	retryDelay     time.Duration
}

func NewCurationService(
	b *bus.Bus,
	lifecycle ILifecycleService,
	bridge IBridgeService,
	engine *classify.Engine,
	interestRepo *memory.InterestCache,
	settingsRepo contract.SettingsRepository,
	decisionRepo contract.DecisionLogRepository,
	log logger.ILogger,
) ICurationService {
	settings, err := settingsRepo.GetInterestSettings()
	if err != nil {
		log.Warn("Curation", "Failed to load interest settings, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
	}

	svc := &curationService{
		bus:          b,
		lifecycle:    lifecycle,
		bridge:       bridge,
		engine:       engine,
		interestRepo: interestRepo,
		settingsRepo: settingsRepo,
		decisionRepo: decisionRepo,
		logger:       log,
		settings:     settings,
		retryDelay:   constant.AutoRetryDelay,
		// Session state resets on startup regardless of what was persisted.
		state: model.SessionState{AIStatus: model.AIStatusStopped},
	}
	if err := settingsRepo.SetRunning(false); err != nil {
		log.Warn("Curation", "Failed to reset running flag", map[string]interface{}{"error": err.Error()})
	}
	return svc
}

func (s *curationService) Consume(ctx context.Context) error {
	messages, err := s.bus.Subscribe(ctx, bus.TopicInbound)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
			msg.Ack()
		}
	}()

	return nil
}

func (s *curationService) Status() dto.StatusUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dto.StatusUpdate{
		IsRunning: s.state.IsRunning,
		AIReady:   s.state.AIReady,
		AIStatus:  string(s.state.AIStatus),
	}
}

func (s *curationService) DumpLog() ([]model.DecisionLogEntry, error) {
	return s.decisionRepo.Dump()
}

// processMessage is the exhaustive routing table. Every inbound message type
// has a branch; anything else is answered with an unknown-message error.
func (s *curationService) processMessage(ctx context.Context, msg *message.Message) {
	evt, err := bus.Decode(msg)
	if err != nil {
		s.logger.Error("Curation", "Malformed inbound message", map[string]interface{}{"error": err.Error()})
		return
	}

	switch evt.Type {
	case events.TypeStartCuration:
		s.handleStart(ctx, msg, evt)
	case events.TypeStopCuration:
		s.handleStop(ctx, msg, evt)
	case events.TypeEvaluateTweet:
		s.handleEvaluate(ctx, evt)
	case events.TypeClassify:
		s.handleClassify(ctx, msg, evt)
	case events.TypeSetInterests:
		s.handleSetInterests(ctx, evt)
	case events.TypeRetryAILoad:
		s.handleRetry(ctx)
	case events.TypeAIReady:
		s.handleModelReady(ctx)
	case events.TypeAILoadFailed:
		s.handleModelFailed(ctx, evt)
	case events.TypeAILoadProgress:
		s.broadcast(evt) // forward to the UI stream
	case events.TypeClassificationResult:
		s.broadcast(evt) // provider-origin fallback result, forward as-is
	case events.TypeKeepAlive:
		s.broadcastStatus()
	default:
		err := fmt.Errorf("unknown message type: %s", evt.Type)
		s.logger.Error("Curation", "Unroutable message", map[string]interface{}{"type": evt.Type})
		s.respond(msg, events.New("ERROR", map[string]interface{}{"error": err.Error()}))
	}
}

func (s *curationService) handleStart(ctx context.Context, msg *message.Message, evt events.BaseEvent) {
	req, err := dto.FromPayload[dto.StartCurationRequest](evt.Data)
	if err != nil {
		s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(dto.StartCurationResult{
			Declined: true,
			Reason:   err.Error(),
		})))
		return
	}

	if s.state.IsRunning {
		s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(dto.StartCurationResult{Started: true})))
		return
	}

	if req.URL != "" && !eligibleFeedContext(req.URL) {
		s.logger.Info("Curation", "Start declined: not a feed context", map[string]interface{}{"url": req.URL})
		s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(dto.StartCurationResult{
			Declined: true,
			Reason:   "active surface is not an eligible feed",
		})))
		return
	}

	if err := s.settingsRepo.SetRunning(true); err != nil {
		s.logger.Warn("Curation", "Failed to persist running flag", map[string]interface{}{"error": err.Error()})
	}

	s.mu.Lock()
	s.state.IsRunning = true
	if s.lifecycle.State() == LoadStateReady {
		s.state.AIReady = true
		s.state.AIStatus = model.AIStatusReady
	} else {
		s.state.AIStatus = model.AIStatusLoading
	}
	s.mu.Unlock()

	s.armKeepAlive()

	if s.lifecycle.State() == LoadStateReady {
		s.bridge.Activate(ctx, req.Target)
	} else {
		go func() {
			// Outcome arrives back on the inbound topic as AI_READY or
			// AI_LOAD_FAILED; nothing to do with the return value here.
			_ = s.lifecycle.Acquire(context.Background())
		}()
	}

	s.persistAIStatus()
	s.broadcastStatus()
	s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(dto.StartCurationResult{Started: true})))
}

func (s *curationService) handleStop(ctx context.Context, msg *message.Message, evt events.BaseEvent) {
	if !s.state.IsRunning {
		s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(s.Status())))
		return
	}

	if err := s.settingsRepo.SetRunning(false); err != nil {
		s.logger.Warn("Curation", "Failed to persist running flag", map[string]interface{}{"error": err.Error()})
	}

	s.mu.Lock()
	s.state.IsRunning = false
	s.mu.Unlock()

	s.disarmKeepAlive()
	s.bridge.Deactivate(ctx)
	s.broadcastStatus()
	s.respond(msg, events.New(events.TypeStatusUpdate, dto.ToPayload(s.Status())))
}

func (s *curationService) handleEvaluate(ctx context.Context, evt events.BaseEvent) {
	if !s.state.IsRunning {
		return
	}

	req, err := dto.FromPayload[dto.EvaluateTweetRequest](evt.Data)
	if err != nil {
		s.logger.Warn("Curation", "Invalid evaluation request", map[string]interface{}{"error": err.Error()})
		return
	}

	id := req.ID
	if id == "" {
		var text string
		if req.Text != nil {
			text = *req.Text
		}
		id = utils.DeriveContentID(req.Username, text, req.ImageURLs)
	}

	result := s.classify(ctx, req.Text)

	decision := model.DecisionKeep
	if result.IsUninteresting {
		decision = model.DecisionHide
	}

	var text string
	if req.Text != nil {
		text = *req.Text
	}

	// Logging is best-effort and never blocks curation.
	if err := s.decisionRepo.Append(model.DecisionLogEntry{
		Timestamp: time.Now(),
		ID:        id,
		Decision:  decision,
		Reason:    result.Reason,
		Text:      text,
	}); err != nil {
		s.logger.Warn("Curation", "Failed to append decision log", map[string]interface{}{"error": err.Error()})
	}

	s.broadcast(events.New(events.TypeActivityLog, dto.ToPayload(dto.ActivityLogEntry{
		TweetText: text,
		Decision:  string(decision),
		Reason:    result.Reason,
	})))

	if result.IsUninteresting && req.Target != "" {
		directive := events.New(events.TypeMarkTweet, dto.ToPayload(dto.MarkTweetDirective{
			ID:              id,
			IsUninteresting: true,
		}))
		// Delivery is best-effort and must not stall the routing loop; an
		// unreachable target blocks Deliver for the ping and re-injection
		// budget. Failures are logged inside the bridge.
		go func() {
			_ = s.bridge.Deliver(ctx, req.Target, directive)
		}()
	}
}

func (s *curationService) handleClassify(ctx context.Context, msg *message.Message, evt events.BaseEvent) {
	req, err := dto.FromPayload[dto.ClassifyRequest](evt.Data)
	if err != nil {
		s.respond(msg, events.New(events.TypeClassificationResult, dto.ToPayload(dto.ClassifyResponse{
			IsUninteresting: true,
			Reason:          "Invalid input",
		})))
		return
	}

	result := s.classify(ctx, req.Text)
	s.respond(msg, events.New(events.TypeClassificationResult, dto.ToPayload(dto.ClassifyResponse{
		ID:              req.ID,
		IsUninteresting: result.IsUninteresting,
		Reason:          result.Reason,
	})))
}

func (s *curationService) classify(ctx context.Context, text *string) classify.Result {
	snapshot := s.interestRepo.Snapshot()
	ready := s.lifecycle.State() == LoadStateReady
	return s.engine.Classify(
		ctx,
		text,
		snapshot.Vectors,
		memory.Normalize(s.settings.Interests),
		s.settings.SpamKeywords,
		s.settings.Threshold,
		ready,
	)
}

func (s *curationService) handleSetInterests(ctx context.Context, evt events.BaseEvent) {
	req, err := dto.FromPayload[dto.SetInterestsRequest](evt.Data)
	if err != nil {
		s.logger.Warn("Curation", "Invalid interests payload", map[string]interface{}{"error": err.Error()})
		return
	}

	settings := model.InterestSettings{
		Interests:    memory.Normalize(req.Interests),
		SpamKeywords: req.SpamKeywords,
		Threshold:    req.Threshold,
	}
	if settings.Threshold <= 0 {
		settings.Threshold = classify.DefaultThreshold
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if err := s.settingsRepo.SaveInterestSettings(settings); err != nil {
		s.logger.Warn("Curation", "Failed to persist interests", map[string]interface{}{"error": err.Error()})
	}

	if s.lifecycle.State() == LoadStateReady {
		go s.recomputeInterests(settings.Interests)
	} else {
		// Stale vectors must not outlive an interest change; the recompute is
		// deferred to the next ready transition.
		s.interestRepo.Invalidate()
	}
}

func (s *curationService) handleRetry(ctx context.Context) {
	s.logger.Info("Curation", "Manual model load retry requested", nil)
	s.lifecycle.Reset()

	s.mu.Lock()
	s.state.AIStatus = model.AIStatusLoading
	s.state.AIReady = false
	s.mu.Unlock()
	s.persistAIStatus()
	s.broadcastStatus()

	go func() {
		_ = s.lifecycle.Acquire(context.Background())
	}()
}

func (s *curationService) handleModelReady(ctx context.Context) {
	s.mu.Lock()
	s.state.AIReady = true
	s.state.AIStatus = model.AIStatusReady
	running := s.state.IsRunning
	interests := s.settings.Interests
	s.mu.Unlock()

	s.persistAIStatus()
	go s.recomputeInterests(interests)

	if running {
		for _, target := range s.bridge.Targets() {
			s.bridge.Activate(ctx, target)
		}
	}
	s.broadcastStatus()
}

func (s *curationService) handleModelFailed(ctx context.Context, evt events.BaseEvent) {
	failure, err := dto.FromPayload[dto.AILoadFailed](evt.Data)
	if err != nil {
		failure = dto.AILoadFailed{Error: "unknown failure", Category: "Unknown error"}
	}

	s.mu.Lock()
	s.state.AIReady = false
	s.state.AIStatus = model.AIStatusStopped
	running := s.state.IsRunning
	scheduleRetry := running && failure.Category == "Network error" && !s.retryScheduled
	if scheduleRetry {
		s.retryScheduled = true
	}
	s.mu.Unlock()

	s.logger.Warn("Curation", "Model load failed, falling back to rule tier", map[string]interface{}{
		"error":    failure.Error,
		"category": failure.Category,
	})
	s.persistAIStatus()
	s.broadcast(evt)
	s.broadcastStatus()

	// One deferred retry per network-classified failure while running.
	if scheduleRetry {
		time.AfterFunc(s.retryDelay, func() {
			s.mu.Lock()
			s.retryScheduled = false
			s.mu.Unlock()
			if err := s.bus.Publish(bus.TopicInbound, events.New(events.TypeRetryAILoad, nil)); err != nil {
				s.logger.Warn("Curation", "Failed to schedule model retry", map[string]interface{}{"error": err.Error()})
			}
		})
	}
}

func (s *curationService) recomputeInterests(interests []string) {
	ctx, cancel := context.WithTimeout(context.Background(), constant.AcquireTimeout)
	defer cancel()
	if err := s.interestRepo.Recompute(ctx, interests, s.lifecycle.State() == LoadStateReady); err != nil {
		s.logger.Warn("Curation", "Interest recompute failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *curationService) armKeepAlive() {
	s.disarmKeepAlive()
	stop := make(chan struct{})
	s.keepAliveStop = stop
	go func() {
		ticker := time.NewTicker(constant.KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Route through the inbound topic so state stays single-writer.
				_ = s.bus.Publish(bus.TopicInbound, events.New(events.TypeKeepAlive, nil))
			case <-stop:
				return
			}
		}
	}()
}

func (s *curationService) disarmKeepAlive() {
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
}

func (s *curationService) persistAIStatus() {
	s.mu.RLock()
	status := s.state.AIStatus
	s.mu.RUnlock()
	if err := s.settingsRepo.SetAIStatus(status); err != nil {
		s.logger.Warn("Curation", "Failed to persist ai status", map[string]interface{}{"error": err.Error()})
	}
}

func (s *curationService) broadcastStatus() {
	s.broadcast(events.New(events.TypeStatusUpdate, dto.ToPayload(s.Status())))
}

func (s *curationService) broadcast(evt events.Event) {
	if err := s.bus.Publish(bus.TopicUI, evt); err != nil {
		s.logger.Warn("Curation", "UI broadcast failed", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}

func (s *curationService) respond(msg *message.Message, evt events.Event) {
	if err := s.bus.Respond(msg, evt); err != nil {
		s.logger.Warn("Curation", "Reply failed", map[string]interface{}{"error": err.Error()})
	}
}

func eligibleFeedContext(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, eligible := range constant.EligibleFeedHosts {
		if host == eligible {
			return true
		}
	}
	return false
}
