package service

import (
	"context"
	"fmt"
	"time"

	"ai-feed-curator/internal/constant"
	"ai-feed-curator/internal/pkg/logger"
	"ai-feed-curator/internal/repository/memory"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/errs"
	"ai-feed-curator/pkg/events"
)

// TopicInject is where the host runtime listens for observer re-injection
// requests.
const TopicInject = "observer.inject"

type IBridgeService interface {
	// Deliver sends a directive to one observer target, probing liveness first.
	// An unreachable target gets one re-injection and one retry; any further
	// failure is logged and returned as a DeliveryError the caller may swallow.
	Deliver(ctx context.Context, target string, directive events.Event) error

	// Activate tells a target to start observing the feed.
	Activate(ctx context.Context, target string)

	// Deactivate tells every connected target to stop observing.
	Deactivate(ctx context.Context)

	// Targets lists the currently connected observer instances.
	Targets() []string
}

type bridgeService struct {
	bus      *bus.Bus
	registry *memory.TargetRegistry
	logger   logger.ILogger
}

func NewBridgeService(b *bus.Bus, registry *memory.TargetRegistry, log logger.ILogger) IBridgeService {
	return &bridgeService{
		bus:      b,
		registry: registry,
		logger:   log,
	}
}

func (s *bridgeService) Deliver(ctx context.Context, target string, directive events.Event) error {
	if err := s.attemptDelivery(ctx, target, directive); err == nil {
		return nil
	}

	// Target unreachable: re-inject the observer once, wait out the grace
	// period, then retry delivery exactly once.
	s.logger.Warn("Bridge", "Target unreachable, re-injecting observer", map[string]interface{}{
		"target": target,
	})
	if err := s.bus.Publish(TopicInject, events.New(events.TypeInjectObserver, map[string]interface{}{
		"target": target,
	})); err != nil {
		s.logger.Warn("Bridge", "Re-injection publish failed", map[string]interface{}{
			"target": target,
			"error":  err.Error(),
		})
	}
	time.Sleep(constant.ReinjectGracePause)

	if err := s.attemptDelivery(ctx, target, directive); err != nil {
		s.registry.Remove(target)
		s.logger.Warn("Bridge", "Delivery abandoned after retry", map[string]interface{}{
			"target":    target,
			"directive": directive.EventType(),
			"error":     err.Error(),
		})
		return fmt.Errorf("%w: target %s: %v", errs.ErrDelivery, target, err)
	}
	return nil
}

func (s *bridgeService) attemptDelivery(ctx context.Context, target string, directive events.Event) error {
	pingCtx, cancel := context.WithTimeout(ctx, constant.PingTimeout)
	defer cancel()

	if _, err := s.bus.Request(pingCtx, bus.PingTopic(target), events.New(events.TypePing, nil)); err != nil {
		return err
	}

	if err := s.bus.Publish(bus.ObserverTopic(target), directive); err != nil {
		return err
	}
	s.registry.MarkConnected(target)
	return nil
}

func (s *bridgeService) Activate(ctx context.Context, target string) {
	if err := s.Deliver(ctx, target, events.New(events.TypeStartObserving, nil)); err != nil {
		// Best-effort; already logged.
		return
	}
	s.logger.Info("Bridge", "Observer activated", map[string]interface{}{"target": target})
}

func (s *bridgeService) Deactivate(ctx context.Context) {
	for _, target := range s.registry.Connected() {
		if err := s.Deliver(ctx, target, events.New(events.TypeStopObserving, nil)); err != nil {
			continue
		}
	}
}

func (s *bridgeService) Targets() []string {
	return s.registry.Connected()
}
