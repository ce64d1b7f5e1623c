package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-feed-curator/internal/constant"
	"ai-feed-curator/internal/dto"
	"ai-feed-curator/internal/pkg/logger"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/embedding"
	"ai-feed-curator/pkg/errs"
	"ai-feed-curator/pkg/events"
)

// LoadState is the model acquisition state. Transitions are monotonic within
// one attempt; a fresh attempt restarts from Idle.
type LoadState string

const (
	LoadStateIdle              LoadState = "idle"
	LoadStateTestingNetwork    LoadState = "testing_network"
	LoadStateImportingProvider LoadState = "importing_provider"
	LoadStateDownloading       LoadState = "downloading"
	LoadStateReady             LoadState = "ready"
	LoadStateFailed            LoadState = "failed"
)

type ILifecycleService interface {
	// Acquire makes the embedding provider ready. It is idempotent and
	// single-flight: concurrent callers join the same in-flight attempt, and a
	// failed attempt clears the memo so the next call starts fresh.
	Acquire(ctx context.Context) error

	// State reports the current load state.
	State() LoadState

	// Reset returns a settled (failed) manager to Idle for a manual retry. It
	// is a no-op while an attempt is in flight or after success.
	Reset()
}

type lifecycleService struct {
	host   embedding.ModelHost
	bus    *bus.Bus
	logger logger.ILogger

	mu      sync.Mutex
	state   LoadState
	pending *loadAttempt
}

// loadAttempt is the memoized in-flight acquisition. err is written once,
// before done closes.
type loadAttempt struct {
	done chan struct{}
	err  error
}

func NewLifecycleService(host embedding.ModelHost, b *bus.Bus, log logger.ILogger) ILifecycleService {
	return &lifecycleService{
		host:   host,
		bus:    b,
		logger: log,
		state:  LoadStateIdle,
	}
}

func (s *lifecycleService) State() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *lifecycleService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil || s.state == LoadStateReady {
		return
	}
	s.state = LoadStateIdle
}

func (s *lifecycleService) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.state == LoadStateReady {
		s.mu.Unlock()
		return nil
	}
	if s.pending == nil {
		s.pending = &loadAttempt{done: make(chan struct{})}
		go s.run(s.pending)
	}
	att := s.pending
	s.mu.Unlock()

	select {
	case <-att.done:
		return att.err
	case <-ctx.Done():
		// The attempt keeps running; only this caller gives up waiting.
		return ctx.Err()
	}
}

// run executes one full acquisition attempt on its own goroutine.
func (s *lifecycleService) run(att *loadAttempt) {
	err := s.attempt()

	s.mu.Lock()
	if err != nil {
		s.state = LoadStateFailed
		// Clear the memo so the next Acquire starts a fresh attempt.
		s.pending = nil
	} else {
		s.state = LoadStateReady
	}
	att.err = err
	close(att.done)
	s.mu.Unlock()

	if err != nil {
		category := errs.Classify(err)
		s.logger.Error("Lifecycle", "Model acquisition failed", map[string]interface{}{
			"error":    err.Error(),
			"category": string(category),
		})
		s.notify(events.New(events.TypeAILoadFailed, dto.ToPayload(dto.AILoadFailed{
			Error:    err.Error(),
			Category: string(category),
		})))
		return
	}

	s.logger.Info("Lifecycle", "Embedding provider ready", nil)
	s.notify(events.New(events.TypeAIReady, nil))
}

func (s *lifecycleService) attempt() error {
	// Phase 1: connectivity probe with bounded retry.
	s.transition(LoadStateTestingNetwork, "Testing network")
	if err := s.probeWithRetry(); err != nil {
		return err
	}

	// Phase 2: inference library initialization.
	s.transition(LoadStateImportingProvider, "Importing provider")
	initCtx, cancelInit := context.WithTimeout(context.Background(), constant.ProbeCallTimeout)
	err := s.host.Initialize(initCtx)
	cancelInit()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: provider initialization timed out", errs.ErrLibrary)
		}
		return err
	}

	// Phase 3: model download raced against the overall deadline.
	s.transition(LoadStateDownloading, "Downloading model")
	pullCtx, cancelPull := context.WithTimeout(context.Background(), constant.AcquireTimeout)
	defer cancelPull()
	err = s.host.Pull(pullCtx, func(prog embedding.PullProgress) {
		s.notify(events.New(events.TypeAILoadProgress, dto.ToPayload(dto.AILoadProgress{
			Status:    prog.Status,
			Completed: prog.Completed,
			Total:     prog.Total,
		})))
	})
	if err != nil {
		if pullCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: model download exceeded %s", errs.ErrTimeout, constant.AcquireTimeout)
		}
		return err
	}
	return nil
}

func (s *lifecycleService) probeWithRetry() error {
	var lastErr error
	backoff := constant.ProbeBackoffBase
	for attempt := 1; attempt <= constant.ProbeAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(context.Background(), constant.ProbeCallTimeout)
		lastErr = s.host.Probe(probeCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("Lifecycle", "Network probe failed", map[string]interface{}{
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
		if attempt < constant.ProbeAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: provider unreachable after %d attempts: %v",
		errs.ErrNetwork, constant.ProbeAttempts, lastErr)
}

func (s *lifecycleService) transition(state LoadState, status string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify(events.New(events.TypeAILoadProgress, dto.ToPayload(dto.AILoadProgress{Status: status})))
}

// notify reports back to the orchestrator over the bus, never directly: the
// session state has a single writer, the curation loop.
func (s *lifecycleService) notify(evt events.Event) {
	if err := s.bus.Publish(bus.TopicInbound, evt); err != nil {
		s.logger.Warn("Lifecycle", "Failed to publish lifecycle event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}
