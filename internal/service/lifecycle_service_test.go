package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/embedding"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// fakeHost drives lifecycle tests without a live provider. probeGate, when
// set, blocks Probe until closed.
type fakeHost struct {
	mu        sync.Mutex
	probes    int
	initErr   error
	pullErr   error
	probeGate chan struct{}
}

func (h *fakeHost) Probe(ctx context.Context) error {
	h.mu.Lock()
	h.probes++
	gate := h.probeGate
	h.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *fakeHost) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.initErr
	h.initErr = nil
	return err
}

func (h *fakeHost) Pull(ctx context.Context, onProgress func(embedding.PullProgress)) error {
	if onProgress != nil {
		onProgress(embedding.PullProgress{Status: "pulling", Completed: 1, Total: 1})
	}
	return h.pullErr
}

func (h *fakeHost) Generate(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (h *fakeHost) probeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.probes
}

func TestLifecycleAcquireSingleFlight(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	host := &fakeHost{probeGate: make(chan struct{})}
	svc := NewLifecycleService(host, b, nopLogger{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Acquire(context.Background())
		}(i)
	}

	// Let both callers join the attempt before the probe completes.
	require.Eventually(t, func() bool { return host.probeCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	close(host.probeGate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, host.probeCount(), "concurrent callers must share one attempt")
	assert.Equal(t, LoadStateReady, svc.State())
}

func TestLifecycleAcquireIdempotentOnceReady(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	host := &fakeHost{}
	svc := NewLifecycleService(host, b, nopLogger{})

	require.NoError(t, svc.Acquire(context.Background()))
	probes := host.probeCount()

	require.NoError(t, svc.Acquire(context.Background()))
	assert.Equal(t, probes, host.probeCount(), "ready manager must not re-acquire")
}

func TestLifecycleFailureClearsMemo(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	host := &fakeHost{initErr: errors.New("library import failed")}
	svc := NewLifecycleService(host, b, nopLogger{})

	err := svc.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, LoadStateFailed, svc.State())

	// The failure cleared the memo; initErr has been consumed, so the retry
	// runs a fresh attempt and succeeds.
	require.NoError(t, svc.Acquire(context.Background()))
	assert.Equal(t, 2, host.probeCount())
	assert.Equal(t, LoadStateReady, svc.State())
}

func TestLifecycleResetReturnsFailedToIdle(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	host := &fakeHost{initErr: errors.New("library import failed")}
	svc := NewLifecycleService(host, b, nopLogger{})

	require.Error(t, svc.Acquire(context.Background()))
	require.Equal(t, LoadStateFailed, svc.State())

	svc.Reset()
	assert.Equal(t, LoadStateIdle, svc.State())
}

func TestLifecycleCallerCanStopWaiting(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	host := &fakeHost{probeGate: make(chan struct{})}
	svc := NewLifecycleService(host, b, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Acquire(ctx) }()

	require.Eventually(t, func() bool { return host.probeCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not honor context cancellation")
	}

	// The attempt itself keeps running and settles once the gate opens.
	close(host.probeGate)
	require.Eventually(t, func() bool { return svc.State() == LoadStateReady },
		2*time.Second, 10*time.Millisecond)
}
