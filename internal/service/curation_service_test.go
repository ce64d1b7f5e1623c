package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-feed-curator/internal/dto"
	"ai-feed-curator/internal/repository/implementation"
	"ai-feed-curator/internal/repository/memory"
	"ai-feed-curator/pkg/bus"
	"ai-feed-curator/pkg/classify"
	"ai-feed-curator/pkg/events"
	"ai-feed-curator/pkg/store"
)

type fakeLifecycle struct {
	mu       sync.Mutex
	state    LoadState
	acquires int
}

func (f *fakeLifecycle) Acquire(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return nil
}

func (f *fakeLifecycle) State() LoadState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLifecycle) Reset() {}

type fakeBridge struct {
	mu          sync.Mutex
	delivered   []string
	activated   []string
	deactivated int

	// deliverGate, when set, blocks Deliver until closed.
	deliverGate chan struct{}
}

func (f *fakeBridge) Deliver(ctx context.Context, target string, directive events.Event) error {
	f.mu.Lock()
	gate := f.deliverGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, target+":"+directive.EventType())
	return nil
}

func (f *fakeBridge) Activate(ctx context.Context, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, target)
}

func (f *fakeBridge) Deactivate(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated++
}

func (f *fakeBridge) Targets() []string { return nil }

func (f *fakeBridge) deliveries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

type curationFixture struct {
	bus       *bus.Bus
	svc       ICurationService
	lifecycle *fakeLifecycle
	bridge    *fakeBridge
}

func newCurationFixture(t *testing.T) *curationFixture {
	t.Helper()

	boltStore, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { boltStore.Close() })

	b := bus.New(nil)
	t.Cleanup(func() { b.Close() })

	lifecycle := &fakeLifecycle{state: LoadStateIdle}
	bridge := &fakeBridge{}
	provider := &fakeHost{}

	svc := NewCurationService(
		b,
		lifecycle,
		bridge,
		classify.NewEngine(provider),
		memory.NewInterestCache(provider),
		implementation.NewSettingsRepository(boltStore),
		implementation.NewDecisionLogRepository(boltStore),
		nopLogger{},
	)
	require.NoError(t, svc.Consume(context.Background()))

	return &curationFixture{bus: b, svc: svc, lifecycle: lifecycle, bridge: bridge}
}

func (f *curationFixture) request(t *testing.T, evt events.Event) events.BaseEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := f.bus.Request(ctx, bus.TopicInbound, evt)
	require.NoError(t, err)
	return reply
}

func (f *curationFixture) start(t *testing.T, target, url string) dto.StartCurationResult {
	t.Helper()
	reply := f.request(t, events.New(events.TypeStartCuration, dto.ToPayload(dto.StartCurationRequest{
		Target: target,
		URL:    url,
	})))
	result, err := dto.FromPayload[dto.StartCurationResult](reply.Data)
	require.NoError(t, err)
	return result
}

func TestStartCuration(t *testing.T) {
	t.Run("eligible feed starts the session", func(t *testing.T) {
		f := newCurationFixture(t)

		result := f.start(t, "tab-1", "https://x.com/home")
		assert.True(t, result.Started)
		assert.False(t, result.Declined)

		status := f.svc.Status()
		assert.True(t, status.IsRunning)
		assert.Equal(t, "loading", status.AIStatus)

		// Provider was not ready, so start triggers an acquisition.
		require.Eventually(t, func() bool {
			f.lifecycle.mu.Lock()
			defer f.lifecycle.mu.Unlock()
			return f.lifecycle.acquires == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("www prefix and legacy host are eligible", func(t *testing.T) {
		f := newCurationFixture(t)
		result := f.start(t, "tab-1", "https://www.twitter.com/home")
		assert.True(t, result.Started)
	})

	t.Run("missing url starts without a surface check", func(t *testing.T) {
		// Observers that cannot report their URL are trusted; only a URL
		// naming an ineligible host declines the start.
		f := newCurationFixture(t)
		result := f.start(t, "tab-1", "")
		assert.True(t, result.Started)
		assert.False(t, result.Declined)
	})

	t.Run("non-feed surface is declined", func(t *testing.T) {
		f := newCurationFixture(t)

		result := f.start(t, "tab-1", "https://example.com/")
		assert.True(t, result.Declined)
		assert.NotEmpty(t, result.Reason)
		assert.False(t, f.svc.Status().IsRunning)
	})

	t.Run("start while running is a no-op success", func(t *testing.T) {
		f := newCurationFixture(t)

		require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)
		assert.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

		// Only the first start kicks off an acquisition.
		require.Eventually(t, func() bool {
			f.lifecycle.mu.Lock()
			defer f.lifecycle.mu.Unlock()
			return f.lifecycle.acquires == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("ready provider activates the bridge immediately", func(t *testing.T) {
		f := newCurationFixture(t)
		f.lifecycle.mu.Lock()
		f.lifecycle.state = LoadStateReady
		f.lifecycle.mu.Unlock()

		require.True(t, f.start(t, "tab-7", "https://x.com/home").Started)

		f.bridge.mu.Lock()
		defer f.bridge.mu.Unlock()
		assert.Equal(t, []string{"tab-7"}, f.bridge.activated)
	})
}

func TestStopCuration(t *testing.T) {
	f := newCurationFixture(t)
	require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

	reply := f.request(t, events.New(events.TypeStopCuration, nil))
	status, err := dto.FromPayload[dto.StatusUpdate](reply.Data)
	require.NoError(t, err)

	assert.False(t, status.IsRunning)
	assert.False(t, f.svc.Status().IsRunning)

	f.bridge.mu.Lock()
	defer f.bridge.mu.Unlock()
	assert.Equal(t, 1, f.bridge.deactivated)
}

func TestEvaluateTweet(t *testing.T) {
	t.Run("ignored while stopped", func(t *testing.T) {
		f := newCurationFixture(t)

		text := "anything at all"
		require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeEvaluateTweet,
			dto.ToPayload(dto.EvaluateTweetRequest{ID: "t1", Text: &text, Target: "tab-1"}))))

		// Give the loop a moment, then confirm nothing was logged.
		time.Sleep(100 * time.Millisecond)
		entries, err := f.svc.DumpLog()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("hide decision logs and marks the tweet", func(t *testing.T) {
		f := newCurationFixture(t)
		require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

		ui, err := f.bus.Subscribe(context.Background(), bus.TopicUI)
		require.NoError(t, err)

		text := "nothing matches here"
		require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeEvaluateTweet,
			dto.ToPayload(dto.EvaluateTweetRequest{ID: "t1", Text: &text, Target: "tab-1"}))))

		require.Eventually(t, func() bool {
			return len(f.bridge.deliveries()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "tab-1:"+events.TypeMarkTweet, f.bridge.deliveries()[0])

		entries, err := f.svc.DumpLog()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "t1", entries[0].ID)
		assert.Equal(t, "hide", string(entries[0].Decision))
		assert.Equal(t, "No matching interests", entries[0].Reason)

		// An activity line reaches the UI stream.
		deadline := time.After(2 * time.Second)
		for {
			select {
			case msg := <-ui:
				msg.Ack()
				evt, err := bus.Decode(msg)
				require.NoError(t, err)
				if evt.Type == events.TypeActivityLog {
					entry, err := dto.FromPayload[dto.ActivityLogEntry](evt.Data)
					require.NoError(t, err)
					assert.Equal(t, "hide", entry.Decision)
					return
				}
			case <-deadline:
				t.Fatal("no activity log broadcast")
			}
		}
	})

	t.Run("missing id derives a stable content id", func(t *testing.T) {
		f := newCurationFixture(t)
		require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

		text := "no permalink on this one"
		require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeEvaluateTweet,
			dto.ToPayload(dto.EvaluateTweetRequest{Text: &text, Username: "someone", Target: "tab-1"}))))

		require.Eventually(t, func() bool {
			entries, err := f.svc.DumpLog()
			return err == nil && len(entries) == 1
		}, 2*time.Second, 10*time.Millisecond)

		entries, err := f.svc.DumpLog()
		require.NoError(t, err)
		assert.Contains(t, entries[0].ID, "content-")
	})
}

func TestNetworkFailureSchedulesExactlyOneRetry(t *testing.T) {
	f := newCurationFixture(t)
	f.svc.(*curationService).retryDelay = 50 * time.Millisecond

	require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

	inbound, err := f.bus.Subscribe(context.Background(), bus.TopicInbound)
	require.NoError(t, err)

	// Two network failures land before the timer fires; only the first may
	// arm it.
	failure := dto.ToPayload(dto.AILoadFailed{
		Error:    "dial tcp: connection refused",
		Category: "Network error",
	})
	require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeAILoadFailed, failure)))
	require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeAILoadFailed, failure)))

	retries := 0
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case msg := <-inbound:
			msg.Ack()
			if evt, err := bus.Decode(msg); err == nil && evt.Type == events.TypeRetryAILoad {
				retries++
			}
		case <-deadline:
			assert.Equal(t, 1, retries, "one deferred retry per failure window")
			return
		}
	}
}

func TestNonNetworkFailureSchedulesNoRetry(t *testing.T) {
	f := newCurationFixture(t)
	f.svc.(*curationService).retryDelay = 50 * time.Millisecond

	require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

	inbound, err := f.bus.Subscribe(context.Background(), bus.TopicInbound)
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeAILoadFailed,
		dto.ToPayload(dto.AILoadFailed{Error: "wasm init", Category: "Library error"}))))

	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case msg := <-inbound:
			msg.Ack()
			if evt, err := bus.Decode(msg); err == nil && evt.Type == events.TypeRetryAILoad {
				t.Fatal("library failure must not arm the retry timer")
			}
		case <-deadline:
			return
		}
	}
}

func TestBlockedDeliveryDoesNotStallRouting(t *testing.T) {
	f := newCurationFixture(t)
	f.bridge.deliverGate = make(chan struct{})

	require.True(t, f.start(t, "tab-1", "https://x.com/home").Started)

	text := "nothing matches here"
	require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeEvaluateTweet,
		dto.ToPayload(dto.EvaluateTweetRequest{ID: "t1", Text: &text, Target: "tab-1"}))))

	// The decision is logged even though the mark directive is stuck.
	require.Eventually(t, func() bool {
		entries, err := f.svc.DumpLog()
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, f.bridge.deliveries())

	// The routing loop keeps answering while the delivery is blocked.
	probe := "rt if you agree"
	reply := f.request(t, events.New(events.TypeClassify, dto.ToPayload(dto.ClassifyRequest{
		ID:   "c2",
		Text: &probe,
	})))
	assert.Equal(t, events.TypeClassificationResult, reply.Type)

	close(f.bridge.deliverGate)
	require.Eventually(t, func() bool {
		return len(f.bridge.deliveries()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClassifyRequest(t *testing.T) {
	f := newCurationFixture(t)

	text := "rt if you agree"
	reply := f.request(t, events.New(events.TypeClassify, dto.ToPayload(dto.ClassifyRequest{
		ID:   "c1",
		Text: &text,
	})))

	result, err := dto.FromPayload[dto.ClassifyResponse](reply.Data)
	require.NoError(t, err)
	assert.Equal(t, "c1", result.ID)
	assert.True(t, result.IsUninteresting)
	assert.Equal(t, "Engagement bait", result.Reason)
}

func TestSetInterests(t *testing.T) {
	f := newCurationFixture(t)

	require.NoError(t, f.bus.Publish(bus.TopicInbound, events.New(events.TypeSetInterests,
		dto.ToPayload(dto.SetInterestsRequest{
			Interests: []string{" GoLang ", "AI"},
			Threshold: 0.5,
		}))))

	// The new settings flow into classification on the very next request.
	require.Eventually(t, func() bool {
		text := "a post about golang"
		reply := f.request(t, events.New(events.TypeClassify, dto.ToPayload(dto.ClassifyRequest{
			ID:   "c1",
			Text: &text,
		})))
		result, err := dto.FromPayload[dto.ClassifyResponse](reply.Data)
		return err == nil && !result.IsUninteresting
	}, 2*time.Second, 50*time.Millisecond)
}

func TestUnknownMessageType(t *testing.T) {
	f := newCurationFixture(t)

	reply := f.request(t, events.New("BOGUS_TYPE", nil))
	assert.Equal(t, "ERROR", reply.Type)
	assert.Contains(t, reply.Data["error"], "unknown message type")
}

func TestEligibleFeedContext(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.com/home", true},
		{"https://www.x.com/home", true},
		{"https://twitter.com/explore", true},
		{"https://X.com/home", true},
		{"https://example.com/", false},
		{"https://x.com.evil.io/", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := eligibleFeedContext(tt.url); got != tt.want {
			t.Errorf("eligibleFeedContext(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
