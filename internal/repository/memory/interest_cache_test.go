package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []float32{1, 0}, nil
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"lowercases and trims", []string{"  GoLang ", "AI"}, []string{"golang", "ai"}},
		{"drops empties", []string{"", "  ", "rust"}, []string{"rust"}},
		{"preserves order", []string{"b", "a"}, []string{"b", "a"}},
		{"nil input", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestInterestCache(t *testing.T) {
	t.Run("recompute while provider not ready is a no-op", func(t *testing.T) {
		provider := &countingProvider{}
		c := NewInterestCache(provider)

		require.NoError(t, c.Recompute(context.Background(), []string{"golang"}, false))
		assert.Zero(t, provider.calls)
		assert.Empty(t, c.Snapshot().Vectors)
	})

	t.Run("recompute swaps a full snapshot", func(t *testing.T) {
		provider := &countingProvider{}
		c := NewInterestCache(provider)

		require.NoError(t, c.Recompute(context.Background(), []string{" GoLang ", "AI"}, true))
		assert.Equal(t, 2, provider.calls)

		snap := c.Snapshot()
		require.Len(t, snap.Vectors, 2)
		assert.Equal(t, []string{"golang", "ai"}, snap.Interests)
		assert.Equal(t, "golang", snap.Vectors[0].Term)
	})

	t.Run("embedding failure keeps the old snapshot", func(t *testing.T) {
		provider := &countingProvider{}
		c := NewInterestCache(provider)
		require.NoError(t, c.Recompute(context.Background(), []string{"golang"}, true))

		provider.err = errors.New("connection refused")
		err := c.Recompute(context.Background(), []string{"rust"}, true)
		require.Error(t, err)

		snap := c.Snapshot()
		assert.Equal(t, []string{"golang"}, snap.Interests)
	})

	t.Run("invalidate drops the snapshot", func(t *testing.T) {
		provider := &countingProvider{}
		c := NewInterestCache(provider)
		require.NoError(t, c.Recompute(context.Background(), []string{"golang"}, true))

		c.Invalidate()
		assert.Empty(t, c.Snapshot().Interests)
		assert.Empty(t, c.Snapshot().Vectors)
	})
}
