package memory

import (
	"context"
	"strings"

	"ai-feed-curator/pkg/classify"
	"ai-feed-curator/pkg/embedding"

	"github.com/patrickmn/go-cache"
)

const snapshotKey = "interest_snapshot"

// InterestSnapshot pairs the normalized interest list with its embedding
// vectors. Snapshots are immutable once stored; readers never observe a mix of
// old and new vectors.
type InterestSnapshot struct {
	Interests []string
	Vectors   []classify.InterestVector
}

// InterestCache holds the current interest snapshot. Recompute replaces it
// wholesale; a recompute while the provider is not ready is a no-op and is
// retried by the caller on the next ready transition.
type InterestCache struct {
	cache    *cache.Cache
	provider embedding.EmbeddingProvider
}

func NewInterestCache(provider embedding.EmbeddingProvider) *InterestCache {
	return &InterestCache{
		cache:    cache.New(cache.NoExpiration, 0),
		provider: provider,
	}
}

// Normalize lowercases and trims interest terms, dropping empties. Order is
// preserved.
func Normalize(interests []string) []string {
	out := make([]string, 0, len(interests))
	for _, interest := range interests {
		interest = strings.ToLower(strings.TrimSpace(interest))
		if interest != "" {
			out = append(out, interest)
		}
	}
	return out
}

// Recompute embeds every interest and swaps the snapshot in one Set. If any
// embedding fails the old snapshot stays in place.
func (c *InterestCache) Recompute(ctx context.Context, interests []string, providerReady bool) error {
	if !providerReady {
		return nil
	}

	normalized := Normalize(interests)
	vectors := make([]classify.InterestVector, 0, len(normalized))
	for _, term := range normalized {
		vec, err := c.provider.Generate(ctx, term)
		if err != nil {
			return err
		}
		vectors = append(vectors, classify.InterestVector{Term: term, Vector: vec})
	}

	c.cache.Set(snapshotKey, &InterestSnapshot{
		Interests: normalized,
		Vectors:   vectors,
	}, cache.NoExpiration)
	return nil
}

// Snapshot returns the current snapshot, or an empty one when no recompute has
// succeeded yet.
func (c *InterestCache) Snapshot() *InterestSnapshot {
	if x, found := c.cache.Get(snapshotKey); found {
		return x.(*InterestSnapshot)
	}
	return &InterestSnapshot{}
}

// Invalidate drops the snapshot, e.g. when the interest list changes while the
// provider is down.
func (c *InterestCache) Invalidate() {
	c.cache.Delete(snapshotKey)
}
