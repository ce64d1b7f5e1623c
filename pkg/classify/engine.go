package classify

import (
	"context"
	"fmt"

	"ai-feed-curator/pkg/embedding"
)

// DefaultThreshold is the minimum cosine similarity an item must reach against
// any interest to be kept by the semantic tier.
const DefaultThreshold = 0.35

// Result is a fully-populated classification decision. No partial results ever
// escape the engine.
type Result struct {
	IsUninteresting bool     `json:"isUninteresting"`
	Reason          string   `json:"reason"`
	Similarity      *float64 `json:"similarity,omitempty"`
}

// InterestVector pairs a normalized interest term with its cached embedding.
type InterestVector struct {
	Term   string
	Vector []float32
}

// Engine decides keep/hide per item. Tier 1 compares the item's embedding
// against cached interest vectors; tier 2 is the rule-based Fallback. The
// engine never panics outward: any internal failure degrades to a safe hide.
type Engine struct {
	provider embedding.EmbeddingProvider
}

func NewEngine(provider embedding.EmbeddingProvider) *Engine {
	return &Engine{provider: provider}
}

// Classify runs tier 1 when providerReady and interest vectors exist, falling
// back to tier 2 on any provider failure. A nil text short-circuits to hide
// before any rule runs.
func (e *Engine) Classify(
	ctx context.Context,
	text *string,
	vectors []InterestVector,
	interests []string,
	spamKeywords []string,
	threshold float64,
	providerReady bool,
) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{IsUninteresting: true, Reason: "Classification error"}
		}
	}()

	if text == nil {
		return Result{IsUninteresting: true, Reason: "Invalid input: no text"}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if providerReady && e.provider != nil {
		switch {
		case len(vectors) > 0:
			if semantic, err := e.semantic(ctx, *text, vectors, threshold); err == nil {
				return semantic
			}
			// Provider hiccup mid-flight: degrade to the rule tier.
		case len(interests) == 0:
			return Result{IsUninteresting: false, Reason: "No interests"}
		}
		// Interests exist but their vectors are not computed yet; the rule
		// tier covers the gap until the recompute lands.
	}

	return Fallback(text, interests, spamKeywords)
}

func (e *Engine) semantic(ctx context.Context, text string, vectors []InterestVector, threshold float64) (Result, error) {
	vec, err := e.provider.Generate(ctx, text)
	if err != nil {
		return Result{}, err
	}

	maxSim := Cosine(vec, vectors[0].Vector)
	closest := vectors[0].Term
	for _, iv := range vectors[1:] {
		if sim := Cosine(vec, iv.Vector); sim > maxSim {
			maxSim = sim
			closest = iv.Term
		}
	}

	res := Result{
		IsUninteresting: maxSim < threshold,
		Similarity:      &maxSim,
	}
	if res.IsUninteresting {
		res.Reason = fmt.Sprintf("Max similarity %.3f below threshold %.2f", maxSim, threshold)
	} else {
		res.Reason = fmt.Sprintf("Similarity %.3f with %q", maxSim, closest)
	}
	return res, nil
}
