package classify

import (
	"fmt"
	"strings"
)

// DefaultSpamKeywords is the baseline spam list applied when the user has not
// configured one.
var DefaultSpamKeywords = []string{
	"buy now",
	"limited offer",
	"click here",
	"dm me",
	"promo code",
	"giveaway",
	"free crypto",
	"airdrop",
}

var baitPrefixes = []string{
	"rt if",
	"retweet if",
	"like if",
	"agree or disagree",
}

var qualityIndicators = []string{
	"research",
	"study",
	"breakthrough",
	"published",
	"scientists",
	"university",
	"data shows",
}

// abbreviations expands short technical tokens for the weak-overlap rule.
var abbreviations = map[string][]string{
	"ai":  {"artificial", "intelligence"},
	"ml":  {"machine", "learning"},
	"gpu": {"graphics"},
	"cpu": {"processor"},
}

// Fallback is the rule-based classification tier, used whenever the embedding
// provider is unavailable or fails mid-flight. Rules apply in strict order;
// the first match wins.
func Fallback(text *string, interests []string, spamKeywords []string) Result {
	if text == nil {
		return Result{IsUninteresting: true, Reason: "Invalid input: no text"}
	}
	lower := strings.ToLower(strings.TrimSpace(*text))

	// 1. Spam keywords
	if len(spamKeywords) == 0 {
		spamKeywords = DefaultSpamKeywords
	}
	for _, kw := range spamKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return Result{IsUninteresting: true, Reason: fmt.Sprintf("Spam keyword: %q", kw)}
		}
	}

	// 2. Direct interest match
	for _, interest := range interests {
		if interest != "" && strings.Contains(lower, interest) {
			return Result{IsUninteresting: false, Reason: fmt.Sprintf("Matches interest: %q", interest)}
		}
	}

	// 3. Engagement bait
	for _, prefix := range baitPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return Result{IsUninteresting: true, Reason: "Engagement bait"}
		}
	}

	// 4. Quality indicators
	for _, indicator := range qualityIndicators {
		if strings.Contains(lower, indicator) {
			return Result{IsUninteresting: false, Reason: fmt.Sprintf("Quality indicator: %q", indicator)}
		}
	}

	// 5. Weak semantic overlap
	if interest, score := bestOverlap(lower, interests); score > 0.5 {
		return Result{
			IsUninteresting: false,
			Reason:          fmt.Sprintf("Weak match with %q (%.0f%%)", interest, score*100),
		}
	}

	return Result{IsUninteresting: true, Reason: "No matching interests"}
}

// bestOverlap scores each interest by the fraction of its tokens that overlap
// the text and returns the best-scoring interest.
func bestOverlap(lowerText string, interests []string) (string, float64) {
	textTokens := strings.Fields(lowerText)
	var bestInterest string
	var bestScore float64

	for _, interest := range interests {
		interestTokens := strings.Fields(interest)
		if len(interestTokens) == 0 {
			continue
		}
		matches := 0
		for _, it := range interestTokens {
			for _, tt := range textTokens {
				if tokensOverlap(it, tt) {
					matches++
					break
				}
			}
		}
		score := float64(matches) / float64(len(interestTokens))
		if score > bestScore {
			bestScore = score
			bestInterest = interest
		}
	}
	return bestInterest, bestScore
}

func tokensOverlap(a, b string) bool {
	if len(a) >= 3 && len(b) >= 3 {
		if strings.Contains(a, b) || strings.Contains(b, a) {
			return true
		}
	}
	if expansions, ok := abbreviations[a]; ok {
		for _, exp := range expansions {
			if strings.Contains(b, exp) {
				return true
			}
		}
	}
	if expansions, ok := abbreviations[b]; ok {
		for _, exp := range expansions {
			if strings.Contains(a, exp) {
				return true
			}
		}
	}
	return false
}
