package dto

import (
	"encoding/json"
	"fmt"

	"ai-feed-curator/pkg/errs"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FromPayload maps a loosely-typed event payload onto a DTO and validates it.
// Unknown fields are ignored; validation failures surface as invalid input.
func FromPayload[T any](data map[string]interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if err := validate.Struct(&out); err != nil {
		return out, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return out, nil
}

// ToPayload is the inverse mapping, for placing a DTO on the bus.
func ToPayload(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// StartCurationRequest identifies the surface the observer is attached to.
type StartCurationRequest struct {
	Target string `json:"target" validate:"required"`
	URL    string `json:"url"`
}

// StartCurationResult is the reply to a start request. A declined start is not
// an error; it reports why the surface is ineligible.
type StartCurationResult struct {
	Started  bool   `json:"started"`
	Declined bool   `json:"declined"`
	Reason   string `json:"reason,omitempty"`
}

// StopCurationRequest carries the observer target to deactivate.
type StopCurationRequest struct {
	Target string `json:"target"`
}

// EvaluateTweetRequest is one feed item to classify. Text is a pointer so a
// null/omitted text is distinguishable from an empty string. Username feeds the
// fallback ID derivation when no stable permalink ID exists.
type EvaluateTweetRequest struct {
	ID          string   `json:"id"`
	Text        *string  `json:"text"`
	Username    string   `json:"username,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
	VideoFrames []string `json:"videoFrames,omitempty"`
	Target      string   `json:"target,omitempty"`
}

// ClassifyRequest is the provider-round-trip classification RPC.
type ClassifyRequest struct {
	ID   string  `json:"id" validate:"required"`
	Text *string `json:"text"`
}

// ClassifyResponse answers a ClassifyRequest.
type ClassifyResponse struct {
	ID              string `json:"id"`
	IsUninteresting bool   `json:"isUninteresting"`
	Reason          string `json:"reason"`
}

// SetInterestsRequest updates the classifier inputs.
type SetInterestsRequest struct {
	Interests    []string `json:"interests" validate:"required"`
	SpamKeywords []string `json:"spamKeywords"`
	Threshold    float64  `json:"threshold" validate:"gte=0,lte=1"`
}

// MarkTweetDirective tells the observer to visually hide one item.
type MarkTweetDirective struct {
	ID              string `json:"id" validate:"required"`
	IsUninteresting bool   `json:"isUninteresting"`
}

// StatusUpdate syncs the UI with the session state.
type StatusUpdate struct {
	IsRunning bool   `json:"isRunning"`
	AIReady   bool   `json:"aiReady"`
	AIStatus  string `json:"aiStatus"`
}

// ActivityLogEntry is one UI activity-feed line.
type ActivityLogEntry struct {
	TweetText string `json:"tweetText"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
}

// AILoadFailed reports a failed model acquisition.
type AILoadFailed struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// AILoadProgress forwards provider download progress.
type AILoadProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}
