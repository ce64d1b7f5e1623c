package model

import "time"

// AIStatus mirrors the provider lifecycle as shown to the UI.
type AIStatus string

const (
	AIStatusStopped AIStatus = "stopped"
	AIStatusLoading AIStatus = "loading"
	AIStatusReady   AIStatus = "ready"
)

// SessionState is the single process-wide curation state. It is owned and
// mutated only by the curation service and reset on startup.
type SessionState struct {
	IsRunning bool     `json:"isRunning"`
	AIReady   bool     `json:"aiReady"`
	AIStatus  AIStatus `json:"aiStatus"`
}

// Decision is the curation verdict for one feed item.
type Decision string

const (
	DecisionHide Decision = "hide"
	DecisionKeep Decision = "keep"
)

// DecisionLogEntry records one classification decision. Entries live in a
// bounded FIFO history of DecisionLogCapacity.
type DecisionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason"`
	Text      string    `json:"text"`
}

// DecisionLogCapacity bounds the decision history; oldest entries evict first.
const DecisionLogCapacity = 2000

// InterestSettings is the persisted classifier configuration.
type InterestSettings struct {
	Interests    []string `json:"interests"`
	SpamKeywords []string `json:"spamKeywords"`
	Threshold    float64  `json:"threshold"`
}
