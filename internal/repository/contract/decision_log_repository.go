package contract

import "ai-feed-curator/internal/model"

// DecisionLogRepository is the bounded append-only decision history.
type DecisionLogRepository interface {
	Append(entry model.DecisionLogEntry) error
	Dump() ([]model.DecisionLogEntry, error)
	Count() (int, error)
	Reset() error
}
