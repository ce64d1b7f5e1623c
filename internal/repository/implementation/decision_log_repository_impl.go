package implementation

import (
	"encoding/json"

	"ai-feed-curator/internal/model"
	"ai-feed-curator/internal/repository/contract"
	"ai-feed-curator/pkg/store"
)

type decisionLogRepository struct {
	store    *store.BoltStore
	capacity int
}

func NewDecisionLogRepository(s *store.BoltStore) contract.DecisionLogRepository {
	return &decisionLogRepository{
		store:    s,
		capacity: model.DecisionLogCapacity,
	}
}

func (r *decisionLogRepository) Append(entry model.DecisionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.store.AppendLog(data, r.capacity)
}

func (r *decisionLogRepository) Dump() ([]model.DecisionLogEntry, error) {
	entries := make([]model.DecisionLogEntry, 0)
	err := r.store.ScanLog(func(value []byte) error {
		var entry model.DecisionLogEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			// Skip corrupt rows rather than breaking the export.
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *decisionLogRepository) Count() (int, error) {
	return r.store.LogCount()
}

func (r *decisionLogRepository) Reset() error {
	return r.store.ResetLog()
}
