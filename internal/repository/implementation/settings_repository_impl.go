package implementation

import (
	"encoding/json"

	"ai-feed-curator/internal/constant"
	"ai-feed-curator/internal/model"
	"ai-feed-curator/internal/repository/contract"
	"ai-feed-curator/pkg/classify"
	"ai-feed-curator/pkg/store"
)

type settingsRepository struct {
	store *store.BoltStore
}

func NewSettingsRepository(s *store.BoltStore) contract.SettingsRepository {
	return &settingsRepository{store: s}
}

func (r *settingsRepository) GetRunning() (bool, error) {
	data, found, err := r.store.Get(constant.KeyIsRunning)
	if err != nil || !found {
		return false, err
	}
	return string(data) == "true", nil
}

func (r *settingsRepository) SetRunning(running bool) error {
	value := "false"
	if running {
		value = "true"
	}
	return r.store.Put(constant.KeyIsRunning, []byte(value))
}

func (r *settingsRepository) GetAIStatus() (model.AIStatus, error) {
	data, found, err := r.store.Get(constant.KeyAIStatus)
	if err != nil {
		return model.AIStatusStopped, err
	}
	if !found {
		return model.AIStatusStopped, nil
	}
	return model.AIStatus(data), nil
}

func (r *settingsRepository) SetAIStatus(status model.AIStatus) error {
	return r.store.Put(constant.KeyAIStatus, []byte(status))
}

func (r *settingsRepository) GetInterestSettings() (model.InterestSettings, error) {
	settings := model.InterestSettings{
		Interests:    []string{},
		SpamKeywords: []string{},
		Threshold:    classify.DefaultThreshold,
	}

	if data, found, err := r.store.Get(constant.KeyInterests); err != nil {
		return settings, err
	} else if found {
		if err := json.Unmarshal(data, &settings.Interests); err != nil {
			return settings, err
		}
	}

	if data, found, err := r.store.Get(constant.KeySpamKeywords); err != nil {
		return settings, err
	} else if found {
		if err := json.Unmarshal(data, &settings.SpamKeywords); err != nil {
			return settings, err
		}
	}

	if data, found, err := r.store.Get(constant.KeyThreshold); err != nil {
		return settings, err
	} else if found {
		var threshold float64
		if err := json.Unmarshal(data, &threshold); err == nil && threshold > 0 {
			settings.Threshold = threshold
		}
	}

	return settings, nil
}

func (r *settingsRepository) SaveInterestSettings(settings model.InterestSettings) error {
	interests, err := json.Marshal(settings.Interests)
	if err != nil {
		return err
	}
	if err := r.store.Put(constant.KeyInterests, interests); err != nil {
		return err
	}

	keywords, err := json.Marshal(settings.SpamKeywords)
	if err != nil {
		return err
	}
	if err := r.store.Put(constant.KeySpamKeywords, keywords); err != nil {
		return err
	}

	threshold, err := json.Marshal(settings.Threshold)
	if err != nil {
		return err
	}
	return r.store.Put(constant.KeyThreshold, threshold)
}
