package contract

import "ai-feed-curator/internal/model"

// SettingsRepository persists the session flags and classifier configuration.
type SettingsRepository interface {
	GetRunning() (bool, error)
	SetRunning(running bool) error

	GetAIStatus() (model.AIStatus, error)
	SetAIStatus(status model.AIStatus) error

	GetInterestSettings() (model.InterestSettings, error)
	SaveInterestSettings(settings model.InterestSettings) error
}
