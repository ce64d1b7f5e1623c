package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "EVALUATE_TWEET").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Message type codes carried on the curation bus. Inbound codes are routed by
// the curation service; outbound codes are broadcast to the UI stream.
const (
	TypeStartCuration  = "START_CURATION"
	TypeStopCuration   = "STOP_CURATION"
	TypeEvaluateTweet  = "EVALUATE_TWEET"
	TypeClassify       = "CLASSIFY"
	TypeSetInterests   = "SET_INTERESTS"
	TypeRetryAILoad    = "RETRY_AI_LOAD"
	TypeAIReady        = "AI_READY"
	TypeAILoadFailed   = "AI_LOAD_FAILED"
	TypeAILoadProgress = "AI_LOAD_PROGRESS"
	TypeKeepAlive      = "KEEP_ALIVE"

	TypeStatusUpdate         = "STATUS_UPDATE"
	TypeActivityLog          = "ACTIVITY_LOG"
	TypeClassificationResult = "CLASSIFICATION_RESULT"

	TypeMarkTweet      = "MARK_TWEET"
	TypeStartObserving = "START_OBSERVING"
	TypeStopObserving  = "STOP_OBSERVING"
	TypeInjectObserver = "INJECT_OBSERVER"
	TypePing           = "PING"
	TypePong           = "PONG"
)

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// New builds a BaseEvent stamped with the current time.
func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}
