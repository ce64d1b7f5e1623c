package constant

import "time"

// Persisted settings keys.
const (
	KeyIsRunning    = "isRunning"
	KeyInterests    = "interests"
	KeySpamKeywords = "spamKeywords"
	KeyThreshold    = "threshold"
	KeyAIStatus     = "aiStatus"
)

// Model acquisition timing.
const (
	ProbeAttempts      = 3
	ProbeBackoffBase   = 1 * time.Second
	ProbeCallTimeout   = 30 * time.Second
	AcquireTimeout     = 120 * time.Second
	AutoRetryDelay     = 2 * time.Minute
	KeepAliveInterval  = 25 * time.Second
	PingTimeout        = 2 * time.Second
	ReinjectGracePause = 500 * time.Millisecond
)

// Eligible feed hosts; Start is declined for any other context.
var EligibleFeedHosts = []string{"x.com", "twitter.com"}
