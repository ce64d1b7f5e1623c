package errs

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for the failure categories the curation pipeline reports.
var (
	ErrNetwork      = errors.New("network error")
	ErrTimeout      = errors.New("timeout error")
	ErrServer       = errors.New("server error")
	ErrLibrary      = errors.New("library error")
	ErrInvalidInput = errors.New("invalid input")
	ErrDelivery     = errors.New("delivery error")
)

// Category is the human-readable classification reported to the UI when model
// acquisition fails.
type Category string

const (
	CategoryNetwork Category = "Network error"
	CategoryTimeout Category = "Timeout error"
	CategoryServer  Category = "Server error"
	CategoryLibrary Category = "Library error"
	CategoryUnknown Category = "Unknown error"
)

func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

// Classify maps an arbitrary error to a failure category. Wrapped sentinels are
// honored first; otherwise the message is inspected, mirroring how provider
// errors arrive as plain strings over the wire.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return CategoryNetwork
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrServer):
		return CategoryServer
	case errors.Is(err, ErrLibrary):
		return CategoryLibrary
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "unreachable"):
		return CategoryNetwork
	case strings.Contains(msg, "status") || strings.Contains(msg, "server"):
		return CategoryServer
	case strings.Contains(msg, "library") || strings.Contains(msg, "import") ||
		strings.Contains(msg, "initialize"):
		return CategoryLibrary
	default:
		return CategoryUnknown
	}
}
