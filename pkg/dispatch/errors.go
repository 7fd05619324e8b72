package dispatch

import (
	"errors"
	"fmt"

	"riddlebot/pkg/fallback"
	"riddlebot/pkg/skill"
)

// LookupError reports a failed user directory lookup.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("look up user %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Error kinds reported by ErrorKind.
const (
	KindLookup     = "lookup"
	KindHandler    = "handler"
	KindGeneration = "generation"
	KindDelivery   = "delivery"
	KindUnknown    = "unknown"
)

// ErrorKind classifies a dispatch failure for logs and events.
func ErrorKind(err error) string {
	var (
		lookupErr     *LookupError
		handlerErr    *skill.HandlerError
		generationErr *fallback.GenerationError
		deliveryErr   *fallback.DeliveryError
	)

	switch {
	case errors.As(err, &lookupErr):
		return KindLookup
	case errors.As(err, &handlerErr):
		return KindHandler
	case errors.As(err, &generationErr):
		return KindGeneration
	case errors.As(err, &deliveryErr):
		return KindDelivery
	default:
		return KindUnknown
	}
}
