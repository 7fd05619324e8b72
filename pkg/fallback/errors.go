package fallback

import "fmt"

// GenerationError reports a failed or empty backend reply.
type GenerationError struct {
	Address string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate reply for %s: %v", e.Address, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DeliveryError reports the first segment the transport refused.
type DeliveryError struct {
	Index int
	Total int
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver segment %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
