package skill

import (
	"context"
	"fmt"
)

// HandlerError reports a failed skill handler.
type HandlerError struct {
	Skill string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("skill %q failed: %v", e.Skill, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Invoke runs the skill handler and returns its result. Handler errors are
// wrapped in *HandlerError and otherwise left to the caller.
func Invoke(ctx context.Context, s Skill, c *Context) (Result, error) {
	result, err := s.Handler(ctx, c)
	if err != nil {
		return Result{}, &HandlerError{Skill: s.Name, Err: err}
	}

	return result, nil
}
