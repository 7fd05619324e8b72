package types

import (
	"log/slog"
	"time"
)

// Request times one backend call and logs its start and end at debug level.
type Request struct {
	log       *slog.Logger
	startedAt time.Time
}

// StartRequest logs the start of operation and returns its tracker.
func StartRequest(log *slog.Logger, operation string, attrs ...any) *Request {
	if log == nil {
		log = slog.Default()
	}
	r := &Request{log: log.With("operation", operation), startedAt: time.Now()}
	r.log.Debug("provider request started", attrs...)
	return r
}

// Fail logs err with the elapsed time and returns it unchanged.
func (r *Request) Fail(err error) error {
	r.log.Debug("provider request failed", "duration_ms", r.elapsed(), "error", err)
	return err
}

// Done logs completion with the elapsed time.
func (r *Request) Done(attrs ...any) {
	r.log.Debug("provider request completed", append([]any{"duration_ms", r.elapsed()}, attrs...)...)
}

func (r *Request) elapsed() int64 {
	return time.Since(r.startedAt).Milliseconds()
}
