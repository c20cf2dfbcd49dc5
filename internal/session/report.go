package session

import (
	"context"
	"log/slog"
)

// Report is one user-facing status message from a session operation.
type Report struct {
	Op      string
	Role    Role
	Level   slog.Level
	Message string
	Err     error
}

// Reporter receives session status messages. Implementations must be safe
// for concurrent use.
type Reporter interface {
	Report(Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

// Report calls f(r).
func (f ReporterFunc) Report(r Report) { f(r) }

type logReporter struct {
	log *slog.Logger
}

func (l logReporter) Report(r Report) {
	attrs := []any{"op", r.Op, "role", r.Role.String()}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	l.log.Log(context.Background(), r.Level, r.Message, attrs...)
}
