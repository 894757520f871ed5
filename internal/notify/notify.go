// Package notify fans content-update notifications out to external sinks.
// Sink failures are logged and never fail the update that produced them.
package notify

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

// Event types.
const (
	TypeStarted   = "started"
	TypeCompleted = "completed"
	TypeFailed    = "failed"
)

// Event is what external consumers receive when content changes.
type Event struct {
	Type       string    `json:"type"`
	Source     string    `json:"source,omitempty"`
	CommitHash string    `json:"commitHash,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink delivers one event to one destination.
type Sink interface {
	Notify(ctx context.Context, evt Event) error
	Close() error
}

// Fanout delivers each event to every sink.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (f *Fanout) WithLogger(logger *slog.Logger) *Fanout {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// Notify stamps the event and delivers it to all sinks.
func (f *Fanout) Notify(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	for _, s := range f.sinks {
		if err := s.Notify(ctx, evt); err != nil {
			f.logger.Warn("update notification failed",
				slog.String("type", evt.Type),
				logfields.Error(err))
		}
	}
}

// Close closes all sinks, returning the first error.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
