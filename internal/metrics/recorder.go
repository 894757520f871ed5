package metrics

import "time"

// UpdateOutcomeLabel enumerates terminal update-run results for counters.
type UpdateOutcomeLabel string

const (
	UpdateSuccess UpdateOutcomeLabel = "success"
	UpdateFailed  UpdateOutcomeLabel = "failed"
	UpdateAborted UpdateOutcomeLabel = "aborted"
)

// Cache lookup kinds. One label value per cached artifact class.
const (
	CacheKindDocument = "document"
	CacheKindConfig   = "config"
	CacheKindPaths    = "paths"
	CacheKindFQN      = "fqn"
)

// Recorder defines observability hooks for request serving and content
// updates. Implementations may forward to Prometheus, OpenTelemetry, etc.
// All methods must be safe on the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveRequestDuration(route string, status int, d time.Duration)
	IncUpdateOutcome(outcome UpdateOutcomeLabel)
	ObserveUpdateDuration(outcome UpdateOutcomeLabel, d time.Duration)
	IncCacheLookup(kind string, hit bool)
	ObserveWarmDuration(d time.Duration)
	SetContentAvailable(available bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRequestDuration(string, int, time.Duration)       {}
func (NoopRecorder) IncUpdateOutcome(UpdateOutcomeLabel)                     {}
func (NoopRecorder) ObserveUpdateDuration(UpdateOutcomeLabel, time.Duration) {}
func (NoopRecorder) IncCacheLookup(string, bool)                             {}
func (NoopRecorder) ObserveWarmDuration(time.Duration)                       {}
func (NoopRecorder) SetContentAvailable(bool)                                {}
