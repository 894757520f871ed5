package events

import "time"

// UpdateStarted is emitted when a content update transitions to in_progress.
//
// These are orchestration events used by the provider's in-process control
// flow. They are not durable; persisted runs live in internal/history.
type UpdateStarted struct {
	Source    string
	StartedAt time.Time
}

// UpdateCompleted is emitted after a snapshot swap finished successfully.
type UpdateCompleted struct {
	CommitHash  string
	CompletedAt time.Time
}

// UpdateFailed is emitted when an update run ends in failure.
type UpdateFailed struct {
	Err        string
	CommitHash string
	FailedAt   time.Time
}

// UpdateScheduled is emitted when a future update run has been armed.
type UpdateScheduled struct {
	When time.Time
}

// UpdateProgress carries fetch progress for subscribers (logging, dashboard).
type UpdateProgress struct {
	Progress float64
	Phase    string
}

// StateChanged is emitted on every status transition with the previous and
// current status values.
type StateChanged struct {
	Prev string
	Curr string
	At   time.Time
}
