// Package history persists update runs so operators can inspect recent
// content synchronizations after the fact.
package history

import (
	"context"
	"time"
)

// Run statuses. A run starts as StatusRunning and ends in one of the
// terminal states.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// Run is one recorded content update.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     string     `json:"status"`
	CommitHash string     `json:"commitHash,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Store defines the interface for persisting and retrieving update runs.
type Store interface {
	// Begin records a new running update and returns its id.
	Begin(ctx context.Context, source string, startedAt time.Time) (string, error)

	// Finish marks a run terminal. errMsg is empty for successful runs.
	Finish(ctx context.Context, id, status, commitHash, errMsg string, finishedAt time.Time) error

	// Recent returns the newest runs, most recent first.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// Prune drops all but the newest keep runs.
	Prune(ctx context.Context, keep int) error

	// Close closes the store and releases resources.
	Close() error
}
