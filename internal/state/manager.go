// Package state tracks the content update lifecycle and gates request
// serving on update completion.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/events"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

// Status is the lifecycle position of the update loop.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
)

// DefaultReadyTimeout bounds how long a request waits for the first usable
// snapshot before giving up with a timeout error.
const DefaultReadyTimeout = 5 * time.Minute

const publishTimeout = 2 * time.Second

// State is the observable update tuple. Values returned by Manager.State are
// copies; callers can hold them without locking.
type State struct {
	Status           Status
	Source           string
	Phase            string
	Progress         float64
	LastUpdateTime   *time.Time
	ScheduledTime    *time.Time
	LastError        error
	FailedCommitHash string
	UpdateInProgress bool
	FailedUpdates    int
}

func (s State) clone() State {
	c := s
	if s.LastUpdateTime != nil {
		t := *s.LastUpdateTime
		c.LastUpdateTime = &t
	}
	if s.ScheduledTime != nil {
		t := *s.ScheduledTime
		c.ScheduledTime = &t
	}
	return c
}

// Manager owns the update tuple. A single mutex guards every transition;
// transitions publish to the event bus so waiters and sinks observe them
// without polling.
type Manager struct {
	mu    sync.Mutex
	state State
	bus   *events.Bus
}

// NewManager creates a Manager in the idle state.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{
		state: State{Status: StatusIdle},
		bus:   bus,
	}
}

// State returns a copy of the current tuple.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// StartUpdate transitions to in_progress. Any armed schedule is consumed.
func (m *Manager) StartUpdate(source string) {
	m.mu.Lock()
	prev := m.state.Status
	m.state.Status = StatusInProgress
	m.state.Source = source
	m.state.Phase = ""
	m.state.Progress = 0
	m.state.ScheduledTime = nil
	m.state.UpdateInProgress = true
	m.mu.Unlock()

	m.publish(events.UpdateStarted{Source: source, StartedAt: time.Now()})
	m.publishTransition(prev, StatusInProgress)
}

// CompleteUpdate transitions to idle and clears the failure counters.
func (m *Manager) CompleteUpdate() {
	now := time.Now()

	m.mu.Lock()
	prev := m.state.Status
	m.state.Status = StatusIdle
	m.state.Source = ""
	m.state.Phase = ""
	m.state.Progress = 0
	m.state.LastUpdateTime = &now
	m.state.LastError = nil
	m.state.FailedCommitHash = ""
	m.state.UpdateInProgress = false
	m.state.FailedUpdates = 0
	m.mu.Unlock()

	m.publish(events.UpdateCompleted{CompletedAt: now})
	m.publishTransition(prev, StatusIdle)
}

// FailUpdate transitions to failed, recording the error and, when known, the
// commit hash the failed run was trying to serve.
func (m *Manager) FailUpdate(err error, commitHash string) {
	now := time.Now()

	m.mu.Lock()
	prev := m.state.Status
	m.state.Status = StatusFailed
	m.state.Phase = ""
	m.state.Progress = 0
	m.state.LastUpdateTime = &now
	m.state.LastError = err
	m.state.FailedCommitHash = commitHash
	m.state.UpdateInProgress = false
	m.state.FailedUpdates++
	m.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.publish(events.UpdateFailed{Err: msg, CommitHash: commitHash, FailedAt: now})
	m.publishTransition(prev, StatusFailed)
}

// ScheduleUpdate records that a run is armed for the given time. in_progress
// is not overwritten; the schedule takes effect once the running update ends.
func (m *Manager) ScheduleUpdate(when time.Time) {
	m.mu.Lock()
	prev := m.state.Status
	m.state.ScheduledTime = &when
	if m.state.Status != StatusInProgress {
		m.state.Status = StatusScheduled
	}
	curr := m.state.Status
	m.mu.Unlock()

	m.publish(events.UpdateScheduled{When: when})
	if prev != curr {
		m.publishTransition(prev, curr)
	}
}

// SetProgress updates the progress fraction and optional phase label of a
// running update. No-op when no update is in progress.
func (m *Manager) SetProgress(progress float64, phase string) {
	m.mu.Lock()
	if !m.state.UpdateInProgress {
		m.mu.Unlock()
		return
	}
	m.state.Progress = progress
	if phase != "" {
		m.state.Phase = phase
	}
	m.mu.Unlock()

	m.publish(events.UpdateProgress{Progress: progress, Phase: phase})
}

// Reset returns the tuple to its initial idle state.
func (m *Manager) Reset() {
	m.mu.Lock()
	prev := m.state.Status
	m.state = State{Status: StatusIdle}
	m.mu.Unlock()

	if prev != StatusIdle {
		m.publishTransition(prev, StatusIdle)
	}
}

// WaitForReady blocks until no update is in progress, the context is done,
// or the timeout elapses. A failed run counts as ready: requests then serve
// the previous snapshot. timeout <= 0 applies DefaultReadyTimeout.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	inProgress := m.state.UpdateInProgress
	m.mu.Unlock()
	if !inProgress {
		return nil
	}

	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	completed, unsubCompleted := events.Subscribe[events.UpdateCompleted](m.bus, 1)
	defer unsubCompleted()
	failed, unsubFailed := events.Subscribe[events.UpdateFailed](m.bus, 1)
	defer unsubFailed()

	// The update may have finished between the check above and the
	// subscriptions; re-check so the signal cannot be missed.
	m.mu.Lock()
	inProgress = m.state.UpdateInProgress
	m.mu.Unlock()
	if !inProgress {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-completed:
		return nil
	case <-failed:
		return nil
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryAborted, "request canceled while waiting for content").Build()
	case <-timer.C:
		return ferrors.TimeoutError("timed out waiting for content update").Build()
	}
}

func (m *Manager) publish(evt any) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := m.bus.Publish(ctx, evt); err != nil {
		slog.Warn("failed to publish state event", logfields.Error(err))
	}
}

func (m *Manager) publishTransition(prev, curr Status) {
	if prev == curr {
		return
	}
	m.publish(events.StateChanged{Prev: string(prev), Curr: string(curr), At: time.Now()})
}
