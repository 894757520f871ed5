package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/ordprovider/internal/fetcher"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

// startPoller arms the periodic remote drift check. Webhooks are the primary
// trigger; the poll catches pushes whose webhook delivery was lost.
func (s *Scheduler) startPoller() error {
	if s.pollInterval <= 0 || s.fetcher == nil {
		return nil
	}

	p, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create poll scheduler: %w", err)
	}

	_, err = p.NewJob(
		gocron.DurationJob(s.pollInterval),
		gocron.NewTask(s.pollOnce),
		gocron.WithName("remote-content-poll"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll job: %w", err)
	}

	s.poller = p
	p.Start()
	s.logger.Info("remote content poll enabled", slog.Duration("interval", s.pollInterval))
	return nil
}

// pollOnce compares the remote content identity against the active snapshot
// and schedules an update on drift. Errors are logged and swallowed; the
// next tick retries.
func (s *Scheduler) pollOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, remoteSHATimeout)
	defer cancel()

	meta, ok := s.store.Metadata()
	if !ok {
		// No snapshot yet (initial sync failed or never ran); try again now.
		s.logger.Info("poll found no active snapshot, scheduling update")
		s.ScheduleUpdate(0)
		return
	}

	changed, err := s.remoteChanged(ctx, meta.DirectoryTreeSha, meta.CommitHash)
	if err != nil {
		s.logger.Warn("remote content poll failed", logfields.Error(err))
		return
	}
	if changed {
		s.logger.Info("remote content drifted, scheduling update", logfields.Commit(meta.CommitHash))
		s.ScheduleUpdate(0)
	}
}

// remoteChanged prefers the documents-directory tree SHA, which ignores
// pushes that touch nothing under the served subtree. Remotes that cannot
// answer it fall back to the branch head commit.
func (s *Scheduler) remoteChanged(ctx context.Context, treeSHA, commitSHA string) (bool, error) {
	if treeSHA != "" {
		remote, err := s.fetcher.DirectoryTreeSHA(ctx)
		if err == nil {
			return remote != treeSHA, nil
		}
		if !errors.Is(err, fetcher.ErrTreeSHAUnsupported) {
			return false, err
		}
	}

	remote, err := s.fetcher.LatestCommitSHA(ctx)
	if err != nil {
		return false, err
	}
	return remote != commitSHA, nil
}
