package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordprovider/internal/fetcher"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
)

func TestPollSchedulesOnTreeDrift(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.store.meta = &snapshot.Metadata{CommitHash: "aaa", DirectoryTreeSha: "tree-1"}
	fx.store.root = fx.store.swapRoot
	fx.fetcher.treeSHA = "tree-2"

	require.NoError(t, fx.sched.Start(context.Background()))
	fx.sched.pollOnce()

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestPollIgnoresUnchangedTree(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.store.meta = &snapshot.Metadata{CommitHash: "aaa", DirectoryTreeSha: "tree-1"}
	fx.store.root = fx.store.swapRoot
	fx.fetcher.treeSHA = "tree-1"

	require.NoError(t, fx.sched.Start(context.Background()))
	fx.sched.pollOnce()

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, fx.fetcher.callCount())

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestPollFallsBackToCommitSHA(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.store.meta = &snapshot.Metadata{CommitHash: "aaa", DirectoryTreeSha: "tree-1"}
	fx.store.root = fx.store.swapRoot
	fx.fetcher.treeErr = fetcher.ErrTreeSHAUnsupported
	fx.fetcher.commitSHA = "bbb"

	require.NoError(t, fx.sched.Start(context.Background()))
	fx.sched.pollOnce()

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestPollSchedulesWhenNoSnapshot(t *testing.T) {
	fx := newFixture(t, time.Second)

	require.NoError(t, fx.sched.Start(context.Background()))
	fx.sched.pollOnce()

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.sched.Stop(context.Background()))
}
