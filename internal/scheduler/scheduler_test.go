package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordprovider/internal/events"
	"git.home.luguber.info/inful/ordprovider/internal/fetcher"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/history"
	"git.home.luguber.info/inful/ordprovider/internal/notify"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
	"git.home.luguber.info/inful/ordprovider/internal/state"
)

type fakeFetcher struct {
	mu         sync.Mutex
	calls      int
	blockFirst chan struct{} // first FetchAll waits for this or an abort
	abortCh    chan struct{}
	meta       snapshot.Metadata
	err        error
	treeSHA    string
	treeErr    error
	commitSHA  string
	commitErr  error
}

func (f *fakeFetcher) FetchAll(ctx context.Context, targetDir string, onProgress fetcher.ProgressFunc) (*snapshot.Metadata, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	block := f.blockFirst
	abortCh := f.abortCh
	meta, err := f.meta, f.err
	f.mu.Unlock()

	if onProgress != nil {
		onProgress(fetcher.Progress{Phase: fetcher.PhaseReceiving, Loaded: 1, Total: 2})
	}

	if first && block != nil {
		select {
		case <-block:
		case <-abortCh:
			return nil, ferrors.AbortedError("fetch aborted").Build()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	m := meta
	return &m, nil
}

func (f *fakeFetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitSHA, f.commitErr
}

func (f *fakeFetcher) DirectoryTreeSHA(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.treeSHA, f.treeErr
}

func (f *fakeFetcher) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abortCh == nil {
		return
	}
	select {
	case <-f.abortCh:
	default:
		close(f.abortCh)
	}
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu       sync.Mutex
	staging  string
	root     string // current snapshot; "" means none
	swapRoot string // what root becomes after a successful swap
	meta     *snapshot.Metadata
	ops      []string

	validateErr error
	swapErr     error
}

func (s *fakeStore) PrepareStaging() (string, error) {
	s.record("prepare")
	return s.staging, nil
}

func (s *fakeStore) CleanupStaging() error {
	s.record("cleanup")
	return nil
}

func (s *fakeStore) Validate(path string) error {
	s.record("validate")
	return s.validateErr
}

func (s *fakeStore) Swap(stagingPath, commitHash string) error {
	s.record("swap")
	if s.swapErr != nil {
		return s.swapErr
	}
	s.mu.Lock()
	s.root = s.swapRoot
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) SaveMetadata(m *snapshot.Metadata) error {
	s.record("save")
	s.mu.Lock()
	s.meta = m.Clone()
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Metadata() (*snapshot.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Clone(), s.meta != nil
}

func (s *fakeStore) CurrentPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root, s.root != ""
}

func (s *fakeStore) record(op string) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *fakeStore) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

type fakeCache struct {
	mu          sync.Mutex
	hash        string
	warmed      []string
	invalidated []string
}

func (c *fakeCache) CurrentHash() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hash, c.hash != ""
}

func (c *fakeCache) Invalidate(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, hash)
	if c.hash == hash {
		c.hash = ""
	}
}

func (c *fakeCache) Warm(ctx context.Context, hash, docsRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warmed = append(c.warmed, hash)
	c.hash = hash
}

func (c *fakeCache) CancelWarming()     {}
func (c *fakeCache) WaitForCompletion() {}

func (c *fakeCache) warmedHashes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warmed...)
}

type fakeHistory struct {
	mu   sync.Mutex
	next int
	runs map[string]*history.Run
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{runs: make(map[string]*history.Run)}
}

func (h *fakeHistory) Begin(ctx context.Context, source string, startedAt time.Time) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := "run-" + string(rune('0'+h.next))
	h.runs[id] = &history.Run{ID: id, Source: source, StartedAt: startedAt, Status: history.StatusRunning}
	return id, nil
}

func (h *fakeHistory) Finish(ctx context.Context, id, status, commitHash, errMsg string, finishedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.runs[id]; ok {
		r.Status = status
		r.CommitHash = commitHash
		r.Error = errMsg
		r.FinishedAt = &finishedAt
	}
	return nil
}

func (h *fakeHistory) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	return nil, nil
}
func (h *fakeHistory) Prune(ctx context.Context, keep int) error { return nil }
func (h *fakeHistory) Close() error                              { return nil }

func (h *fakeHistory) statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.runs))
	for i := 1; i <= h.next; i++ {
		id := "run-" + string(rune('0'+i))
		if r, ok := h.runs[id]; ok {
			out = append(out, r.Status)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Notify(ctx context.Context, evt notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	sched   *Scheduler
	fetcher *fakeFetcher
	store   *fakeStore
	cache   *fakeCache
	state   *state.Manager
	history *fakeHistory
	sink    *recordingSink
}

// contentDir builds a snapshot-shaped directory with one document so the
// post-swap hash computation has something to walk.
func contentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "documents")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	doc := []byte(`{"openResourceDiscovery":"1.9","apiResources":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(docs, "service.json"), doc, 0o644))
	return dir
}

func newFixture(t *testing.T, updateDelay time.Duration) *fixture {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	f := &fakeFetcher{
		abortCh:   make(chan struct{}),
		meta:      snapshot.Metadata{CommitHash: "abc123", Branch: "main", TotalFiles: 1},
		commitSHA: "abc123",
	}
	st := &fakeStore{staging: t.TempDir(), swapRoot: contentDir(t)}
	c := &fakeCache{}
	mgr := state.NewManager(bus)
	hist := newFakeHistory()
	sink := &recordingSink{}

	s, err := New(Options{
		Store:           st,
		Fetcher:         f,
		State:           mgr,
		Cache:           c,
		History:         hist,
		Notify:          notify.NewFanout(sink),
		DocumentsSubDir: "documents",
		UpdateDelay:     updateDelay,
	})
	require.NoError(t, err)

	return &fixture{sched: s, fetcher: f, store: st, cache: c, state: mgr, history: hist, sink: sink}
}

func TestForceUpdateRunsPipeline(t *testing.T) {
	fx := newFixture(t, time.Second)

	require.NoError(t, fx.sched.ForceUpdate(context.Background(), SourceStartup))

	require.Equal(t, []string{"prepare", "validate", "swap", "save"}, fx.store.operations())

	st := fx.state.State()
	require.Equal(t, state.StatusIdle, st.Status)
	require.NotNil(t, st.LastUpdateTime)
	require.NoError(t, st.LastError)

	require.Len(t, fx.cache.warmedHashes(), 1)
	require.Equal(t, []string{history.StatusSuccess}, fx.history.statuses())
	require.Equal(t, []string{notify.TypeStarted, notify.TypeCompleted}, fx.sink.types())

	meta, ok := fx.store.Metadata()
	require.True(t, ok)
	require.Equal(t, "abc123", meta.CommitHash)
}

func TestForceUpdateRejectsConcurrentRun(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.fetcher.blockFirst = make(chan struct{})

	require.NoError(t, fx.sched.Start(context.Background()))

	fx.sched.ScheduleImmediateUpdate(true)
	require.Eventually(t, fx.sched.Running, 2*time.Second, 5*time.Millisecond)

	err := fx.sched.ForceUpdate(context.Background(), SourceManual)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	close(fx.fetcher.blockFirst)
	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestFailedRunRecordsFailure(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.fetcher.err = ferrors.GitHubNetworkError("dial tcp: connection refused").Build()
	fx.fetcher.commitSHA = "deadbeef"

	err := fx.sched.ForceUpdate(context.Background(), SourceStartup)
	require.Error(t, err)

	st := fx.state.State()
	require.Equal(t, state.StatusFailed, st.Status)
	require.Equal(t, "deadbeef", st.FailedCommitHash)
	require.Equal(t, 1, st.FailedUpdates)

	ops := fx.store.operations()
	require.Equal(t, "cleanup", ops[len(ops)-1])

	require.Equal(t, []string{history.StatusFailed}, fx.history.statuses())
	require.Equal(t, []string{notify.TypeStarted, notify.TypeFailed}, fx.sink.types())
	require.Empty(t, fx.cache.warmedHashes())
}

func TestWebhookCooldownCoalescesBurst(t *testing.T) {
	fx := newFixture(t, 150*time.Millisecond)
	require.NoError(t, fx.sched.Start(context.Background()))

	// First webhook runs immediately; the next two land inside the window
	// and must coalesce into exactly one trailing run.
	fx.sched.ScheduleImmediateUpdate(false)
	fx.sched.ScheduleImmediateUpdate(false)
	fx.sched.ScheduleImmediateUpdate(false)

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 2, fx.fetcher.callCount())

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestManualTriggerBypassesCooldown(t *testing.T) {
	fx := newFixture(t, time.Minute)
	require.NoError(t, fx.sched.Start(context.Background()))

	fx.sched.ScheduleImmediateUpdate(true)
	fx.sched.ScheduleImmediateUpdate(true)

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestScheduleUpdateReplacesPendingTimer(t *testing.T) {
	fx := newFixture(t, time.Second)
	require.NoError(t, fx.sched.Start(context.Background()))

	fx.sched.ScheduleUpdate(250 * time.Millisecond)
	fx.sched.ScheduleUpdate(20 * time.Millisecond)

	require.Eventually(t, func() bool { return fx.fetcher.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// The replaced timer must not fire a second run.
	time.Sleep(350 * time.Millisecond)
	require.Equal(t, 1, fx.fetcher.callCount())

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestSupersededRunIsAbortedNotFailed(t *testing.T) {
	fx := newFixture(t, time.Second)
	fx.fetcher.blockFirst = make(chan struct{})

	require.NoError(t, fx.sched.Start(context.Background()))

	fx.sched.ScheduleImmediateUpdate(true)
	require.Eventually(t, fx.sched.Running, 2*time.Second, 5*time.Millisecond)

	// A new schedule aborts the in-flight fetch and takes over.
	fx.sched.ScheduleUpdate(0)

	require.Eventually(t, func() bool {
		st := fx.state.State()
		return fx.fetcher.callCount() == 2 && st.Status == state.StatusIdle
	}, 2*time.Second, 10*time.Millisecond)

	st := fx.state.State()
	require.NoError(t, st.LastError)
	require.Zero(t, st.FailedUpdates)

	require.Equal(t, []string{history.StatusAborted, history.StatusSuccess}, fx.history.statuses())

	require.NoError(t, fx.sched.Stop(context.Background()))
}

func TestNotifyExternalRunTracksState(t *testing.T) {
	fx := newFixture(t, time.Second)

	fx.sched.NotifyUpdateStarted(SourceLocal)
	st := fx.state.State()
	require.Equal(t, state.StatusInProgress, st.Status)
	require.Equal(t, SourceLocal, st.Source)

	fx.sched.NotifyUpdateCompleted("")
	st = fx.state.State()
	require.Equal(t, state.StatusIdle, st.Status)

	require.Equal(t, []string{history.StatusSuccess}, fx.history.statuses())
	require.Equal(t, []string{notify.TypeStarted, notify.TypeCompleted}, fx.sink.types())
}

func TestNotifyExternalFailure(t *testing.T) {
	fx := newFixture(t, time.Second)

	fx.sched.NotifyUpdateStarted(SourceLocal)
	fx.sched.NotifyUpdateFailed(ferrors.LocalDirectoryError("directory vanished").Build())

	st := fx.state.State()
	require.Equal(t, state.StatusFailed, st.Status)
	require.Equal(t, []string{history.StatusFailed}, fx.history.statuses())
	require.Equal(t, []string{notify.TypeStarted, notify.TypeFailed}, fx.sink.types())
}
