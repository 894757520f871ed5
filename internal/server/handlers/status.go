package handlers

import (
	"net/http"
	"strconv"
	"time"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/history"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/observability"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
	"git.home.luguber.info/inful/ordprovider/internal/state"
)

const (
	defaultUpdatesLimit = 20
	maxUpdatesLimit     = 100
)

// MetadataSource yields the active snapshot record, if any. Local-directory
// deployments have none.
type MetadataSource interface {
	Metadata() (*snapshot.Metadata, bool)
}

// StatusHandler reports the update state tuple on /api/v1/status.
type StatusHandler struct {
	state    *state.Manager
	metadata MetadataSource
	version  string
}

func NewStatusHandler(st *state.Manager, metadata MetadataSource, version string) *StatusHandler {
	return &StatusHandler{state: st, metadata: metadata, version: version}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.state.State()
	resp := responses.StatusResponse{
		Status:           string(st.Status),
		Source:           st.Source,
		Phase:            st.Phase,
		Progress:         st.Progress,
		UpdateInProgress: st.UpdateInProgress,
		LastUpdateTime:   st.LastUpdateTime,
		ScheduledTime:    st.ScheduledTime,
		FailedCommitHash: st.FailedCommitHash,
		FailedUpdates:    st.FailedUpdates,
		Version:          h.version,
		Timestamp:        time.Now().UTC(),
	}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	if h.metadata != nil {
		if meta, ok := h.metadata.Metadata(); ok {
			resp.Content = &responses.ContentInfo{
				CommitHash: meta.CommitHash,
				Branch:     meta.Branch,
				Repository: meta.Repository,
				FetchTime:  meta.FetchTime,
				TotalFiles: meta.TotalFiles,
			}
		}
	}

	// Resource exhaustion is the one failure class that flips the status
	// endpoint itself, so orchestrators watching it see the pressure.
	status := http.StatusOK
	if ferrors.HasCategory(st.LastError, ferrors.CategoryDiskSpace) ||
		ferrors.HasCategory(st.LastError, ferrors.CategoryMemory) {
		status = http.StatusInsufficientStorage
	}
	observability.DebugContext(r.Context(), "status snapshot served",
		logfields.Status(status), logfields.Source(st.Source))
	_ = responses.WriteJSON(w, r, status, resp)
}

// UpdatesHandler lists recent update runs on /api/v1/updates.
type UpdatesHandler struct {
	store history.Store
}

func NewUpdatesHandler(store history.Store) *UpdatesHandler {
	return &UpdatesHandler{store: store}
}

func (h *UpdatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultUpdatesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			responses.WriteError(w, r, ferrors.ValidationError("limit must be a positive integer").
				WithTarget("limit").Build())
			return
		}
		limit = min(n, maxUpdatesLimit)
	}

	runs := []history.Run{}
	if h.store != nil {
		recent, err := h.store.Recent(r.Context(), limit)
		if err != nil {
			responses.WriteError(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "reading update history").Build())
			return
		}
		if recent != nil {
			runs = recent
		}
	}
	_ = responses.WriteJSON(w, r, http.StatusOK, responses.UpdatesResponse{Updates: runs})
}
