package handlers

import (
	"net/http"

	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
)

// HealthHandler answers liveness probes. The process is healthy as soon as it
// serves HTTP; content availability is reported but never fails the probe.
type HealthHandler struct {
	version    string
	hasContent func() bool
}

func NewHealthHandler(version string, hasContent func() bool) *HealthHandler {
	return &HealthHandler{version: version, hasContent: hasContent}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := responses.HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	if h.hasContent != nil {
		resp.Sync.HasContent = h.hasContent()
	}
	_ = responses.WriteJSON(w, r, http.StatusOK, resp)
}
