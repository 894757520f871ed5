package handlers

import (
	"net/http"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
)

// WellKnownHandler serves the ORD configuration at the well-known path.
type WellKnownHandler struct {
	content *Content
}

func NewWellKnownHandler(content *Content) *WellKnownHandler {
	return &WellKnownHandler{content: content}
}

func (h *WellKnownHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	perspective := r.URL.Query().Get("perspective")
	switch perspective {
	case "", ord.PerspectiveSystemInstance, ord.PerspectiveSystemVersion, ord.PerspectiveSystemIndependent:
	default:
		responses.WriteError(w, r, ferrors.ValidationError("invalid perspective").
			WithTarget(perspective).
			WithDetail("allowed_values", "system-instance, system-version, system-independent").
			Build())
		return
	}

	cfg, err := h.content.Configuration(r.Context(), perspective)
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}
	_ = responses.WriteJSON(w, r, http.StatusOK, cfg)
}
