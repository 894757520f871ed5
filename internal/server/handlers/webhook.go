package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/github"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
)

// Webhook request headers.
const (
	HeaderGitHubEvent   = "x-github-event"
	HeaderHubSignature  = "x-hub-signature-256"
	HeaderManualTrigger = "x-manual-trigger"
)

// maxWebhookBody bounds how much of a webhook payload is read. Push event
// payloads are far below this.
const maxWebhookBody = 1 << 20

// UpdateTrigger is the scheduler surface the webhook needs.
type UpdateTrigger interface {
	ScheduleImmediateUpdate(isManual bool)
}

// webhookPayload is the subset of a GitHub push event the handler inspects.
type webhookPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
}

// WebhookHandler accepts GitHub push webhooks and manual triggers, filters
// them against the configured repository and branch, and schedules content
// updates. The route itself is never behind authentication; the signature
// check is its access control.
type WebhookHandler struct {
	trigger    UpdateTrigger
	secret     string
	repository string
	branch     string
	logger     *slog.Logger
}

// WebhookOptions configures a WebhookHandler. An empty Secret disables the
// signature check; an empty Repository accepts pushes from any repository; an
// empty Branch falls back to the payload's default branch.
type WebhookOptions struct {
	Trigger    UpdateTrigger
	Secret     string
	Repository string
	Branch     string
	Logger     *slog.Logger
}

func NewWebhookHandler(opts WebhookOptions) *WebhookHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		trigger:    opts.Trigger,
		secret:     opts.Secret,
		repository: opts.Repository,
		branch:     opts.Branch,
		logger:     logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		responses.WriteError(w, r, ferrors.ValidationError("invalid HTTP method").
			WithDetail("allowed_method", http.MethodPost).Build())
		return
	}

	// Manual triggers bypass signature validation and the payload entirely.
	// They also bypass the webhook cooldown in the scheduler.
	if strings.EqualFold(r.Header.Get(HeaderManualTrigger), "true") {
		h.logger.Info("Manual update trigger received", logfields.RemoteAddr(r.RemoteAddr))
		h.trigger.ScheduleImmediateUpdate(true)
		_ = responses.WriteJSON(w, r, http.StatusOK, responses.WebhookResponse{Status: "accepted"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		responses.WriteError(w, r, ferrors.ValidationError("unreadable request body").Build())
		return
	}
	if len(body) == 0 {
		responses.WriteError(w, r, ferrors.ValidationError("missing request body").Build())
		return
	}

	if h.secret != "" {
		if !github.ValidatePayloadSignature(body, r.Header.Get(HeaderHubSignature), h.secret) {
			h.logger.Warn("Webhook signature validation failed", logfields.RemoteAddr(r.RemoteAddr))
			responses.WriteError(w, r, ferrors.AuthError("invalid webhook signature").Build())
			return
		}
	}

	event := r.Header.Get(HeaderGitHubEvent)
	if event == "ping" {
		_ = responses.WriteJSON(w, r, http.StatusOK, responses.WebhookResponse{Status: "ok"})
		return
	}

	var payload webhookPayload
	if uerr := json.Unmarshal(body, &payload); uerr != nil {
		responses.WriteError(w, r, ferrors.ValidationError("invalid JSON payload").Build())
		return
	}

	if h.repository != "" && !strings.EqualFold(payload.Repository.FullName, h.repository) {
		h.logger.Info("Ignoring webhook for different repository",
			logfields.Repository(payload.Repository.FullName))
		_ = responses.WriteJSON(w, r, http.StatusBadRequest,
			responses.WebhookResponse{Status: "ignored", Reason: "different repository"})
		return
	}

	branch := h.branch
	if branch == "" {
		branch = payload.Repository.DefaultBranch
	}
	if payload.Ref != "refs/heads/"+branch {
		h.logger.Info("Ignoring webhook for different branch",
			logfields.Branch(payload.Ref))
		_ = responses.WriteJSON(w, r, http.StatusBadRequest,
			responses.WebhookResponse{Status: "ignored", Reason: "different branch"})
		return
	}

	h.logger.Info("Push webhook accepted",
		logfields.Repository(payload.Repository.FullName), logfields.Branch(branch))
	h.trigger.ScheduleImmediateUpdate(false)
	_ = responses.WriteJSON(w, r, http.StatusOK, responses.WebhookResponse{Status: "accepted"})
}
