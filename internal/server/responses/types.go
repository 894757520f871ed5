// Package responses defines the API response types and body writers used by
// the ORD provider HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/history"
)

// StatusResponse is the /api/v1/status payload: the update state tuple plus
// a summary of the content being served.
type StatusResponse struct {
	Status           string       `json:"status"`
	Source           string       `json:"source,omitempty"`
	Phase            string       `json:"phase,omitempty"`
	Progress         float64      `json:"progress,omitempty"`
	UpdateInProgress bool         `json:"updateInProgress"`
	LastUpdateTime   *time.Time   `json:"lastUpdateTime,omitempty"`
	ScheduledTime    *time.Time   `json:"scheduledTime,omitempty"`
	LastError        string       `json:"lastError,omitempty"`
	FailedCommitHash string       `json:"failedCommitHash,omitempty"`
	FailedUpdates    int          `json:"failedUpdates"`
	Content          *ContentInfo `json:"content,omitempty"`
	Version          string       `json:"version"`
	Timestamp        time.Time    `json:"timestamp"`
}

// ContentInfo summarizes the active snapshot.
type ContentInfo struct {
	CommitHash string    `json:"commitHash,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	Repository string    `json:"repository,omitempty"`
	FetchTime  time.Time `json:"fetchTime"`
	TotalFiles int       `json:"totalFiles,omitempty"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Sync    SyncInfo `json:"sync"`
}

// SyncInfo reports whether any content is available to serve.
type SyncInfo struct {
	HasContent bool `json:"hasContent"`
}

// WebhookResponse acknowledges or rejects a webhook delivery.
type WebhookResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// UpdatesResponse is the /api/v1/updates payload.
type UpdatesResponse struct {
	Updates []history.Run `json:"updates"`
}
