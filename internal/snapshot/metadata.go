package snapshot

import "time"

// Metadata is the persisted record of the active snapshot, written atomically
// after a successful swap. FetchTime serializes as RFC 3339 (ISO 8601).
type Metadata struct {
	CommitHash       string    `json:"commitHash"`
	DirectoryTreeSha string    `json:"directoryTreeSha,omitempty"`
	FetchTime        time.Time `json:"fetchTime"`
	Branch           string    `json:"branch"`
	Repository       string    `json:"repository"`
	TotalFiles       int       `json:"totalFiles"`
}

// Clone returns a copy so callers cannot mutate the stored record.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}
