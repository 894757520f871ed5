package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeySource      = "source"
	KeyPhase       = "phase"
	KeyCommit      = "commit"
	KeyBranch      = "branch"
	KeyRepo        = "repository"
	KeyPath        = "path"
	KeyDurationMS  = "duration_ms"
	KeyHash        = "hash"
	KeyMethod      = "method"
	KeyStatus      = "status"
	KeyURL         = "url"
	KeyRemoteAddr  = "remote_addr"
	KeyUserAgent   = "user_agent"
	KeyRequestID   = "request_id"
	KeyUpdateRunID = "update_run_id"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Commit(sha string) slog.Attr     { return slog.String(KeyCommit, sha) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func UpdateRunID(id string) slog.Attr { return slog.String(KeyUpdateRunID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
