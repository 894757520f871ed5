package handlers

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"runtime"
	"time"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/history"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
	"git.home.luguber.info/inful/ordprovider/internal/state"
)

const dashboardRunsLimit = 15

// DashboardData is rendered on the /status page, as HTML or JSON.
type DashboardData struct {
	Provider    ProviderInfo           `json:"provider"`
	Update      UpdateInfo             `json:"update"`
	Content     *responses.ContentInfo `json:"content,omitempty"`
	Runs        []history.Run          `json:"runs"`
	System      SystemInfo             `json:"system"`
	LastUpdated time.Time              `json:"last_updated"`
}

// ProviderInfo holds basic process information.
type ProviderInfo struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Mode      string    `json:"mode"`
	BaseURL   string    `json:"base_url"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
}

// UpdateInfo is the dashboard view of the update state tuple.
type UpdateInfo struct {
	Source        string     `json:"source,omitempty"`
	Phase         string     `json:"phase,omitempty"`
	Progress      int        `json:"progress"`
	InProgress    bool       `json:"in_progress"`
	LastUpdate    *time.Time `json:"last_update,omitempty"`
	NextScheduled *time.Time `json:"next_scheduled,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	FailedUpdates int        `json:"failed_updates"`
	Documents     int        `json:"documents"`
}

// SystemInfo provides process resource information.
type SystemInfo struct {
	MemoryUsage    string `json:"memory_usage"`
	GoroutineCount int    `json:"goroutine_count"`
}

// DashboardHandler serves the operator status page. It is deliberately
// decoupled from the daemon: everything it shows comes through the same
// narrow surfaces the API handlers use.
type DashboardHandler struct {
	state     *state.Manager
	metadata  MetadataSource
	runs      history.Store
	content   *Content
	version   string
	mode      string
	baseURL   string
	startTime time.Time
}

// DashboardOptions configures a DashboardHandler.
type DashboardOptions struct {
	State     *state.Manager
	Metadata  MetadataSource
	Runs      history.Store
	Content   *Content
	Version   string
	Mode      string
	BaseURL   string
	StartTime time.Time
}

func NewDashboardHandler(opts DashboardOptions) *DashboardHandler {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	return &DashboardHandler{
		state:     opts.State,
		metadata:  opts.Metadata,
		runs:      opts.Runs,
		content:   opts.Content,
		version:   opts.Version,
		mode:      opts.Mode,
		baseURL:   opts.BaseURL,
		startTime: opts.StartTime,
	}
}

func (h *DashboardHandler) collect(ctx context.Context) DashboardData {
	st := h.state.State()
	data := DashboardData{LastUpdated: time.Now().UTC()}
	data.Provider = ProviderInfo{
		Status:    string(st.Status),
		Version:   h.version,
		Mode:      h.mode,
		BaseURL:   h.baseURL,
		StartTime: h.startTime,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
	}
	data.Update = UpdateInfo{
		Source:        st.Source,
		Phase:         st.Phase,
		Progress:      int(st.Progress * 100),
		InProgress:    st.UpdateInProgress,
		LastUpdate:    st.LastUpdateTime,
		NextScheduled: st.ScheduledTime,
		FailedUpdates: st.FailedUpdates,
	}
	if st.LastError != nil {
		data.Update.LastError = st.LastError.Error()
	}
	if h.content != nil {
		if paths, err := h.content.DocumentPaths(ctx); err == nil {
			data.Update.Documents = len(paths)
		}
	}
	if h.metadata != nil {
		if meta, ok := h.metadata.Metadata(); ok {
			data.Content = &responses.ContentInfo{
				CommitHash: meta.CommitHash,
				Branch:     meta.Branch,
				Repository: meta.Repository,
				FetchTime:  meta.FetchTime,
				TotalFiles: meta.TotalFiles,
			}
		}
	}
	data.Runs = []history.Run{}
	if h.runs != nil {
		if recent, err := h.runs.Recent(ctx, dashboardRunsLimit); err == nil && recent != nil {
			data.Runs = recent
		}
	}
	data.System = collectSystemInfo()
	return data
}

func collectSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		MemoryUsage:    fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
		GoroutineCount: runtime.NumGoroutine(),
	}
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := h.collect(r.Context())

	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Get("format") == "json" {
		_ = responses.WriteJSON(w, r, http.StatusOK, data)
		return
	}

	t, err := template.New("dashboard").Parse(dashboardHTMLTemplate)
	if err != nil {
		responses.WriteError(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to parse dashboard template").Build())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		responses.WriteError(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render dashboard").Build())
		return
	}
}

const dashboardHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="10">
    <title>ORD Provider Status</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; background: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { border-bottom: 2px solid #eee; padding-bottom: 20px; margin-bottom: 30px; }
        .status { display: inline-block; padding: 4px 12px; border-radius: 20px; font-weight: bold; text-transform: uppercase; font-size: 12px; }
        .status.idle { background: #d4edda; color: #155724; }
        .status.scheduled { background: #fff3cd; color: #856404; }
        .status.in_progress { background: #cce5ff; color: #004085; }
        .status.failed { background: #f8d7da; color: #721c24; }
        .metrics { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 20px; margin: 30px 0; }
        .metric-card { background: #f8f9fa; padding: 15px; border-radius: 6px; border-left: 4px solid #007bff; }
        .metric-value { font-size: 24px; font-weight: bold; color: #007bff; }
        .metric-label { color: #666; font-size: 14px; margin-top: 4px; }
        .error-box { background: #f8d7da; color: #721c24; padding: 12px; border-radius: 6px; margin: 20px 0; font-size: 14px; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #dee2e6; font-size: 14px; }
        th { color: #666; font-weight: 600; font-size: 12px; text-transform: uppercase; }
        .run-status { padding: 2px 8px; border-radius: 12px; font-size: 11px; font-weight: bold; }
        .run-status.success { background: #d4edda; color: #155724; }
        .run-status.failed { background: #f8d7da; color: #721c24; }
        .run-status.aborted { background: #e2e3e5; color: #383d41; }
        .run-status.running { background: #cce5ff; color: #004085; }
        .mono { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
        .updated { color: #666; font-size: 12px; text-align: center; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>ORD Provider Status</h1>
            <p>
                <span class="status {{.Provider.Status}}">{{.Provider.Status}}</span>
                Version {{.Provider.Version}} &bull; Mode: {{.Provider.Mode}} &bull; Uptime: {{.Provider.Uptime}}
            </p>
        </div>

        <div class="metrics">
            <div class="metric-card">
                <div class="metric-value">{{.Update.Documents}}</div>
                <div class="metric-label">ORD Documents</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{if .Update.InProgress}}{{.Update.Progress}}%{{else}}&mdash;{{end}}</div>
                <div class="metric-label">Update Progress{{if .Update.Phase}} ({{.Update.Phase}}){{end}}</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{.Update.FailedUpdates}}</div>
                <div class="metric-label">Consecutive Failures</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{.System.GoroutineCount}}</div>
                <div class="metric-label">Goroutines ({{.System.MemoryUsage}})</div>
            </div>
        </div>

        {{if .Update.LastError}}
        <div class="error-box"><strong>Last error:</strong> {{.Update.LastError}}</div>
        {{end}}

        {{if .Content}}
        <h2>Active Content</h2>
        <table>
            <tr><th>Repository</th><td>{{.Content.Repository}}</td></tr>
            <tr><th>Branch</th><td>{{.Content.Branch}}</td></tr>
            <tr><th>Commit</th><td class="mono">{{.Content.CommitHash}}</td></tr>
            <tr><th>Fetched</th><td>{{.Content.FetchTime.Format "2006-01-02 15:04:05 MST"}}</td></tr>
            <tr><th>Files</th><td>{{.Content.TotalFiles}}</td></tr>
        </table>
        {{end}}

        <h2>Recent Updates</h2>
        {{if .Runs}}
        <table>
            <tr><th>Started</th><th>Source</th><th>Status</th><th>Commit</th><th>Error</th></tr>
            {{range .Runs}}
            <tr>
                <td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td>
                <td>{{.Source}}</td>
                <td><span class="run-status {{.Status}}">{{.Status}}</span></td>
                <td class="mono">{{if .CommitHash}}{{printf "%.12s" .CommitHash}}{{end}}</td>
                <td>{{.Error}}</td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <p style="color: #666;">No updates recorded yet.</p>
        {{end}}

        <div class="updated">Last updated: {{.LastUpdated.Format "2006-01-02 15:04:05 UTC"}}</div>
    </div>
</body>
</html>`
