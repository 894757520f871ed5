package fetcher

import (
	"bytes"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

// Phase names a stage of a content fetch.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseReceiving  Phase = "receiving"
	PhaseCounting   Phase = "counting"
	PhaseComplete   Phase = "complete"
)

// Progress is a point-in-time report of a running fetch. Loaded/Total carry
// object counts during the receiving phase; FetchedFiles/TotalFiles carry
// file counts once the worktree exists.
type Progress struct {
	Phase        Phase
	Loaded       int
	Total        int
	FetchedFiles int
	TotalFiles   int
	Errors       int
	CurrentFile  string
}

// ProgressFunc receives progress reports. Callbacks run on the fetch
// goroutine and must not block.
type ProgressFunc func(Progress)

func emit(onProgress ProgressFunc, p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

// objectCounts matches the "(9/20)" part of git sideband progress lines such
// as "Counting objects: 45% (9/20)".
var objectCounts = regexp.MustCompile(`\((\d+)/(\d+)\)`)

// sidebandWriter turns the remote's sideband progress text into Progress
// reports. go-git hands it arbitrary chunks, so lines are reassembled on
// \r and \n boundaries.
type sidebandWriter struct {
	onProgress ProgressFunc
	buf        []byte
	last       Progress
}

func newSidebandWriter(onProgress ProgressFunc) *sidebandWriter {
	return &sidebandWriter{onProgress: onProgress}
}

func (w *sidebandWriter) Write(p []byte) (int, error) {
	if w.onProgress == nil {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		w.consumeLine(line)
	}
	return len(p), nil
}

func (w *sidebandWriter) consumeLine(line string) {
	m := objectCounts.FindStringSubmatch(line)
	if m == nil {
		return
	}
	loaded, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])

	next := Progress{Phase: PhaseReceiving, Loaded: loaded, Total: total}
	if next == w.last {
		return
	}
	w.last = next
	w.onProgress(next)
}

// LogProgress returns a ProgressFunc that logs reports, at most one line per
// interval. Phase transitions always log.
func LogProgress(interval time.Duration) ProgressFunc {
	var mu sync.Mutex
	var lastLog time.Time
	var lastPhase Phase

	return func(p Progress) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if p.Phase == lastPhase && now.Sub(lastLog) < interval {
			return
		}
		lastPhase = p.Phase
		lastLog = now

		slog.Info("fetch progress",
			logfields.Phase(string(p.Phase)),
			slog.Int("loaded", p.Loaded),
			slog.Int("total", p.Total),
			slog.Int("files", p.FetchedFiles))
	}
}
