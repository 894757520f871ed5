package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveRequestDuration("/ord/v1", 200, 15*time.Millisecond)
	pr.IncUpdateOutcome(UpdateSuccess)
	pr.ObserveUpdateDuration(UpdateSuccess, 2*time.Second)
	pr.IncCacheLookup(CacheKindDocument, true)
	pr.IncCacheLookup(CacheKindDocument, false)
	pr.ObserveWarmDuration(300 * time.Millisecond)
	pr.SetContentAvailable(true)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveRequestDuration("/health", 200, time.Millisecond)
	pr.IncUpdateOutcome(UpdateFailed)
	pr.ObserveUpdateDuration(UpdateFailed, time.Second)
	pr.IncCacheLookup(CacheKindConfig, false)
	pr.ObserveWarmDuration(time.Millisecond)
	pr.SetContentAvailable(false)
}
