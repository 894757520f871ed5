package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	requestDuration  *prom.HistogramVec
	requestsTotal    *prom.CounterVec
	updateRuns       *prom.CounterVec
	updateDuration   *prom.HistogramVec
	cacheLookups     *prom.CounterVec
	warmDuration     prom.Histogram
	contentAvailable prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.requestDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ordprovider",
			Name:      "request_duration_seconds",
			Help:      "Duration of served HTTP requests",
			Buckets:   prom.DefBuckets,
		}, []string{"route", "status"})
		pr.requestsTotal = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ordprovider",
			Name:      "requests_total",
			Help:      "Served HTTP requests by route and status",
		}, []string{"route", "status"})
		pr.updateRuns = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ordprovider",
			Name:      "update_runs_total",
			Help:      "Content update runs by terminal outcome",
		}, []string{"outcome"})
		pr.updateDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ordprovider",
			Name:      "update_duration_seconds",
			Help:      "Duration of content update runs",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ordprovider",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by artifact kind and hit/miss",
		}, []string{"kind", "result"})
		pr.warmDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "ordprovider",
			Name:      "cache_warm_duration_seconds",
			Help:      "Duration of cache warm passes",
			Buckets:   prom.DefBuckets,
		})
		pr.contentAvailable = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ordprovider",
			Name:      "content_available",
			Help:      "1 when a content snapshot is active, 0 otherwise",
		})
		reg.MustRegister(pr.requestDuration, pr.requestsTotal, pr.updateRuns, pr.updateDuration, pr.cacheLookups, pr.warmDuration, pr.contentAvailable)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRequestDuration(route string, status int, d time.Duration) {
	if p == nil || p.requestDuration == nil {
		return
	}
	s := strconv.Itoa(status)
	p.requestDuration.WithLabelValues(route, s).Observe(d.Seconds())
	p.requestsTotal.WithLabelValues(route, s).Inc()
}

func (p *PrometheusRecorder) IncUpdateOutcome(outcome UpdateOutcomeLabel) {
	if p == nil || p.updateRuns == nil {
		return
	}
	p.updateRuns.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveUpdateDuration(outcome UpdateOutcomeLabel, d time.Duration) {
	if p == nil || p.updateDuration == nil {
		return
	}
	p.updateDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheLookup(kind string, hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(kind, res).Inc()
}

func (p *PrometheusRecorder) ObserveWarmDuration(d time.Duration) {
	if p == nil || p.warmDuration == nil {
		return
	}
	p.warmDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetContentAvailable(available bool) {
	if p == nil || p.contentAvailable == nil {
		return
	}
	v := 0.0
	if available {
		v = 1.0
	}
	p.contentAvailable.Set(v)
}
