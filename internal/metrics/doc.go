// Package metrics provides observability hooks for request serving, content
// updates, and cache effectiveness.
//
// The package implements the Null Object pattern: components receive a
// Recorder through dependency injection and default to NoopRecorder, so
// metrics collection never requires nil checks in call sites. When Prometheus
// is configured, NewPrometheusRecorder registers the real collectors and the
// same call sites start emitting.
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	cache := cache.New(pipeline).WithRecorder(recorder)
//
// All Recorder methods are cheap and safe to call from hot paths.
package metrics
