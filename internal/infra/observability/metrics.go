package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// Geofence verdict labels for submissions.
const (
	VerdictWithin   = "within"
	VerdictOutside  = "outside"
	VerdictReplayed = "replayed"
)

// Decision outcome labels.
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
)

// Metrics holds all Prometheus metrics for the point service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	photoCleanups   *prometheus.CounterVec
	photoBytes      prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ponto_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_point_submissions_total",
				Help: "Point submissions by server-side geofence verdict.",
			},
			[]string{"verdict"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_review_decisions_total",
				Help: "Reviewer decisions by entity, decision and outcome.",
			},
			[]string{"entity", "decision", "outcome"},
		),
		auditFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_audit_write_failures_total",
				Help: "Audit log writes that failed after the primary operation succeeded.",
			},
			[]string{"action"},
		),
		photoCleanups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ponto_photo_cleanups_total",
				Help: "Compensating photo deletions after a failed point insert.",
			},
			[]string{"result"},
		),
		photoBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ponto_photo_bytes",
				Help:    "Size of uploaded point photos.",
				Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrSubmission counts a point submission by verdict.
func (m *Metrics) IncrSubmission(verdict string) {
	m.submissions.WithLabelValues(verdict).Inc()
}

// IncrDecision counts a reviewer decision.
func (m *Metrics) IncrDecision(entity, decision, outcome string) {
	m.decisions.WithLabelValues(entity, decision, outcome).Inc()
}

// IncrAuditFailure counts a best-effort audit write that was lost.
func (m *Metrics) IncrAuditFailure(action domain.AuditAction) {
	m.auditFailures.WithLabelValues(string(action)).Inc()
}

// IncrPhotoCleanup counts a compensating delete; result is "deleted" or "failed".
func (m *Metrics) IncrPhotoCleanup(result string) {
	m.photoCleanups.WithLabelValues(result).Inc()
}

// ObservePhotoSize records an uploaded photo size.
func (m *Metrics) ObservePhotoSize(n int) {
	m.photoBytes.Observe(float64(n))
}

// GetPointSnapshot returns a snapshot of point-related metrics suitable for
// the GET /v1/metrics/points endpoint.
func (m *Metrics) GetPointSnapshot() *domain.PointMetrics {
	within := getCounterValue(m.submissions, VerdictWithin)
	outside := getCounterValue(m.submissions, VerdictOutside)
	submitted := within + outside

	approved := getCounterValue(m.decisions, "point", string(domain.DecisionApprove), OutcomeApplied)
	rejected := getCounterValue(m.decisions, "point", string(domain.DecisionReject), OutcomeApplied)
	conflicts := getCounterValue(m.decisions, "point", string(domain.DecisionApprove), OutcomeConflict) +
		getCounterValue(m.decisions, "point", string(domain.DecisionReject), OutcomeConflict)

	var auditFailures float64
	for _, a := range []domain.AuditAction{domain.ActionPointRegistered, domain.ActionPointApproved, domain.ActionPointRejected} {
		auditFailures += getCounterValue(m.auditFailures, string(a))
	}

	hits := getCounterValue(m.cacheHits, "settings")
	misses := getCounterValue(m.cacheMisses, "settings")

	outsideRate := float64(0)
	hitRate := float64(0)
	if submitted > 0 {
		outsideRate = outside / submitted
	}
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PointMetrics{
		Submitted:        int64(submitted),
		OutsideGeofence:  int64(outside),
		OutsideRate:      outsideRate,
		Approved:         int64(approved),
		Rejected:         int64(rejected),
		DecisionConflict: int64(conflicts),
		AuditFailures:    int64(auditFailures),
		OrphanCleanups:   int64(getCounterValue(m.photoCleanups, "deleted")),
		SettingsHitRate:  hitRate,
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
