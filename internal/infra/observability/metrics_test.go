package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
)

func TestGetPointSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrSubmission(observability.VerdictWithin)
	m.IncrSubmission(observability.VerdictWithin)
	m.IncrSubmission(observability.VerdictWithin)
	m.IncrSubmission(observability.VerdictOutside)
	m.IncrSubmission(observability.VerdictReplayed)
	m.IncrDecision("point", string(domain.DecisionApprove), observability.OutcomeApplied)
	m.IncrDecision("point", string(domain.DecisionApprove), observability.OutcomeConflict)
	m.IncrDecision("absence", string(domain.DecisionReject), observability.OutcomeApplied)
	m.IncrAuditFailure(domain.ActionPointRegistered)
	m.IncrPhotoCleanup("deleted")
	m.IncrCacheHit("settings")
	m.IncrCacheMiss("settings")

	s := m.GetPointSnapshot()

	if s.Submitted != 4 {
		t.Errorf("expected 4 submissions (replays excluded), got %d", s.Submitted)
	}
	if s.OutsideGeofence != 1 || s.OutsideRate != 0.25 {
		t.Errorf("unexpected outside stats: %d %v", s.OutsideGeofence, s.OutsideRate)
	}
	if s.Approved != 1 || s.Rejected != 0 {
		t.Errorf("expected only point decisions, got approved=%d rejected=%d", s.Approved, s.Rejected)
	}
	if s.DecisionConflict != 1 {
		t.Errorf("expected 1 conflict, got %d", s.DecisionConflict)
	}
	if s.AuditFailures != 1 || s.OrphanCleanups != 1 {
		t.Errorf("unexpected failure counters: %+v", s)
	}
	if s.SettingsHitRate != 0.5 {
		t.Errorf("expected 0.5 hit rate, got %v", s.SettingsHitRate)
	}
}

func TestNewMetrics_Independent(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()
	a.IncrSubmission(observability.VerdictWithin)

	if b.GetPointSnapshot().Submitted != 0 {
		t.Error("expected registries to be independent")
	}
}

func TestZapLoggerMiddleware_PassesThrough(t *testing.T) {
	h := observability.ZapLoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/points", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}

func TestTracingMiddleware_PreservesStatus(t *testing.T) {
	h := observability.TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/points", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}
