package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/handler"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ponto-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Fakes ---

type identities map[string]string

func (f identities) VerifyToken(_ context.Context, token string) (*domain.Identity, error) {
	if id, ok := f[token]; ok {
		return &domain.Identity{UserID: id}, nil
	}
	return nil, &domain.ErrUnauthorized{Message: "token inválido"}
}

type profiles map[string]domain.Role

func (f profiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	role, ok := f[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	return &domain.Profile{ID: id, Role: string(role)}, nil
}
func (f profiles) ListProfiles(context.Context, []string) ([]domain.Profile, error) { return nil, nil }
func (f profiles) UpsertProfile(context.Context, *domain.Profile) error { return nil }
func (f profiles) UpdateProfileName(_ context.Context, id, _, _ string) (*domain.Profile, error) {
	return f.GetProfile(context.Background(), id)
}
func (f profiles) UpdateProfileRole(_ context.Context, id string, _ domain.Role) (*domain.Profile, error) {
	return f.GetProfile(context.Background(), id)
}

type points struct {
	mu   sync.Mutex
	byID map[string]*domain.Point
}

func (f *points) Load(_ context.Context, id string) (*domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, &domain.ErrNotFound{Resource: "point", ID: id}
}

func (f *points) CompareAndSetState(_ context.Context, id, from, to string) (*domain.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, false, &domain.ErrNotFound{Resource: "point", ID: id}
	}
	if string(p.Status) != from {
		return nil, false, nil
	}
	p.Status = domain.ReviewStatus(to)
	cp := *p
	return &cp, true, nil
}

func (f *points) CreatePoint(_ context.Context, p *domain.Point) (*domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.byID[p.ID] = &cp
	return p, nil
}

func (f *points) FindByFingerprint(_ context.Context, userID, fp string) (*domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.UserID == userID && p.Fingerprint == fp {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "point", ID: fp}
}

func (f *points) ListPoints(context.Context, domain.PointFilter) ([]domain.Point, error) {
	return []domain.Point{}, nil
}

func (f *points) ListApprovedBetween(context.Context, time.Time, time.Time) ([]domain.Point, error) {
	return []domain.Point{}, nil
}

type objects struct{}

func (objects) Put(_ context.Context, key string, _ []byte, _ string) (string, error) { return key, nil }
func (objects) Delete(context.Context, string) error { return nil }
func (objects) PublicURL(key string) string { return "https://cdn.test/" + key }

type settingsStore struct{ s *domain.CompanySettings }

func (f *settingsStore) GetSettings(context.Context) (*domain.CompanySettings, error) {
	if f.s == nil {
		return nil, &domain.ErrNotFound{Resource: "company_settings", ID: domain.SettingsID}
	}
	return f.s, nil
}

func (f *settingsStore) UpsertSettings(_ context.Context, s *domain.CompanySettings) (*domain.CompanySettings, error) {
	f.s = s
	return s, nil
}

type auditStore struct{}

func (auditStore) InsertAudit(context.Context, *domain.AuditLogEntry) error { return nil }
func (auditStore) ListAudit(context.Context, domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	return []domain.AuditLogEntry{}, nil
}

// --- Wiring ---

type api struct {
	router http.Handler
	points *points
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	pts := &points{byID: map[string]*domain.Point{}}
	sessions := service.NewSessionService(
		identities{"tok-colab": "u-colab", "tok-gestor": "u-gestor"},
		profiles{"u-colab": domain.RoleColaborador, "u-gestor": domain.RoleGestor},
		cache.New[*domain.Profile](time.Minute), metrics, 1, time.Millisecond, logger,
	)
	auditSvc := service.NewAuditService(auditStore{}, metrics, logger)
	settingsSvc := service.NewSettingsService(&settingsStore{s: domain.DefaultCompanySettings()},
		cache.New[*domain.CompanySettings](time.Minute), metrics, auditSvc, logger)
	pointSvc := service.NewPointService(pts, objects{}, settingsSvc, auditSvc,
		resilience.NewBulkhead(2), 1<<20, metrics, logger)

	router := handler.NewRouter(handler.Services{
		Sessions: sessions,
		Points:   pointSvc,
		Audit:    auditSvc,
		Settings: settingsSvc,
	}, handler.Options{CORSOrigins: []string{"*"}, MaxPhotoBytes: 1 << 20}, metrics, logger)
	return &api{router: router, points: pts}
}

func (a *api) do(method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func submission(t *testing.T, metadata string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("metadata", metadata); err != nil {
		t.Fatal(err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="p.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'})
	w.Close()
	return &buf, w.FormDataContentType()
}

const atCompany = `{"type":"entrada","lat":-23.5505,"lon":-46.6333,"accuracy_m":10,` +
	`"timestamp_local":"2024-03-10T09:00:00-03:00","timestamp_utc":"2024-03-10T12:00:00Z","fingerprint":"fp-1"}`

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.Options{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.Options{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.Options{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestV1_UnavailableWithoutSessions(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.Options{}, observability.NewMetrics(), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/points", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// --- Authenticated API ---

func TestV1_RequiresBearerToken(t *testing.T) {
	a := newAPI(t)

	if rec := a.do(http.MethodGet, "/v1/points", "", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}
	rec := a.do(http.MethodGet, "/v1/points", "forged", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token: expected 401, got %d", rec.Code)
	}
	assertErrorBody(t, rec)
}

func TestSubmitPoint_CreatedThenReplayed(t *testing.T) {
	a := newAPI(t)

	body, ct := submission(t, atCompany)
	rec := a.do(http.MethodPost, "/v1/points", "tok-colab", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var first domain.SubmissionResult
	json.NewDecoder(rec.Body).Decode(&first)
	if !first.WithinGeofence || first.Status != domain.StatusPendente || first.DistanceM != "0.00" {
		t.Errorf("unexpected result %+v", first)
	}

	body, ct = submission(t, atCompany)
	rec = a.do(http.MethodPost, "/v1/points", "tok-colab", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	var second domain.SubmissionResult
	json.NewDecoder(rec.Body).Decode(&second)
	if second.PointID != first.PointID || !second.Replayed {
		t.Errorf("expected replay of %s, got %+v", first.PointID, second)
	}
}

func TestSubmitPoint_MissingCoordinates(t *testing.T) {
	a := newAPI(t)

	body, ct := submission(t, `{"type":"entrada","accuracy_m":5,"fingerprint":"fp-2"}`)
	rec := a.do(http.MethodPost, "/v1/points", "tok-colab", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(a.points.byID) != 0 {
		t.Error("no point must be stored")
	}
	assertErrorBody(t, rec)
}

// assertErrorBody checks the shared error envelope.
func assertErrorBody(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	if success, ok := body["success"].(bool); !ok || success {
		t.Errorf(`expected "success": false, got %v`, body["success"])
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Errorf("expected an error message, got %v", body)
	}
}

func TestPointDecision(t *testing.T) {
	a := newAPI(t)
	a.points.byID["p-1"] = &domain.Point{ID: "p-1", UserID: "u-colab", Status: domain.StatusPendente}

	decide := func(token, decision string) int {
		body := bytes.NewBufferString(`{"point_id":"p-1","decision":"` + decision + `"}`)
		return a.do(http.MethodPost, "/v1/points/decision", token, body, "application/json").Code
	}

	if code := decide("tok-colab", "aprovar"); code != http.StatusForbidden {
		t.Errorf("colaborador: expected 403, got %d", code)
	}
	if a.points.byID["p-1"].Status != domain.StatusPendente {
		t.Fatal("forbidden decision must not change status")
	}
	if code := decide("tok-gestor", "aprovado"); code != http.StatusOK {
		t.Errorf("gestor: expected 200, got %d", code)
	}
	if rec := a.do(http.MethodPost, "/v1/points/p-1/reject", "tok-gestor", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("terminal point: expected 409, got %d", rec.Code)
	}
	if code := decide("tok-gestor", "talvez"); code != http.StatusBadRequest {
		t.Errorf("unknown decision: expected 400, got %d", code)
	}
}

func TestGetSettingsAndPointMetrics(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/v1/settings", "tok-colab", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var s domain.CompanySettings
	json.NewDecoder(rec.Body).Decode(&s)
	if s.GeofenceRadius != 100 {
		t.Errorf("unexpected settings %+v", s)
	}

	rec = a.do(http.MethodGet, "/v1/metrics/points", "tok-colab", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "submitted") {
		t.Errorf("unexpected metrics answer %d: %s", rec.Code, rec.Body.String())
	}
}
