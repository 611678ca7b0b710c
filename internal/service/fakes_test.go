package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ponto-bfa-go/internal/service"
)

// --- Point store ---

type fakePointStore struct {
	mu        sync.Mutex
	points    map[string]*domain.Point
	insertErr error
	// beforeInsert runs before the uniqueness check, to simulate a
	// concurrent writer.
	beforeInsert func()
}

func newFakePointStore() *fakePointStore {
	return &fakePointStore{points: map[string]*domain.Point{}}
}

func (f *fakePointStore) Load(_ context.Context, id string) (*domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "point", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (f *fakePointStore) CompareAndSetState(_ context.Context, id, from, to string) (*domain.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[id]
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

func (f *fakePointStore) CreatePoint(_ context.Context, p *domain.Point) (*domain.Point, error) {
	if f.beforeInsert != nil {
		f.beforeInsert()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	for _, existing := range f.points {
		if existing.UserID == p.UserID && existing.Fingerprint == p.Fingerprint {
			return nil, &domain.ErrDuplicate{Key: p.Fingerprint}
		}
	}
	cp := *p
	cp.CreatedAt = time.Now()
	f.points[p.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakePointStore) FindByFingerprint(_ context.Context, userID, fingerprint string) (*domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.points {
		if p.UserID == userID && p.Fingerprint == fingerprint {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "point", ID: fingerprint}
}

func (f *fakePointStore) ListPoints(_ context.Context, filter domain.PointFilter) ([]domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Point{}
	for _, p := range f.points {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (f *fakePointStore) ListApprovedBetween(_ context.Context, from, to time.Time) ([]domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Point{}
	for _, p := range f.points {
		if p.Status == domain.StatusAprovado && !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakePointStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

func (f *fakePointStore) put(p *domain.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.points[p.ID] = &cp
}

// --- Object storage ---

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objects: map[string][]byte{}} }

func (f *fakeStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	if _, ok := f.objects[key]; ok {
		return "", &domain.ErrDuplicate{Key: key}
	}
	f.objects[key] = data
	return key, nil
}

func (f *fakeStorage) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeStorage) PublicURL(path string) string { return "https://cdn.test/" + path }

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// --- Settings ---

type fakeSettingsStore struct {
	mu       sync.Mutex
	settings *domain.CompanySettings
	gets     int
}

func (f *fakeSettingsStore) GetSettings(context.Context) (*domain.CompanySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.settings == nil {
		return nil, &domain.ErrNotFound{Resource: "company_settings", ID: domain.SettingsID}
	}
	cp := *f.settings
	return &cp, nil
}

func (f *fakeSettingsStore) UpsertSettings(_ context.Context, s *domain.CompanySettings) (*domain.CompanySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.settings = &cp
	return s, nil
}

// --- Audit ---

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	err     error
}

func (f *fakeAuditStore) InsertAudit(_ context.Context, e *domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAuditStore) ListAudit(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.AuditLogEntry{}
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAuditStore) actions() []domain.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditAction
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

func (f *fakeAuditStore) last() domain.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[len(f.entries)-1]
}

// --- Profiles & identity ---

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	// missingFor makes GetProfile answer NotFound this many times first.
	missingFor int
	gets       int
}

func newFakeProfileStore(profiles ...domain.Profile) *fakeProfileStore {
	f := &fakeProfileStore{profiles: map[string]*domain.Profile{}}
	for i := range profiles {
		p := profiles[i]
		f.profiles[p.ID] = &p
	}
	return f
}

func (f *fakeProfileStore) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.missingFor > 0 {
		f.missingFor--
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileStore) ListProfiles(_ context.Context, ids []string) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProfileStore) UpsertProfile(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeProfileStore) UpdateProfileName(_ context.Context, id, first, last string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	p.FirstName, p.LastName = first, last
	cp := *p
	return &cp, nil
}

func (f *fakeProfileStore) UpdateProfileRole(_ context.Context, id string, role domain.Role) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	p.Role = string(role)
	cp := *p
	return &cp, nil
}

type fakeIdentity map[string]string // token -> user id

func (f fakeIdentity) VerifyToken(_ context.Context, token string) (*domain.Identity, error) {
	id, ok := f[token]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "token inválido"}
	}
	return &domain.Identity{UserID: id}, nil
}

type fakeUserAdmin struct {
	created []string
	deleted []string
	err     error
}

func (f *fakeUserAdmin) CreateUser(_ context.Context, email, _ string, _ map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id := "new-" + email
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeUserAdmin) DeleteUser(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

// --- Wiring ---

var (
	colaborador = &domain.Actor{UserID: "u-colab", Role: domain.RoleColaborador}
	gestor      = &domain.Actor{UserID: "u-gestor", Role: domain.RoleGestor}
	admin       = &domain.Actor{UserID: "u-admin", Role: domain.RoleAdmin}
	errBoom     = errors.New("boom")
)

type harness struct {
	points   *fakePointStore
	storage  *fakeStorage
	settings *fakeSettingsStore
	audit    *fakeAuditStore
	metrics  *observability.Metrics

	auditSvc    *service.AuditService
	settingsSvc *service.SettingsService
	pointSvc    *service.PointService
}

func newHarness() *harness {
	h := &harness{
		points:   newFakePointStore(),
		storage:  newFakeStorage(),
		settings: &fakeSettingsStore{settings: domain.DefaultCompanySettings()},
		audit:    &fakeAuditStore{},
		metrics:  observability.NewMetrics(),
	}
	logger := zap.NewNop()
	h.auditSvc = service.NewAuditService(h.audit, h.metrics, logger)
	h.settingsSvc = service.NewSettingsService(h.settings, cache.New[*domain.CompanySettings](time.Minute), h.metrics, h.auditSvc, logger)
	h.pointSvc = service.NewPointService(h.points, h.storage, h.settingsSvc, h.auditSvc, resilience.NewBulkhead(4), 1<<20, h.metrics, logger)
	return h
}
