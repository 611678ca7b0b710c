package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/geofence"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

const settingsCacheName = "settings"

// SettingsService reads and updates the company_settings singleton.
type SettingsService struct {
	store  port.SettingsStore
	loader *cache.Loader[*domain.CompanySettings]
	audit  *AuditService
	logger *zap.Logger
	now    func() time.Time
}

func NewSettingsService(
	store port.SettingsStore,
	settingsCache cache.Store[*domain.CompanySettings],
	recorder cache.Recorder,
	audit *AuditService,
	logger *zap.Logger,
) *SettingsService {
	return &SettingsService{
		store:  store,
		loader: cache.NewLoader(settingsCacheName, settingsCache, recorder),
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

func (s *SettingsService) stored(ctx context.Context) (*domain.CompanySettings, error) {
	return s.loader.Get(domain.SettingsID, func() (*domain.CompanySettings, error) {
		return s.store.GetSettings(ctx)
	})
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "SettingsService.Get")
	defer span.End()

	cs, err := s.stored(ctx)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return domain.DefaultCompanySettings(), nil
	}
	return cs, err
}

// Zone returns the authoritative geofence used by point submission. A
// missing or malformed singleton is a configuration error, never a
// silent default.
func (s *SettingsService) Zone(ctx context.Context) (*domain.CompanySettings, geofence.Zone, error) {
	ctx, span := tracer.Start(ctx, "SettingsService.Zone")
	defer span.End()

	cs, err := s.stored(ctx)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nil, geofence.Zone{}, &domain.ErrConfiguration{Message: "configurações da empresa não encontradas"}
	}
	if err != nil {
		return nil, geofence.Zone{}, err
	}

	if cs.GeofenceCenter == nil {
		return nil, geofence.Zone{}, &domain.ErrConfiguration{Message: "centro do geofence não configurado"}
	}
	zone := geofence.Zone{
		Center:       geofence.Coordinate{Lat: cs.GeofenceCenter.Lat, Lon: cs.GeofenceCenter.Lng},
		RadiusMeters: float64(cs.GeofenceRadius),
	}
	if err := zone.Center.Validate(); err != nil {
		return nil, geofence.Zone{}, &domain.ErrConfiguration{Message: "centro do geofence inválido: " + err.Error()}
	}
	if cs.GeofenceRadius <= 0 {
		return nil, geofence.Zone{}, &domain.ErrConfiguration{Message: "raio do geofence deve ser positivo"}
	}
	return cs, zone, nil
}

// Update replaces the settings. Only reviewers may change them.
func (s *SettingsService) Update(ctx context.Context, actor *domain.Actor, req *domain.UpdateSettingsRequest) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "SettingsService.Update")
	defer span.End()

	if !actor.Role.CanReview() {
		return nil, &domain.ErrForbidden{Action: "alterar configurações"}
	}
	if req.GeofenceCenter == nil {
		return nil, &domain.ErrValidation{Field: "geofence_center", Message: "centro do geofence é obrigatório"}
	}
	center := geofence.Coordinate{Lat: req.GeofenceCenter.Lat, Lon: req.GeofenceCenter.Lng}
	if err := center.Validate(); err != nil {
		return nil, &domain.ErrValidation{Field: "geofence_center", Message: err.Error()}
	}
	if req.GeofenceRadius <= 0 {
		return nil, &domain.ErrValidation{Field: "geofence_radius", Message: "raio deve ser um inteiro positivo"}
	}
	if req.ToleranceMinutes < 0 {
		return nil, &domain.ErrValidation{Field: "tolerance_minutes", Message: "tolerância não pode ser negativa"}
	}
	if req.PhotoRetentionDays < 0 {
		return nil, &domain.ErrValidation{Field: "photo_retention_days", Message: "retenção não pode ser negativa"}
	}

	now := s.now().UTC()
	saved, err := s.store.UpsertSettings(ctx, &domain.CompanySettings{
		ID:                 domain.SettingsID,
		GeofenceCenter:     &domain.GeoPoint{Lat: center.Lat, Lng: center.Lon},
		GeofenceRadius:     req.GeofenceRadius,
		ToleranceMinutes:   req.ToleranceMinutes,
		PhotoRetentionDays: req.PhotoRetentionDays,
		UpdatedAt:          &now,
	})
	if err != nil {
		return nil, err
	}
	s.loader.Invalidate(domain.SettingsID)

	s.logger.Info("company settings updated",
		zap.String("user_id", actor.UserID),
		zap.Int("geofence_radius", saved.GeofenceRadius),
	)
	s.audit.Record(ctx, actor.UserID, domain.ActionSettingsUpdated, map[string]any{
		"geofence_center":      saved.GeofenceCenter,
		"geofence_radius":      saved.GeofenceRadius,
		"tolerance_minutes":    saved.ToleranceMinutes,
		"photo_retention_days": saved.PhotoRetentionDays,
	})
	return saved, nil
}
