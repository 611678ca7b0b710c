package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// SettingsStore: company_settings singleton
// ============================================================

// SettingsStore implements port.SettingsStore.
type SettingsStore struct {
	c *Client
}

func NewSettingsStore(c *Client) *SettingsStore { return &SettingsStore{c: c} }

func decodeSettings(body []byte) (*domain.CompanySettings, error) {
	var rows []domain.CompanySettings
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode company_settings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SettingsStore) GetSettings(ctx context.Context) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSettings")
	defer span.End()

	var settings *domain.CompanySettings
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, "company_settings?"+eq("id", domain.SettingsID)+"&limit=1")
		if err != nil {
			return err
		}
		if body == nil {
			return &domain.ErrNotFound{Resource: "company_settings", ID: domain.SettingsID}
		}
		settings, err = decodeSettings(body)
		if err != nil {
			return err
		}
		if settings == nil {
			return &domain.ErrNotFound{Resource: "company_settings", ID: domain.SettingsID}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/settings", err)
	}
	return settings, nil
}

func (s *SettingsStore) UpsertSettings(ctx context.Context, cs *domain.CompanySettings) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertSettings")
	defer span.End()

	row := map[string]any{
		"id":                   domain.SettingsID,
		"geofence_center":      cs.GeofenceCenter,
		"geofence_radius":      cs.GeofenceRadius,
		"tolerance_minutes":    cs.ToleranceMinutes,
		"photo_retention_days": cs.PhotoRetentionDays,
		"updated_at":           cs.UpdatedAt,
	}

	var saved *domain.CompanySettings
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doUpsert(ctx, "company_settings", row)
		if err != nil {
			return err
		}
		saved, err = decodeSettings(body)
		if err != nil {
			return err
		}
		if saved == nil {
			saved = cs
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/settings", err)
	}
	return saved, nil
}
