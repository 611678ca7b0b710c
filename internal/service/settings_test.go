package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

func TestSettings_DefaultsWhenMissing(t *testing.T) {
	h := newHarness()
	h.settings.settings = nil

	cs, err := h.settingsSvc.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cs.GeofenceRadius != 100 || cs.GeofenceCenter.Lat != -23.5505 || cs.ToleranceMinutes != 15 || cs.PhotoRetentionDays != 30 {
		t.Errorf("unexpected defaults %+v", cs)
	}
}

func TestSettings_CachedUntilUpdate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.settingsSvc.Get(ctx)
	h.settingsSvc.Get(ctx)
	if h.settings.gets != 1 {
		t.Errorf("expected one store read, got %d", h.settings.gets)
	}

	updated, err := h.settingsSvc.Update(ctx, gestor, &domain.UpdateSettingsRequest{
		GeofenceCenter: &domain.GeoPoint{Lat: -22.9, Lng: -43.2},
		GeofenceRadius: 250,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt == nil {
		t.Error("expected updated_at")
	}

	cs, _ := h.settingsSvc.Get(ctx)
	if cs.GeofenceRadius != 250 {
		t.Errorf("cache not invalidated, radius %d", cs.GeofenceRadius)
	}
	if h.audit.last().Action != domain.ActionSettingsUpdated {
		t.Errorf("expected configuracoes_atualizadas audit")
	}
}

func TestSettings_UpdateRules(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	valid := &domain.UpdateSettingsRequest{GeofenceCenter: &domain.GeoPoint{Lat: 1, Lng: 1}, GeofenceRadius: 50}

	_, err := h.settingsSvc.Update(ctx, colaborador, valid)
	var fe *domain.ErrForbidden
	if !errors.As(err, &fe) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	for name, req := range map[string]*domain.UpdateSettingsRequest{
		"zero radius":        {GeofenceCenter: &domain.GeoPoint{Lat: 1, Lng: 1}, GeofenceRadius: 0},
		"no center":          {GeofenceRadius: 10},
		"bad center":         {GeofenceCenter: &domain.GeoPoint{Lat: 100, Lng: 1}, GeofenceRadius: 10},
		"negative tolerance": {GeofenceCenter: &domain.GeoPoint{Lat: 1, Lng: 1}, GeofenceRadius: 10, ToleranceMinutes: -1},
	} {
		_, err := h.settingsSvc.Update(ctx, admin, req)
		var ve *domain.ErrValidation
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}
