package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/geofence"
)

var center = geofence.Coordinate{Lat: -23.5505, Lon: -46.6333}

func submission(at geofence.Coordinate, fingerprint string) *domain.PointSubmission {
	return &domain.PointSubmission{
		Type:             domain.PunchEntrada,
		Location:         domain.Location{Latitude: at.Lat, Longitude: at.Lon, AccuracyMeters: 10},
		TimestampLocal:   "2024-03-01T09:00:00-03:00",
		TimestampUTC:     "2024-03-01T12:00:00Z",
		Fingerprint:      fingerprint,
		Photo:            []byte("\xff\xd8\xff photo"),
		PhotoContentType: "image/jpeg",
	}
}

func TestSubmit_AtCenter(t *testing.T) {
	h := newHarness()

	res, created, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !created {
		t.Error("expected a new point")
	}
	if res.Status != domain.StatusPendente {
		t.Errorf("expected pendente, got %s", res.Status)
	}
	if res.DistanceM != "0.00" {
		t.Errorf("expected distance 0.00, got %s", res.DistanceM)
	}
	if res.GeofenceRadius != 100 || !res.WithinGeofence {
		t.Errorf("unexpected geofence fields: %+v", res)
	}

	actions := h.audit.actions()
	if len(actions) != 1 || actions[0] != domain.ActionPointRegistered {
		t.Fatalf("expected one ponto_registrado entry, got %v", actions)
	}
	details := h.audit.last().Details
	if details["distance_m"] != "0.00" || details["geofence_radius"] != 100 {
		t.Errorf("audit details missing geofence data: %v", details)
	}
	if h.storage.count() != 1 || h.points.count() != 1 {
		t.Errorf("expected one photo and one point, got %d / %d", h.storage.count(), h.points.count())
	}
}

func TestSubmit_OutsideStaysPendente(t *testing.T) {
	h := newHarness()
	far := geofence.Offset(center, 500, 90)

	res, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(far, "fp-far"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Status != domain.StatusPendente {
		t.Errorf("expected pendente, got %s", res.Status)
	}
	if res.DistanceM != "500.00" {
		t.Errorf("expected distance 500.00, got %s", res.DistanceM)
	}
	if res.WithinGeofence {
		t.Error("expected outside verdict")
	}
	if snap := h.metrics.GetPointSnapshot(); snap.OutsideGeofence != 1 {
		t.Errorf("expected 1 outside submission, got %d", snap.OutsideGeofence)
	}
}

func TestSubmit_SameFingerprintTwice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, created, err := h.pointSvc.Submit(ctx, colaborador, submission(center, "fp-dup"))
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	second, created, err := h.pointSvc.Submit(ctx, colaborador, submission(center, "fp-dup"))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created {
		t.Error("second submit must not create a point")
	}
	if !second.Replayed || second.PointID != first.PointID {
		t.Errorf("expected replay of %s, got %+v", first.PointID, second)
	}
	if second.GeofenceRadius != 0 || second.DistanceM != first.DistanceM {
		t.Errorf("replay must carry the stored distance and no radius, got %+v", second)
	}
	if h.points.count() != 1 || h.storage.count() != 1 {
		t.Errorf("expected exactly one point and photo, got %d / %d", h.points.count(), h.storage.count())
	}
}

func TestSubmit_ConcurrentSameFingerprint(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = h.pointSvc.Submit(ctx, colaborador, submission(center, "fp-race"))
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("submit %d: %v", i, err)
		}
	}
	if h.points.count() != 1 {
		t.Errorf("expected one point, got %d", h.points.count())
	}
	if h.storage.count() != 1 {
		t.Errorf("losing uploads must be cleaned up, %d photos left", h.storage.count())
	}
}

func TestSubmit_InsertFailureRemovesPhoto(t *testing.T) {
	h := newHarness()
	h.points.insertErr = errBoom

	_, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-fail"))

	var se *domain.ErrStorage
	if !errors.As(err, &se) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if h.storage.count() != 0 {
		t.Errorf("orphan photo left in storage")
	}
	if len(h.storage.deleted) != 1 {
		t.Errorf("expected one compensating delete, got %d", len(h.storage.deleted))
	}
	if h.points.count() != 0 {
		t.Error("no point may exist after a failed insert")
	}
	if snap := h.metrics.GetPointSnapshot(); snap.OrphanCleanups != 1 {
		t.Errorf("expected cleanup metric, got %d", snap.OrphanCleanups)
	}
}

func TestSubmit_UploadFailure(t *testing.T) {
	h := newHarness()
	h.storage.putErr = errBoom

	_, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-up"))

	var se *domain.ErrStorage
	if !errors.As(err, &se) || se.Op != "upload" {
		t.Fatalf("expected upload ErrStorage, got %v", err)
	}
	if h.points.count() != 0 {
		t.Error("no point may exist without its photo")
	}
}

func TestSubmit_MissingSettings(t *testing.T) {
	h := newHarness()
	h.settings.settings = nil

	_, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-cfg"))

	var ce *domain.ErrConfiguration
	if !errors.As(err, &ce) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if h.storage.count() != 0 {
		t.Error("nothing may be uploaded without settings")
	}
}

func TestSubmit_MalformedSettings(t *testing.T) {
	h := newHarness()
	h.settings.settings.GeofenceCenter = nil

	_, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-cfg2"))

	var ce *domain.ErrConfiguration
	if !errors.As(err, &ce) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.PointSubmission)
		field  string
	}{
		{"bad type", func(s *domain.PointSubmission) { s.Type = "cafe" }, "type"},
		{"no fingerprint", func(s *domain.PointSubmission) { s.Fingerprint = " " }, "fingerprint"},
		{"no photo", func(s *domain.PointSubmission) { s.Photo = nil }, "photo"},
		{"not an image", func(s *domain.PointSubmission) { s.PhotoContentType = "application/pdf" }, "photo"},
		{"latitude out of range", func(s *domain.PointSubmission) { s.Location.Latitude = 91 }, "location"},
		{"negative accuracy", func(s *domain.PointSubmission) { s.Location.AccuracyMeters = -1 }, "accuracy_m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			sub := submission(center, "fp-val")
			tt.mutate(sub)

			_, _, err := h.pointSvc.Submit(context.Background(), colaborador, sub)

			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
			if h.storage.count() != 0 || h.points.count() != 0 {
				t.Error("validation errors must have no side effects")
			}
		})
	}
}

func TestSubmit_PhotoTooLarge(t *testing.T) {
	h := newHarness()
	sub := submission(center, "fp-big")
	sub.Photo = make([]byte, 2<<20)

	_, _, err := h.pointSvc.Submit(context.Background(), colaborador, sub)

	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "photo" {
		t.Fatalf("expected photo ErrValidation, got %v", err)
	}
}

func TestSubmit_AuditFailureKeepsPoint(t *testing.T) {
	h := newHarness()
	h.audit.err = errBoom

	res, _, err := h.pointSvc.Submit(context.Background(), colaborador, submission(center, "fp-audit"))
	if err != nil {
		t.Fatalf("audit failures must not fail the submission: %v", err)
	}
	if res.PointID == "" || h.points.count() != 1 {
		t.Error("point should be stored")
	}
	if snap := h.metrics.GetPointSnapshot(); snap.AuditFailures != 1 {
		t.Errorf("expected audit failure metric, got %d", snap.AuditFailures)
	}
}

func TestListPoints_ColaboradorSeesOwn(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	other := &domain.Actor{UserID: "u-other", Role: domain.RoleColaborador}

	h.pointSvc.Submit(ctx, colaborador, submission(center, "fp-a"))
	h.pointSvc.Submit(ctx, other, submission(center, "fp-b"))

	own, err := h.pointSvc.List(ctx, colaborador, domain.PointFilter{UserID: "u-other", Page: 1, PageSize: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(own.Data) != 1 || own.Data[0].UserID != colaborador.UserID {
		t.Errorf("colaborador must only see own points, got %+v", own.Data)
	}

	all, _ := h.pointSvc.List(ctx, gestor, domain.PointFilter{Page: 1, PageSize: 20})
	if len(all.Data) != 2 {
		t.Errorf("gestor should see all points, got %d", len(all.Data))
	}
}

func TestGetPoint_Access(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	res, _, _ := h.pointSvc.Submit(ctx, colaborador, submission(center, "fp-get"))

	view, err := h.pointSvc.Get(ctx, colaborador, res.PointID)
	if err != nil {
		t.Fatal(err)
	}
	if view.PhotoURL == "" {
		t.Error("expected photo URL")
	}

	other := &domain.Actor{UserID: "u-other", Role: domain.RoleColaborador}
	_, err = h.pointSvc.Get(ctx, other, res.PointID)
	var fe *domain.ErrForbidden
	if !errors.As(err, &fe) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
