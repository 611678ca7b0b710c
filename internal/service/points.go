package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/geofence"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

const (
	msgWithinGeofence  = "Ponto registrado dentro da área permitida. Status pendente de validação facial."
	msgOutsideGeofence = "Ponto registrado, mas fora da área de geofence. Requer revisão."
	msgReplayed        = "Ponto já registrado anteriormente."
)

// PointService is the only place that creates points and decides their
// initial status.
type PointService struct {
	points   port.PointStore
	recorder port.AtomicPointRecorder // nil when the store cannot commit point + audit together
	storage  port.ObjectStorage
	settings *SettingsService
	audit    *AuditService
	reviewer *Reviewer[*domain.Point]
	uploads  *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	maxPhoto int64
	now      func() time.Time
}

func NewPointService(
	points port.PointStore,
	storage port.ObjectStorage,
	settings *SettingsService,
	audit *AuditService,
	uploads *resilience.Bulkhead,
	maxPhotoBytes int64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PointService {
	s := &PointService{
		points:   points,
		storage:  storage,
		settings: settings,
		audit:    audit,
		uploads:  uploads,
		metrics:  metrics,
		logger:   logger,
		maxPhoto: maxPhotoBytes,
		now:      time.Now,
	}
	if r, ok := points.(port.AtomicPointRecorder); ok {
		s.recorder = r
	}
	s.reviewer = NewReviewer[*domain.Point](ReviewPolicy{
		Entity: "point",
		Next:   nextReviewStatus,
		Actions: map[string]domain.AuditAction{
			string(domain.StatusAprovado):  domain.ActionPointApproved,
			string(domain.StatusRejeitado): domain.ActionPointRejected,
		},
	}, points, audit, metrics, logger)
	return s
}

// ============================================================
// Submit: POST /v1/points
// ============================================================

// Submit validates the punch, stores the photo and inserts the point.
// created is false when the fingerprint was already registered and the
// stored point is returned instead.
func (s *PointService) Submit(ctx context.Context, actor *domain.Actor, sub *domain.PointSubmission) (*domain.SubmissionResult, bool, error) {
	ctx, span := tracer.Start(ctx, "PointService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", actor.UserID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("submit_point", time.Since(start))
	}()

	pos, err := s.validate(sub)
	if err != nil {
		return nil, false, err
	}

	// --- Settings and replay lookup run concurrently ---
	var (
		cs       *domain.CompanySettings
		zone     geofence.Zone
		existing *domain.Point
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cs, zone, err = s.settings.Zone(gCtx)
		return err
	})
	g.Go(func() error {
		p, err := s.points.FindByFingerprint(gCtx, actor.UserID, sub.Fingerprint)
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil
		}
		existing = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	if existing != nil {
		s.metrics.IncrSubmission(observability.VerdictReplayed)
		s.logger.Info("point submission replayed",
			zap.String("user_id", actor.UserID),
			zap.String("point_id", existing.ID),
			zap.String("fingerprint", sub.Fingerprint),
		)
		return replayResult(existing), false, nil
	}

	verdict, err := geofence.Evaluate(pos, zone)
	if err != nil {
		return nil, false, &domain.ErrValidation{Field: "location", Message: err.Error()}
	}
	span.SetAttributes(
		attribute.Float64("geofence.distance_m", verdict.DistanceMeters),
		attribute.Bool("geofence.within", verdict.Within),
	)

	// --- Photo upload ---
	key := photoKey(actor.UserID, sub.Fingerprint, sub.PhotoContentType)
	var path string
	err = s.uploads.Do(ctx, func() error {
		var err error
		path, err = s.storage.Put(ctx, key, sub.Photo, sub.PhotoContentType)
		return err
	})
	if err != nil {
		s.logger.Error("photo upload failed",
			zap.String("user_id", actor.UserID),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false, &domain.ErrStorage{Op: "upload", Err: err}
	}
	s.metrics.ObservePhotoSize(len(sub.Photo))

	// --- Point row ---
	point := &domain.Point{
		ID:             uuid.NewString(),
		UserID:         actor.UserID,
		Type:           sub.Type,
		Timestamp:      s.now().UTC(),
		Location:       sub.Location,
		PhotoReference: path,
		Status:         domain.StatusPendente,
		Fingerprint:    sub.Fingerprint,
		DistanceMeters: verdict.DistanceMeters,
		WithinGeofence: verdict.Within,
	}
	entry := s.audit.Entry(actor.UserID, domain.ActionPointRegistered, map[string]any{
		"point_id":        point.ID,
		"type":            string(point.Type),
		"distance_m":      formatMeters(verdict.DistanceMeters),
		"geofence_radius": cs.GeofenceRadius,
		"within_geofence": verdict.Within,
		"fingerprint":     sub.Fingerprint,
		"timestamp_local": sub.TimestampLocal,
		"timestamp_utc":   sub.TimestampUTC,
	})

	var saved *domain.Point
	if s.recorder != nil {
		saved, err = s.recorder.CreatePointWithAudit(ctx, point, entry)
	} else {
		saved, err = s.points.CreatePoint(ctx, point)
	}
	var dup *domain.ErrDuplicate
	if errors.As(err, &dup) {
		prior, findErr := s.points.FindByFingerprint(ctx, actor.UserID, sub.Fingerprint)
		if findErr != nil {
			// The photo stays: the winning row may be ours and reference it.
			s.logger.Error("duplicate point could not be loaded",
				zap.String("user_id", actor.UserID),
				zap.String("fingerprint", sub.Fingerprint),
				zap.String("path", path),
				zap.Error(findErr),
			)
			return nil, false, findErr
		}
		if prior.PhotoReference != path {
			// A concurrent submission with the same fingerprint won the insert.
			s.removePhoto(ctx, path)
			s.metrics.IncrSubmission(observability.VerdictReplayed)
			return replayResult(prior), false, nil
		}
		// Our own insert committed on an attempt whose answer was lost.
		saved, err = prior, nil
	}
	if err != nil {
		s.removePhoto(ctx, path)
		s.logger.Error("point insert failed",
			zap.String("user_id", actor.UserID),
			zap.String("fingerprint", sub.Fingerprint),
			zap.Error(err),
		)
		return nil, false, &domain.ErrStorage{Op: "insert point", Err: err}
	}
	if s.recorder == nil {
		s.audit.write(ctx, entry)
	}

	if verdict.Within {
		s.metrics.IncrSubmission(observability.VerdictWithin)
	} else {
		s.metrics.IncrSubmission(observability.VerdictOutside)
	}
	s.logger.Info("point registered",
		zap.String("user_id", actor.UserID),
		zap.String("point_id", saved.ID),
		zap.String("type", string(saved.Type)),
		zap.Float64("distance_m", verdict.DistanceMeters),
		zap.Bool("within_geofence", verdict.Within),
	)

	msg := msgWithinGeofence
	if !verdict.Within {
		msg = msgOutsideGeofence
	}
	return &domain.SubmissionResult{
		Success:        true,
		Message:        msg,
		PointID:        saved.ID,
		Status:         saved.Status,
		DistanceM:      formatMeters(verdict.DistanceMeters),
		GeofenceRadius: cs.GeofenceRadius,
		WithinGeofence: verdict.Within,
	}, true, nil
}

// validate rejects malformed input before any side effect.
func (s *PointService) validate(sub *domain.PointSubmission) (geofence.Coordinate, error) {
	t, err := domain.ParsePunchType(string(sub.Type))
	if err != nil {
		return geofence.Coordinate{}, err
	}
	sub.Type = t

	if strings.TrimSpace(sub.Fingerprint) == "" {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "fingerprint", Message: "fingerprint é obrigatório"}
	}
	if len(sub.Photo) == 0 {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "photo", Message: "foto é obrigatória"}
	}
	if s.maxPhoto > 0 && int64(len(sub.Photo)) > s.maxPhoto {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "photo", Message: fmt.Sprintf("foto excede %d bytes", s.maxPhoto)}
	}
	if sub.PhotoContentType == "" {
		sub.PhotoContentType = "image/jpeg"
	}
	if !strings.HasPrefix(sub.PhotoContentType, "image/") {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "photo", Message: "arquivo deve ser uma imagem"}
	}

	pos := geofence.Coordinate{Lat: sub.Location.Latitude, Lon: sub.Location.Longitude}
	if err := pos.Validate(); err != nil {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "location", Message: err.Error()}
	}
	if sub.Location.AccuracyMeters < 0 {
		return geofence.Coordinate{}, &domain.ErrValidation{Field: "accuracy_m", Message: "precisão não pode ser negativa"}
	}
	return pos, nil
}

// removePhoto is the compensating delete for a photo whose point was
// never committed.
func (s *PointService) removePhoto(ctx context.Context, path string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.storage.Delete(ctx, path); err != nil {
		s.metrics.IncrPhotoCleanup("failed")
		s.logger.Error("orphan photo cleanup failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.metrics.IncrPhotoCleanup("deleted")
	s.logger.Warn("orphan photo removed", zap.String("path", path))
}

// replayResult describes a stored point. The radius is left out: it may
// have changed since the point was evaluated.
func replayResult(p *domain.Point) *domain.SubmissionResult {
	return &domain.SubmissionResult{
		Success:        true,
		Message:        msgReplayed,
		PointID:        p.ID,
		Status:         p.Status,
		DistanceM:      formatMeters(p.DistanceMeters),
		WithinGeofence: p.WithinGeofence,
		Replayed:       true,
	}
}

// photoKey namespaces by user and fingerprint; the ksuid suffix keeps a
// retried upload from colliding with an orphan of a failed attempt.
func photoKey(userID, fingerprint, contentType string) string {
	ext := "jpg"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("%s/%s-%s.%s", userID, fingerprint, ksuid.New().String(), ext)
}

func formatMeters(d float64) string {
	return strconv.FormatFloat(d, 'f', 2, 64)
}

// ============================================================
// Reads and decisions
// ============================================================

// List returns points newest first. A colaborador only sees their own.
func (s *PointService) List(ctx context.Context, actor *domain.Actor, f domain.PointFilter) (*domain.ListResponse[domain.Point], error) {
	ctx, span := tracer.Start(ctx, "PointService.List")
	defer span.End()

	if !actor.Role.CanReview() {
		f.UserID = actor.UserID
	}
	points, err := s.points.ListPoints(ctx, f)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse[domain.Point]{
		Data:     points,
		Page:     f.Page,
		PageSize: f.PageSize,
		HasMore:  len(points) == f.PageSize,
	}, nil
}

// Get returns one point with its photo URL.
func (s *PointService) Get(ctx context.Context, actor *domain.Actor, id string) (*domain.PointView, error) {
	ctx, span := tracer.Start(ctx, "PointService.Get")
	defer span.End()

	p, err := s.points.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(p.UserID) {
		return nil, &domain.ErrForbidden{Action: "ver ponto de outro colaborador"}
	}
	return &domain.PointView{Point: *p, PhotoURL: s.storage.PublicURL(p.PhotoReference)}, nil
}

// Decide approves or rejects a pendente point.
func (s *PointService) Decide(ctx context.Context, actor *domain.Actor, id string, d domain.Decision) (*domain.Point, error) {
	return s.reviewer.Decide(ctx, actor, id, d)
}
