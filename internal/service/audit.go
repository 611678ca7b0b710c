package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

var tracer = otel.Tracer("service")

// AuditService writes and reads the append-only audit log.
type AuditService struct {
	store   port.AuditStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewAuditService(store port.AuditStore, metrics *observability.Metrics, logger *zap.Logger) *AuditService {
	return &AuditService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Entry builds a new entry stamped with the server clock.
func (s *AuditService) Entry(actorID string, action domain.AuditAction, details map[string]any) *domain.AuditLogEntry {
	if details == nil {
		details = map[string]any{}
	}
	return &domain.AuditLogEntry{
		ID:        uuid.NewString(),
		UserID:    actorID,
		Action:    action,
		Timestamp: s.now().UTC(),
		Details:   details,
	}
}

// Record appends an entry. A failed write never undoes the operation it
// describes: it is logged with the full entry and counted.
func (s *AuditService) Record(ctx context.Context, actorID string, action domain.AuditAction, details map[string]any) {
	s.write(ctx, s.Entry(actorID, action, details))
}

func (s *AuditService) write(ctx context.Context, entry *domain.AuditLogEntry) {
	// The primary write already happened; a client disconnect must not drop its audit entry.
	ctx = context.WithoutCancel(ctx)

	ctx, span := tracer.Start(ctx, "AuditService.Record")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", string(entry.Action)))

	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.metrics.IncrAuditFailure(entry.Action)
		s.logger.Error("audit write failed",
			zap.String("audit_id", entry.ID),
			zap.String("user_id", entry.UserID),
			zap.String("action", string(entry.Action)),
			zap.Any("details", entry.Details),
			zap.Error(err),
		)
	}
}

// List returns entries newest first. A colaborador only sees their own.
func (s *AuditService) List(ctx context.Context, actor *domain.Actor, f domain.AuditFilter) (*domain.ListResponse[domain.AuditLogEntry], error) {
	ctx, span := tracer.Start(ctx, "AuditService.List")
	defer span.End()

	if !actor.Role.CanReview() {
		f.UserID = actor.UserID
	}
	entries, err := s.store.ListAudit(ctx, f)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse[domain.AuditLogEntry]{
		Data:     entries,
		Page:     f.Page,
		PageSize: f.PageSize,
		HasMore:  len(entries) == f.PageSize,
	}, nil
}
