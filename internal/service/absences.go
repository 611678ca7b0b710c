package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

const dateLayout = "2006-01-02"

// AbsenceService handles leave requests.
type AbsenceService struct {
	store    port.AbsenceStore
	audit    *AuditService
	reviewer *Reviewer[*domain.Absence]
	logger   *zap.Logger
}

func NewAbsenceService(store port.AbsenceStore, audit *AuditService, metrics *observability.Metrics, logger *zap.Logger) *AbsenceService {
	return &AbsenceService{
		store: store,
		audit: audit,
		reviewer: NewReviewer[*domain.Absence](ReviewPolicy{
			Entity: "absence",
			Next:   nextReviewStatus,
			Actions: map[string]domain.AuditAction{
				string(domain.StatusAprovado):  domain.ActionAbsenceApproved,
				string(domain.StatusRejeitado): domain.ActionAbsenceRejected,
			},
		}, store, audit, metrics, logger),
		logger: logger,
	}
}

// Create files a pendente request for the caller.
func (s *AbsenceService) Create(ctx context.Context, actor *domain.Actor, req *domain.CreateAbsenceRequest) (*domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "AbsenceService.Create")
	defer span.End()

	typ, err := domain.ParseAbsenceType(req.Type)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "start_date", Message: "data deve estar no formato AAAA-MM-DD"}
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "end_date", Message: "data deve estar no formato AAAA-MM-DD"}
	}
	if end.Before(start) {
		return nil, &domain.ErrValidation{Field: "end_date", Message: "data final anterior à inicial"}
	}

	a, err := s.store.CreateAbsence(ctx, &domain.Absence{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Type:      typ,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Reason:    req.Reason,
		Status:    domain.StatusPendente,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, domain.ActionAbsenceRequested, map[string]any{
		"absence_id": a.ID,
		"type":       string(a.Type),
		"start_date": a.StartDate,
		"end_date":   a.EndDate,
	})
	return a, nil
}

// List returns requests; a colaborador only sees their own.
func (s *AbsenceService) List(ctx context.Context, actor *domain.Actor, userID string, page, pageSize int) (*domain.ListResponse[domain.Absence], error) {
	ctx, span := tracer.Start(ctx, "AbsenceService.List")
	defer span.End()

	if !actor.Role.CanReview() {
		userID = actor.UserID
	}
	items, err := s.store.ListAbsences(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse[domain.Absence]{Data: items, Page: page, PageSize: pageSize, HasMore: len(items) == pageSize}, nil
}

func (s *AbsenceService) Decide(ctx context.Context, actor *domain.Actor, id string, d domain.Decision) (*domain.Absence, error) {
	return s.reviewer.Decide(ctx, actor, id, d)
}
