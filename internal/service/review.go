package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

// ReviewPolicy is what differs between reviewable entity kinds.
type ReviewPolicy struct {
	// Entity names the kind in errors, metrics and logs ("point").
	Entity string
	// Next returns the target state of a decision and whether it may be
	// applied to current.
	Next func(current string, d domain.Decision) (next string, ok bool, err error)
	// Actions maps a target state to the audit action it records.
	Actions map[string]domain.AuditAction
}

// Reviewer applies reviewer decisions to one kind of reviewable item.
// Every kind shares the same gate: only gestor/admin decide, and a state
// change is a compare-and-set so concurrent reviewers cannot overwrite
// each other.
type Reviewer[T domain.Reviewable] struct {
	policy  ReviewPolicy
	store   port.ReviewStore[T]
	audit   *AuditService
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewReviewer[T domain.Reviewable](
	policy ReviewPolicy,
	store port.ReviewStore[T],
	audit *AuditService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Reviewer[T] {
	return &Reviewer[T]{policy: policy, store: store, audit: audit, metrics: metrics, logger: logger}
}

// Decide moves item id to the state implied by d.
func (r *Reviewer[T]) Decide(ctx context.Context, actor *domain.Actor, id string, d domain.Decision) (T, error) {
	ctx, span := tracer.Start(ctx, "Reviewer.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("review.entity", r.policy.Entity),
		attribute.String("review.id", id),
		attribute.String("review.decision", string(d)),
	)

	var zero T
	if !actor.Role.CanReview() {
		return zero, &domain.ErrForbidden{Action: "decidir " + r.policy.Entity}
	}

	item, err := r.store.Load(ctx, id)
	if err != nil {
		return zero, err
	}
	from := item.ReviewState()

	to, ok, err := r.policy.Next(from, d)
	if err != nil {
		return zero, err
	}
	if !ok {
		r.metrics.IncrDecision(r.policy.Entity, string(d), observability.OutcomeConflict)
		return zero, &domain.ErrInvalidStateTransition{Entity: r.policy.Entity, ID: id, From: from, To: to}
	}

	updated, won, err := r.store.CompareAndSetState(ctx, id, from, to)
	if err != nil {
		return zero, err
	}
	if !won {
		r.metrics.IncrDecision(r.policy.Entity, string(d), observability.OutcomeConflict)
		r.logger.Info("review lost to a concurrent decision",
			zap.String("entity", r.policy.Entity),
			zap.String("id", id),
			zap.String("reviewer_id", actor.UserID),
		)
		return zero, &domain.ErrInvalidStateTransition{Entity: r.policy.Entity, ID: id, From: from, To: to}
	}

	r.metrics.IncrDecision(r.policy.Entity, string(d), observability.OutcomeApplied)
	r.logger.Info("review applied",
		zap.String("entity", r.policy.Entity),
		zap.String("id", id),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("reviewer_id", actor.UserID),
	)
	if action, ok := r.policy.Actions[to]; ok {
		r.audit.Record(ctx, actor.UserID, action, map[string]any{
			r.policy.Entity + "_id": id,
			"owner_id":              updated.OwnerID(),
			"from":                  from,
			"to":                    to,
		})
	}
	return updated, nil
}

// nextReviewStatus adapts the pendente/aprovado/rejeitado machine.
func nextReviewStatus(current string, d domain.Decision) (string, bool, error) {
	next, ok, err := domain.NextReviewStatus(domain.ReviewStatus(strings.ToLower(current)), d)
	return string(next), ok, err
}
