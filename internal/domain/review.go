package domain

import "strings"

// ============================================================
// Reviewable items: points, absences and devices share one
// owner + reviewer-gated state shape.
// ============================================================

// Reviewable is a record owned by a user whose state is changed only by
// a reviewer (gestor/admin).
type Reviewable interface {
	ReviewID() string
	OwnerID() string
	ReviewState() string
}

// ReviewStatus is the pendente → aprovado | rejeitado lifecycle.
type ReviewStatus string

const (
	StatusPendente  ReviewStatus = "pendente"
	StatusAprovado  ReviewStatus = "aprovado"
	StatusRejeitado ReviewStatus = "rejeitado"
)

// Terminal reports whether no further decision is accepted.
func (s ReviewStatus) Terminal() bool {
	return s == StatusAprovado || s == StatusRejeitado
}

// ParseReviewStatus validates a status filter.
func ParseReviewStatus(raw string) (ReviewStatus, error) {
	switch ReviewStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPendente:
		return StatusPendente, nil
	case StatusAprovado:
		return StatusAprovado, nil
	case StatusRejeitado:
		return StatusRejeitado, nil
	}
	return "", &ErrValidation{Field: "status", Message: "status deve ser pendente, aprovado ou rejeitado"}
}

// Decision is a reviewer action on a reviewable item.
type Decision string

const (
	DecisionApprove    Decision = "aprovar"
	DecisionReject     Decision = "rejeitar"
	DecisionActivate   Decision = "ativar"
	DecisionDeactivate Decision = "desativar"
)

// ParseDecision accepts the verb or the resulting status.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "aprovar", "aprovado", "approve", "approved":
		return DecisionApprove, nil
	case "rejeitar", "rejeitado", "reject", "rejected":
		return DecisionReject, nil
	case "ativar", "ativo", "activate":
		return DecisionActivate, nil
	case "desativar", "inativo", "deactivate":
		return DecisionDeactivate, nil
	}
	return "", &ErrValidation{Field: "decision", Message: "decisão deve ser aprovar ou rejeitar"}
}

// NextReviewStatus applies d to a pendente/aprovado/rejeitado item.
// ok is false when current is terminal; the caller reports the
// InvalidStateTransition with its own entity name.
func NextReviewStatus(current ReviewStatus, d Decision) (next ReviewStatus, ok bool, err error) {
	switch d {
	case DecisionApprove:
		next = StatusAprovado
	case DecisionReject:
		next = StatusRejeitado
	default:
		return "", false, &ErrValidation{Field: "decision", Message: "decisão deve ser aprovar ou rejeitar"}
	}
	if current != StatusPendente {
		return next, false, nil
	}
	return next, true, nil
}
