package domain

import (
	"strings"
	"time"
)

// AbsenceType is the kind of leave requested.
type AbsenceType string

const (
	AbsenceFerias      AbsenceType = "ferias"
	AbsenceAfastamento AbsenceType = "afastamento"
	AbsenceLicenca     AbsenceType = "licenca"
)

// ParseAbsenceType validates an absence kind.
func ParseAbsenceType(raw string) (AbsenceType, error) {
	switch AbsenceType(strings.ToLower(strings.TrimSpace(raw))) {
	case AbsenceFerias:
		return AbsenceFerias, nil
	case AbsenceAfastamento:
		return AbsenceAfastamento, nil
	case AbsenceLicenca:
		return AbsenceLicenca, nil
	}
	return "", &ErrValidation{Field: "type", Message: "tipo deve ser ferias, afastamento ou licenca"}
}

// Absence is a leave request (table absences).
type Absence struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Type      AbsenceType  `json:"type"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Reason    string       `json:"reason"`
	Status    ReviewStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

func (a *Absence) ReviewID() string    { return a.ID }
func (a *Absence) OwnerID() string     { return a.UserID }
func (a *Absence) ReviewState() string { return string(a.Status) }

// CreateAbsenceRequest is the body for POST /v1/absences.
type CreateAbsenceRequest struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}
