package domain

import (
	"strings"
	"time"
)

// ============================================================
// Points: clock-in/out/break events
// ============================================================

// PunchType is the kind of point being registered.
type PunchType string

const (
	PunchEntrada PunchType = "entrada"
	PunchSaida   PunchType = "saida"
	PunchAlmoco  PunchType = "almoco"
	PunchPausa   PunchType = "pausa"
)

// ParsePunchType validates a punch kind.
func ParsePunchType(raw string) (PunchType, error) {
	switch PunchType(strings.ToLower(strings.TrimSpace(raw))) {
	case PunchEntrada:
		return PunchEntrada, nil
	case PunchSaida:
		return PunchSaida, nil
	case PunchAlmoco:
		return PunchAlmoco, nil
	case PunchPausa:
		return PunchPausa, nil
	}
	return "", &ErrValidation{Field: "type", Message: "tipo deve ser entrada, saida, almoco ou pausa"}
}

// Location is the device position reported with a point.
type Location struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// Point is a registered punch. Only Status changes after insert.
type Point struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Type           PunchType    `json:"type"`
	Timestamp      time.Time    `json:"timestamp"`
	Location       Location     `json:"location"`
	PhotoReference string       `json:"photo_reference"`
	Status         ReviewStatus `json:"status"`
	Fingerprint    string       `json:"fingerprint"`
	DistanceMeters float64      `json:"distance_m"`
	WithinGeofence bool         `json:"within_geofence"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (p *Point) ReviewID() string    { return p.ID }
func (p *Point) OwnerID() string     { return p.UserID }
func (p *Point) ReviewState() string { return string(p.Status) }

// SubmissionMetadata is the JSON "metadata" part of the multipart
// submission. Pointers distinguish a missing coordinate from zero.
type SubmissionMetadata struct {
	Type           string   `json:"type"`
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	AccuracyM      *float64 `json:"accuracy_m"`
	TimestampLocal string   `json:"timestamp_local"`
	TimestampUTC   string   `json:"timestamp_utc"`
	Fingerprint    string   `json:"fingerprint"`
}

// PointSubmission is the validated input of the submission service.
type PointSubmission struct {
	Type             PunchType
	Location         Location
	TimestampLocal   string
	TimestampUTC     string
	Fingerprint      string
	Photo            []byte
	PhotoContentType string
}

// SubmissionResult is the body of a successful POST /v1/points.
type SubmissionResult struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	PointID        string       `json:"point_id"`
	Status         ReviewStatus `json:"status"`
	DistanceM      string       `json:"distance_m"`
	GeofenceRadius int          `json:"geofence_radius,omitempty"` // unset on replays
	WithinGeofence bool         `json:"within_geofence"`
	Replayed       bool         `json:"replayed,omitempty"`
}

// DecisionRequest is the body for POST /v1/points/decision.
type DecisionRequest struct {
	PointID  string `json:"point_id"`
	Decision string `json:"decision"`
}

// DecisionResponse is returned by every approve/reject endpoint.
type DecisionResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

// PointFilter narrows GET /v1/points.
type PointFilter struct {
	UserID   string
	Status   ReviewStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// PointView is a point plus its public photo URL.
type PointView struct {
	Point
	PhotoURL string `json:"photo_url,omitempty"`
}
