package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// PointStore: points table via PostgREST
// ============================================================

// PointStore implements port.PointStore.
type PointStore struct {
	c *Client
}

func NewPointStore(c *Client) *PointStore { return &PointStore{c: c} }

// pointLocation is the jsonb location column.
type pointLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

type pointRow struct {
	ID             string        `json:"id,omitempty"`
	UserID         string        `json:"user_id"`
	Type           string        `json:"type"`
	Timestamp      time.Time     `json:"timestamp"`
	Location       pointLocation `json:"location"`
	PhotoURL       string        `json:"photo_url"`
	Status         string        `json:"status"`
	Fingerprint    string        `json:"fingerprint"`
	DistanceM      float64       `json:"distance_m"`
	WithinGeofence bool          `json:"within_geofence"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
}

func toPointRow(p *domain.Point) pointRow {
	return pointRow{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      string(p.Type),
		Timestamp: p.Timestamp.UTC(),
		Location: pointLocation{
			Lat:      p.Location.Latitude,
			Lng:      p.Location.Longitude,
			Accuracy: p.Location.AccuracyMeters,
		},
		PhotoURL:       p.PhotoReference,
		Status:         string(p.Status),
		Fingerprint:    p.Fingerprint,
		DistanceM:      p.DistanceMeters,
		WithinGeofence: p.WithinGeofence,
	}
}

func (r *pointRow) toDomain() domain.Point {
	p := domain.Point{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      domain.PunchType(r.Type),
		Timestamp: r.Timestamp,
		Location: domain.Location{
			Latitude:       r.Location.Lat,
			Longitude:      r.Location.Lng,
			AccuracyMeters: r.Location.Accuracy,
		},
		PhotoReference: r.PhotoURL,
		Status:         domain.ReviewStatus(r.Status),
		Fingerprint:    r.Fingerprint,
		DistanceMeters: r.DistanceM,
		WithinGeofence: r.WithinGeofence,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	return p
}

func decodePoints(body []byte) ([]domain.Point, error) {
	if body == nil {
		return []domain.Point{}, nil
	}
	var rows []pointRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	out := make([]domain.Point, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *PointStore) one(ctx context.Context, path, id string) (*domain.Point, error) {
	var point *domain.Point
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		points, err := decodePoints(body)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return &domain.ErrNotFound{Resource: "point", ID: id}
		}
		point = &points[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/points", err)
	}
	return point, nil
}

// Load fetches one point by id.
func (s *PointStore) Load(ctx context.Context, id string) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LoadPoint")
	defer span.End()
	span.SetAttributes(attribute.String("point.id", id))

	return s.one(ctx, "points?"+eq("id", id)+"&limit=1", id)
}

// FindByFingerprint looks up a user's earlier submission of the same intent.
func (s *PointStore) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindPointByFingerprint")
	defer span.End()

	path := "points?" + eq("user_id", userID) + "&" + eq("fingerprint", fingerprint) + "&limit=1"
	return s.one(ctx, path, fingerprint)
}

// CreatePoint inserts a point. The (user_id, fingerprint) unique index
// turns a concurrent duplicate into *domain.ErrDuplicate.
func (s *PointStore) CreatePoint(ctx context.Context, p *domain.Point) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePoint")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", p.UserID))

	var created *domain.Point
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doPost(ctx, "points", toPointRow(p))
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.isUniqueViolation() {
				return &domain.ErrDuplicate{Key: p.UserID + "/" + p.Fingerprint}
			}
			return err
		}
		points, err := decodePoints(body)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return fmt.Errorf("insert points returned no row")
		}
		created = &points[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/points", err)
	}
	return created, nil
}

// CompareAndSetState moves status from -> to in one conditional PATCH.
func (s *PointStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Point, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.TransitionPoint")
	defer span.End()
	span.SetAttributes(
		attribute.String("point.id", id),
		attribute.String("point.from", from),
		attribute.String("point.to", to),
	)

	var updated *domain.Point
	err := s.c.execute(ctx, func() error {
		path := "points?" + eq("id", id) + "&" + eq("status", from)
		body, err := s.c.doPatch(ctx, path, map[string]any{"status": to})
		if err != nil {
			return err
		}
		points, err := decodePoints(body)
		if err != nil {
			return err
		}
		if len(points) > 0 {
			updated = &points[0]
		}
		return nil
	})
	if err != nil {
		return nil, false, wrapErr("supabase/points", err)
	}
	return updated, updated != nil, nil
}

// ListPoints returns points newest first.
func (s *PointStore) ListPoints(ctx context.Context, f domain.PointFilter) ([]domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPoints")
	defer span.End()

	q := []string{"select=*"}
	if f.UserID != "" {
		q = append(q, eq("user_id", f.UserID))
	}
	if f.Status != "" {
		q = append(q, eq("status", string(f.Status)))
	}
	if f.From != nil {
		q = append(q, "timestamp=gte."+ts(*f.From))
	}
	if f.To != nil {
		q = append(q, "timestamp=lte."+ts(*f.To))
	}
	q = append(q, "order=timestamp.desc,created_at.desc", page(f.Page, f.PageSize))

	var points []domain.Point
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, "points?"+strings.Join(q, "&"))
		if err != nil {
			return err
		}
		points, err = decodePoints(body)
		return err
	})
	if err != nil {
		return nil, wrapErr("supabase/points", err)
	}
	return points, nil
}

// ListApprovedBetween returns approved points with timestamp in [from, to].
func (s *PointStore) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListApprovedPoints")
	defer span.End()

	path := "points?" + eq("status", string(domain.StatusAprovado)) +
		"&timestamp=gte." + ts(from) + "&timestamp=lte." + ts(to) +
		"&order=user_id.asc,timestamp.asc"

	var points []domain.Point
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		points, err = decodePoints(body)
		return err
	})
	if err != nil {
		return nil, wrapErr("supabase/points", err)
	}
	return points, nil
}
