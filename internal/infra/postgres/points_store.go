package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// PointStore implements port.PointStore and port.AtomicPointRecorder.
type PointStore struct {
	pool *pgxpool.Pool
}

func NewPointStore(pool *pgxpool.Pool) *PointStore { return &PointStore{pool: pool} }

type pointLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

const pointColumns = `id, user_id, type, timestamp, location, photo_url, status,
	fingerprint, distance_m, within_geofence, created_at`

func scanPoint(row pgx.Row) (*domain.Point, error) {
	var (
		p        domain.Point
		loc      pointLocation
		typ, sts string
	)
	err := row.Scan(&p.ID, &p.UserID, &typ, &p.Timestamp, &loc, &p.PhotoReference, &sts,
		&p.Fingerprint, &p.DistanceMeters, &p.WithinGeofence, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PunchType(typ)
	p.Status = domain.ReviewStatus(sts)
	p.Location = domain.Location{Latitude: loc.Lat, Longitude: loc.Lng, AccuracyMeters: loc.Accuracy}
	return &p, nil
}

func insertPoint(ctx context.Context, q querier, p *domain.Point) (*domain.Point, error) {
	loc := pointLocation{Lat: p.Location.Latitude, Lng: p.Location.Longitude, Accuracy: p.Location.AccuracyMeters}
	row := q.QueryRow(ctx, `
		INSERT INTO points (id, user_id, type, timestamp, location, photo_url, status,
			fingerprint, distance_m, within_geofence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+pointColumns,
		p.ID, p.UserID, string(p.Type), p.Timestamp.UTC(), loc, p.PhotoReference, string(p.Status),
		p.Fingerprint, p.DistanceMeters, p.WithinGeofence,
	)
	return scanPoint(row)
}

func (s *PointStore) Load(ctx context.Context, id string) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LoadPoint")
	defer span.End()
	span.SetAttributes(attribute.String("point.id", id))

	p, err := scanPoint(s.pool.QueryRow(ctx, `SELECT `+pointColumns+` FROM points WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("postgres/points", "point", id, err)
	}
	return p, nil
}

func (s *PointStore) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FindPointByFingerprint")
	defer span.End()

	p, err := scanPoint(s.pool.QueryRow(ctx,
		`SELECT `+pointColumns+` FROM points WHERE user_id = $1 AND fingerprint = $2`, userID, fingerprint))
	if err != nil {
		return nil, mapErr("postgres/points", "point", fingerprint, err)
	}
	return p, nil
}

func (s *PointStore) CreatePoint(ctx context.Context, p *domain.Point) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreatePoint")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", p.UserID))

	created, err := insertPoint(ctx, s.pool, p)
	if err != nil {
		return nil, mapErr("postgres/points", "point", p.UserID+"/"+p.Fingerprint, err)
	}
	return created, nil
}

// CreatePointWithAudit commits the point and its audit entry together.
func (s *PointStore) CreatePointWithAudit(ctx context.Context, p *domain.Point, entry *domain.AuditLogEntry) (*domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreatePointWithAudit")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", p.UserID))

	var created *domain.Point
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		created, err = insertPoint(ctx, tx, p)
		if err != nil {
			return err
		}
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["point_id"] = created.ID
		return insertAudit(ctx, tx, entry)
	})
	if err != nil {
		return nil, mapErr("postgres/points", "point", p.UserID+"/"+p.Fingerprint, err)
	}
	return created, nil
}

func (s *PointStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Point, bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.TransitionPoint")
	defer span.End()
	span.SetAttributes(attribute.String("point.id", id), attribute.String("point.to", to))

	p, err := scanPoint(s.pool.QueryRow(ctx,
		`UPDATE points SET status = $3 WHERE id = $1 AND status = $2 RETURNING `+pointColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr("postgres/points", "point", id, err)
	}
	return p, true, nil
}

func (s *PointStore) ListPoints(ctx context.Context, f domain.PointFilter) ([]domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListPoints")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("timestamp >= $%d", f.From.UTC())
	}
	if f.To != nil {
		add("timestamp <= $%d", f.To.UTC())
	}

	query := `SELECT ` + pointColumns + ` FROM points`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, off := offset(f.Page, f.PageSize)
	args = append(args, limit, off)
	query += fmt.Sprintf(" ORDER BY timestamp DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return s.list(ctx, query, args...)
}

func (s *PointStore) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]domain.Point, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListApprovedPoints")
	defer span.End()

	return s.list(ctx, `SELECT `+pointColumns+` FROM points
		WHERE status = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY user_id, timestamp`, string(domain.StatusAprovado), from.UTC(), to.UTC())
}

func (s *PointStore) list(ctx context.Context, query string, args ...any) ([]domain.Point, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("postgres/points", "point", "", err)
	}
	defer rows.Close()

	points := []domain.Point{}
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, mapErr("postgres/points", "point", "", err)
		}
		points = append(points, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("postgres/points", "point", "", err)
	}
	return points, nil
}
