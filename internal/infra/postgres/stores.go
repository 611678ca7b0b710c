package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// AbsenceStore
// ============================================================

// AbsenceStore implements port.AbsenceStore.
type AbsenceStore struct {
	pool *pgxpool.Pool
}

func NewAbsenceStore(pool *pgxpool.Pool) *AbsenceStore { return &AbsenceStore{pool: pool} }

const absenceColumns = `id, user_id, type, start_date::text, end_date::text, reason, status, created_at`

func scanAbsence(row pgx.Row) (*domain.Absence, error) {
	var (
		a        domain.Absence
		typ, sts string
	)
	if err := row.Scan(&a.ID, &a.UserID, &typ, &a.StartDate, &a.EndDate, &a.Reason, &sts, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Type = domain.AbsenceType(typ)
	a.Status = domain.ReviewStatus(sts)
	return &a, nil
}

func (s *AbsenceStore) Load(ctx context.Context, id string) (*domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LoadAbsence")
	defer span.End()

	a, err := scanAbsence(s.pool.QueryRow(ctx, `SELECT `+absenceColumns+` FROM absences WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("postgres/absences", "absence", id, err)
	}
	return a, nil
}

func (s *AbsenceStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Absence, bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.TransitionAbsence")
	defer span.End()

	a, err := scanAbsence(s.pool.QueryRow(ctx,
		`UPDATE absences SET status = $3 WHERE id = $1 AND status = $2 RETURNING `+absenceColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr("postgres/absences", "absence", id, err)
	}
	return a, true, nil
}

func (s *AbsenceStore) CreateAbsence(ctx context.Context, a *domain.Absence) (*domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateAbsence")
	defer span.End()

	created, err := scanAbsence(s.pool.QueryRow(ctx, `
		INSERT INTO absences (id, user_id, type, start_date, end_date, reason, status)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7)
		RETURNING `+absenceColumns,
		a.ID, a.UserID, string(a.Type), a.StartDate, a.EndDate, a.Reason, string(a.Status)))
	if err != nil {
		return nil, mapErr("postgres/absences", "absence", a.ID, err)
	}
	return created, nil
}

func (s *AbsenceStore) ListAbsences(ctx context.Context, userID string, page, size int) ([]domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAbsences")
	defer span.End()

	limit, off := offset(page, size)
	rows, err := s.pool.Query(ctx, `SELECT `+absenceColumns+` FROM absences
		WHERE ($1 = '' OR user_id::text = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, off)
	if err != nil {
		return nil, mapErr("postgres/absences", "absence", "", err)
	}
	defer rows.Close()

	out := []domain.Absence{}
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, mapErr("postgres/absences", "absence", "", err)
		}
		out = append(out, *a)
	}
	return out, mapErr("postgres/absences", "absence", "", rows.Err())
}

// ============================================================
// DeviceStore
// ============================================================

// DeviceStore implements port.DeviceStore.
type DeviceStore struct {
	pool *pgxpool.Pool
}

func NewDeviceStore(pool *pgxpool.Pool) *DeviceStore { return &DeviceStore{pool: pool} }

const deviceColumns = `id, user_id, device_id, device_model, last_login, is_active, created_at`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	if err := row.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.DeviceModel, &d.LastLogin, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DeviceStore) Load(ctx context.Context, id string) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LoadDevice")
	defer span.End()

	d, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM active_devices WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("postgres/devices", "device", id, err)
	}
	return d, nil
}

func (s *DeviceStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Device, bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.TransitionDevice")
	defer span.End()

	d, err := scanDevice(s.pool.QueryRow(ctx,
		`UPDATE active_devices SET is_active = $3 WHERE id = $1 AND is_active = $2 RETURNING `+deviceColumns,
		id, from == domain.DeviceAtivo, to == domain.DeviceAtivo))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr("postgres/devices", "device", id, err)
	}
	return d, true, nil
}

func (s *DeviceStore) RegisterDevice(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Postgres.RegisterDevice")
	defer span.End()

	created, err := scanDevice(s.pool.QueryRow(ctx, `
		INSERT INTO active_devices (id, user_id, device_id, device_model, last_login, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+deviceColumns,
		d.ID, d.UserID, d.DeviceID, d.DeviceModel, d.LastLogin, d.IsActive))
	if err != nil {
		return nil, mapErr("postgres/devices", "device", d.DeviceID, err)
	}
	return created, nil
}

func (s *DeviceStore) ListDevices(ctx context.Context, userID string, page, size int) ([]domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListDevices")
	defer span.End()

	limit, off := offset(page, size)
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM active_devices
		WHERE ($1 = '' OR user_id::text = $1)
		ORDER BY last_login DESC NULLS LAST LIMIT $2 OFFSET $3`, userID, limit, off)
	if err != nil {
		return nil, mapErr("postgres/devices", "device", "", err)
	}
	defer rows.Close()

	out := []domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, mapErr("postgres/devices", "device", "", err)
		}
		out = append(out, *d)
	}
	return out, mapErr("postgres/devices", "device", "", rows.Err())
}

// ============================================================
// SettingsStore
// ============================================================

// SettingsStore implements port.SettingsStore.
type SettingsStore struct {
	pool *pgxpool.Pool
}

func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore { return &SettingsStore{pool: pool} }

const settingsColumns = `id, geofence_center, geofence_radius, tolerance_minutes, photo_retention_days, updated_at`

func scanSettings(row pgx.Row) (*domain.CompanySettings, error) {
	var cs domain.CompanySettings
	err := row.Scan(&cs.ID, &cs.GeofenceCenter, &cs.GeofenceRadius, &cs.ToleranceMinutes, &cs.PhotoRetentionDays, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *SettingsStore) GetSettings(ctx context.Context) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetSettings")
	defer span.End()

	cs, err := scanSettings(s.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM company_settings WHERE id = $1`, domain.SettingsID))
	if err != nil {
		return nil, mapErr("postgres/settings", "company_settings", domain.SettingsID, err)
	}
	return cs, nil
}

func (s *SettingsStore) UpsertSettings(ctx context.Context, cs *domain.CompanySettings) (*domain.CompanySettings, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertSettings")
	defer span.End()

	saved, err := scanSettings(s.pool.QueryRow(ctx, `
		INSERT INTO company_settings (id, geofence_center, geofence_radius, tolerance_minutes, photo_retention_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			geofence_center = EXCLUDED.geofence_center,
			geofence_radius = EXCLUDED.geofence_radius,
			tolerance_minutes = EXCLUDED.tolerance_minutes,
			photo_retention_days = EXCLUDED.photo_retention_days,
			updated_at = EXCLUDED.updated_at
		RETURNING `+settingsColumns,
		domain.SettingsID, cs.GeofenceCenter, cs.GeofenceRadius, cs.ToleranceMinutes, cs.PhotoRetentionDays, cs.UpdatedAt))
	if err != nil {
		return nil, mapErr("postgres/settings", "company_settings", domain.SettingsID, err)
	}
	return saved, nil
}

// ============================================================
// ProfileStore
// ============================================================

// ProfileStore implements port.ProfileStore.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore { return &ProfileStore{pool: pool} }

const profileColumns = `id, coalesce(email, ''), coalesce(first_name, ''), coalesce(last_name, ''), role,
	coalesce(avatar_url, ''), updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.AvatarURL, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetProfile")
	defer span.End()

	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
	if err != nil {
		return nil, mapErr("postgres/profiles", "profile", userID, err)
	}
	return p, nil
}

func (s *ProfileStore) ListProfiles(ctx context.Context, userIDs []string) ([]domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListProfiles")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id::text = ANY($1)`, userIDs)
	if err != nil {
		return nil, mapErr("postgres/profiles", "profile", "", err)
	}
	defer rows.Close()

	out := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, mapErr("postgres/profiles", "profile", "", err)
		}
		out = append(out, *p)
	}
	return out, mapErr("postgres/profiles", "profile", "", rows.Err())
}

func (s *ProfileStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertProfile")
	defer span.End()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, first_name, last_name, role, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Email, p.FirstName, p.LastName, p.Role, time.Now().UTC())
	return mapErr("postgres/profiles", "profile", p.ID, err)
}

func (s *ProfileStore) UpdateProfileName(ctx context.Context, userID, firstName, lastName string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateProfileName")
	defer span.End()

	p, err := scanProfile(s.pool.QueryRow(ctx, `
		UPDATE profiles SET first_name = $2, last_name = $3, updated_at = now()
		WHERE id = $1 RETURNING `+profileColumns, userID, firstName, lastName))
	if err != nil {
		return nil, mapErr("postgres/profiles", "profile", userID, err)
	}
	return p, nil
}

func (s *ProfileStore) UpdateProfileRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateProfileRole")
	defer span.End()

	p, err := scanProfile(s.pool.QueryRow(ctx, `
		UPDATE profiles SET role = $2, updated_at = now()
		WHERE id = $1 RETURNING `+profileColumns, userID, string(role)))
	if err != nil {
		return nil, mapErr("postgres/profiles", "profile", userID, err)
	}
	return p, nil
}

// ============================================================
// AuditStore
// ============================================================

// AuditStore implements port.AuditStore.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore { return &AuditStore{pool: pool} }

func insertAudit(ctx context.Context, q querier, e *domain.AuditLogEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := q.Exec(ctx, `INSERT INTO audit_logs (id, user_id, action, timestamp, details) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, string(e.Action), e.Timestamp.UTC(), details)
	return err
}

func (s *AuditStore) InsertAudit(ctx context.Context, e *domain.AuditLogEntry) error {
	ctx, span := tracer.Start(ctx, "Postgres.InsertAudit")
	defer span.End()

	return mapErr("postgres/audit", "audit_log", e.ID, insertAudit(ctx, s.pool, e))
}

func (s *AuditStore) ListAudit(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAudit")
	defer span.End()

	limit, off := offset(f.Page, f.PageSize)
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, action, timestamp, details FROM audit_logs
		WHERE ($1 = '' OR user_id::text = $1) AND ($2 = '' OR action = $2)
		ORDER BY timestamp DESC LIMIT $3 OFFSET $4`, f.UserID, string(f.Action), limit, off)
	if err != nil {
		return nil, mapErr("postgres/audit", "audit_log", "", err)
	}
	defer rows.Close()

	out := []domain.AuditLogEntry{}
	for rows.Next() {
		var (
			e      domain.AuditLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.Timestamp, &e.Details); err != nil {
			return nil, mapErr("postgres/audit", "audit_log", "", err)
		}
		e.Action = domain.AuditAction(action)
		out = append(out, e)
	}
	return out, mapErr("postgres/audit", "audit_log", "", rows.Err())
}
