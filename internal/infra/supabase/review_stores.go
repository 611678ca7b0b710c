package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// AbsenceStore: absences table
// ============================================================

// AbsenceStore implements port.AbsenceStore.
type AbsenceStore struct {
	c *Client
}

func NewAbsenceStore(c *Client) *AbsenceStore { return &AbsenceStore{c: c} }

func decodeAbsences(body []byte) ([]domain.Absence, error) {
	out := []domain.Absence{}
	if body == nil {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode absences: %w", err)
	}
	return out, nil
}

func (s *AbsenceStore) Load(ctx context.Context, id string) (*domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LoadAbsence")
	defer span.End()
	span.SetAttributes(attribute.String("absence.id", id))

	var absence *domain.Absence
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, "absences?"+eq("id", id)+"&limit=1")
		if err != nil {
			return err
		}
		rows, err := decodeAbsences(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "absence", ID: id}
		}
		absence = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/absences", err)
	}
	return absence, nil
}

func (s *AbsenceStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Absence, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.TransitionAbsence")
	defer span.End()
	span.SetAttributes(attribute.String("absence.id", id), attribute.String("absence.to", to))

	var updated *domain.Absence
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doPatch(ctx, "absences?"+eq("id", id)+"&"+eq("status", from), map[string]any{"status": to})
		if err != nil {
			return err
		}
		rows, err := decodeAbsences(body)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			updated = &rows[0]
		}
		return nil
	})
	if err != nil {
		return nil, false, wrapErr("supabase/absences", err)
	}
	return updated, updated != nil, nil
}

func (s *AbsenceStore) CreateAbsence(ctx context.Context, a *domain.Absence) (*domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAbsence")
	defer span.End()

	row := map[string]any{
		"id":         a.ID,
		"user_id":    a.UserID,
		"type":       a.Type,
		"start_date": a.StartDate,
		"end_date":   a.EndDate,
		"reason":     a.Reason,
		"status":     a.Status,
	}

	var created *domain.Absence
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doPost(ctx, "absences", row)
		if err != nil {
			return err
		}
		rows, err := decodeAbsences(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("insert absences returned no row")
		}
		created = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/absences", err)
	}
	return created, nil
}

func (s *AbsenceStore) ListAbsences(ctx context.Context, userID string, p, size int) ([]domain.Absence, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAbsences")
	defer span.End()

	path := "absences?select=*&order=created_at.desc&" + page(p, size)
	if userID != "" {
		path += "&" + eq("user_id", userID)
	}

	var rows []domain.Absence
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		rows, err = decodeAbsences(body)
		return err
	})
	if err != nil {
		return nil, wrapErr("supabase/absences", err)
	}
	return rows, nil
}

// ============================================================
// DeviceStore: active_devices table
// ============================================================

// DeviceStore implements port.DeviceStore. The reviewable state is the
// is_active flag rendered as ativo/inativo.
type DeviceStore struct {
	c *Client
}

func NewDeviceStore(c *Client) *DeviceStore { return &DeviceStore{c: c} }

func decodeDevices(body []byte) ([]domain.Device, error) {
	out := []domain.Device{}
	if body == nil {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode active_devices: %w", err)
	}
	return out, nil
}

func (s *DeviceStore) Load(ctx context.Context, id string) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LoadDevice")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", id))

	var device *domain.Device
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, "active_devices?"+eq("id", id)+"&limit=1")
		if err != nil {
			return err
		}
		rows, err := decodeDevices(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "device", ID: id}
		}
		device = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/devices", err)
	}
	return device, nil
}

func (s *DeviceStore) CompareAndSetState(ctx context.Context, id, from, to string) (*domain.Device, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.TransitionDevice")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", id), attribute.String("device.to", to))

	fromActive := strconv.FormatBool(from == domain.DeviceAtivo)
	toActive := to == domain.DeviceAtivo

	var updated *domain.Device
	err := s.c.execute(ctx, func() error {
		path := "active_devices?" + eq("id", id) + "&is_active=eq." + fromActive
		body, err := s.c.doPatch(ctx, path, map[string]any{"is_active": toActive})
		if err != nil {
			return err
		}
		rows, err := decodeDevices(body)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			updated = &rows[0]
		}
		return nil
	})
	if err != nil {
		return nil, false, wrapErr("supabase/devices", err)
	}
	return updated, updated != nil, nil
}

func (s *DeviceStore) RegisterDevice(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RegisterDevice")
	defer span.End()

	row := map[string]any{
		"id":           d.ID,
		"user_id":      d.UserID,
		"device_id":    d.DeviceID,
		"device_model": d.DeviceModel,
		"last_login":   d.LastLogin,
		"is_active":    d.IsActive,
	}

	var created *domain.Device
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doPost(ctx, "active_devices", row)
		if err != nil {
			return err
		}
		rows, err := decodeDevices(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("insert active_devices returned no row")
		}
		created = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/devices", err)
	}
	return created, nil
}

func (s *DeviceStore) ListDevices(ctx context.Context, userID string, p, size int) ([]domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListDevices")
	defer span.End()

	path := "active_devices?select=*&order=last_login.desc.nullslast&" + page(p, size)
	if userID != "" {
		path += "&" + eq("user_id", userID)
	}

	var rows []domain.Device
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		rows, err = decodeDevices(body)
		return err
	})
	if err != nil {
		return nil, wrapErr("supabase/devices", err)
	}
	return rows, nil
}
