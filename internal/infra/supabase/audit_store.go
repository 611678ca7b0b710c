package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// AuditStore: append-only audit_logs table
// ============================================================

// AuditStore implements port.AuditStore. It never updates or deletes.
type AuditStore struct {
	c *Client
}

func NewAuditStore(c *Client) *AuditStore { return &AuditStore{c: c} }

func (s *AuditStore) InsertAudit(ctx context.Context, e *domain.AuditLogEntry) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertAudit")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", string(e.Action)))

	row := map[string]any{
		"id":        e.ID,
		"user_id":   e.UserID,
		"action":    e.Action,
		"timestamp": e.Timestamp.UTC(),
		"details":   e.Details,
	}
	err := s.c.execute(ctx, func() error {
		_, err := s.c.doPost(ctx, "audit_logs", row)
		return err
	})
	return wrapErr("supabase/audit", err)
}

func (s *AuditStore) ListAudit(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAudit")
	defer span.End()

	path := "audit_logs?select=*&order=timestamp.desc&" + page(f.Page, f.PageSize)
	if f.UserID != "" {
		path += "&" + eq("user_id", f.UserID)
	}
	if f.Action != "" {
		path += "&" + eq("action", string(f.Action))
	}

	entries := []domain.AuditLogEntry{}
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		if body == nil {
			entries = []domain.AuditLogEntry{}
			return nil
		}
		if err := json.Unmarshal(body, &entries); err != nil {
			return fmt.Errorf("decode audit_logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/audit", err)
	}
	return entries, nil
}
