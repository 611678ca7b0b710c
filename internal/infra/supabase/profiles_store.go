package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// ProfileStore: profiles table
// ============================================================

// ProfileStore implements port.ProfileStore.
type ProfileStore struct {
	c *Client
}

func NewProfileStore(c *Client) *ProfileStore { return &ProfileStore{c: c} }

func decodeProfiles(body []byte) ([]domain.Profile, error) {
	out := []domain.Profile{}
	if body == nil {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return out, nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var profile *domain.Profile
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, "profiles?"+eq("id", userID)+"&limit=1")
		if err != nil {
			return err
		}
		rows, err := decodeProfiles(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "profile", ID: userID}
		}
		profile = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/profiles", err)
	}
	return profile, nil
}

func (s *ProfileStore) ListProfiles(ctx context.Context, userIDs []string) ([]domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListProfiles")
	defer span.End()

	if len(userIDs) == 0 {
		return []domain.Profile{}, nil
	}
	quoted := make([]string, len(userIDs))
	for i, id := range userIDs {
		quoted[i] = `"` + id + `"`
	}
	path := "profiles?id=in.(" + url.QueryEscape(strings.Join(quoted, ",")) + ")"

	var rows []domain.Profile
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		rows, err = decodeProfiles(body)
		return err
	})
	if err != nil {
		return nil, wrapErr("supabase/profiles", err)
	}
	return rows, nil
}

func (s *ProfileStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertProfile")
	defer span.End()

	row := map[string]any{
		"id":         p.ID,
		"email":      p.Email,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"role":       p.Role,
		"updated_at": time.Now().UTC(),
	}
	err := s.c.execute(ctx, func() error {
		_, err := s.c.doUpsert(ctx, "profiles", row)
		return err
	})
	return wrapErr("supabase/profiles", err)
}

func (s *ProfileStore) UpdateProfileName(ctx context.Context, userID, firstName, lastName string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfileName")
	defer span.End()

	return s.patch(ctx, userID, map[string]any{
		"first_name": firstName,
		"last_name":  lastName,
		"updated_at": time.Now().UTC(),
	})
}

func (s *ProfileStore) UpdateProfileRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfileRole")
	defer span.End()

	return s.patch(ctx, userID, map[string]any{
		"role":       string(role),
		"updated_at": time.Now().UTC(),
	})
}

func (s *ProfileStore) patch(ctx context.Context, userID string, data map[string]any) (*domain.Profile, error) {
	var profile *domain.Profile
	err := s.c.execute(ctx, func() error {
		body, err := s.c.doPatch(ctx, "profiles?"+eq("id", userID), data)
		if err != nil {
			return err
		}
		rows, err := decodeProfiles(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "profile", ID: userID}
		}
		profile = &rows[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("supabase/profiles", err)
	}
	return profile, nil
}
