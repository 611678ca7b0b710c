package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
)

// ============================================================
// Auth: session lookup and admin user management (GoTrue)
// ============================================================

// Auth implements port.IdentityProvider and port.UserAdmin.
type Auth struct {
	c *Client
}

func NewAuth(c *Client) *Auth { return &Auth{c: c} }

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// VerifyToken asks the auth server who owns the bearer token. It is not
// retried: a rejected token stays rejected.
func (a *Auth) VerifyToken(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.VerifyToken")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return nil, &domain.ErrUnauthorized{Message: "token ausente"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", a.c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.c.httpClient.Do(req)
	if err != nil {
		return nil, wrapErr("supabase/auth", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.ErrUnauthorized{Message: "token inválido ou expirado"}
	case resp.StatusCode != http.StatusOK:
		return nil, wrapErr("supabase/auth", fmt.Errorf("auth user returned status %d", resp.StatusCode))
	}

	var u authUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, wrapErr("supabase/auth", fmt.Errorf("decode auth user: %w", err))
	}
	if u.ID == "" {
		return nil, &domain.ErrUnauthorized{Message: "token sem usuário"}
	}
	return &domain.Identity{UserID: u.ID, Email: u.Email}, nil
}

// CreateUser registers a confirmed account with the given metadata. The
// signup trigger creates the matching profile row.
func (a *Auth) CreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	payload, err := json.Marshal(map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": metadata,
	})
	if err != nil {
		return "", err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	var u authUser
	err = a.c.execute(ctx, func() error {
		body, err := a.c.send(ctx, http.MethodPost, "/auth/v1/admin/users", bytes.NewReader(payload), h)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnprocessableEntity || apiErr.Status == http.StatusConflict) {
				return &domain.ErrConflict{Message: "email já cadastrado: " + email}
			}
			return err
		}
		return json.Unmarshal(body, &u)
	})
	if err != nil {
		return "", wrapErr("supabase/auth", err)
	}
	return u.ID, nil
}

// DeleteUser removes the account; profiles cascade in the database.
func (a *Auth) DeleteUser(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteUser")
	defer span.End()

	err := a.c.execute(ctx, func() error {
		_, err := a.c.send(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return &domain.ErrNotFound{Resource: "user", ID: userID}
		}
		return err
	})
	return wrapErr("supabase/auth", err)
}
