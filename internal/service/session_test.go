package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/service"
)

func newSessions(profiles *fakeProfileStore, attempts int) *service.SessionService {
	return service.NewSessionService(
		fakeIdentity{"tok-colab": "u-colab", "tok-odd": "u-odd", "tok-new": "u-new"},
		profiles,
		cache.New[*domain.Profile](time.Minute),
		observability.NewMetrics(),
		attempts,
		time.Millisecond,
		zap.NewNop(),
	)
}

func TestResolve_ParsesRoleOnce(t *testing.T) {
	profiles := newFakeProfileStore(domain.Profile{ID: "u-colab", Email: "c@x.com", Role: " Colaborador "})
	sessions := newSessions(profiles, 3)

	actor, err := sessions.Resolve(context.Background(), "tok-colab")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if actor.Role != domain.RoleColaborador || actor.Email != "c@x.com" {
		t.Errorf("unexpected actor %+v", actor)
	}

	// Second resolve is served from the cache.
	if _, err := sessions.Resolve(context.Background(), "tok-colab"); err != nil {
		t.Fatal(err)
	}
	if profiles.gets != 1 {
		t.Errorf("expected 1 profile read, got %d", profiles.gets)
	}
}

func TestResolve_InvalidToken(t *testing.T) {
	sessions := newSessions(newFakeProfileStore(), 3)
	_, err := sessions.Resolve(context.Background(), "nope")
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolve_RetriesSignupRace(t *testing.T) {
	profiles := newFakeProfileStore(domain.Profile{ID: "u-new", Role: "colaborador"})
	profiles.missingFor = 2
	sessions := newSessions(profiles, 3)

	actor, err := sessions.Resolve(context.Background(), "tok-new")
	if err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if actor.UserID != "u-new" || profiles.gets != 3 {
		t.Errorf("unexpected actor %+v after %d reads", actor, profiles.gets)
	}
}

func TestResolve_GivesUpAfterAttempts(t *testing.T) {
	profiles := newFakeProfileStore(domain.Profile{ID: "u-new", Role: "colaborador"})
	profiles.missingFor = 5
	sessions := newSessions(profiles, 2)

	_, err := sessions.Resolve(context.Background(), "tok-new")
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if profiles.gets != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", profiles.gets)
	}
}

func TestResolve_UnknownRole(t *testing.T) {
	sessions := newSessions(newFakeProfileStore(domain.Profile{ID: "u-odd", Role: "superuser"}), 1)
	_, err := sessions.Resolve(context.Background(), "tok-odd")
	var fe *domain.ErrForbidden
	if !errors.As(err, &fe) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func signToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, service.SessionClaims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTIdentity(t *testing.T) {
	id := service.NewJWTIdentity("secret")
	ctx := context.Background()

	ident, err := id.VerifyToken(ctx, signToken(t, "secret", "u-1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if ident.UserID != "u-1" || ident.Email != "u-1@example.com" {
		t.Errorf("unexpected identity %+v", ident)
	}

	for name, tok := range map[string]string{
		"expired":      signToken(t, "secret", "u-1", time.Now().Add(-time.Hour)),
		"wrong secret": signToken(t, "other", "u-1", time.Now().Add(time.Hour)),
		"no subject":   signToken(t, "secret", "", time.Now().Add(time.Hour)),
		"garbage":      "not-a-jwt",
		"empty":        "",
	} {
		_, err := id.VerifyToken(ctx, tok)
		var ue *domain.ErrUnauthorized
		if !errors.As(err, &ue) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}
