package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
)

// ============================================================
// JWTIdentity: local verification of HS256 access tokens
// ============================================================

// JWTIdentity implements port.IdentityProvider with the project's JWT
// secret, avoiding a round trip to the auth server per request.
type JWTIdentity struct {
	secret []byte
}

func NewJWTIdentity(secret string) *JWTIdentity {
	return &JWTIdentity{secret: []byte(secret)}
}

// SessionClaims are the claims read from an access token.
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (j *JWTIdentity) VerifyToken(_ context.Context, token string) (*domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &domain.ErrUnauthorized{Message: "token ausente"}
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, &domain.ErrUnauthorized{Message: "token inválido ou expirado"}
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token sem usuário"}
	}
	return &domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// ============================================================
// SessionService: credential → Actor
// ============================================================

const profileCacheName = "profiles"

// SessionService resolves the caller of every request. The role is
// parsed here once; everything downstream compares domain.Role values.
type SessionService struct {
	identity port.IdentityProvider
	profiles port.ProfileStore
	loader   *cache.Loader[*domain.Profile]
	retry    resilience.Config
	logger   *zap.Logger
}

// NewSessionService wires the resolver. attempts bounds how many times a
// missing profile is looked up again: the signup trigger creates the row
// shortly after the account, so a brand new user may race it.
func NewSessionService(
	identity port.IdentityProvider,
	profiles port.ProfileStore,
	profileCache cache.Store[*domain.Profile],
	recorder cache.Recorder,
	attempts int,
	retryDelay time.Duration,
	logger *zap.Logger,
) *SessionService {
	if attempts < 1 {
		attempts = 1
	}
	return &SessionService{
		identity: identity,
		profiles: profiles,
		loader:   cache.NewLoader(profileCacheName, profileCache, recorder),
		retry:    resilience.Config{MaxRetries: attempts - 1, InitialBackoff: retryDelay},
		logger:   logger,
	}
}

// Resolve verifies the bearer credential and loads the caller's role.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Actor, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Resolve")
	defer span.End()

	ident, err := s.identity.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", ident.UserID))

	profile, err := s.Profile(ctx, ident.UserID)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		s.logger.Warn("session: profile missing after retries", zap.String("user_id", ident.UserID))
		return nil, &domain.ErrUnauthorized{Message: "perfil não encontrado"}
	}
	if err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(profile.Role)
	if err != nil {
		s.logger.Warn("session: unknown role",
			zap.String("user_id", ident.UserID),
			zap.String("role", profile.Role),
		)
		return nil, &domain.ErrForbidden{Action: "papel desconhecido: " + profile.Role}
	}

	email := ident.Email
	if email == "" {
		email = profile.Email
	}
	return &domain.Actor{UserID: ident.UserID, Email: email, Role: role}, nil
}

// Profile reads a profile through the cache, retrying a missing row a
// bounded number of times.
func (s *SessionService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.loader.Get(userID, func() (*domain.Profile, error) {
		var p *domain.Profile
		err := resilience.RetryWithBackoff(ctx, s.retry, func() error {
			var err error
			p, err = s.profiles.GetProfile(ctx, userID)
			var nf *domain.ErrNotFound
			if err != nil && !errors.As(err, &nf) {
				return resilience.Permanent(err)
			}
			return err
		})
		return p, err
	})
}

// Forget drops a cached profile after it changed.
func (s *SessionService) Forget(userID string) {
	s.loader.Invalidate(userID)
}
