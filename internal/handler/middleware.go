package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

// SessionAuthMiddleware resolves the Bearer token into an Actor (user id
// plus role read from profiles) and injects it into the context. The role
// is never taken from the request.
func SessionAuthMiddleware(sessions *service.SessionService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			actor, err := sessions.Resolve(r.Context(), parts[1])
			if err != nil {
				logger.Warn("auth: session not resolved",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated caller, or nil outside the
// authenticated routes.
func ActorFromContext(ctx context.Context) *domain.Actor {
	v, _ := ctx.Value(actorKey).(*domain.Actor)
	return v
}
