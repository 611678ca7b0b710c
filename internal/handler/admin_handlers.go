package handler

import (
	"net/http"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Auditoria: GET /v1/audit
// ============================================================

func listAuditHandler(svc *service.AuditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/audit")
		defer span.End()

		page, pageSize := parsePagination(r)
		resp, err := svc.List(ctx, ActorFromContext(ctx), domain.AuditFilter{
			UserID:   r.URL.Query().Get("user_id"),
			Action:   domain.AuditAction(r.URL.Query().Get("action")),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Configurações: GET/PUT /v1/settings
// ============================================================

func getSettingsHandler(svc *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settings")
		defer span.End()

		s, err := svc.Get(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func updateSettingsHandler(svc *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/settings")
		defer span.End()

		var req domain.UpdateSettingsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		s, err := svc.Update(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// ============================================================
// Perfil & Usuários
// ============================================================

func getProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/profile")
		defer span.End()

		p, err := svc.Get(ctx, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updateProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/profile")
		defer span.End()

		var req domain.UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.UpdateName(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createUserHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users")
		defer span.End()

		var req domain.CreateUserRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := svc.CreateUser(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func updateRoleHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/users/{id}/role")
		defer span.End()

		userID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("target.user_id", userID))

		var req domain.UpdateRoleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.UpdateRole(ctx, ActorFromContext(ctx), userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteUserHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/users/{id}")
		defer span.End()

		userID := chi.URLParam(r, "id")
		if err := svc.DeleteUser(ctx, ActorFromContext(ctx), userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true, Message: "Usuário removido.", ID: userID})
	}
}

// ============================================================
// Reconhecimento facial & folha de pagamento
// ============================================================

func faceVerifyHandler(svc *service.FaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/face/verify")
		defer span.End()

		var req domain.FaceVerifyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Verify(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func payrollExportHandler(svc *service.ExportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reports/payroll")
		defer span.End()

		var req domain.PayrollExportRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Payroll(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
