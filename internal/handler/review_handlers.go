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
// Ausências
// ============================================================

func createAbsenceHandler(svc *service.AbsenceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/absences")
		defer span.End()

		var req domain.CreateAbsenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		a, err := svc.Create(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func listAbsencesHandler(svc *service.AbsenceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/absences")
		defer span.End()

		page, pageSize := parsePagination(r)
		resp, err := svc.List(ctx, ActorFromContext(ctx), r.URL.Query().Get("user_id"), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func absenceDecisionHandler(svc *service.AbsenceService, d domain.Decision, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/absences/{id}/"+string(d))
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("absence.id", id))

		a, err := svc.Decide(ctx, ActorFromContext(ctx), id, d)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.DecisionResponse{Success: true, ID: a.ID, Status: string(a.Status)})
	}
}

// ============================================================
// Dispositivos
// ============================================================

func registerDeviceHandler(svc *service.DeviceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/devices")
		defer span.End()

		var req domain.RegisterDeviceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.Register(ctx, ActorFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func listDevicesHandler(svc *service.DeviceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/devices")
		defer span.End()

		page, pageSize := parsePagination(r)
		resp, err := svc.List(ctx, ActorFromContext(ctx), r.URL.Query().Get("user_id"), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deviceDecisionHandler(svc *service.DeviceService, d domain.Decision, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/devices/{id}/"+string(d))
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("device.id", id))

		dev, err := svc.Decide(ctx, ActorFromContext(ctx), id, d)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.DecisionResponse{Success: true, ID: dev.ID, Status: dev.ReviewState()})
	}
}
