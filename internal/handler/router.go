package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles what the router serves. A nil Sessions disables the
// /v1 API (503) but keeps the operational endpoints up.
type Services struct {
	Sessions *service.SessionService
	Points   *service.PointService
	Absences *service.AbsenceService
	Devices  *service.DeviceService
	Audit    *service.AuditService
	Settings *service.SettingsService
	Profiles *service.ProfileService
	Face     *service.FaceService
	Export   *service.ExportService
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins   []string
	MaxPhotoBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Settings, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc.Sessions == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "session service unavailable: identity provider not configured")
			}))
			return
		}
		r.Use(SessionAuthMiddleware(svc.Sessions, logger))

		// =============================================
		// 1. Pontos
		// =============================================
		r.Post("/points", submitPointHandler(svc.Points, opts.MaxPhotoBytes, logger))
		r.Get("/points", listPointsHandler(svc.Points, logger))
		r.Post("/points/decision", pointDecisionHandler(svc.Points, logger))
		r.Get("/points/{id}", getPointHandler(svc.Points, logger))
		r.Post("/points/{id}/approve", pointDecisionByPathHandler(svc.Points, domain.DecisionApprove, logger))
		r.Post("/points/{id}/reject", pointDecisionByPathHandler(svc.Points, domain.DecisionReject, logger))

		// =============================================
		// 2. Ausências
		// =============================================
		r.Post("/absences", createAbsenceHandler(svc.Absences, logger))
		r.Get("/absences", listAbsencesHandler(svc.Absences, logger))
		r.Post("/absences/{id}/approve", absenceDecisionHandler(svc.Absences, domain.DecisionApprove, logger))
		r.Post("/absences/{id}/reject", absenceDecisionHandler(svc.Absences, domain.DecisionReject, logger))

		// =============================================
		// 3. Dispositivos
		// =============================================
		r.Post("/devices", registerDeviceHandler(svc.Devices, logger))
		r.Get("/devices", listDevicesHandler(svc.Devices, logger))
		r.Post("/devices/{id}/activate", deviceDecisionHandler(svc.Devices, domain.DecisionActivate, logger))
		r.Post("/devices/{id}/deactivate", deviceDecisionHandler(svc.Devices, domain.DecisionDeactivate, logger))

		// =============================================
		// 4. Auditoria & Configurações
		// =============================================
		r.Get("/audit", listAuditHandler(svc.Audit, logger))
		r.Get("/settings", getSettingsHandler(svc.Settings, logger))
		r.Put("/settings", updateSettingsHandler(svc.Settings, logger))

		// =============================================
		// 5. Perfil & Usuários
		// =============================================
		r.Get("/profile", getProfileHandler(svc.Profiles, logger))
		r.Put("/profile", updateProfileHandler(svc.Profiles, logger))
		r.Post("/users", createUserHandler(svc.Profiles, logger))
		r.Put("/users/{id}/role", updateRoleHandler(svc.Profiles, logger))
		r.Delete("/users/{id}", deleteUserHandler(svc.Profiles, logger))

		// =============================================
		// 6. Reconhecimento facial, relatórios e métricas
		// =============================================
		r.Post("/face/verify", faceVerifyHandler(svc.Face, logger))
		r.Post("/reports/payroll", payrollExportHandler(svc.Export, logger))
		r.Get("/metrics/points", pointMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Métricas & Health
// ============================================================

func healthzHandler(settings *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "ponto-api", Status: "healthy", LastChecked: now},
		}

		if settings != nil {
			start := time.Now()
			_, err := settings.Get(r.Context())
			status := "healthy"
			if err != nil {
				logger.Warn("healthz: data backend degraded", zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "data-backend", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pointMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPointSnapshot())
	}
}
