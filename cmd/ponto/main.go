package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/config"
	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/handler"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/client"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/ponto-bfa-go/internal/port"
	"github.com/boddenberg/ponto-bfa-go/internal/service"

	"go.uber.org/zap"
)

// stores is the data backend selected at startup.
type stores struct {
	points   port.PointStore
	absences port.AbsenceStore
	devices  port.DeviceStore
	settings port.SettingsStore
	profiles port.ProfileStore
	audit    port.AuditStore
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int64("max_photo_bytes", cfg.MaxPhotoBytes),
		zap.Bool("local_jwt", cfg.SupabaseJWTSecret != ""),
		zap.Bool("face_api", cfg.FaceAPIURL != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "ponto-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	profileCache := cache.New[*domain.Profile](cfg.CacheTTL)
	defer profileCache.Close()
	settingsCache := cache.New[*domain.CompanySettings](cfg.CacheTTL)
	defer settingsCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	uploads := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Supabase (storage and accounts; data too unless postgres is selected) ---
	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		resilience.NewCircuitBreaker("supabase"),
		resilienceCfg,
		logger,
	)
	photos := supabase.NewStorage(supabaseClient, cfg.PhotoBucket)
	auth := supabase.NewAuth(supabaseClient)

	var st stores
	switch cfg.DataBackend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, int32(cfg.MaxConcurrency), logger)
		if err == nil {
			err = postgres.EnsureSchema(ctx, pool)
		}
		cancel()
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("using Postgres as data backend")
		st = stores{
			points:   postgres.NewPointStore(pool),
			absences: postgres.NewAbsenceStore(pool),
			devices:  postgres.NewDeviceStore(pool),
			settings: postgres.NewSettingsStore(pool),
			profiles: postgres.NewProfileStore(pool),
			audit:    postgres.NewAuditStore(pool),
		}
	default:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		st = stores{
			points:   supabase.NewPointStore(supabaseClient),
			absences: supabase.NewAbsenceStore(supabaseClient),
			devices:  supabase.NewDeviceStore(supabaseClient),
			settings: supabase.NewSettingsStore(supabaseClient),
			profiles: supabase.NewProfileStore(supabaseClient),
			audit:    supabase.NewAuditStore(supabaseClient),
		}
	}

	// --- Identity ---
	var identity port.IdentityProvider = auth
	if cfg.SupabaseJWTSecret != "" {
		identity = service.NewJWTIdentity(cfg.SupabaseJWTSecret)
	}

	// --- Face matcher ---
	var matcher port.FaceMatcher = service.StaticMatcher{}
	if cfg.FaceAPIURL != "" {
		matcher = client.NewFaceClient(httpClient, cfg.FaceAPIURL, resilience.NewCircuitBreaker("face-api"), resilienceCfg)
	}

	// --- Services ---
	auditSvc := service.NewAuditService(st.audit, metrics, logger)
	sessions := service.NewSessionService(identity, st.profiles, profileCache, metrics,
		cfg.ProfileRetryAttempts, cfg.InitialBackoff, logger)
	settingsSvc := service.NewSettingsService(st.settings, settingsCache, metrics, auditSvc, logger)

	services := handler.Services{
		Sessions: sessions,
		Points:   service.NewPointService(st.points, photos, settingsSvc, auditSvc, uploads, cfg.MaxPhotoBytes, metrics, logger),
		Absences: service.NewAbsenceService(st.absences, auditSvc, metrics, logger),
		Devices:  service.NewDeviceService(st.devices, auditSvc, metrics, logger),
		Audit:    auditSvc,
		Settings: settingsSvc,
		Profiles: service.NewProfileService(st.profiles, auth, sessions, auditSvc, logger),
		Face:     service.NewFaceService(matcher, cfg.FaceMatchThreshold, auditSvc, logger),
		Export:   service.NewExportService(st.points, st.profiles, auditSvc, logger),
	}

	// --- Router ---
	router := handler.NewRouter(services, handler.Options{
		CORSOrigins:   cfg.CORSOrigins,
		MaxPhotoBytes: cfg.MaxPhotoBytes,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
