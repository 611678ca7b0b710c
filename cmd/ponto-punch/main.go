// Command ponto-punch captures a point from the command line and submits
// it to the points API, the way a capture device does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/capture"
	"github.com/boddenberg/ponto-bfa-go/internal/config"
	"github.com/boddenberg/ponto-bfa-go/internal/domain"
	"github.com/boddenberg/ponto-bfa-go/internal/geofence"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/client"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ponto-bfa-go/internal/infra/resilience"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	_ = config.LoadDotEnv(".env")

	var (
		apiURL   = pflag.String("api", envOr("PONTO_API_URL", "http://localhost:8080"), "points API base URL")
		token    = pflag.String("token", os.Getenv("PONTO_TOKEN"), "session bearer token")
		punch    = pflag.StringP("type", "t", "entrada", "punch type: entrada, saida, almoco or pausa")
		lat      = pflag.Float64("lat", 0, "latitude in degrees")
		lon      = pflag.Float64("lon", 0, "longitude in degrees")
		accuracy = pflag.Float64("accuracy", 10, "reported accuracy in meters")
		photo    = pflag.StringP("photo", "p", "", "path to the identity photo")
		timeout  = pflag.Duration("timeout", 30*time.Second, "overall deadline")
		logLevel = pflag.String("log-level", "warn", "log level")
	)
	pflag.Parse()

	logger := observability.NewLogger(*logLevel)
	defer logger.Sync()

	if *token == "" || *photo == "" {
		fail("--token and --photo are required")
	}
	if !pflag.CommandLine.Changed("lat") || !pflag.CommandLine.Changed("lon") {
		fail("--lat and --lon are required")
	}
	punchType, err := domain.ParsePunchType(*punch)
	if err != nil {
		fail(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	points := client.NewPointsClient(
		&http.Client{Timeout: 15 * time.Second},
		*apiURL,
		resilience.NewCircuitBreaker("ponto-api"),
		resilience.Config{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond},
	)

	// The local geofence check is advisory; without settings it is skipped.
	settings, err := points.Settings(ctx, *token)
	if err != nil {
		logger.Warn("settings unavailable, skipping advisory geofence check", zap.Error(err))
		settings = nil
	}

	locator := capture.NewStaticLocator(capture.Position{
		Coordinate:     geofence.Coordinate{Lat: *lat, Lon: *lon},
		AccuracyMeters: *accuracy,
	})
	capturer := capture.NewCapturer(locator, capture.FileCamera{Path: *photo}, logger)

	intent, err := capturer.Capture(ctx, punchType, settings)
	if err != nil {
		fail(err.Error())
	}
	if intent.Warning != "" {
		fmt.Fprintln(os.Stderr, intent.Warning)
	}

	result, err := points.Submit(ctx, *token, intent)
	if err != nil {
		fail(err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "ponto-punch:", msg)
	os.Exit(1)
}
