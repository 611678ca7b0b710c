package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/ponto-bfa-go/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.PhotoBucket != "point-photos" {
		t.Errorf("expected point-photos bucket, got %q", cfg.PhotoBucket)
	}
	if cfg.DataBackend != "supabase" {
		t.Errorf("expected supabase backend, got %q", cfg.DataBackend)
	}
	if cfg.FaceMatchThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", cfg.FaceMatchThreshold)
	}
	if cfg.MaxPhotoBytes != 10<<20 {
		t.Errorf("expected 10MiB photo limit, got %d", cfg.MaxPhotoBytes)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("DATA_BACKEND", "Postgres")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://painel.example.com, ,https://app.example.com")
	t.Setenv("FACE_MATCH_THRESHOLD", "0.9")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := config.Load()

	if cfg.Port != 9090 {
		t.Errorf("expected 9090, got %d", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.CacheTTL)
	}
	if cfg.DataBackend != "postgres" {
		t.Errorf("expected lowercased backend, got %q", cfg.DataBackend)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://app.example.com" {
		t.Errorf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.FaceMatchThreshold != 0.9 {
		t.Errorf("expected 0.9, got %v", cfg.FaceMatchThreshold)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected fallback to 3 on bad int, got %d", cfg.MaxRetries)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "PONTO_TEST_A=from-file\nPONTO_TEST_B=from-file\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PONTO_TEST_A", "from-env")
	t.Setenv("PONTO_TEST_B", "")
	os.Unsetenv("PONTO_TEST_B")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("PONTO_TEST_A"); got != "from-env" {
		t.Errorf("expected env to win, got %q", got)
	}
	if got := os.Getenv("PONTO_TEST_B"); got != "from-file" {
		t.Errorf("expected file value, got %q", got)
	}
}
