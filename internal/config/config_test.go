package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.QualityThreshold != 0.75 {
		t.Errorf("QualityThreshold = %v, want 0.75", cfg.QualityThreshold)
	}
	if cfg.UTMZone != 33 {
		t.Errorf("UTMZone = %d, want 33", cfg.UTMZone)
	}
	if cfg.SimplifyTolerance != 0.0001 {
		t.Errorf("SimplifyTolerance = %v, want 0.0001", cfg.SimplifyTolerance)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want empty", cfg.KafkaBrokers)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "STORE_BACKEND=mongo\nWORKERS=4\nKAFKA_BROKERS=k1:9092, k2:9092\nCACHE_TTL=30s\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"STORE_BACKEND", "WORKERS", "KAFKA_BROKERS", "CACHE_TTL"} {
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	cfg := Load(path)

	if cfg.StoreBackend != "mongo" {
		t.Errorf("StoreBackend = %q, want mongo", cfg.StoreBackend)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=9000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7000")

	cfg := Load(path)
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want 7000", cfg.Port)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("UTM_ZONE", "thirty-three")
	t.Setenv("QUALITY_THRESHOLD", "high")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.UTMZone != 33 {
		t.Errorf("UTMZone = %d, want 33", cfg.UTMZone)
	}
	if cfg.QualityThreshold != 0.75 {
		t.Errorf("QualityThreshold = %v, want 0.75", cfg.QualityThreshold)
	}
}
