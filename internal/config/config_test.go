package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.MatchThreshold != 0.6 {
		t.Fatalf("MatchThreshold = %v, want 0.6", cfg.MatchThreshold)
	}
	if cfg.DueSoonWindowDays != 30 {
		t.Fatalf("DueSoonWindowDays = %d, want 30", cfg.DueSoonWindowDays)
	}
	if cfg.BulkWorkers != 20 {
		t.Fatalf("BulkWorkers = %d, want 20", cfg.BulkWorkers)
	}
	if cfg.BreakerFailureThreshold != 3 {
		t.Fatalf("BreakerFailureThreshold = %d, want 3", cfg.BreakerFailureThreshold)
	}
	if cfg.NATSSubject != "screening.triggers" {
		t.Fatalf("NATSSubject = %q", cfg.NATSSubject)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("BULK_WORKERS", "8")
	t.Setenv("DUE_SOON_WINDOW_DAYS", "14")

	cfg := Load()

	if cfg.APIPort != "9999" {
		t.Fatalf("APIPort = %q, want 9999", cfg.APIPort)
	}
	if cfg.MatchThreshold != 0.75 {
		t.Fatalf("MatchThreshold = %v, want 0.75", cfg.MatchThreshold)
	}
	if cfg.BulkWorkers != 8 {
		t.Fatalf("BulkWorkers = %d, want 8", cfg.BulkWorkers)
	}
	if cfg.DueSoonWindowDays != 14 {
		t.Fatalf("DueSoonWindowDays = %d, want 14", cfg.DueSoonWindowDays)
	}
}

func TestLoadMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("BULK_WORKERS", "not-a-number")
	t.Setenv("MATCH_THRESHOLD", "high")

	cfg := Load()

	if cfg.BulkWorkers != 20 {
		t.Fatalf("BulkWorkers = %d, want default 20", cfg.BulkWorkers)
	}
	if cfg.MatchThreshold != 0.6 {
		t.Fatalf("MatchThreshold = %v, want default 0.6", cfg.MatchThreshold)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("api_port: \"7070\"\nmatch_threshold: 0.8\nbulk_workers: 4\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()

	if cfg.APIPort != "7070" {
		t.Fatalf("APIPort = %q, want 7070", cfg.APIPort)
	}
	if cfg.MatchThreshold != 0.8 {
		t.Fatalf("MatchThreshold = %v, want 0.8", cfg.MatchThreshold)
	}
	if cfg.BulkWorkers != 4 {
		t.Fatalf("BulkWorkers = %d, want 4", cfg.BulkWorkers)
	}
	// Unset keys keep their defaults.
	if cfg.DueSoonWindowDays != 30 {
		t.Fatalf("DueSoonWindowDays = %d, want 30", cfg.DueSoonWindowDays)
	}
}

func TestLoadEnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_port: \"7070\"\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "6060")

	cfg := Load()

	if cfg.APIPort != "6060" {
		t.Fatalf("APIPort = %q, want env override 6060", cfg.APIPort)
	}
}

func TestLoadMissingConfigFileIgnored(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort = %q, want default 8080", cfg.APIPort)
	}
}
