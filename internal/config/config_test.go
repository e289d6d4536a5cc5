package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolMaxConcurrent != 4 {
		t.Fatalf("expected default pool size 4, got %d", cfg.PoolMaxConcurrent)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr :8080, got %q", cfg.HTTPAddr)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	if err != nil {
		t.Fatalf("expected missing config file to fall back to defaults, got %v", err)
	}
}

func TestConfigYAMLRoundTrips(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}

	var decoded Config
	if err := yaml.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal rendered yaml: %v", err)
	}
	if decoded.HTTPAddr != cfg.HTTPAddr || decoded.PoolMaxConcurrent != cfg.PoolMaxConcurrent {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, cfg)
	}
}
