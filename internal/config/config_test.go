package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Dispatch.RequestTTL != 15*time.Minute {
		t.Errorf("expected 15m request TTL, got %v", cfg.Dispatch.RequestTTL)
	}
	if cfg.Dispatch.DefaultRadiusKm != 5 {
		t.Errorf("expected 5 km default radius, got %v", cfg.Dispatch.DefaultRadiusKm)
	}
	if cfg.Dispatch.MaxCandidates != 20 {
		t.Errorf("expected 20 max candidates, got %d", cfg.Dispatch.MaxCandidates)
	}
	if cfg.Dispatch.LocationStaleAfter != 0 {
		t.Errorf("expected staleness filter disabled by default, got %v", cfg.Dispatch.LocationStaleAfter)
	}
	if cfg.Events.KafkaBrokers != nil {
		t.Errorf("expected no kafka brokers by default, got %v", cfg.Events.KafkaBrokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DISPATCH_REQUEST_TTL", "2m")
	t.Setenv("DISPATCH_DEFAULT_RADIUS_KM", "7.5")
	t.Setenv("DISPATCH_LOCATION_STALE_AFTER", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	if cfg.Dispatch.RequestTTL != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.Dispatch.RequestTTL)
	}
	if cfg.Dispatch.DefaultRadiusKm != 7.5 {
		t.Errorf("expected 7.5, got %v", cfg.Dispatch.DefaultRadiusKm)
	}
	if cfg.Dispatch.LocationStaleAfter != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Dispatch.LocationStaleAfter)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected invalid int to fall back to default, got %d", cfg.Redis.DB)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Load()
	cfg.Dispatch.RequestTTL = 0
	cfg.Dispatch.MaxCandidates = 0
	cfg.Dispatch.MaxRadiusKm = 1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DISPATCH_REQUEST_TTL", "DISPATCH_MAX_CANDIDATES", "DISPATCH_MAX_RADIUS_KM"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}
