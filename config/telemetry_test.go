package config

import "testing"

func TestTelemetryConfigDefaults(t *testing.T) {
	cfg := TelemetryConfig{}
	if cfg.Interval() != 1 {
		t.Fatalf("expected default interval 1, got %d", cfg.Interval())
	}
	if cfg.Stale() != 0 {
		t.Fatalf("expected stale check disabled, got %d", cfg.Stale())
	}
}

func TestTelemetryConfigValues(t *testing.T) {
	cfg := TelemetryConfig{IntervalSeconds: 5, StaleSeconds: 30}
	if cfg.Interval() != 5 {
		t.Fatalf("expected interval 5, got %d", cfg.Interval())
	}
	if cfg.Stale() != 30 {
		t.Fatalf("expected stale 30, got %d", cfg.Stale())
	}
	if (TelemetryConfig{StaleSeconds: -1}).Stale() != 0 {
		t.Fatalf("negative stale should disable the check")
	}
}
