package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CHARGEWATCH_POSTGRES_DSN", "postgres://localhost/chargewatch")
	t.Setenv("CHARGEWATCH_REDIS_ADDR", "localhost:6379")
	t.Setenv("CHARGEWATCH_FEED_URL", "http://feed.local/status")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracker.PollInterval != 30*time.Second {
		t.Errorf("unexpected poll interval %v", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.StalenessThreshold != 2*time.Minute {
		t.Errorf("unexpected staleness threshold %v", cfg.Tracker.StalenessThreshold)
	}
	if cfg.Tracker.SessionCeiling != 70*time.Minute {
		t.Errorf("unexpected session ceiling %v", cfg.Tracker.SessionCeiling)
	}
	if cfg.Tracker.MinPowerKW != 60 {
		t.Errorf("unexpected min power %v", cfg.Tracker.MinPowerKW)
	}
	if cfg.HTTPAddress() != ":8086" {
		t.Errorf("unexpected http address %q", cfg.HTTPAddress())
	}
	if cfg.MQTTEnabled() {
		t.Error("mqtt must be disabled without a broker url")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CHARGEWATCH_POLL_INTERVAL", "10s")
	t.Setenv("CHARGEWATCH_STALENESS_THRESHOLD", "45s")
	t.Setenv("CHARGEWATCH_MIN_POWER_KW", "22")
	t.Setenv("CHARGEWATCH_MQTT_URL", "mqtt://broker.local:1883")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracker.PollInterval != 10*time.Second {
		t.Errorf("poll interval override not applied: %v", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.StalenessThreshold != 45*time.Second {
		t.Errorf("staleness override not applied: %v", cfg.Tracker.StalenessThreshold)
	}
	if cfg.Tracker.MinPowerKW != 22 {
		t.Errorf("min power override not applied: %v", cfg.Tracker.MinPowerKW)
	}
	if !cfg.MQTTEnabled() {
		t.Error("mqtt should be enabled with a broker url")
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("CHARGEWATCH_FEED_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing feed url")
	}
}

func TestLoadRejectsThresholdBelowPollInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("CHARGEWATCH_POLL_INTERVAL", "3m")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when staleness threshold does not exceed poll interval")
	}
}
