package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargewatch/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"CHARGEWATCH_HTTP_PORT"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"CHARGEWATCH_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"CHARGEWATCH_POSTGRES_MAX_OPEN"`
}

// RedisConfig holds live-state snapshot store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"CHARGEWATCH_REDIS_ADDR"`
	Password string `yaml:"password" env:"CHARGEWATCH_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"CHARGEWATCH_REDIS_DB"`
}

// FeedConfig holds upstream status feed settings.
type FeedConfig struct {
	URL     string        `yaml:"url" env:"CHARGEWATCH_FEED_URL"`
	Timeout time.Duration `yaml:"timeout" env:"CHARGEWATCH_FEED_TIMEOUT"`
}

// TrackerConfig holds session inference policy.
type TrackerConfig struct {
	PollInterval       time.Duration `yaml:"pollInterval" env:"CHARGEWATCH_POLL_INTERVAL"`
	StalenessInterval  time.Duration `yaml:"stalenessInterval" env:"CHARGEWATCH_STALENESS_INTERVAL"`
	StalenessThreshold time.Duration `yaml:"stalenessThreshold" env:"CHARGEWATCH_STALENESS_THRESHOLD"`
	SessionCeiling     time.Duration `yaml:"sessionCeiling" env:"CHARGEWATCH_SESSION_CEILING"`
	MinPowerKW         float64       `yaml:"minPowerKw" env:"CHARGEWATCH_MIN_POWER_KW"`
}

// MQTTConfig holds optional closed-session publication settings. Publication
// is disabled when BrokerURL is empty.
type MQTTConfig struct {
	BrokerURL string `yaml:"brokerUrl" env:"CHARGEWATCH_MQTT_URL"`
	ClientID  string `yaml:"clientId" env:"CHARGEWATCH_MQTT_CLIENT_ID"`
	Topic     string `yaml:"topic" env:"CHARGEWATCH_MQTT_TOPIC"`
}

// Config defines chargewatch configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Feed     FeedConfig     `yaml:"feed"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8086"},
		Feed: FeedConfig{Timeout: 10 * time.Second},
		Tracker: TrackerConfig{
			PollInterval:       30 * time.Second,
			StalenessInterval:  30 * time.Second,
			StalenessThreshold: 2 * time.Minute,
			SessionCeiling:     70 * time.Minute,
			MinPowerKW:         60,
		},
		MQTT: MQTTConfig{
			ClientID: "chargewatch",
			Topic:    "chargewatch/sessions/closed",
		},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Feed.URL) == "" {
		return nil, errors.New("config: feed url required")
	}
	if cfg.Tracker.PollInterval <= 0 {
		return nil, errors.New("config: poll interval must be positive")
	}
	if cfg.Tracker.StalenessThreshold <= cfg.Tracker.PollInterval {
		return nil, errors.New("config: staleness threshold must exceed poll interval")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8086"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// MQTTEnabled reports whether closed-session publication is configured.
func (c *Config) MQTTEnabled() bool {
	return strings.TrimSpace(c.MQTT.BrokerURL) != ""
}
