package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SinkHTTP   = "http"
	SinkMQTT   = "mqtt"
	SinkSQLite = "sqlite"

	DefaultAPIBaseURL = "https://api.logreposit.com/v1/"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	DeviceToken string
	APIBaseURL  string

	// UpdateInterval > 0 selects batched mode; zero publishes immediately.
	UpdateInterval time.Duration
	LocationsFile  string

	PublishSink    string
	PublishTimeout time.Duration

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	SQLitePath string
	SQLiteDSN  string
}

// Batched reports whether readings are collected and flushed periodically.
func (c Config) Batched() bool {
	return c.UpdateInterval > 0
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	sink := strings.ToLower(env("PUBLISH_SINK", SinkHTTP))
	switch sink {
	case SinkHTTP, SinkMQTT, SinkSQLite:
	default:
		return Config{}, fmt.Errorf("invalid PUBLISH_SINK %q (allowed: http, mqtt, sqlite)", sink)
	}

	deviceToken := strings.TrimSpace(os.Getenv("DEVICE_TOKEN"))
	if deviceToken == "" && sink == SinkHTTP {
		return Config{}, fmt.Errorf("DEVICE_TOKEN is required: set the logreposit device token")
	}

	apiBaseURL := env("API_BASE_URL", DefaultAPIBaseURL)
	if !strings.HasSuffix(apiBaseURL, "/") {
		apiBaseURL += "/"
	}

	updateInterval, err := parseUpdateInterval(strings.TrimSpace(os.Getenv("UPDATE_INTERVAL")))
	if err != nil {
		return Config{}, err
	}

	publishTimeoutStr := env("PUBLISH_TIMEOUT", "10s")
	publishTimeout, err := time.ParseDuration(publishTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid PUBLISH_TIMEOUT %q: %w", publishTimeoutStr, err)
	}
	if publishTimeout <= 0 {
		return Config{}, fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %v", publishTimeout)
	}

	mqttPortStr := env("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		DeviceToken:     deviceToken,
		APIBaseURL:      apiBaseURL,
		UpdateInterval:  updateInterval,
		LocationsFile:   env("LOCATIONS_FILE", "config.json"),
		PublishSink:     sink,
		PublishTimeout:  publishTimeout,
		MQTTBroker:      env("MQTT_BROKER", "localhost"),
		MQTTPort:        mqttPort,
		MQTTClientID:    env("MQTT_CLIENT_ID", "lacrosse-relay"),
		MQTTTopicPrefix: strings.TrimSuffix(env("MQTT_TOPIC_PREFIX", "lacrosse"), "/"),
		SQLitePath:      env("SQLITE_PATH", "data/relay.db"),
		SQLiteDSN:       strings.TrimSpace(os.Getenv("SQLITE_DSN")),
	}, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// parseUpdateInterval reads whole seconds; empty means immediate mode.
func parseUpdateInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid UPDATE_INTERVAL %q (whole seconds): %w", s, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("UPDATE_INTERVAL must be positive, got %d", secs)
	}
	return time.Duration(secs) * time.Second, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
