// Package config loads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	PublicWSURL        string
	PrivateWSURL       string
	BackendURL         string
	PublicHistoryPath  string
	PrivateHistoryPath string
	IdentityPath       string
	SessionToken       string
	UserID             string
	UserName           string
	HistoryLimit       int
	HistoryDSN         string
	HandshakeTimeout   time.Duration
	ControlAddr        string
	ControlToken       string
	AMQPURL            string
	AMQPExchange       string
	OTLPEndpoint       string
	LogLevel           string
	Environment        string
}

// Load reads envFile (if it exists) and then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Config{}, errors.Wrapf(err, "load %s", envFile)
		}
	}

	cfg := Config{
		PublicWSURL:        getEnv("PUBLIC_WS_URL", ""),
		PrivateWSURL:       getEnv("PRIVATE_WS_URL", ""),
		BackendURL:         strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		PublicHistoryPath:  getEnv("PUBLIC_HISTORY_PATH", "/api/get/messages/public"),
		PrivateHistoryPath: getEnv("PRIVATE_HISTORY_PATH", "/api/get/messages/private"),
		IdentityPath:       getEnv("IDENTITY_PATH", "/auth/check-token-for-private"),
		SessionToken:       getEnv("SESSION_TOKEN", ""),
		UserID:             getEnv("USER_ID", ""),
		UserName:           getEnv("USER_NAME", ""),
		HistoryDSN:         getEnv("HISTORY_DSN", ""),
		ControlAddr:        getEnv("CONTROL_ADDR", "127.0.0.1:8086"),
		ControlToken:       getEnv("CONTROL_TOKEN", ""),
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "chat_client_events"),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Environment:        getEnv("APP_ENV", "dev"),
	}

	var err error
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 100); err != nil {
		return Config{}, err
	}
	if cfg.HandshakeTimeout, err = getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.PublicWSURL == "" {
		return Config{}, errors.New("PUBLIC_WS_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}
