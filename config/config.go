// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/tier1"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	DataDir        string
	ReloadInterval time.Duration
	RequestTimeout time.Duration

	Fetch fetcher.Config

	BatchConcurrency int
	BatchMaxURLs     int
	APIRateLimit     float64

	GeminiAPIKey string
	GeminiModel  string
	Tier1Timeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env files (default ".env") when present, then the
// environment. Values that fail to parse keep their default; the returned
// error lists them and is not fatal.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)

	var errs []error
	fetch := fetcher.DefaultConfig()

	cfg := Config{
		Port:           getenv("PORT", "8080"),
		DataDir:        getenv("DATA_DIR", "data"),
		ReloadInterval: getenvDuration("RELOAD_INTERVAL", 5*time.Minute, &errs),
		RequestTimeout: getenvDuration("REQUEST_TIMEOUT", 15*time.Second, &errs),

		Fetch: fetcher.Config{
			ConnectTimeout: getenvDuration("FETCH_CONNECT_TIMEOUT", fetch.ConnectTimeout, &errs),
			TLSTimeout:     getenvDuration("FETCH_TLS_TIMEOUT", fetch.TLSTimeout, &errs),
			ReadTimeout:    getenvDuration("FETCH_READ_TIMEOUT", fetch.ReadTimeout, &errs),
			TotalTimeout:   getenvDuration("FETCH_TOTAL_TIMEOUT", fetch.TotalTimeout, &errs),
			MaxRedirects:   getenvInt("FETCH_MAX_REDIRECTS", fetch.MaxRedirects, &errs),
			MaxBodyBytes:   int64(getenvInt("FETCH_MAX_BODY_BYTES", int(fetch.MaxBodyBytes), &errs)),
			UserAgent:      getenv("FETCH_USER_AGENT", fetch.UserAgent),
			RatePerSecond:  getenvFloat("FETCH_RATE_LIMIT", 0, &errs),
		},

		BatchConcurrency: getenvInt("BATCH_CONCURRENCY", 4, &errs),
		BatchMaxURLs:     getenvInt("BATCH_MAX_URLS", 50, &errs),
		APIRateLimit:     getenvFloat("API_RATE_LIMIT", 0, &errs),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", tier1.DefaultGeminiModel),
		Tier1Timeout: getenvDuration("TIER1_TIMEOUT", 8*time.Second, &errs),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),
	}
	return cfg, errors.Join(errs...)
}

// Tier1Enabled reports whether a Gemini key is configured.
func (c Config) Tier1Enabled() bool {
	return c.GeminiAPIKey != ""
}

// NewLogger builds the process logger. An unknown level falls back to info.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || out < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q, using %d", key, v, def))
		return def
	}
	return out
}

func getenvFloat(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || out < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q, using %g", key, v, def))
		return def
	}
	return out
}

// getenvDuration accepts Go durations ("5s", "2m") or plain seconds.
func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	out, err := time.ParseDuration(v)
	if err != nil || out < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q, using %s", key, v, def))
		return def
	}
	return out
}
