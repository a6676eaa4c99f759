package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/croftlab/site-weather-etl/internal/domain"
)

// FetchConfig holds the stage-1 settings, populated from environment
// variables.
type FetchConfig struct {
	RosterPath string
	DailyPath  string
	ReportPath string

	BaseURL         string
	Variables       []domain.Variable
	Workers         int
	RequestTimeout  time.Duration
	RetryMaxElapsed time.Duration
	RateLimit       float64 // API requests per second across all workers
	RateBurst       int

	// CachePath enables the SQLite fetch cache when non-empty.
	CachePath string

	// KafkaBrokers enables the observation sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// MetricsAddr enables the metrics/health listener when non-empty.
	MetricsAddr string

	LogLevel  string
	LogFormat string
}

// FeaturesConfig holds the stage-2 settings.
type FeaturesConfig struct {
	DailyPath  string
	WidePath   string
	XLSXPath   string // "" disables the XLSX rendering
	ReportPath string

	LogLevel  string
	LogFormat string
}

// LoadFetch reads the stage-1 configuration, applying defaults where unset.
func LoadFetch() (*FetchConfig, error) {
	workers, err := envInt("FETCH_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	retryMax, err := envDuration("FETCH_RETRY_MAX_ELAPSED", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envFloat("FETCH_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	rateBurst, err := envInt("FETCH_RATE_BURST", 5)
	if err != nil {
		return nil, err
	}
	vars, err := parseVariables(envOrDefault("WEATHER_VARS", "dayl,prcp,srad,tmax,tmin,vp"))
	if err != nil {
		return nil, err
	}

	cfg := &FetchConfig{
		RosterPath: envOrDefault("ROSTER_PATH", "data/roster.csv"),
		DailyPath:  envOrDefault("DAILY_DATASET_PATH", "data/daily_weather.csv"),
		ReportPath: envOrDefault("FETCH_REPORT_PATH", "data/fetch_report.json"),

		BaseURL:         envOrDefault("WEATHER_API_URL", "https://daymet.ornl.gov/single-pixel/api/data"),
		Variables:       vars,
		Workers:         workers,
		RequestTimeout:  timeout,
		RetryMaxElapsed: retryMax,
		RateLimit:       rateLimit,
		RateBurst:       rateBurst,

		CachePath: os.Getenv("CACHE_PATH"),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "daily-weather-observations"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.RosterPath == "" {
		return nil, fmt.Errorf("ROSTER_PATH is required")
	}
	if cfg.DailyPath == "" {
		return nil, fmt.Errorf("DAILY_DATASET_PATH is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("WEATHER_API_URL is required")
	}
	if cfg.Workers < 1 || cfg.Workers > 64 {
		return nil, fmt.Errorf("FETCH_WORKERS must be between 1 and 64, got %d", cfg.Workers)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if cfg.RetryMaxElapsed <= 0 {
		return nil, fmt.Errorf("FETCH_RETRY_MAX_ELAPSED must be positive")
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("FETCH_RATE_LIMIT must be positive")
	}
	if cfg.RateBurst < 1 {
		return nil, fmt.Errorf("FETCH_RATE_BURST must be at least 1")
	}

	return cfg, nil
}

// LoadFeatures reads the stage-2 configuration, applying defaults where
// unset.
func LoadFeatures() (*FeaturesConfig, error) {
	cfg := &FeaturesConfig{
		DailyPath:  envOrDefault("DAILY_DATASET_PATH", "data/daily_weather.csv"),
		WidePath:   envOrDefault("WIDE_TABLE_PATH", "data/monthly_features.csv"),
		XLSXPath:   os.Getenv("XLSX_PATH"),
		ReportPath: envOrDefault("FEATURES_REPORT_PATH", "data/features_report.json"),
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
		LogFormat:  envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.DailyPath == "" {
		return nil, fmt.Errorf("DAILY_DATASET_PATH is required")
	}
	if cfg.WidePath == "" {
		return nil, fmt.Errorf("WIDE_TABLE_PATH is required")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, s)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, s)
	}
	return d, nil
}

// parseList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseVariables(s string) ([]domain.Variable, error) {
	names := parseList(s)
	if len(names) == 0 {
		return nil, fmt.Errorf("WEATHER_VARS must name at least one variable")
	}
	vars := make([]domain.Variable, 0, len(names))
	for _, name := range names {
		v, err := domain.ParseVariable(name)
		if err != nil {
			return nil, fmt.Errorf("WEATHER_VARS: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, nil
}
