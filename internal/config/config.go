package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Ingestion
	MaxUploadBytes int64
	QueueNamesFile string

	// Alerts, as abandonment percentages
	AlertAbandonWarn     float64
	AlertAbandonCritical float64
	AlertMinCalls        int

	PasswordMinLength int
	ResultCacheSize   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		QueueNamesFile: getEnv("QUEUE_NAMES_FILE", ""),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	maxUploadMB, err := getPositiveInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	config.MaxUploadBytes = int64(maxUploadMB) << 20

	if config.AlertAbandonWarn, err = getFloat("ALERT_ABANDON_WARN", 10); err != nil {
		return nil, err
	}
	if config.AlertAbandonCritical, err = getFloat("ALERT_ABANDON_CRIT", 20); err != nil {
		return nil, err
	}
	if config.AlertAbandonCritical < config.AlertAbandonWarn {
		return nil, fmt.Errorf("ALERT_ABANDON_CRIT (%v) must not be below ALERT_ABANDON_WARN (%v)",
			config.AlertAbandonCritical, config.AlertAbandonWarn)
	}
	if config.AlertMinCalls, err = getPositiveInt("ALERT_MIN_CALLS", 10); err != nil {
		return nil, err
	}

	if config.PasswordMinLength, err = getPositiveInt("PASSWORD_MIN_LENGTH", 8); err != nil {
		return nil, err
	}
	if config.ResultCacheSize, err = getPositiveInt("RESULT_CACHE_SIZE", 20); err != nil {
		return nil, err
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid %s: must be between 0 and 100, got %v", key, v)
	}
	return v, nil
}
