package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Mode selects the storage backend
type Mode string

const (
	ModeNone        Mode = "none"
	ModeMemory      Mode = "memory"
	ModeDynamoLocal Mode = "dynamo-local"
	ModeDynamoAWS   Mode = "dynamo-aws"
	ModePostgres    Mode = "postgres"
)

// Config holds storage configuration
type Config struct {
	Mode         Mode
	Endpoint     string // dynamo-local only
	Region       string
	MetricsTable string
	BackupTable  string
	AuditTable   string
	PostgresURL  string
}

// LoadConfig loads storage config from environment
func LoadConfig() Config {
	mode := Mode(getEnv("STORE_MODE", string(ModeNone)))
	switch mode {
	case ModeMemory, ModeDynamoLocal, ModeDynamoAWS, ModePostgres:
	default:
		mode = ModeNone
	}

	return Config{
		Mode:         mode,
		Endpoint:     getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:       getEnv("DYNAMO_REGION", "sa-east-1"),
		MetricsTable: getEnv("DYNAMO_METRICS_TABLE", "callreport-queue-metrics"),
		BackupTable:  getEnv("DYNAMO_BACKUP_TABLE", "callreport-queue-metrics-backup"),
		AuditTable:   getEnv("DYNAMO_AUDIT_TABLE", "callreport-audit-log"),
		PostgresURL:  getEnv("POSTGRES_URL", ""),
	}
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "storage").Logger()

	switch cfg.Mode {
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	case ModePostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("STORE_MODE=postgres requires POSTGRES_URL")
		}
		return NewPostgresStore(ctx, cfg.PostgresURL, logger)
	case ModeMemory:
		logger.Info().Msg("using in-memory store")
		return NewMemoryStore(), nil
	default:
		logger.Info().Msg("persistence disabled (STORE_MODE=none)")
		return NewNoopStore(), nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
