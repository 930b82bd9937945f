package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS queue_metrics (
	row_id       TEXT PRIMARY KEY,
	period       TEXT NOT NULL,
	upload_id    TEXT NOT NULL,
	queue        TEXT NOT NULL,
	state        TEXT NOT NULL,
	phone        TEXT NOT NULL,
	answered     INTEGER NOT NULL,
	abandoned    INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	avg_duration DOUBLE PRECISION NOT NULL,
	answer_rate  DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS queue_metrics_period_idx ON queue_metrics (period);

CREATE TABLE IF NOT EXISTS queue_metrics_backup (
	backup_id    TEXT NOT NULL,
	backed_up_at TIMESTAMPTZ NOT NULL,
	row_id       TEXT NOT NULL,
	period       TEXT NOT NULL,
	upload_id    TEXT NOT NULL,
	queue        TEXT NOT NULL,
	state        TEXT NOT NULL,
	phone        TEXT NOT NULL,
	answered     INTEGER NOT NULL,
	abandoned    INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	avg_duration DOUBLE PRECISION NOT NULL,
	answer_rate  DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (backup_id, row_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	entry_id  TEXT PRIMARY KEY,
	day       TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	actor     TEXT NOT NULL,
	action    TEXT NOT NULL,
	detail    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts DESC);
`

const metricColumns = `row_id, period, upload_id, queue, state, phone, answered, abandoned, total, avg_duration, answer_rate, created_at`

// PostgresStore implements Store on PostgreSQL through a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	now    func() time.Time
}

// NewPostgresStore connects, verifies the connection and applies the schema
func NewPostgresStore(ctx context.Context, url string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info().Msg("PostgreSQL store initialized")
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn in a transaction, committing on success
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveQueueMetrics(ctx context.Context, rows []types.QueueMetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"queue_metrics"},
		[]string{"row_id", "period", "upload_id", "queue", "state", "phone",
			"answered", "abandoned", "total", "avg_duration", "answer_rate", "created_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.RowID, r.Period, r.UploadID, r.Queue, r.State, r.Phone,
				r.Answered, r.Abandoned, r.Total, r.AvgDuration, r.AnswerRate, r.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy queue metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueueMetrics(ctx context.Context, period string) ([]types.QueueMetricRow, error) {
	query := `SELECT ` + metricColumns + ` FROM queue_metrics`
	var args []any
	if period != "" {
		query += ` WHERE period = $1`
		args = append(args, period)
	}
	query += ` ORDER BY created_at, row_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue metrics: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.QueueMetricRow, error) {
		var r types.QueueMetricRow
		err := row.Scan(&r.RowID, &r.Period, &r.UploadID, &r.Queue, &r.State, &r.Phone,
			&r.Answered, &r.Abandoned, &r.Total, &r.AvgDuration, &r.AnswerRate, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue metrics: %w", err)
	}
	return out, nil
}

// BackupAndTruncate copies and deletes in one transaction
func (s *PostgresStore) BackupAndTruncate(ctx context.Context) (string, int, error) {
	now := s.now().UTC()
	backupID := NewBackupID(now)
	var copied int64

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO queue_metrics_backup (backup_id, backed_up_at, `+metricColumns+`)
			 SELECT $1, $2, `+metricColumns+` FROM queue_metrics`,
			backupID, now)
		if err != nil {
			return fmt.Errorf("backup queue metrics: %w", err)
		}
		copied = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM queue_metrics`); err != nil {
			return fmt.Errorf("delete queue metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	s.logger.Info().
		Str("backup_id", backupID).
		Int64("rows", copied).
		Msg("queue metrics backed up and truncated")
	return backupID, int(copied), nil
}

func (s *PostgresStore) SaveAuditEntry(ctx context.Context, entry types.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (entry_id, day, ts, actor, action, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.EntryID, entry.Day, entry.Timestamp, entry.Actor, string(entry.Action), entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	query := `SELECT entry_id, day, ts, actor, action, detail FROM audit_log ORDER BY ts DESC, entry_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.AuditEntry, error) {
		var e types.AuditEntry
		var action string
		err := row.Scan(&e.EntryID, &e.Day, &e.Timestamp, &e.Actor, &action, &e.Detail)
		e.Action = types.AuditAction(action)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	return entries, nil
}
