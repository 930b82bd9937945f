package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/google/uuid"
)

// ErrUnavailable is returned by read operations when persistence is disabled
var ErrUnavailable = errors.New("storage disabled")

// Store defines the storage interface
type Store interface {
	// SaveQueueMetrics appends the rows of one upload
	SaveQueueMetrics(ctx context.Context, rows []types.QueueMetricRow) error
	// ListQueueMetrics returns stored rows for period, or every row when
	// period is empty
	ListQueueMetrics(ctx context.Context, period string) ([]types.QueueMetricRow, error)
	// BackupAndTruncate copies every stored row into the backup table and
	// then deletes it. It returns the backup ID and the number of rows.
	BackupAndTruncate(ctx context.Context) (string, int, error)
	SaveAuditEntry(ctx context.Context, entry types.AuditEntry) error
	// ListAuditEntries returns the newest entries first
	ListAuditEntries(ctx context.Context, limit int) ([]types.AuditEntry, error)
}

// NewAuditEntry stamps an audit entry with its day partition and a sortable ID
func NewAuditEntry(actor string, action types.AuditAction, detail string, now time.Time) types.AuditEntry {
	now = now.UTC()
	return types.AuditEntry{
		Day:       now.Format(time.DateOnly),
		EntryID:   fmt.Sprintf("%s#%s", now.Format(time.RFC3339Nano), uuid.NewString()),
		Timestamp: now,
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	}
}

// NewBackupID returns a fresh backup identifier
func NewBackupID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// NoopStore is a no-op implementation when persistence is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveQueueMetrics(_ context.Context, _ []types.QueueMetricRow) error { return nil }
func (s *NoopStore) ListQueueMetrics(_ context.Context, _ string) ([]types.QueueMetricRow, error) {
	return nil, ErrUnavailable
}
func (s *NoopStore) BackupAndTruncate(_ context.Context) (string, int, error) {
	return "", 0, ErrUnavailable
}
func (s *NoopStore) SaveAuditEntry(_ context.Context, _ types.AuditEntry) error { return nil }
func (s *NoopStore) ListAuditEntries(_ context.Context, _ int) ([]types.AuditEntry, error) {
	return nil, ErrUnavailable
}
