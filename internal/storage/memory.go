package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// MemoryStore keeps everything in process memory. It backs STORE_MODE=memory
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    []types.QueueMetricRow
	backups []types.BackupRow
	audit   []types.AuditEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) SaveQueueMetrics(ctx context.Context, rows []types.QueueMetricRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows = append(s.rows, rows...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListQueueMetrics(ctx context.Context, period string) ([]types.QueueMetricRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.QueueMetricRow, 0, len(s.rows))
	for _, row := range s.rows {
		if period == "" || row.Period == period {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) BackupAndTruncate(ctx context.Context) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	backupID := NewBackupID(now)
	for _, row := range s.rows {
		s.backups = append(s.backups, types.BackupRow{BackupID: backupID, BackedUpAt: now, QueueMetricRow: row})
	}
	n := len(s.rows)
	s.rows = nil
	return backupID, n, nil
}

// Backups returns every backed-up row
func (s *MemoryStore) Backups() []types.BackupRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.BackupRow(nil), s.backups...)
}

func (s *MemoryStore) SaveAuditEntry(ctx context.Context, entry types.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListAuditEntries(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := append([]types.AuditEntry(nil), s.audit...)
	s.mu.RUnlock()

	sortAuditEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// sortAuditEntries orders newest first
func sortAuditEntries(entries []types.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].EntryID > entries[j].EntryID
	})
}
