package ingestion

import "time"

// Recorder receives pipeline observations (metrics backends implement it)
type Recorder interface {
	RecordIngestion(format, outcome string, duration time.Duration)
	RecordRows(records, skipped int)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngestion(string, string, time.Duration) {}
func (nopRecorder) RecordRows(int, int)                           {}
