package ingestion

import (
	"errors"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

// Outcome labels for Recorder.RecordIngestion
const (
	OutcomeOK             = "ok"
	OutcomeTooLarge       = "too_large"
	OutcomeDecodeError    = "decode_error"
	OutcomeHeaderNotFound = "header_not_found"
	OutcomeMissingColumn  = "missing_column"
	OutcomeEmptyDataset   = "empty_dataset"
	OutcomeError          = "error"
)

// Result is everything one pipeline run derives from a file
type Result struct {
	Format  sheet.Format       `json:"format"`
	Layout  Layout             `json:"layout"`
	Stats   NormalizeStats     `json:"stats"`
	Records []types.CallRecord `json:"-"`
	Summary types.Summary      `json:"summary"`
}

// Processor runs decode, column mapping, normalization and aggregation
// over one file. It holds no per-run state and is safe for concurrent use.
type Processor struct {
	names    *QueueNames
	maxBytes int64
	recorder Recorder
	logger   zerolog.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(names *QueueNames, maxBytes int64, logger zerolog.Logger) *Processor {
	if names == nil {
		names = DefaultQueueNames()
	}
	if maxBytes <= 0 {
		maxBytes = sheet.MaxPayloadBytes
	}
	return &Processor{
		names:    names,
		maxBytes: maxBytes,
		recorder: nopRecorder{},
		logger:   logger.With().Str("component", "ingestion").Logger(),
	}
}

// SetRecorder sets the metrics recorder
func (p *Processor) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	p.recorder = r
}

// MaxBytes returns the payload size limit
func (p *Processor) MaxBytes() int64 {
	return p.maxBytes
}

// Process runs the whole pipeline. Any stage failure stops the run and no
// partial result is returned.
func (p *Processor) Process(filename string, payload []byte) (*Result, error) {
	start := time.Now()

	grid, format, err := sheet.Decode(filename, payload, p.maxBytes)
	if err != nil {
		return nil, p.fail(filename, string(format), start, err)
	}

	cols, err := MapColumns(grid)
	if err != nil {
		return nil, p.fail(filename, string(format), start, err)
	}

	records, stats, err := Normalize(grid, cols, p.names)
	p.recorder.RecordRows(stats.Records, stats.RowsSkipped)
	if err != nil {
		return nil, p.fail(filename, string(format), start, err)
	}

	summary := aggregator.Aggregate(records)
	elapsed := time.Since(start)
	p.recorder.RecordIngestion(string(format), OutcomeOK, elapsed)

	p.logger.Info().
		Str("file", filename).
		Str("format", string(format)).
		Str("layout", string(cols.Layout)).
		Int("header_row", cols.HeaderRow).
		Int("rows_read", stats.RowsRead).
		Int("rows_skipped", stats.RowsSkipped).
		Int("records", stats.Records).
		Int("total_calls", summary.Totals.TotalCalls).
		Dur("duration", elapsed).
		Msg("file ingested")

	return &Result{
		Format:  format,
		Layout:  cols.Layout,
		Stats:   stats,
		Records: records,
		Summary: summary,
	}, nil
}

func (p *Processor) fail(filename, format string, start time.Time, err error) error {
	outcome := Outcome(err)
	p.recorder.RecordIngestion(format, outcome, time.Since(start))

	p.logger.Warn().
		Err(err).
		Str("file", filename).
		Str("format", format).
		Str("outcome", outcome).
		Msg("file rejected")
	return err
}

// Outcome classifies a pipeline error into a metrics label
func Outcome(err error) string {
	var decodeErr *sheet.DecodeError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, sheet.ErrPayloadTooLarge):
		return OutcomeTooLarge
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.Is(err, ErrHeaderNotFound):
		return OutcomeHeaderNotFound
	case errors.Is(err, ErrMissingColumn):
		return OutcomeMissingColumn
	case errors.Is(err, ErrEmptyDataset):
		return OutcomeEmptyDataset
	default:
		return OutcomeError
	}
}
