package ingestion

import (
	"strings"

	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// NormalizeStats counts what happened to the data rows of a grid
type NormalizeStats struct {
	RowsRead    int `json:"rowsRead"`
	RowsSkipped int `json:"rowsSkipped"`
	Records     int `json:"records"`
}

// ClassifyStatus maps raw status text to a CallStatus. Rules are tried in
// a fixed order and the first match wins: "atend" is Answered,
// "transfer" is Transferred, "abandon" or an empty value is Abandoned.
func ClassifyStatus(raw string) types.CallStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "atend"):
		return types.StatusAnswered
	case strings.Contains(s, "transfer"):
		return types.StatusTransferred
	case s == "" || strings.Contains(s, "abandon"):
		return types.StatusAbandoned
	default:
		return types.StatusUnknown
	}
}

// Normalize converts the rows below the header into call records.
//
// Summary rows yield one Answered and one Abandoned record carrying the
// row counts; per-call rows yield a single record. Rows without a queue,
// summary rows whose counts are both zero and per-call rows with a zero
// quantity are dropped. A grid that yields no record at all fails with
// EmptyDatasetError.
func Normalize(grid sheet.Grid, cols ColumnMap, names *QueueNames) ([]types.CallRecord, NormalizeStats, error) {
	if names == nil {
		names = DefaultQueueNames()
	}

	var (
		records []types.CallRecord
		stats   NormalizeStats
	)

	for r := cols.HeaderRow + 1; r < len(grid); r++ {
		row := grid[r]
		if isBlankRow(row) {
			continue
		}
		stats.RowsRead++

		queue := names.Canonical(cols.Cell(row, FieldQueue).String())
		if queue == "" {
			stats.RowsSkipped++
			continue
		}

		base := types.CallRecord{
			Queue:      queue,
			State:      textOr(cols.Cell(row, FieldState), types.UnidentifiedState),
			Operator:   textOr(cols.Cell(row, FieldOperator), types.UnidentifiedOperator),
			Phone:      SanitizeCell(cols.Cell(row, FieldPhone)),
			Period:     SanitizeCell(cols.Cell(row, FieldPeriod)),
			StartedAt:  sanitizeTimestamp(cols.Cell(row, FieldStartedAt)),
			AnsweredAt: sanitizeTimestamp(cols.Cell(row, FieldAnsweredAt)),
			EndedAt:    sanitizeTimestamp(cols.Cell(row, FieldEndedAt)),
		}
		duration := ParseDuration(cols.Cell(row, FieldDuration))

		var emitted []types.CallRecord
		switch cols.Layout {
		case LayoutSummary:
			emitted = summaryRecords(base, duration,
				ParseCount(cols.Cell(row, FieldAnsweredCount)),
				ParseCount(cols.Cell(row, FieldAbandonedCount)))
		default:
			emitted = perCallRecords(base, duration, row, cols)
		}

		if len(emitted) == 0 {
			stats.RowsSkipped++
			continue
		}
		records = append(records, emitted...)
	}

	stats.Records = len(records)
	if len(records) == 0 {
		return nil, stats, &EmptyDatasetError{RowsRead: stats.RowsRead, RowsSkipped: stats.RowsSkipped}
	}
	return records, stats, nil
}

func summaryRecords(base types.CallRecord, duration float64, answered, abandoned int) []types.CallRecord {
	var out []types.CallRecord
	if answered > 0 {
		rec := base
		rec.Status = types.StatusAnswered
		rec.Quantity = answered
		rec.DurationSeconds = duration
		out = append(out, rec)
	}
	if abandoned > 0 {
		rec := base
		rec.Status = types.StatusAbandoned
		rec.Quantity = abandoned
		out = append(out, rec)
	}
	return out
}

func perCallRecords(base types.CallRecord, duration float64, row []sheet.Cell, cols ColumnMap) []types.CallRecord {
	quantity := 1
	if _, ok := cols.Index(FieldQuantity); ok {
		quantity = ParseCount(cols.Cell(row, FieldQuantity))
	}
	if quantity == 0 {
		return nil
	}

	rec := base
	rec.Status = ClassifyStatus(SanitizeCell(cols.Cell(row, FieldStatus)))
	rec.Quantity = quantity
	rec.DurationSeconds = duration
	return []types.CallRecord{rec}
}

func textOr(c sheet.Cell, fallback string) string {
	if s := SanitizeCell(c); s != "" {
		return s
	}
	return fallback
}

// sanitizeTimestamp keeps numeric serials as numbers and sanitizes text
func sanitizeTimestamp(c sheet.Cell) sheet.Cell {
	if c.Kind() == sheet.KindText {
		return sheet.Text(SanitizeCell(c))
	}
	return c
}

func isBlankRow(row []sheet.Cell) bool {
	for _, c := range row {
		if strings.TrimSpace(c.String()) != "" {
			return false
		}
	}
	return true
}
