package aggregator

import (
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// PhonePlaceholder stands in for rows without a phone number
const PhonePlaceholder = "-"

// PeriodLayout renders the default period of an upload without one
const PeriodLayout = "2006-01"

// DefaultPeriod is the month of t in UTC. Period is a store partition key
// and must never be empty.
func DefaultPeriod(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

type rowKey struct {
	queue, period, state, phone string
}

type rowAccumulator struct {
	row              types.QueueMetricRow
	durationSum      float64
	durationQuantity int
}

// QueueRows flattens records into the per-queue rows the store persists,
// one per queue, period, state and phone. Total is answered plus abandoned;
// rows where both are zero are omitted. Records without a period use
// fallbackPeriod, or the month of createdAt when that is empty too. Row IDs
// derive from uploadID and the row position.
func QueueRows(records []types.CallRecord, uploadID, fallbackPeriod string, createdAt time.Time) []types.QueueMetricRow {
	if fallbackPeriod == "" {
		fallbackPeriod = DefaultPeriod(createdAt)
	}
	var order []rowKey
	groups := make(map[rowKey]*rowAccumulator)

	for _, rec := range records {
		period := rec.Period
		if period == "" {
			period = fallbackPeriod
		}
		phone := rec.Phone
		if phone == "" {
			phone = PhonePlaceholder
		}
		key := rowKey{queue: rec.Queue, period: period, state: stateKey(rec.State), phone: phone}

		acc, ok := groups[key]
		if !ok {
			acc = &rowAccumulator{row: types.QueueMetricRow{
				Period:    key.period,
				UploadID:  uploadID,
				Queue:     key.queue,
				State:     key.state,
				Phone:     key.phone,
				CreatedAt: createdAt,
			}}
			groups[key] = acc
			order = append(order, key)
		}

		switch rec.Status {
		case types.StatusAnswered:
			acc.row.Answered += rec.Quantity
		case types.StatusAbandoned:
			acc.row.Abandoned += rec.Quantity
		}
		if rec.DurationSeconds > 0 && rec.Quantity > 0 {
			acc.durationSum += rec.DurationSeconds * float64(rec.Quantity)
			acc.durationQuantity += rec.Quantity
		}
	}

	rows := make([]types.QueueMetricRow, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		row := acc.row
		row.Total = row.Answered + row.Abandoned
		if row.Total == 0 {
			continue
		}
		row.AnswerRate = types.Percent(row.Answered, row.Total)
		if acc.durationQuantity > 0 {
			row.AvgDuration = acc.durationSum / float64(acc.durationQuantity)
		}
		row.RowID = fmt.Sprintf("%s#%04d", uploadID, len(rows))
		rows = append(rows, row)
	}
	return rows
}

// RecordsFromRows expands stored rows back into answered and abandoned
// records so stored data can be re-aggregated from scratch
func RecordsFromRows(rows []types.QueueMetricRow) []types.CallRecord {
	var records []types.CallRecord
	for _, row := range rows {
		phone := row.Phone
		if phone == PhonePlaceholder {
			phone = ""
		}
		base := types.CallRecord{
			Queue:    row.Queue,
			State:    row.State,
			Operator: types.UnidentifiedOperator,
			Phone:    phone,
			Period:   row.Period,
		}
		if row.Answered > 0 {
			rec := base
			rec.Status = types.StatusAnswered
			rec.Quantity = row.Answered
			rec.DurationSeconds = row.AvgDuration
			records = append(records, rec)
		}
		if row.Abandoned > 0 {
			rec := base
			rec.Status = types.StatusAbandoned
			rec.Quantity = row.Abandoned
			records = append(records, rec)
		}
	}
	return records
}
