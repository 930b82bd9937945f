package aggregator

import (
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// DayLayout renders day buckets in the dashboard locale (pt-BR)
const DayLayout = "02/01/2006"

// serialEpochOffset is the number of days between the spreadsheet epoch
// (1899-12-30) and the Unix epoch
const serialEpochOffset = 25569

var unixEpoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// DayOf returns the day bucket of a record, using the first populated of
// its start, answer and end timestamps
func DayOf(rec types.CallRecord) string {
	for _, c := range []sheet.Cell{rec.StartedAt, rec.AnsweredAt, rec.EndedAt} {
		if !c.IsEmpty() {
			return DayKey(c)
		}
	}
	return types.UnknownDay
}

// DayKey buckets a timestamp cell by calendar day. Numeric cells are
// spreadsheet date serials; text cells are cut at the first space.
func DayKey(c sheet.Cell) string {
	if v, ok := c.AsNumber(); ok {
		return SerialDate(v).In(time.UTC).Format(DayLayout)
	}
	if s, ok := c.AsText(); ok {
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, ' '); i >= 0 {
			s = s[:i]
		}
		if s != "" {
			return s
		}
	}
	return types.UnknownDay
}

// SerialDate converts a spreadsheet date serial to its calendar date; the
// fractional time of day is discarded
func SerialDate(serial float64) civil.Date {
	return unixEpoch.AddDays(int(math.Floor(serial)) - serialEpochOffset)
}

// sortDays orders parseable day buckets chronologically, then the rest by
// key, with the unknown bucket last
func sortDays(aggs []types.Aggregate) []types.Aggregate {
	parsed := make(map[string]time.Time, len(aggs))
	for _, a := range aggs {
		if t, err := time.Parse(DayLayout, a.Key); err == nil {
			parsed[a.Key] = t
		}
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		ki, kj := aggs[i].Key, aggs[j].Key
		if (ki == types.UnknownDay) != (kj == types.UnknownDay) {
			return kj == types.UnknownDay
		}
		ti, iok := parsed[ki]
		tj, jok := parsed[kj]
		switch {
		case iok && jok:
			return ti.Before(tj)
		case iok != jok:
			return iok
		default:
			return ki < kj
		}
	})
	return aggs
}
