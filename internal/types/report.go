package types

import (
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
)

// CallStatus classifies the outcome of a call
type CallStatus string

const (
	StatusAnswered    CallStatus = "answered"
	StatusAbandoned   CallStatus = "abandoned"
	StatusTransferred CallStatus = "transferred"
	StatusUnknown     CallStatus = "unknown"
)

// UnidentifiedOperator labels records with no operator column value
const UnidentifiedOperator = "Não identificado"

// UnidentifiedState labels records with no state column value
const UnidentifiedState = "Não identificado"

// UnknownRegion is the region of states missing from the region table
const UnknownRegion = "Unknown"

// UnknownDay buckets records with no usable timestamp
const UnknownDay = "Unknown"

// CallRecord is one normalized call, or one pre-summarized count of calls
// sharing a status. Records are built once and never mutated.
type CallRecord struct {
	Queue           string     `json:"queue"`
	Status          CallStatus `json:"status"`
	Quantity        int        `json:"quantity"`
	State           string     `json:"state"`
	Operator        string     `json:"operator"`
	Phone           string     `json:"phone"`
	Period          string     `json:"period"`
	StartedAt       sheet.Cell `json:"-"`
	AnsweredAt      sheet.Cell `json:"-"`
	EndedAt         sheet.Cell `json:"-"`
	DurationSeconds float64    `json:"durationSeconds"` // 0 when unknown
}

// Aggregate accumulates call counts for one key. Transferred and unknown
// calls count toward TotalCalls only, so Answered+Abandoned may be less
// than TotalCalls.
type Aggregate struct {
	Key        string  `json:"key"`
	TotalCalls int     `json:"totalCalls"`
	Answered   int     `json:"answered"`
	Abandoned  int     `json:"abandoned"`
	AnswerRate float64 `json:"answerRate"` // 0-100, full precision
}

// AbandonRate returns abandoned calls as a percentage of total calls
func (a Aggregate) AbandonRate() float64 {
	return Percent(a.Abandoned, a.TotalCalls)
}

// StateAggregate is an Aggregate for a state annotated with its region
type StateAggregate struct {
	Aggregate
	Region string `json:"region"`
}

// Summary is the complete result of one aggregation run
type Summary struct {
	Totals     Aggregate        `json:"totals"`
	ByQueue    []Aggregate      `json:"byQueue"`
	ByOperator []Aggregate      `json:"byOperator"`
	ByState    []StateAggregate `json:"byState"`
	ByDay      []Aggregate      `json:"byDay"`
	Insights   []string         `json:"insights"`
}

// QueueMetricRow is the flat per-queue row persisted by the store
type QueueMetricRow struct {
	RowID       string    `json:"rowId" dynamodbav:"RowID"`   // sort key
	Period      string    `json:"period" dynamodbav:"Period"` // partition key
	UploadID    string    `json:"uploadId" dynamodbav:"UploadID"`
	Queue       string    `json:"queue" dynamodbav:"Queue"`
	State       string    `json:"state" dynamodbav:"State"`
	Phone       string    `json:"phone" dynamodbav:"Phone"`
	Answered    int       `json:"answered" dynamodbav:"Answered"`
	Abandoned   int       `json:"abandoned" dynamodbav:"Abandoned"`
	Total       int       `json:"total" dynamodbav:"Total"`             // answered + abandoned
	AvgDuration float64   `json:"avgDuration" dynamodbav:"AvgDuration"` // seconds, 0 if unknown
	AnswerRate  float64   `json:"answerRate" dynamodbav:"AnswerRate"`   // 0-100%
	CreatedAt   time.Time `json:"createdAt" dynamodbav:"CreatedAt"`
}

// Percent returns part/total*100, or 0 when total is not positive
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// BackupRow is a QueueMetricRow copied aside before a wipe
type BackupRow struct {
	BackupID   string    `json:"backupId" dynamodbav:"BackupID"` // partition key
	BackedUpAt time.Time `json:"backedUpAt" dynamodbav:"BackedUpAt"`
	QueueMetricRow
}

// UploadResult is returned to the uploader and cached for later lookup
type UploadResult struct {
	UploadID    string           `json:"uploadId"`
	FileName    string           `json:"fileName"`
	Period      string           `json:"period"`
	Format      string           `json:"format"`
	Layout      string           `json:"layout"`
	RowsRead    int              `json:"rowsRead"`
	RowsSkipped int              `json:"rowsSkipped"`
	Records     int              `json:"records"`
	Summary     Summary          `json:"summary"`
	Alerts      []QueueAlert     `json:"alerts"`
	Rows        []QueueMetricRow `json:"rows"`
	Persisted   bool             `json:"persisted"`
	ReceivedAt  time.Time        `json:"receivedAt"`
}
