package types

// AlertSeverity represents the severity of a queue alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// QueueAlert flags a queue whose abandonment exceeded a threshold
type QueueAlert struct {
	Queue       string        `json:"queue"`
	Rule        string        `json:"rule"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	AbandonRate float64       `json:"abandonRate"`
}
