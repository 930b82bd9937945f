package alerts

import (
	"fmt"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// Thresholds configures the abandonment alert rules. Rates are 0-100.
type Thresholds struct {
	WarnAbandonRate     float64
	CriticalAbandonRate float64
	MinCalls            int
}

// DefaultThresholds matches the dashboard's traffic-light colours
var DefaultThresholds = Thresholds{
	WarnAbandonRate:     10,
	CriticalAbandonRate: 20,
	MinCalls:            10,
}

// CheckQueueAlerts evaluates alert rules for each queue with enough
// traffic. Queues keep their input order.
func CheckQueueAlerts(queues []types.Aggregate, th Thresholds) []types.QueueAlert {
	var alerts []types.QueueAlert
	for _, q := range queues {
		if q.TotalCalls == 0 || q.TotalCalls < th.MinCalls {
			continue
		}

		rate := q.AbandonRate()
		switch {
		case th.CriticalAbandonRate > 0 && rate >= th.CriticalAbandonRate:
			alerts = append(alerts, types.QueueAlert{
				Queue:       q.Key,
				Rule:        "abandon_rate_critical",
				Severity:    types.SeverityCritical,
				Message:     fmt.Sprintf("%s abandoned (%d of %d)", aggregator.FormatPercent(rate), q.Abandoned, q.TotalCalls),
				AbandonRate: rate,
			})
		case th.WarnAbandonRate > 0 && rate >= th.WarnAbandonRate:
			alerts = append(alerts, types.QueueAlert{
				Queue:       q.Key,
				Rule:        "abandon_rate_high",
				Severity:    types.SeverityWarning,
				Message:     fmt.Sprintf("%s abandoned (%d of %d)", aggregator.FormatPercent(rate), q.Abandoned, q.TotalCalls),
				AbandonRate: rate,
			})
		}
	}
	return alerts
}
