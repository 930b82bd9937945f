package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// Report is one summary ready for printing
type Report struct {
	Source  string             `json:"source"`
	Summary types.Summary      `json:"summary"`
	Alerts  []types.QueueAlert `json:"alerts"`
}

// section pairs a dimension name with its aggregates
type section struct {
	name string
	rows []types.Aggregate
}

func sections(s types.Summary) []section {
	states := make([]types.Aggregate, len(s.ByState))
	for i, st := range s.ByState {
		states[i] = st.Aggregate
	}
	return []section{
		{"queue", s.ByQueue},
		{"operator", s.ByOperator},
		{"state", states},
		{"day", s.ByDay},
	}
}

// FormatText returns a human-readable rendering of reports
func FormatText(reports []Report) string {
	var sb strings.Builder

	for i, r := range reports {
		if i > 0 {
			sb.WriteString("\n")
		}
		t := r.Summary.Totals
		sb.WriteString(fmt.Sprintf("== %s ==\n", r.Source))
		sb.WriteString(fmt.Sprintf("total=%d answered=%d abandoned=%d answer_rate=%s\n",
			t.TotalCalls, t.Answered, t.Abandoned, aggregator.FormatPercent(t.AnswerRate)))

		for _, sec := range sections(r.Summary) {
			if len(sec.rows) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("\nby %s:\n", sec.name))
			for _, a := range sec.rows {
				sb.WriteString(fmt.Sprintf("  %-28s total=%-6d answered=%-6d abandoned=%-6d %s\n",
					a.Key, a.TotalCalls, a.Answered, a.Abandoned, aggregator.FormatPercent(a.AnswerRate)))
			}
		}

		if len(r.Alerts) > 0 {
			sb.WriteString("\nalerts:\n")
			for _, a := range r.Alerts {
				sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", a.Severity, a.Queue, a.Message))
			}
		}

		if len(r.Summary.Insights) > 0 {
			sb.WriteString("\ninsights:\n")
			for _, insight := range r.Summary.Insights {
				sb.WriteString(fmt.Sprintf("  * %s\n", insight))
			}
		}
	}

	return sb.String()
}

// FormatJSON returns the indented JSON representation of reports
func FormatJSON(reports []Report) (string, error) {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal reports: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatCSV returns one row per aggregate across every report and dimension
func FormatCSV(reports []Report) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	writer.Write([]string{"Source", "Dimension", "Key", "Total", "Answered", "Abandoned", "Answer Rate"})
	for _, r := range reports {
		writeAggregate(writer, r.Source, "total", r.Summary.Totals)
		for _, sec := range sections(r.Summary) {
			for _, a := range sec.rows {
				writeAggregate(writer, r.Source, sec.name, a)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return sb.String(), nil
}

func writeAggregate(writer *csv.Writer, source, dimension string, a types.Aggregate) {
	writer.Write([]string{
		source,
		dimension,
		a.Key,
		strconv.Itoa(a.TotalCalls),
		strconv.Itoa(a.Answered),
		strconv.Itoa(a.Abandoned),
		strconv.FormatFloat(a.AnswerRate, 'f', 1, 64),
	})
}
