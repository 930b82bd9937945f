package aggregator

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// FormatPercent renders a 0-100 ratio with one decimal place
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

type insightRule func(s types.Summary) (string, bool)

// insightRules run once each, in this order, over a completed summary
var insightRules = []insightRule{
	topStateInsight,
	topRegionInsight,
	lowestAbandonQueueInsight,
	highestAbandonQueueInsight,
	mostAbandonedStateInsight,
	bestOperatorInsight,
	busiestDayInsight,
}

// GenerateInsights derives the human-readable insight list from s. An
// empty summary yields an empty list.
func GenerateInsights(s types.Summary) []string {
	insights := []string{}
	if s.Totals.TotalCalls == 0 {
		return insights
	}
	for _, rule := range insightRules {
		if text, ok := rule(s); ok {
			insights = append(insights, text)
		}
	}
	return insights
}

func identifiedStates(s types.Summary) []types.StateAggregate {
	var out []types.StateAggregate
	for _, st := range s.ByState {
		if st.Key != types.UnidentifiedState && st.TotalCalls > 0 {
			out = append(out, st)
		}
	}
	return out
}

func topStateInsight(s types.Summary) (string, bool) {
	states := identifiedStates(s)
	if len(states) == 0 {
		return "", false
	}
	top := states[0]
	share := types.Percent(top.TotalCalls, s.Totals.TotalCalls)
	return fmt.Sprintf("State %s holds %s of total calls (%d of %d)",
		top.Key, FormatPercent(share), top.TotalCalls, s.Totals.TotalCalls), true
}

func topRegionInsight(s types.Summary) (string, bool) {
	volume := make(map[string]int)
	for _, st := range identifiedStates(s) {
		if st.Region == types.UnknownRegion {
			continue
		}
		volume[st.Region] += st.TotalCalls
	}
	if len(volume) == 0 {
		return "", false
	}

	regions := make([]string, 0, len(volume))
	for r := range volume {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool {
		if volume[regions[i]] != volume[regions[j]] {
			return volume[regions[i]] > volume[regions[j]]
		}
		return regions[i] < regions[j]
	})

	top := regions[0]
	share := types.Percent(volume[top], s.Totals.TotalCalls)
	return fmt.Sprintf("Region %s concentrates %s of call volume", top, FormatPercent(share)), true
}

// queuesByAbandonRate orders queues with traffic by abandonment rate
// ascending; ties go to the busier queue, then the name
func queuesByAbandonRate(s types.Summary) []types.Aggregate {
	var queues []types.Aggregate
	for _, q := range s.ByQueue {
		if q.TotalCalls > 0 {
			queues = append(queues, q)
		}
	}
	sort.SliceStable(queues, func(i, j int) bool {
		ri, rj := queues[i].AbandonRate(), queues[j].AbandonRate()
		if ri != rj {
			return ri < rj
		}
		if queues[i].TotalCalls != queues[j].TotalCalls {
			return queues[i].TotalCalls > queues[j].TotalCalls
		}
		return queues[i].Key < queues[j].Key
	})
	return queues
}

func lowestAbandonQueueInsight(s types.Summary) (string, bool) {
	queues := queuesByAbandonRate(s)
	if len(queues) == 0 {
		return "", false
	}
	best := queues[0]
	return fmt.Sprintf("Queue with lowest abandonment rate is %s at %s",
		best.Key, FormatPercent(best.AbandonRate())), true
}

func highestAbandonQueueInsight(s types.Summary) (string, bool) {
	queues := queuesByAbandonRate(s)
	if len(queues) < 2 {
		return "", false
	}
	worst := queues[len(queues)-1]
	if worst.Abandoned == 0 {
		return "", false
	}
	return fmt.Sprintf("Queue with highest abandonment rate is %s at %s",
		worst.Key, FormatPercent(worst.AbandonRate())), true
}

func mostAbandonedStateInsight(s types.Summary) (string, bool) {
	var worst *types.StateAggregate
	for _, st := range identifiedStates(s) {
		st := st
		if st.Abandoned == 0 {
			continue
		}
		if worst == nil || st.Abandoned > worst.Abandoned ||
			(st.Abandoned == worst.Abandoned && st.Key < worst.Key) {
			worst = &st
		}
	}
	if worst == nil {
		return "", false
	}
	return fmt.Sprintf("State with highest absolute abandonment count is %s (%d abandoned calls)",
		worst.Key, worst.Abandoned), true
}

func bestOperatorInsight(s types.Summary) (string, bool) {
	if len(s.ByOperator) == 0 {
		return "", false
	}
	best := s.ByOperator[0]
	return fmt.Sprintf("Operator %s leads with a %s answer rate over %d calls",
		best.Key, FormatPercent(best.AnswerRate), best.TotalCalls), true
}

func busiestDayInsight(s types.Summary) (string, bool) {
	var known []types.Aggregate
	for _, d := range s.ByDay {
		if d.Key != types.UnknownDay {
			known = append(known, d)
		}
	}
	if len(known) < 2 {
		return "", false
	}
	busiest := sortByVolume(append([]types.Aggregate(nil), known...))[0]
	return fmt.Sprintf("Busiest day was %s with %d calls", busiest.Key, busiest.TotalCalls), true
}
