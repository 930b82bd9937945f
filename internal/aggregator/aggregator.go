// Package aggregator rolls call records up per queue, operator, state and
// day, and derives dashboard insights from the rollups.
package aggregator

import (
	"sort"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// TotalsKey is the key of the grand-total aggregate
const TotalsKey = "total"

// accumulator groups records under string keys in first-seen order
type accumulator struct {
	order []string
	byKey map[string]*types.Aggregate
}

func newAccumulator() *accumulator {
	return &accumulator{byKey: make(map[string]*types.Aggregate)}
}

func (a *accumulator) add(key string, rec types.CallRecord) {
	agg, ok := a.byKey[key]
	if !ok {
		agg = &types.Aggregate{Key: key}
		a.byKey[key] = agg
		a.order = append(a.order, key)
	}
	addRecord(agg, rec)
}

func (a *accumulator) aggregates() []types.Aggregate {
	out := make([]types.Aggregate, 0, len(a.order))
	for _, key := range a.order {
		agg := *a.byKey[key]
		agg.AnswerRate = types.Percent(agg.Answered, agg.TotalCalls)
		out = append(out, agg)
	}
	return out
}

func addRecord(agg *types.Aggregate, rec types.CallRecord) {
	if rec.Quantity <= 0 {
		return
	}
	agg.TotalCalls += rec.Quantity
	switch rec.Status {
	case types.StatusAnswered:
		agg.Answered += rec.Quantity
	case types.StatusAbandoned:
		agg.Abandoned += rec.Quantity
	}
}

// Aggregate derives every rollup and the insight list from records. It is
// a pure function: the same records always produce the same Summary. An
// empty input yields empty rollups and no insights.
func Aggregate(records []types.CallRecord) types.Summary {
	queues := newAccumulator()
	operators := newAccumulator()
	states := newAccumulator()
	days := newAccumulator()
	totals := types.Aggregate{Key: TotalsKey}

	for _, rec := range records {
		queues.add(rec.Queue, rec)
		operators.add(operatorKey(rec.Operator), rec)
		states.add(stateKey(rec.State), rec)
		days.add(DayOf(rec), rec)
		addRecord(&totals, rec)
	}
	totals.AnswerRate = types.Percent(totals.Answered, totals.TotalCalls)

	summary := types.Summary{
		Totals:     totals,
		ByQueue:    sortByVolume(queues.aggregates()),
		ByOperator: rankOperators(operators.aggregates()),
		ByState:    annotateStates(states.aggregates()),
		ByDay:      sortDays(days.aggregates()),
	}
	summary.Insights = GenerateInsights(summary)
	return summary
}

func operatorKey(op string) string {
	if op == "" {
		return types.UnidentifiedOperator
	}
	return op
}

func stateKey(state string) string {
	if state == "" {
		return types.UnidentifiedState
	}
	return state
}

// sortByVolume orders by total calls descending, then key
func sortByVolume(aggs []types.Aggregate) []types.Aggregate {
	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].TotalCalls != aggs[j].TotalCalls {
			return aggs[i].TotalCalls > aggs[j].TotalCalls
		}
		return aggs[i].Key < aggs[j].Key
	})
	return aggs
}

// rankOperators drops the unidentified bucket and orders by answer rate
func rankOperators(aggs []types.Aggregate) []types.Aggregate {
	ranked := make([]types.Aggregate, 0, len(aggs))
	for _, a := range aggs {
		if a.Key == types.UnidentifiedOperator {
			continue
		}
		ranked = append(ranked, a)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AnswerRate != ranked[j].AnswerRate {
			return ranked[i].AnswerRate > ranked[j].AnswerRate
		}
		if ranked[i].TotalCalls != ranked[j].TotalCalls {
			return ranked[i].TotalCalls > ranked[j].TotalCalls
		}
		return ranked[i].Key < ranked[j].Key
	})
	return ranked
}

func annotateStates(aggs []types.Aggregate) []types.StateAggregate {
	sorted := sortByVolume(aggs)
	out := make([]types.StateAggregate, len(sorted))
	for i, a := range sorted {
		out[i] = types.StateAggregate{Aggregate: a, Region: RegionOf(a.Key)}
	}
	return out
}
