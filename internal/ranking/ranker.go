package ranking

import (
	"docrank/internal/estimator"
	"fmt"
	"sort"
)

// DefaultAlpha is the credible-interval alpha used when ranking by
// CREDIBLE_INTERVAL: rankings compare 95% intervals.
const DefaultAlpha = 0.05

// DoctorRanker orders entities by a statistic of their fitted posteriors.
//
// For point metrics (MAP, EXPECTED_VALUE) every entity gets its own rank.
// For CREDIBLE_INTERVAL, entities are swept in interval order and clustered
// against a running benchmark interval: an entity whose interval is disjoint
// from the benchmark opens the next rank and becomes the new benchmark;
// otherwise it joins the current rank. Overlap is only checked against the
// benchmark, not pairwise, so an entity overlapping a superseded benchmark
// but not the current one still lands in a later rank.
//
// DoctorRanker holds no state between calls; GetRankings is a pure function
// of the estimators, criteria and Alpha.
type DoctorRanker struct {
	estimators map[string]estimator.Estimator
	criteria   RankCriteria

	// Alpha is the credible-interval alpha for the CREDIBLE_INTERVAL metric.
	// Set to DefaultAlpha by NewDoctorRanker; assign directly to change it.
	Alpha float64
}

// NewDoctorRanker creates a ranker over estimators (entity id → fitted estimator).
func NewDoctorRanker(estimators map[string]estimator.Estimator, criteria RankCriteria) *DoctorRanker {
	return &DoctorRanker{
		estimators: estimators,
		criteria:   criteria,
		Alpha:      DefaultAlpha,
	}
}

// GetRankings computes the rank groups. An empty estimator collection yields
// empty Rankings and no error. For CREDIBLE_INTERVAL, an interval that cannot
// be computed for some entity fails the whole ranking.
func (dr *DoctorRanker) GetRankings() (Rankings, error) {
	rankings := make(Rankings)
	if len(dr.estimators) == 0 {
		return rankings, nil
	}

	switch dr.criteria.Metric() {
	case MetricMAP:
		dr.rankByPoint(rankings, estimator.Estimator.MAP)
	case MetricExpectedValue:
		dr.rankByPoint(rankings, estimator.Estimator.ExpectedValue)
	case MetricCredibleInterval:
		if err := dr.rankByInterval(rankings); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, string(dr.criteria.Metric()))
	}

	return rankings, nil
}

// sortedIDs returns entity ids in ascending order, the base order for every tie-break.
func (dr *DoctorRanker) sortedIDs() []string {
	ids := make([]string, 0, len(dr.estimators))
	for id := range dr.estimators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type pointValue struct {
	id    string
	value float64
}

// rankByPoint sorts (value, id) pairs and assigns consecutive ranks.
// Descending order reverses the whole pair order, ties included.
func (dr *DoctorRanker) rankByPoint(rankings Rankings, stat func(estimator.Estimator) float64) {
	values := make([]pointValue, 0, len(dr.estimators))
	for _, id := range dr.sortedIDs() {
		values = append(values, pointValue{id: id, value: stat(dr.estimators[id])})
	}

	desc := dr.criteria.Descending()
	sort.Slice(values, func(i, j int) bool {
		a, b := values[i], values[j]
		if desc {
			a, b = b, a
		}
		if a.value != b.value {
			return a.value < b.value
		}
		return a.id < b.id
	})

	for i, v := range values {
		rankings.add(i+1, Entry{EntityID: v.id, Value: v.value})
	}
}

type intervalValue struct {
	id       string
	interval estimator.Interval
}

// rankByInterval runs the benchmark sweep over intervals sorted by
// (lower, upper), reversed for descending order. Equal intervals keep
// ascending id order.
func (dr *DoctorRanker) rankByInterval(rankings Rankings) error {
	values := make([]intervalValue, 0, len(dr.estimators))
	for _, id := range dr.sortedIDs() {
		ci, err := dr.estimators[id].CredibleInterval(dr.Alpha)
		if err != nil {
			return fmt.Errorf("credible interval for %s: %w", id, err)
		}
		values = append(values, intervalValue{id: id, interval: ci})
	}

	desc := dr.criteria.Descending()
	sort.SliceStable(values, func(i, j int) bool {
		if desc {
			return values[j].interval.Less(values[i].interval)
		}
		return values[i].interval.Less(values[j].interval)
	})

	rank := 1
	benchmark := values[0].interval
	rankings.add(rank, intervalEntry(values[0]))

	for _, cur := range values[1:] {
		var disjoint bool
		if desc {
			disjoint = cur.interval.Upper < benchmark.Lower
		} else {
			disjoint = cur.interval.Lower > benchmark.Upper
		}

		// The rank only advances once an interval clears the benchmark.
		if disjoint {
			rank++
			benchmark = cur.interval
		}
		rankings.add(rank, intervalEntry(cur))
	}

	return nil
}

func intervalEntry(v intervalValue) Entry {
	ci := v.interval
	return Entry{EntityID: v.id, Interval: &ci}
}
