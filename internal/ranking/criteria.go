package ranking

import (
	"errors"
	"fmt"
	"strings"
)

// Metric is the posterior statistic entities are ranked by.
type Metric string

// Ordering is the sort direction of a ranking; rank 1 is the first entity in that order.
type Ordering string

const (
	MetricMAP              Metric = "MAP"
	MetricExpectedValue    Metric = "EXPECTED_VALUE"
	MetricCredibleInterval Metric = "CREDIBLE_INTERVAL"

	OrderingAscending  Ordering = "ASCENDING"
	OrderingDescending Ordering = "DESCENDING"
)

var (
	ErrInvalidMetric   = errors.New("invalid metric")
	ErrInvalidOrdering = errors.New("invalid ordering")
)

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricMAP, MetricExpectedValue, MetricCredibleInterval:
		return true
	}
	return false
}

// Valid reports whether o is one of the supported orderings.
func (o Ordering) Valid() bool {
	return o == OrderingAscending || o == OrderingDescending
}

// RankCriteria pairs a ranking metric with a sort direction.
// Values are only obtainable through NewRankCriteria or ParseRankCriteria,
// so a RankCriteria is always valid.
type RankCriteria struct {
	metric   Metric
	ordering Ordering
}

// NewRankCriteria validates metric and ordering.
// Values outside the enumerated sets are rejected, never coerced.
func NewRankCriteria(metric Metric, ordering Ordering) (RankCriteria, error) {
	if !metric.Valid() {
		return RankCriteria{}, fmt.Errorf("%w: %q", ErrInvalidMetric, string(metric))
	}
	if !ordering.Valid() {
		return RankCriteria{}, fmt.Errorf("%w: %q", ErrInvalidOrdering, string(ordering))
	}
	return RankCriteria{metric: metric, ordering: ordering}, nil
}

// ParseRankCriteria builds criteria from their string names, ignoring
// surrounding whitespace and case ("map", "Descending").
func ParseRankCriteria(metric, ordering string) (RankCriteria, error) {
	return NewRankCriteria(
		Metric(strings.ToUpper(strings.TrimSpace(metric))),
		Ordering(strings.ToUpper(strings.TrimSpace(ordering))),
	)
}

// Metric returns the ranking metric.
func (c RankCriteria) Metric() Metric {
	return c.metric
}

// Ordering returns the sort direction.
func (c RankCriteria) Ordering() Ordering {
	return c.ordering
}

// Descending reports whether larger values rank first.
func (c RankCriteria) Descending() bool {
	return c.ordering == OrderingDescending
}

func (c RankCriteria) String() string {
	return string(c.metric) + "/" + string(c.ordering)
}
