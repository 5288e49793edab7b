// Package analysis runs the ranking pipeline: per-doctor counts go through
// the cohort filter, get one posterior each and are ranked.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"docrank/internal/claims"
	"docrank/internal/cohort"
	"docrank/internal/estimator"
	"docrank/internal/metrics"
	"docrank/internal/ranking"
	"docrank/internal/report"

	"github.com/google/uuid"
)

var ErrDuplicateEntity = errors.New("duplicate entity id")

// Result is the outcome of one ranking run.
type Result struct {
	RunID     string
	Criteria  ranking.RankCriteria
	Alpha     float64
	Rankings  ranking.Rankings
	Excluded  []string
	StartedAt time.Time
	Duration  time.Duration
}

func (r Result) MarshalJSON() ([]byte, error) {
	excluded := r.Excluded
	if excluded == nil {
		excluded = []string{}
	}
	return json.Marshal(struct {
		RunID      string           `json:"run_id"`
		Metric     ranking.Metric   `json:"metric"`
		Ordering   ranking.Ordering `json:"ordering"`
		Alpha      float64          `json:"alpha"`
		Excluded   []string         `json:"excluded"`
		StartedAt  time.Time        `json:"started_at"`
		DurationMs int64            `json:"duration_ms"`
		Rankings   []ranking.Group  `json:"rankings"`
	}{
		RunID:      r.RunID,
		Metric:     r.Criteria.Metric(),
		Ordering:   r.Criteria.Ordering(),
		Alpha:      r.Alpha,
		Excluded:   excluded,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Rankings:   r.Rankings.Groups(),
	})
}

// Report converts the result into a report run.
func (r Result) Report() report.Run {
	return report.Run{
		ID:       r.RunID,
		Criteria: r.Criteria,
		Alpha:    r.Alpha,
		Rankings: r.Rankings,
	}
}

// Analyzer fits and ranks doctors on a fixed prior and support grid.
// It is safe for concurrent use.
type Analyzer struct {
	prior   []float64
	support []float64
	workers int
	filter  *cohort.Filter
	metrics *metrics.Metrics
}

// NewAnalyzer checks prior and support by fitting an empty observation.
// filter and m may be nil.
func NewAnalyzer(prior, support []float64, workers int, filter *cohort.Filter, m *metrics.Metrics) (*Analyzer, error) {
	if _, err := estimator.NewRateEstimator(prior, support, 0, 0); err != nil {
		return nil, err
	}
	return &Analyzer{
		prior:   prior,
		support: support,
		workers: workers,
		filter:  filter,
		metrics: m,
	}, nil
}

// Rank runs the full pipeline over counts.
func (a *Analyzer) Rank(ctx context.Context, counts []claims.Counts, criteria ranking.RankCriteria, alpha float64) (*Result, error) {
	started := time.Now()
	metric := string(criteria.Metric())

	result, err := a.rank(ctx, counts, criteria, alpha, started)
	elapsed := time.Since(started)
	if err != nil {
		a.metrics.ObserveRun(metric, metrics.StatusFailure, elapsed.Seconds())
		return nil, err
	}
	result.Duration = elapsed

	a.metrics.ObserveRun(metric, metrics.StatusSuccess, elapsed.Seconds())
	a.metrics.SetGroups(metric, len(result.Rankings))
	slog.Info("ranking run finished",
		"run_id", result.RunID,
		"criteria", criteria.String(),
		"alpha", alpha,
		"entities", result.Rankings.Size(),
		"excluded", len(result.Excluded),
		"groups", len(result.Rankings),
		"duration", elapsed)
	return result, nil
}

func (a *Analyzer) rank(ctx context.Context, counts []claims.Counts, criteria ranking.RankCriteria, alpha float64, started time.Time) (*Result, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}

	kept, excluded := a.filter.Apply(counts)
	a.metrics.AddExcluded(len(excluded))

	fitted, err := a.fit(ctx, kept)
	if err != nil {
		return nil, err
	}

	estimators := make(map[string]estimator.Estimator, len(fitted))
	for id, re := range fitted {
		estimators[id] = re
	}

	ranker := ranking.NewDoctorRanker(estimators, criteria)
	ranker.Alpha = alpha
	rankings, err := ranker.GetRankings()
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     uuid.NewString(),
		Criteria:  criteria,
		Alpha:     alpha,
		Rankings:  rankings,
		Excluded:  excluded,
		StartedAt: started,
	}, nil
}

func (a *Analyzer) fit(ctx context.Context, counts []claims.Counts) (map[string]*estimator.RateEstimator, error) {
	observations, err := observe(counts)
	if err != nil {
		return nil, err
	}

	fitted, err := estimator.FitAll(ctx, observations, a.prior, a.support, a.workers)
	if err != nil {
		a.metrics.AddFits(metrics.StatusFailure, 1)
		return nil, err
	}
	a.metrics.AddFits(metrics.StatusSuccess, len(fitted))
	return fitted, nil
}

func observe(counts []claims.Counts) (map[string]estimator.Observation, error) {
	observations := make(map[string]estimator.Observation, len(counts))
	for _, c := range counts {
		if _, ok := observations[c.EntityID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntity, c.EntityID)
		}
		observations[c.EntityID] = c.Observation()
	}
	return observations, nil
}

func validateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha >= 1 {
		return fmt.Errorf("%w: %v", estimator.ErrInvalidAlpha, alpha)
	}
	return nil
}

// Estimate is the posterior summary of one entity.
type Estimate struct {
	EntityID         string                  `json:"entity_id"`
	Successes        int                     `json:"num_operated_on"`
	Trials           int                     `json:"num_diagnosed"`
	MAP              float64                 `json:"map"`
	ExpectedValue    float64                 `json:"expected_value"`
	CredibleInterval estimator.Interval      `json:"credible_interval"`
	Posterior        *estimator.Distribution `json:"posterior,omitempty"`
}

// Estimate fits every entity in counts, without cohort filtering, and
// returns their summaries ordered by entity id. The posterior curve is
// included when withPosterior is set.
func (a *Analyzer) Estimate(ctx context.Context, counts []claims.Counts, alpha float64, withPosterior bool) ([]Estimate, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}

	fitted, err := a.fit(ctx, counts)
	if err != nil {
		return nil, err
	}

	estimates := make([]Estimate, 0, len(fitted))
	for id, re := range fitted {
		interval, err := re.CredibleInterval(alpha)
		if err != nil {
			return nil, fmt.Errorf("credible interval for %s: %w", id, err)
		}
		e := Estimate{
			EntityID:         id,
			Successes:        re.Successes(),
			Trials:           re.Observations(),
			MAP:              re.MAP(),
			ExpectedValue:    re.ExpectedValue(),
			CredibleInterval: interval,
		}
		if withPosterior {
			posterior := re.Posterior()
			e.Posterior = &posterior
		}
		estimates = append(estimates, e)
	}

	sort.Slice(estimates, func(i, j int) bool {
		return estimates[i].EntityID < estimates[j].EntityID
	})
	return estimates, nil
}
