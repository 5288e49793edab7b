package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrShapeMismatch   = fmt.Errorf("%w: prior and support lengths differ", ErrConfiguration)
	ErrSupportTooSmall = fmt.Errorf("%w: support needs at least 2 points", ErrConfiguration)
	ErrInvalidSupport  = fmt.Errorf("%w: support must be strictly increasing, uniformly spaced and within [0, 1]", ErrConfiguration)
	ErrInvalidPrior    = fmt.Errorf("%w: prior densities must be finite and non-negative", ErrConfiguration)
	ErrInvalidCounts   = fmt.Errorf("%w: counts must satisfy 0 <= successes <= trials", ErrConfiguration)
	ErrInvalidAlpha    = fmt.Errorf("%w: alpha must be in [0, 1)", ErrConfiguration)
	ErrZeroEvidence    = fmt.Errorf("%w: posterior normalizing constant is zero", ErrNumeric)
	ErrAlphaOutOfRange = fmt.Errorf("%w: tail mass alpha/2 not reachable on this grid", ErrOutOfRange)
)

// spacingTolerance bounds the relative deviation of a grid step from h.
const spacingTolerance = 1e-6

// RateEstimator models the unknown rate p of a binomial process.
// Given a discretized prior over a support grid and observed counts,
// it computes the discretized posterior of p once, at construction.
// A RateEstimator is immutable and safe for concurrent use.
type RateEstimator struct {
	prior     []float64
	support   []float64
	posterior []float64
	h         float64

	successes    int
	observations int
}

// NewRateEstimator validates the inputs and fits the posterior.
//
// prior and support must have the same length (at least 2); support must be
// a strictly increasing, uniformly spaced grid inside [0, 1]. Counts must
// satisfy 0 <= successes <= trials. Every violation is reported as an error
// wrapping ErrConfiguration. A prior with no mass where the data has
// non-zero likelihood yields ErrZeroEvidence.
func NewRateEstimator(prior, support []float64, successes, trials int) (*RateEstimator, error) {
	if len(prior) != len(support) {
		return nil, fmt.Errorf("%w: %d prior points, %d support points", ErrShapeMismatch, len(prior), len(support))
	}
	if len(support) < 2 {
		return nil, ErrSupportTooSmall
	}
	if err := validateSupport(support); err != nil {
		return nil, err
	}
	for i, d := range prior {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: prior[%d] = %v", ErrInvalidPrior, i, d)
		}
	}
	if successes < 0 || trials < successes {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidCounts, successes, trials)
	}

	re := &RateEstimator{
		prior:        append([]float64(nil), prior...),
		support:      append([]float64(nil), support...),
		h:            support[1] - support[0],
		successes:    successes,
		observations: trials,
	}

	posterior, err := re.computePosterior()
	if err != nil {
		return nil, err
	}
	re.posterior = posterior

	return re, nil
}

func validateSupport(support []float64) error {
	h := support[1] - support[0]
	if !(h > 0) {
		return fmt.Errorf("%w: step %v", ErrInvalidSupport, h)
	}
	if support[0] < 0 || support[len(support)-1] > 1 {
		return fmt.Errorf("%w: range [%v, %v]", ErrInvalidSupport, support[0], support[len(support)-1])
	}
	for i := 1; i < len(support); i++ {
		step := support[i] - support[i-1]
		if math.Abs(step-h) > spacingTolerance*h {
			return fmt.Errorf("%w: step %v at index %d, expected %v", ErrInvalidSupport, step, i, h)
		}
	}
	return nil
}

// computePosterior applies Bayes' rule pointwise and normalizes the result so
// that sum(posterior)*h = 1. The product prior*likelihood is formed in log
// space and rescaled by its maximum before exponentiation; normalization
// removes the scale, so the result equals prior*likelihood / (sum*h).
func (re *RateEstimator) computePosterior() ([]float64, error) {
	logPost := make([]float64, len(re.support))
	maxLog := math.Inf(-1)
	for i, p := range re.support {
		if re.prior[i] == 0 {
			logPost[i] = math.Inf(-1)
			continue
		}
		logPost[i] = math.Log(re.prior[i]) + binomialLogPMF(re.successes, re.observations, p)
		if logPost[i] > maxLog {
			maxLog = logPost[i]
		}
	}
	if math.IsInf(maxLog, -1) || math.IsNaN(maxLog) {
		return nil, ErrZeroEvidence
	}

	posterior := make([]float64, len(logPost))
	for i, l := range logPost {
		posterior[i] = math.Exp(l - maxLog)
	}

	norm := floats.Sum(posterior) * re.h
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroEvidence
	}
	floats.Scale(1/norm, posterior)

	return posterior, nil
}

// binomialLogPMF returns log P(k successes in n trials | rate p).
// The endpoints p=0 and p=1 are handled exactly; gonum's LogProb
// evaluates 0*log(0) there.
func binomialLogPMF(k, n int, p float64) float64 {
	switch p {
	case 0:
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	case 1:
		if k == n {
			return 0
		}
		return math.Inf(-1)
	}
	return distuv.Binomial{N: float64(n), P: p}.LogProb(float64(k))
}

// Posterior returns a copy of the fitted posterior.
func (re *RateEstimator) Posterior() Distribution {
	return Distribution{
		Support: append([]float64(nil), re.support...),
		Density: append([]float64(nil), re.posterior...),
	}
}

// Prior returns a copy of the prior the estimator was built with.
func (re *RateEstimator) Prior() Distribution {
	return Distribution{
		Support: append([]float64(nil), re.support...),
		Density: append([]float64(nil), re.prior...),
	}
}

// Successes returns the observed number of successes.
func (re *RateEstimator) Successes() int {
	return re.successes
}

// Observations returns the observed number of trials.
func (re *RateEstimator) Observations() int {
	return re.observations
}

// MAP returns the maximum a posteriori estimate: the support value at the
// first index of maximal posterior density.
func (re *RateEstimator) MAP() float64 {
	return re.support[floats.MaxIdx(re.posterior)]
}

// ExpectedValue returns sum(support*posterior) / sum(posterior).
// The division uses the plain sum, not the h-weighted one.
func (re *RateEstimator) ExpectedValue() float64 {
	return floats.Dot(re.support, re.posterior) / floats.Sum(re.posterior)
}

// CredibleInterval returns the centered (1-alpha) credible interval.
//
// Posterior mass (h-weighted) is accumulated from the left until at least
// alpha/2 is covered; the lower bound is the grid point right after the last
// accumulated one. The upper bound is found symmetrically from the right.
// Because mass is accumulated in whole grid steps, each excluded tail is
// usually slightly larger than alpha/2.
//
// If the tail search exhausts the grid before reaching alpha/2, an error
// wrapping ErrOutOfRange is returned.
func (re *RateEstimator) CredibleInterval(alpha float64) (Interval, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha >= 1 {
		return Interval{}, fmt.Errorf("%w: %v", ErrInvalidAlpha, alpha)
	}

	tail := alpha / 2
	n := len(re.posterior)

	sum, i := 0.0, 0
	for sum < tail {
		if i >= n {
			return Interval{}, fmt.Errorf("%w: left tail, alpha %v", ErrAlphaOutOfRange, alpha)
		}
		sum += re.h * re.posterior[i]
		i++
	}

	sum, j := 0.0, n-1
	for sum < tail {
		if j < 0 {
			return Interval{}, fmt.Errorf("%w: right tail, alpha %v", ErrAlphaOutOfRange, alpha)
		}
		sum += re.h * re.posterior[j]
		j--
	}

	if i >= n || j < 0 {
		return Interval{}, fmt.Errorf("%w: tail covers the whole grid, alpha %v", ErrAlphaOutOfRange, alpha)
	}

	return Interval{Lower: re.support[i], Upper: re.support[j]}, nil
}
