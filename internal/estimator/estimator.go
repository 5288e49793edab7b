package estimator

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// Error classes. Every error returned by this package wraps exactly one of them,
// so callers can tell a bad setup from a numeric failure with errors.Is.
var (
	// ErrConfiguration: invalid prior, support or observation counts.
	ErrConfiguration = errors.New("estimator configuration")
	// ErrNumeric: the posterior cannot be represented (e.g. zero evidence).
	ErrNumeric = errors.New("estimator numeric")
	// ErrOutOfRange: a search over the support grid ran past its bounds.
	ErrOutOfRange = errors.New("estimator out of range")
)

// Estimator is the set of capabilities a fitted univariate Bayesian model exposes.
// The ranking engine depends only on this interface, so other likelihoods
// (Poisson rate, normal mean) can be ranked without changing it.
type Estimator interface {
	// Posterior returns the discretized posterior over the model's support grid.
	Posterior() Distribution
	// MAP returns the support value with the highest posterior density.
	MAP() float64
	// ExpectedValue returns the posterior mean.
	ExpectedValue() float64
	// CredibleInterval returns the equal-tailed (1-alpha) credible interval.
	CredibleInterval(alpha float64) (Interval, error)
}

// Distribution is a finite-grid approximation of a continuous pdf.
// Support is uniformly spaced; Density has the same length.
type Distribution struct {
	Support []float64 `json:"support"`
	Density []float64 `json:"density"`
}

// Step returns the grid spacing h = Support[1] - Support[0].
func (d Distribution) Step() float64 {
	if len(d.Support) < 2 {
		return 0
	}
	return d.Support[1] - d.Support[0]
}

// Mass returns the Riemann sum sum(Density)*h. A normalized pdf has mass ≈ 1.
func (d Distribution) Mass() float64 {
	if len(d.Density) == 0 {
		return 0
	}
	return floats.Sum(d.Density) * d.Step()
}

// Interval is a closed interval on the support grid.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Less orders intervals lexicographically: lower bound first, then upper bound.
func (i Interval) Less(other Interval) bool {
	if i.Lower != other.Lower {
		return i.Lower < other.Lower
	}
	return i.Upper < other.Upper
}

// Width returns Upper - Lower.
func (i Interval) Width() float64 {
	return i.Upper - i.Lower
}
