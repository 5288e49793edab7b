package estimator

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	PriorUniform = "uniform"
	PriorBeta    = "beta"
)

// UniformGrid returns points evenly spaced values covering [0, 1], endpoints included.
func UniformGrid(points int) ([]float64, error) {
	if points < 2 {
		return nil, fmt.Errorf("%w: %d grid points", ErrSupportTooSmall, points)
	}
	return floats.Span(make([]float64, points), 0, 1), nil
}

// UniformPrior returns a flat density over support.
func UniformPrior(support []float64) []float64 {
	prior := make([]float64, len(support))
	for i := range prior {
		prior[i] = 1
	}
	return prior
}

// BetaPrior evaluates the Beta(a, b) pdf on support.
// Shapes below 1 diverge at the endpoints of [0, 1]; a grid that includes
// such an endpoint is rejected with ErrInvalidPrior.
func BetaPrior(support []float64, a, b float64) ([]float64, error) {
	if !(a > 0) || !(b > 0) {
		return nil, fmt.Errorf("%w: beta shapes must be positive, got (%v, %v)", ErrInvalidPrior, a, b)
	}
	dist := distuv.Beta{Alpha: a, Beta: b}
	prior := make([]float64, len(support))
	for i, p := range support {
		prior[i] = dist.Prob(p)
		if math.IsInf(prior[i], 0) || math.IsNaN(prior[i]) {
			return nil, fmt.Errorf("%w: beta(%v, %v) density at %v is %v", ErrInvalidPrior, a, b, p, prior[i])
		}
	}
	return prior, nil
}

// NewPrior builds a prior of the named kind over support.
// For the uniform kind the shape parameters are ignored.
func NewPrior(kind string, support []float64, a, b float64) ([]float64, error) {
	switch strings.ToLower(kind) {
	case PriorUniform, "":
		return UniformPrior(support), nil
	case PriorBeta:
		return BetaPrior(support, a, b)
	default:
		return nil, fmt.Errorf("%w: unknown prior type %q", ErrConfiguration, kind)
	}
}
