// Package claims turns an insurance claims database into per-doctor
// diagnosis/procedure counts, the binomial data the estimators are fitted on.
package claims

import (
	"context"
	"docrank/internal/estimator"
)

// Counts is the aggregated claims data of one doctor.
type Counts struct {
	// EntityID is the doctor identifier.
	EntityID string `parquet:"entity_id" json:"entity_id"`
	// Diagnosed counts distinct patients diagnosed with one of the codes of interest.
	Diagnosed int64 `parquet:"num_diagnosed" json:"num_diagnosed"`
	// OperatedOn counts distinct diagnosed patients referred to one of the procedures of interest.
	OperatedOn int64 `parquet:"num_operated_on" json:"num_operated_on"`
}

// Successes returns the number of binomial successes: patients operated on.
func (c Counts) Successes() int {
	return int(c.OperatedOn)
}

// Trials returns the number of binomial trials: patients diagnosed.
func (c Counts) Trials() int {
	return int(c.Diagnosed)
}

// Observation converts the counts into estimator input.
func (c Counts) Observation() estimator.Observation {
	return estimator.Observation{Successes: c.Successes(), Trials: c.Trials()}
}

// Source provides per-doctor counts.
type Source interface {
	Counts(ctx context.Context) ([]Counts, error)
}
