// Package cohort decides which doctors are eligible for ranking. Rules are
// CEL expressions over a doctor's counts; a doctor matching any rule is
// excluded from the run.
package cohort

import (
	"fmt"
	"log/slog"

	"docrank/internal/claims"

	"github.com/google/cel-go/cel"
)

// NewEnv returns the CEL environment rules are compiled against:
//
//	id          string  doctor identifier
//	diagnosed   int     distinct patients diagnosed
//	operated_on int     distinct diagnosed patients operated on
//	rate        double  operated_on / diagnosed, 0 when nothing was diagnosed
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("diagnosed", cel.IntType),
		cel.Variable("operated_on", cel.IntType),
		cel.Variable("rate", cel.DoubleType),
	)
}

// Rule excludes the doctors its When expression holds for.
type Rule struct {
	// Name identifies the rule in logs.
	Name string `yaml:"name"`
	// When must evaluate to a bool.
	When string `yaml:"when"`

	program cel.Program
}

// Init compiles When using env. Syntax and type errors are returned as is.
func (r *Rule) Init(env *cel.Env) error {
	ast, iss := env.Parse(r.When)
	if iss.Err() != nil {
		return iss.Err()
	}

	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return iss.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return fmt.Errorf("rule %q: expression must return bool, got %s", r.Name, checked.OutputType())
	}

	var err error
	r.program, err = env.Program(checked)
	return err
}

// Match reports whether the rule excludes c. Evaluation errors are logged
// and count as no match.
func (r *Rule) Match(c claims.Counts) bool {
	result, _, err := r.program.Eval(activation(c))
	if err != nil {
		slog.Error("cohort rule evaluation failed", "rule", r.Name, "entity_id", c.EntityID, "error", err)
		return false
	}
	matched, ok := result.Value().(bool)
	return ok && matched
}

func activation(c claims.Counts) map[string]any {
	rate := 0.0
	if c.Diagnosed > 0 {
		rate = float64(c.OperatedOn) / float64(c.Diagnosed)
	}
	return map[string]any{
		"id":          c.EntityID,
		"diagnosed":   c.Diagnosed,
		"operated_on": c.OperatedOn,
		"rate":        rate,
	}
}
