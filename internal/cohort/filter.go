package cohort

import (
	"log/slog"

	"docrank/internal/claims"
)

// Filter applies a set of compiled rules. The zero value keeps everyone.
type Filter struct {
	rules []Rule
}

func NewFilter(rules []Rule) *Filter {
	return &Filter{rules: rules}
}

// Apply splits counts into the doctors that stay in the cohort and the ids
// of the excluded ones, both in input order. A nil Filter keeps everyone.
func (f *Filter) Apply(counts []claims.Counts) (kept []claims.Counts, excluded []string) {
	if f == nil || len(f.rules) == 0 {
		return counts, nil
	}

	kept = make([]claims.Counts, 0, len(counts))
	for _, c := range counts {
		if rule, ok := f.match(c); ok {
			slog.Debug("entity excluded from cohort", "entity_id", c.EntityID, "rule", rule)
			excluded = append(excluded, c.EntityID)
			continue
		}
		kept = append(kept, c)
	}
	return kept, excluded
}

func (f *Filter) match(c claims.Counts) (string, bool) {
	for i := range f.rules {
		if f.rules[i].Match(c) {
			return f.rules[i].Name, true
		}
	}
	return "", false
}

// Len returns the number of rules.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}
