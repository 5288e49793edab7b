package ranking

import (
	"docrank/internal/estimator"
	"encoding/json"
	"slices"
	"sort"
)

// Entry is one ranked entity with the metric value it was ranked by.
// Value is set for point metrics, Interval for the credible-interval metric.
type Entry struct {
	EntityID string
	Value    float64
	Interval *estimator.Interval
}

// MarshalJSON writes either "value" or "interval", depending on the metric.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Interval != nil {
		return json.Marshal(struct {
			EntityID string             `json:"entity_id"`
			Interval estimator.Interval `json:"interval"`
		}{e.EntityID, *e.Interval})
	}
	return json.Marshal(struct {
		EntityID string  `json:"entity_id"`
		Value    float64 `json:"value"`
	}{e.EntityID, e.Value})
}

// Rankings maps a rank (1 = best) to the entities sharing it.
// Ranks are contiguous starting at 1. Entries in a group are kept sorted by
// EntityID so iteration is deterministic; order inside a group carries no meaning.
type Rankings map[int][]Entry

// add places e in the group for rank, keeping the group sorted by entity id.
func (r Rankings) add(rank int, e Entry) {
	group := r[rank]
	i := sort.Search(len(group), func(i int) bool { return group[i].EntityID >= e.EntityID })
	r[rank] = slices.Insert(group, i, e)
}

// Ranks returns the ranks in increasing order.
func (r Rankings) Ranks() []int {
	ranks := make([]int, 0, len(r))
	for rank := range r {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	return ranks
}

// EntityIDs returns the ids in rank group rank.
func (r Rankings) EntityIDs(rank int) []string {
	ids := make([]string, 0, len(r[rank]))
	for _, e := range r[rank] {
		ids = append(ids, e.EntityID)
	}
	return ids
}

// RankOf returns the rank of entity id, or false if it was not ranked.
func (r Rankings) RankOf(id string) (int, bool) {
	for rank, group := range r {
		for _, e := range group {
			if e.EntityID == id {
				return rank, true
			}
		}
	}
	return 0, false
}

// Size returns the total number of ranked entities.
func (r Rankings) Size() int {
	n := 0
	for _, group := range r {
		n += len(group)
	}
	return n
}

// Group is a rank together with its entries, used for ordered serialization.
type Group struct {
	Rank    int     `json:"rank"`
	Entries []Entry `json:"entries"`
}

// Groups returns the rankings as a slice ordered by rank.
func (r Rankings) Groups() []Group {
	groups := make([]Group, 0, len(r))
	for _, rank := range r.Ranks() {
		groups = append(groups, Group{Rank: rank, Entries: r[rank]})
	}
	return groups
}
