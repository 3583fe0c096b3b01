package selector

import (
	"fmt"
	"time"

	"github.com/reelflow/reelflow/internal/plan"

	gocache "github.com/patrickmn/go-cache"
)

// Recommendation is a comparative quote for one budget policy.
type Recommendation struct {
	Policy      plan.BudgetPolicy `json:"policy"`
	Placements  []plan.Placement  `json:"placements"`
	TotalCost   float64           `json:"total_cost"`
	Description string            `json:"description"`
}

var policyDescriptions = map[plan.BudgetPolicy]string{
	plan.PolicyEconomy:  "Lowest cost: cost-efficient providers wherever the content allows",
	plan.PolicyBalanced: "Balanced cost and quality: mid-tier default with specialists where they pay off",
	plan.PolicyPremium:  "Highest fidelity on every shot regardless of cost",
}

// Quoter computes per-policy recommendations. Quotes are cached by
// spec id + policy; SelectPlacements is deterministic so a cached
// quote is always identical to a recomputed one.
type Quoter struct {
	cache *gocache.Cache
}

// NewQuoter creates a quoter with a short-lived quote cache.
func NewQuoter() *Quoter {
	return &Quoter{cache: gocache.New(5*time.Minute, 10*time.Minute)}
}

// Quote returns the recommendation for a single policy.
func (q *Quoter) Quote(spec *plan.WorkflowSpec, policy plan.BudgetPolicy) (*Recommendation, error) {
	key := fmt.Sprintf("%s|%s", spec.ID, policy)
	if spec.ID != "" {
		if cached, ok := q.cache.Get(key); ok {
			rec := cached.(Recommendation)
			return &rec, nil
		}
	}

	placements, err := SelectPlacements(spec, policy)
	if err != nil {
		return nil, err
	}
	rec := Recommendation{
		Policy:      policy,
		Placements:  placements,
		TotalCost:   TotalCost(placements),
		Description: policyDescriptions[policy],
	}
	if spec.ID != "" {
		q.cache.Set(key, rec, gocache.DefaultExpiration)
	}
	return &rec, nil
}

// Recommendations runs placement for all three policies and returns
// comparative quotes. Estimation only; never mutates state.
func (q *Quoter) Recommendations(spec *plan.WorkflowSpec) (map[plan.BudgetPolicy]Recommendation, error) {
	out := make(map[plan.BudgetPolicy]Recommendation, len(plan.Policies))
	for _, policy := range plan.Policies {
		rec, err := q.Quote(spec, policy)
		if err != nil {
			return nil, err
		}
		out[policy] = *rec
	}
	return out, nil
}
