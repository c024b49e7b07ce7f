package models

// ProviderUsage tracks per-provider consumption within a run.
type ProviderUsage struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Errors   int64   `json:"errors"`
	Cost     float64 `json:"cost"`
}

// APIUsage aggregates provider consumption for budget enforcement.
type APIUsage struct {
	Providers map[string]ProviderUsage `json:"providers,omitempty"`
	TotalCost float64                  `json:"total_cost"`
}

// Record adds one provider call's consumption to the usage totals.
func (u *APIUsage) Record(provider string, requests, tokens int64, cost float64, failed bool) {
	if u.Providers == nil {
		u.Providers = make(map[string]ProviderUsage)
	}
	p := u.Providers[provider]
	p.Requests += requests
	p.Tokens += tokens
	p.Cost += cost
	if failed {
		p.Errors++
	}
	u.Providers[provider] = p
	u.TotalCost += cost
}

// Merge folds other into u.
func (u *APIUsage) Merge(other APIUsage) {
	for name, p := range other.Providers {
		if u.Providers == nil {
			u.Providers = make(map[string]ProviderUsage)
		}
		cur := u.Providers[name]
		cur.Requests += p.Requests
		cur.Tokens += p.Tokens
		cur.Errors += p.Errors
		cur.Cost += p.Cost
		u.Providers[name] = cur
	}
	u.TotalCost += other.TotalCost
}
