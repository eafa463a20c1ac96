package metrics

import (
	"sort"
	"time"

	"github.com/stratify/live-metrics/internal/domain"
)

// MonthPacing is planned-vs-actual spend for one calendar month.
// Actual deliberately reads the live campaign spend field rather than the
// allocation ledger so pacing reflects real-time spend.
type MonthPacing struct {
	Month   int     `json:"month"`
	Year    int     `json:"year"`
	Planned float64 `json:"planned"`
	Actual  float64 `json:"actual"`
	Pacing  float64 `json:"pacing"`
}

// ChannelPacing is the per-channel budget breakdown.
type ChannelPacing struct {
	Channel       domain.Channel `json:"channel"`
	CampaignCount int            `json:"campaign_count"`
	BudgetTotal   float64        `json:"budget_total"`
	BudgetSpent   float64        `json:"budget_spent"`
	Pacing        float64        `json:"pacing"`
}

// CurrentMonthPacing computes pacing for the calendar month containing now.
// Planned sums the matching allocations; actual sums live spend across all
// live campaigns. Planned <= 0 resolves pacing to 0.
func CurrentMonthPacing(allocations []domain.BudgetAllocation, campaigns []domain.Campaign, now time.Time) MonthPacing {
	p := MonthPacing{Month: int(now.Month()), Year: now.Year()}
	for _, a := range allocations {
		if a.Month == p.Month && a.Year == p.Year {
			p.Planned += clamp(a.PlannedBudget)
		}
	}
	for i := range campaigns {
		if campaigns[i].IsLive() {
			p.Actual += clamp(campaigns[i].BudgetSpent)
		}
	}
	p.Pacing = clamp(safeDiv(p.Actual, p.Planned) * 100)
	return p
}

// ChannelBreakdown groups campaigns by channel. Channels with zero campaigns
// are omitted; output order is stable (sorted by channel name).
func ChannelBreakdown(campaigns []domain.Campaign) []ChannelPacing {
	byChannel := make(map[domain.Channel]*ChannelPacing)
	for i := range campaigns {
		c := &campaigns[i]
		cp, ok := byChannel[c.Channel]
		if !ok {
			cp = &ChannelPacing{Channel: c.Channel}
			byChannel[c.Channel] = cp
		}
		cp.CampaignCount++
		cp.BudgetTotal += clamp(c.BudgetTotal)
		cp.BudgetSpent += clamp(c.BudgetSpent)
	}

	out := make([]ChannelPacing, 0, len(byChannel))
	for _, cp := range byChannel {
		cp.Pacing = clamp(safeDiv(cp.BudgetSpent, cp.BudgetTotal) * 100)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
