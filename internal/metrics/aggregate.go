package metrics

import "github.com/stratify/live-metrics/internal/domain"

// PortfolioTotals is the portfolio-wide numeric model across every campaign a
// tenant owns. All monetary and count fields obey the non-negative/non-NaN
// invariant; the ratio fields are guarded individually.
type PortfolioTotals struct {
	BudgetTotal float64 `json:"budget_total"`
	MediaCost   float64 `json:"media_cost"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Sessions    float64 `json:"sessions"`
	Revenue     float64 `json:"revenue"`
	Conversions float64 `json:"conversions"`
	Leads       float64 `json:"leads"`

	CAC             float64 `json:"cac"`
	AvgTicket       float64 `json:"avg_ticket"`
	LTV             float64 `json:"ltv"`
	CACLTVRatio     float64 `json:"cac_ltv_ratio"`
	CTR             float64 `json:"ctr"`
	ROAS            float64 `json:"roas"`
	SessionsToLeads float64 `json:"sessions_to_leads"`
	LeadsToSales    float64 `json:"leads_to_sales"`
	PaybackMonths   float64 `json:"payback_months"`
}

// Aggregate reduces a campaign list into portfolio totals. Pure and
// deterministic: identical inputs always produce identical outputs.
//
// Source priority mirrors the per-campaign resolver. LTV and average ticket
// are not additive, so the explicit values entered across campaigns are
// blended as a running maximum (one per-customer estimate for the whole
// portfolio), never summed.
func Aggregate(
	campaigns []domain.Campaign,
	summaries map[string]*domain.MetricsSummary,
	latest map[string]*domain.MetricSnapshot,
) PortfolioTotals {
	var t PortfolioTotals
	var manualLTV, manualAvgTicket float64

	for i := range campaigns {
		c := &campaigns[i]
		sum := summaries[c.ID]
		snap := latest[c.ID]

		s := domain.MetricsSummary{}
		if sum != nil {
			s = *sum
		}
		var snapCommon domain.MetricSnapshot
		var google *domain.GoogleSnapshotExt
		if snap != nil {
			snapCommon = *snap
			google = snap.Google
		}
		g := domain.GoogleSnapshotExt{}
		if google != nil {
			g = *google
		}

		t.BudgetTotal += clamp(c.BudgetTotal)
		t.MediaCost += clamp(firstPositive(c.BudgetSpent, s.TotalCost, snapCommon.Cost, g.GoogleAdsCost))
		t.Impressions += clamp(firstPositive(s.TotalImpressions, snapCommon.Impressions))
		t.Clicks += clamp(firstPositive(s.TotalClicks, snapCommon.Clicks))
		t.Sessions += clamp(firstPositive(s.TotalSessions, g.Sessions))

		if c.Channel == domain.ChannelGoogle {
			t.Revenue += clamp(firstPositive(g.RevenueWeb, snapCommon.Revenue, s.TotalRevenue))
			t.Conversions += clamp(firstPositive(g.ClientsWeb, snapCommon.Conversions, s.TotalConversions))
			t.Leads += clamp(firstPositive(g.LeadsMonth, g.Leads, s.TotalLeads))
		} else {
			t.Revenue += clamp(firstPositive(s.TotalRevenue, snapCommon.Revenue))
			t.Conversions += clamp(firstPositive(s.TotalConversions, snapCommon.Conversions))
			t.Leads += clamp(firstPositive(s.TotalLeads, channelLeads(snap)))
		}

		if g.LTV > manualLTV {
			manualLTV = g.LTV
		}
		if g.AvgTicket > manualAvgTicket {
			manualAvgTicket = g.AvgTicket
		}
	}

	t.CAC = clamp(safeDiv(t.MediaCost, t.Conversions))
	t.AvgTicket = clamp(orComputed(manualAvgTicket, safeDiv(t.Revenue, t.Conversions)))
	t.LTV = clamp(orComputed(manualLTV, t.AvgTicket*defaultLTVMultiplier))
	t.CACLTVRatio = clamp(safeDiv(t.LTV, t.CAC))
	t.CTR = clamp(safeDiv(t.Clicks, t.Impressions) * 100)
	t.ROAS = clamp(safeDiv(t.Revenue, t.MediaCost))
	t.SessionsToLeads = clamp(safeDiv(t.Leads, t.Sessions) * 100)
	t.LeadsToSales = clamp(safeDiv(t.Conversions, t.Leads) * 100)
	// Guarded independently from the per-campaign card formula; the two call
	// sites are intentionally kept separate.
	t.PaybackMonths = clamp(safeDiv(t.CAC, t.AvgTicket))

	return t
}

// channelLeads extracts the lead count a non-google channel extension carries,
// if any. Only linkedin snapshots record leads directly.
func channelLeads(snap *domain.MetricSnapshot) float64 {
	if snap == nil || snap.LinkedIn == nil {
		return 0
	}
	return snap.LinkedIn.Leads
}
