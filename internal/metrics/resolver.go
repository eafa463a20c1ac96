package metrics

import (
	"math"

	"github.com/stratify/live-metrics/internal/domain"
)

// defaultLTVMultiplier estimates lifetime value as N purchases at the average
// ticket when no explicit LTV has been entered.
const defaultLTVMultiplier = 6

// Unit describes how a card value should be formatted.
type Unit string

const (
	UnitCount    Unit = "count"
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
	UnitRatio    Unit = "ratio"
)

// Card is one labeled metric on the dashboard. Cards are emitted in a stable
// display order; callers must not assume any card is non-zero.
type Card struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// safeDiv returns num/den, or 0 when the denominator is not positive.
func safeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// orComputed returns the explicit value when positive, else the computed one.
func orComputed(explicit, computed float64) float64 {
	if explicit > 0 {
		return explicit
	}
	return computed
}

// firstPositive returns the first value > 0, or 0 when none is.
func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// clamp sanitizes a resolved value: NaN, Inf and negative values all become 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func card(key, label string, value float64, unit Unit) Card {
	return Card{Key: key, Label: label, Value: clamp(value), Unit: unit}
}

// Resolve turns one campaign plus its optional latest snapshot and optional
// rolling summary into an ordered list of metric cards.
//
// When no snapshot exists only summary-derived cards are emitted. When a
// snapshot exists its fields win over the summary for the common card set;
// the summary is never blended field-by-field with the snapshot. Channel
// extensions are dispatched on the campaign's channel discriminant.
func Resolve(c *domain.Campaign, snap *domain.MetricSnapshot, sum *domain.MetricsSummary) []Card {
	if snap == nil {
		return resolveFromSummary(sum)
	}

	cards := commonCards(snap)
	switch c.Channel {
	case domain.ChannelGoogle:
		cards = append(cards, googleCards(c, snap, sum)...)
	case domain.ChannelMeta:
		cards = append(cards, metaCards(snap)...)
	case domain.ChannelLinkedIn:
		cards = append(cards, linkedinCards(snap, sum)...)
	case domain.ChannelTikTok:
		cards = append(cards, tiktokCards(snap)...)
	}
	return cards
}

// resolveFromSummary emits the fallback card set when a campaign has a
// rolling summary but no snapshot yet. Absent fields default to zero.
func resolveFromSummary(sum *domain.MetricsSummary) []Card {
	s := domain.MetricsSummary{}
	if sum != nil {
		s = *sum
	}
	return []Card{
		card("impressions", "Impressions", s.TotalImpressions, UnitCount),
		card("clicks", "Clicks", s.TotalClicks, UnitCount),
		card("conversions", "Conversions", s.TotalConversions, UnitCount),
		card("leads", "Leads", s.TotalLeads, UnitCount),
		card("cost", "Cost", s.TotalCost, UnitCurrency),
		card("revenue", "Revenue", s.TotalRevenue, UnitCurrency),
		card("sessions", "Sessions", s.TotalSessions, UnitCount),
		card("cpa", "Avg. CPA", s.AvgCPA, UnitCurrency),
		card("roas", "ROAS", orComputed(s.CalcROAS, safeDiv(s.TotalRevenue, s.TotalCost)), UnitRatio),
	}
}

// commonCards is the snapshot-preferred card set shared by all channels.
func commonCards(snap *domain.MetricSnapshot) []Card {
	return []Card{
		card("impressions", "Impressions", snap.Impressions, UnitCount),
		card("clicks", "Clicks", snap.Clicks, UnitCount),
		card("ctr", "CTR", orComputed(snap.CTR, safeDiv(snap.Clicks, snap.Impressions)*100), UnitPercent),
		card("cpc", "CPC", orComputed(snap.CPC, safeDiv(snap.Cost, snap.Clicks)), UnitCurrency),
		card("cpm", "CPM", safeDiv(snap.Cost, snap.Impressions)*1000, UnitCurrency),
		card("conversions", "Conversions", snap.Conversions, UnitCount),
		card("cpa", "CPA", orComputed(snap.CPA, safeDiv(snap.Cost, snap.Conversions)), UnitCurrency),
		card("cost", "Cost", snap.Cost, UnitCurrency),
		card("revenue", "Revenue", snap.Revenue, UnitCurrency),
		card("roas", "ROAS", orComputed(snap.ROAS, safeDiv(snap.Revenue, snap.Cost)), UnitRatio),
	}
}

// googleCards resolves the google acquisition-funnel cards. Five base
// quantities go through a two-tier fallback (manual snapshot value, then
// generic snapshot value, then summary) and the derived quantities prefer an
// explicitly entered value over the computed formula.
func googleCards(c *domain.Campaign, snap *domain.MetricSnapshot, sum *domain.MetricsSummary) []Card {
	ext := snap.Google
	if ext == nil {
		ext = &domain.GoogleSnapshotExt{}
	}
	s := domain.MetricsSummary{}
	if sum != nil {
		s = *sum
	}

	sessions := firstPositive(ext.Sessions, s.TotalSessions)
	leads := firstPositive(ext.LeadsMonth, ext.Leads, s.TotalLeads)
	conversions := firstPositive(ext.ClientsWeb, snap.Conversions, s.TotalConversions)
	revenue := firstPositive(ext.RevenueWeb, snap.Revenue, s.TotalRevenue)
	cost := firstPositive(c.BudgetSpent, ext.GoogleAdsCost, snap.Cost, s.TotalCost)

	avgTicket := orComputed(ext.AvgTicket, safeDiv(revenue, conversions))
	cacMonth := orComputed(ext.CACMonth, safeDiv(cost, conversions))
	ltv := orComputed(ext.LTV, avgTicket*defaultLTVMultiplier)

	return []Card{
		card("sessions", "Sessions", sessions, UnitCount),
		card("leads", "Leads", leads, UnitCount),
		card("mql_rate", "MQL Rate", orComputed(ext.MQLRate, safeDiv(leads, sessions)*100), UnitPercent),
		card("sql_rate", "SQL Rate", orComputed(ext.SQLRate, safeDiv(conversions, leads)*100), UnitPercent),
		card("avg_ticket", "Avg. Ticket", avgTicket, UnitCurrency),
		card("cac_month", "CAC (month)", cacMonth, UnitCurrency),
		card("ltv", "LTV", ltv, UnitCurrency),
		card("cac_ltv_ratio", "LTV:CAC", orComputed(ext.CACLTVRatio, safeDiv(ltv, cacMonth)), UnitRatio),
		card("payback_months", "Payback (months)", safeDiv(cacMonth, avgTicket), UnitCount),
		card("roi_accumulated", "ROI Accumulated", orComputed(ext.ROIAccumulated, safeDiv(revenue-cost, cost)*100), UnitPercent),
		card("quality_score", "Quality Score", ext.QualityScore, UnitCount),
		card("avg_position", "Avg. Position", ext.AvgPosition, UnitCount),
		card("search_impression_share", "Search Impr. Share", ext.SearchImpressionShare, UnitPercent),
	}
}

func metaCards(snap *domain.MetricSnapshot) []Card {
	ext := snap.Meta
	if ext == nil {
		ext = &domain.MetaSnapshotExt{}
	}
	return []Card{
		card("reach", "Reach", ext.Reach, UnitCount),
		card("frequency", "Frequency", ext.Frequency, UnitRatio),
	}
}

func linkedinCards(snap *domain.MetricSnapshot, sum *domain.MetricsSummary) []Card {
	ext := snap.LinkedIn
	if ext == nil {
		ext = &domain.LinkedInSnapshotExt{}
	}
	s := domain.MetricsSummary{}
	if sum != nil {
		s = *sum
	}
	return []Card{
		card("leads", "Leads", firstPositive(ext.Leads, s.TotalLeads), UnitCount),
		card("cpl", "CPL", firstPositive(ext.CPL, s.AvgCPA), UnitCurrency),
		card("engagement_rate", "Engagement Rate", ext.EngagementRate, UnitPercent),
	}
}

func tiktokCards(snap *domain.MetricSnapshot) []Card {
	ext := snap.TikTok
	if ext == nil {
		ext = &domain.TikTokSnapshotExt{}
	}
	return []Card{
		card("video_views", "Video Views", ext.VideoViews, UnitCount),
		card("vtr", "VTR", ext.VTR, UnitPercent),
	}
}
