package domain

import "time"

// MetricSnapshot is one recorded period's metrics for a campaign.
//
// The common fields apply to every channel. Channel-specific fields live in
// extension structs keyed by the campaign's Channel discriminant; exactly one
// extension pointer is non-nil for a well-formed snapshot, and resolvers must
// dispatch on the discriminant rather than probing extensions for presence.
//
// Snapshot lists returned by the gateway are pre-sorted by (period_end DESC,
// created_at DESC); "latest snapshot" is the first element. That ordering is a
// documented contract of the gateway, not something consumers re-derive.
type MetricSnapshot struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	PeriodEnd  time.Time `json:"period_end" db:"period_end"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	Impressions float64 `json:"impressions" db:"impressions"`
	Clicks      float64 `json:"clicks" db:"clicks"`
	Conversions float64 `json:"conversions" db:"conversions"`
	Cost        float64 `json:"cost" db:"cost"`
	Revenue     float64 `json:"revenue" db:"revenue"`
	CTR         float64 `json:"ctr" db:"ctr"`
	CPC         float64 `json:"cpc" db:"cpc"`
	CPA         float64 `json:"cpa" db:"cpa"`
	ROAS        float64 `json:"roas" db:"roas"`

	Google   *GoogleSnapshotExt   `json:"google,omitempty"`
	Meta     *MetaSnapshotExt     `json:"meta,omitempty"`
	LinkedIn *LinkedInSnapshotExt `json:"linkedin,omitempty"`
	TikTok   *TikTokSnapshotExt   `json:"tiktok,omitempty"`
}

// GoogleSnapshotExt holds the google-ads specific snapshot fields, including
// the manually-entered funnel values (leads_month, clients_web, revenue_web,
// avg_ticket, ltv) that take precedence over computed equivalents when > 0.
type GoogleSnapshotExt struct {
	Sessions              float64 `json:"sessions" db:"sessions"`
	Leads                 float64 `json:"leads" db:"leads"`
	LeadsMonth            float64 `json:"leads_month" db:"leads_month"`
	ClientsWeb            float64 `json:"clients_web" db:"clients_web"`
	RevenueWeb            float64 `json:"revenue_web" db:"revenue_web"`
	AvgTicket             float64 `json:"avg_ticket" db:"avg_ticket"`
	GoogleAdsCost         float64 `json:"google_ads_cost" db:"google_ads_cost"`
	CACMonth              float64 `json:"cac_month" db:"cac_month"`
	LTV                   float64 `json:"ltv" db:"ltv"`
	CACLTVRatio           float64 `json:"cac_ltv_ratio" db:"cac_ltv_ratio"`
	CACLTVBenchmark       float64 `json:"cac_ltv_benchmark" db:"cac_ltv_benchmark"`
	ROIAccumulated        float64 `json:"roi_accumulated" db:"roi_accumulated"`
	ROIPeriodMonths       float64 `json:"roi_period_months" db:"roi_period_months"`
	MQLRate               float64 `json:"mql_rate" db:"mql_rate"`
	SQLRate               float64 `json:"sql_rate" db:"sql_rate"`
	QualityScore          float64 `json:"quality_score" db:"quality_score"`
	AvgPosition           float64 `json:"avg_position" db:"avg_position"`
	SearchImpressionShare float64 `json:"search_impression_share" db:"search_impression_share"`
}

// MetaSnapshotExt holds the meta-specific snapshot fields.
type MetaSnapshotExt struct {
	Reach     float64 `json:"reach" db:"reach"`
	Frequency float64 `json:"frequency" db:"frequency"`
}

// LinkedInSnapshotExt holds the linkedin-specific snapshot fields.
type LinkedInSnapshotExt struct {
	Leads          float64 `json:"leads" db:"leads"`
	CPL            float64 `json:"cpl" db:"cpl"`
	EngagementRate float64 `json:"engagement_rate" db:"engagement_rate"`
}

// TikTokSnapshotExt holds the tiktok-specific snapshot fields.
type TikTokSnapshotExt struct {
	VideoViews float64 `json:"video_views" db:"video_views"`
	VTR        float64 `json:"vtr" db:"vtr"`
}

// MetricsSummary is the rolling aggregate across all of a campaign's
// snapshots, precomputed server-side by the ingestion subsystem.
type MetricsSummary struct {
	CampaignID       string  `json:"campaign_id" db:"campaign_id"`
	TotalImpressions float64 `json:"total_impressions" db:"total_impressions"`
	TotalClicks      float64 `json:"total_clicks" db:"total_clicks"`
	TotalConversions float64 `json:"total_conversions" db:"total_conversions"`
	TotalLeads       float64 `json:"total_leads" db:"total_leads"`
	TotalCost        float64 `json:"total_cost" db:"total_cost"`
	TotalRevenue     float64 `json:"total_revenue" db:"total_revenue"`
	TotalSessions    float64 `json:"total_sessions" db:"total_sessions"`
	AvgCTR           float64 `json:"avg_ctr" db:"avg_ctr"`
	AvgCPC           float64 `json:"avg_cpc" db:"avg_cpc"`
	AvgCPA           float64 `json:"avg_cpa" db:"avg_cpa"`
	CalcROAS         float64 `json:"calc_roas" db:"calc_roas"`
}

// BudgetAllocation is one planned-vs-actual row per channel per calendar month.
type BudgetAllocation struct {
	ID            string  `json:"id" db:"id"`
	OwnerID       string  `json:"owner_id" db:"owner_id"`
	Month         int     `json:"month" db:"month"`
	Year          int     `json:"year" db:"year"`
	PlannedBudget float64 `json:"planned_budget" db:"planned_budget"`
	ActualSpent   float64 `json:"actual_spent" db:"actual_spent"`
	Channel       Channel `json:"channel" db:"channel"`
}
