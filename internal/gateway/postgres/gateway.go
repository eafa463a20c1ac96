// Package postgres implements the dashboard data access gateway against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stratify/live-metrics/internal/domain"
	"github.com/stratify/live-metrics/internal/gateway"
)

// Gateway is a Postgres-backed implementation of gateway.Gateway.
type Gateway struct{ db *sql.DB }

// New creates a Postgres-backed gateway.
func New(db *sql.DB) *Gateway { return &Gateway{db: db} }

// FetchOwnerAggregation loads the full aggregation payload for one tenant.
// Every query filters on owner_id; no cross-tenant row can appear in the
// result regardless of filter values.
func (g *Gateway) FetchOwnerAggregation(ctx context.Context, ownerID string, f gateway.Filters) (*gateway.AggregationPayload, error) {
	p := &gateway.AggregationPayload{
		SummariesByCampaign:     make(map[string]*domain.MetricsSummary),
		LatestMetricsByCampaign: make(map[string]*domain.MetricSnapshot),
		MonthlyActuals:          make(map[string]float64),
	}

	var err error
	if p.Campaigns, err = g.fetchCampaigns(ctx, ownerID, f.ProjectID); err != nil {
		return nil, err
	}
	if err = g.fetchSummaries(ctx, ownerID, p); err != nil {
		return nil, err
	}
	if err = g.fetchLatestSnapshots(ctx, ownerID, p); err != nil {
		return nil, err
	}
	if p.Allocations, err = g.fetchAllocations(ctx, ownerID); err != nil {
		return nil, err
	}
	if err = g.fetchMonthlyActuals(ctx, ownerID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FetchProxyAggregation runs the owner aggregation under targetID after
// verifying the target allows public viewing. The caller never supplies
// credentials for the target.
func (g *Gateway) FetchProxyAggregation(ctx context.Context, targetID string) (*gateway.AggregationPayload, error) {
	var enabled bool
	err := g.db.QueryRowContext(ctx, `
		SELECT public_view_enabled FROM dashboard_settings WHERE owner_id = $1
	`, targetID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return nil, gateway.ErrProxyDenied
	}
	if err != nil {
		return nil, fmt.Errorf("check public viewing: %w", err)
	}
	if !enabled {
		return nil, gateway.ErrProxyDenied
	}
	return g.FetchOwnerAggregation(ctx, targetID, gateway.Filters{})
}

func (g *Gateway) fetchCampaigns(ctx context.Context, ownerID, projectID string) ([]domain.Campaign, error) {
	q := `
		SELECT id, owner_id, project_id, name, channel, status,
		       COALESCE(budget_total, 0), COALESCE(budget_spent, 0),
		       created_at, updated_at
		FROM campaigns
		WHERE owner_id = $1`
	args := []interface{}{ownerID}
	if projectID != "" {
		q += ` AND project_id = $2`
		args = append(args, projectID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.ProjectID, &c.Name, &c.Channel, &c.Status,
			&c.BudgetTotal, &c.BudgetSpent, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (g *Gateway) fetchSummaries(ctx context.Context, ownerID string, p *gateway.AggregationPayload) error {
	rows, err := g.db.QueryContext(ctx, `
		SELECT s.campaign_id,
		       COALESCE(s.total_impressions, 0), COALESCE(s.total_clicks, 0),
		       COALESCE(s.total_conversions, 0), COALESCE(s.total_leads, 0),
		       COALESCE(s.total_cost, 0), COALESCE(s.total_revenue, 0),
		       COALESCE(s.total_sessions, 0),
		       COALESCE(s.avg_ctr, 0), COALESCE(s.avg_cpc, 0),
		       COALESCE(s.avg_cpa, 0), COALESCE(s.calc_roas, 0)
		FROM metrics_summaries s
		JOIN campaigns c ON c.id = s.campaign_id
		WHERE c.owner_id = $1
	`, ownerID)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.MetricsSummary
		if err := rows.Scan(
			&s.CampaignID,
			&s.TotalImpressions, &s.TotalClicks, &s.TotalConversions, &s.TotalLeads,
			&s.TotalCost, &s.TotalRevenue, &s.TotalSessions,
			&s.AvgCTR, &s.AvgCPC, &s.AvgCPA, &s.CalcROAS,
		); err != nil {
			return fmt.Errorf("scan summary: %w", err)
		}
		sCopy := s
		p.SummariesByCampaign[s.CampaignID] = &sCopy
	}
	return rows.Err()
}

// fetchLatestSnapshots selects one snapshot per campaign. DISTINCT ON with
// the (period_end DESC, created_at DESC) ordering is what backs the
// "first row per campaign is the latest" contract of the payload.
func (g *Gateway) fetchLatestSnapshots(ctx context.Context, ownerID string, p *gateway.AggregationPayload) error {
	rows, err := g.db.QueryContext(ctx, `
		SELECT DISTINCT ON (m.campaign_id)
		       m.id, m.campaign_id, c.channel, m.period_end, m.created_at,
		       COALESCE(m.impressions, 0), COALESCE(m.clicks, 0),
		       COALESCE(m.conversions, 0), COALESCE(m.cost, 0),
		       COALESCE(m.revenue, 0), COALESCE(m.ctr, 0),
		       COALESCE(m.cpc, 0), COALESCE(m.cpa, 0), COALESCE(m.roas, 0),
		       COALESCE(m.sessions, 0), COALESCE(m.leads, 0),
		       COALESCE(m.leads_month, 0), COALESCE(m.clients_web, 0),
		       COALESCE(m.revenue_web, 0), COALESCE(m.avg_ticket, 0),
		       COALESCE(m.google_ads_cost, 0), COALESCE(m.cac_month, 0),
		       COALESCE(m.ltv, 0), COALESCE(m.cac_ltv_ratio, 0),
		       COALESCE(m.cac_ltv_benchmark, 0), COALESCE(m.roi_accumulated, 0),
		       COALESCE(m.roi_period_months, 0), COALESCE(m.mql_rate, 0),
		       COALESCE(m.sql_rate, 0), COALESCE(m.quality_score, 0),
		       COALESCE(m.avg_position, 0), COALESCE(m.search_impression_share, 0),
		       COALESCE(m.reach, 0), COALESCE(m.frequency, 0),
		       COALESCE(m.cpl, 0), COALESCE(m.engagement_rate, 0),
		       COALESCE(m.video_views, 0), COALESCE(m.vtr, 0)
		FROM metric_snapshots m
		JOIN campaigns c ON c.id = m.campaign_id
		WHERE c.owner_id = $1
		ORDER BY m.campaign_id, m.period_end DESC, m.created_at DESC
	`, ownerID)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap domain.MetricSnapshot
		var channel domain.Channel
		var ge domain.GoogleSnapshotExt
		var meta domain.MetaSnapshotExt
		var li domain.LinkedInSnapshotExt
		var tk domain.TikTokSnapshotExt
		var extLeads float64

		if err := rows.Scan(
			&snap.ID, &snap.CampaignID, &channel, &snap.PeriodEnd, &snap.CreatedAt,
			&snap.Impressions, &snap.Clicks, &snap.Conversions, &snap.Cost,
			&snap.Revenue, &snap.CTR, &snap.CPC, &snap.CPA, &snap.ROAS,
			&ge.Sessions, &extLeads,
			&ge.LeadsMonth, &ge.ClientsWeb, &ge.RevenueWeb, &ge.AvgTicket,
			&ge.GoogleAdsCost, &ge.CACMonth, &ge.LTV, &ge.CACLTVRatio,
			&ge.CACLTVBenchmark, &ge.ROIAccumulated, &ge.ROIPeriodMonths,
			&ge.MQLRate, &ge.SQLRate, &ge.QualityScore, &ge.AvgPosition,
			&ge.SearchImpressionShare,
			&meta.Reach, &meta.Frequency,
			&li.CPL, &li.EngagementRate,
			&tk.VideoViews, &tk.VTR,
		); err != nil {
			return fmt.Errorf("scan snapshot: %w", err)
		}

		// Attach exactly one extension, keyed by the campaign's channel.
		switch channel {
		case domain.ChannelGoogle:
			ge.Leads = extLeads
			snap.Google = &ge
		case domain.ChannelMeta:
			snap.Meta = &meta
		case domain.ChannelLinkedIn:
			li.Leads = extLeads
			snap.LinkedIn = &li
		case domain.ChannelTikTok:
			snap.TikTok = &tk
		}

		// DISTINCT ON already yields one row per campaign; first wins.
		if _, seen := p.LatestMetricsByCampaign[snap.CampaignID]; !seen {
			snapCopy := snap
			p.LatestMetricsByCampaign[snap.CampaignID] = &snapCopy
		}
	}
	return rows.Err()
}

func (g *Gateway) fetchAllocations(ctx context.Context, ownerID string) ([]domain.BudgetAllocation, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, owner_id, month, year,
		       COALESCE(planned_budget, 0), COALESCE(actual_spent, 0), channel
		FROM budget_allocations
		WHERE owner_id = $1
		ORDER BY year, month, channel
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetAllocation
	for rows.Next() {
		var a domain.BudgetAllocation
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Month, &a.Year, &a.PlannedBudget, &a.ActualSpent, &a.Channel); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (g *Gateway) fetchMonthlyActuals(ctx context.Context, ownerID string, p *gateway.AggregationPayload) error {
	rows, err := g.db.QueryContext(ctx, `
		SELECT to_char(make_date(year, month, 1), 'YYYY-MM') AS period,
		       SUM(COALESCE(actual_spent, 0))
		FROM budget_allocations
		WHERE owner_id = $1
		GROUP BY period
	`, ownerID)
	if err != nil {
		return fmt.Errorf("monthly actuals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var period string
		var spent float64
		if err := rows.Scan(&period, &spent); err != nil {
			return fmt.Errorf("scan monthly actual: %w", err)
		}
		p.MonthlyActuals[period] = spent
	}
	return rows.Err()
}
