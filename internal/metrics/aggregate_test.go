package metrics

import (
	"math"
	"reflect"
	"testing"

	"github.com/stratify/live-metrics/internal/domain"
)

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, nil, nil)
	if got != (PortfolioTotals{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero value", got)
	}
}

func TestAggregate_AvgTicketFromWebFields(t *testing.T) {
	// Google campaign with live spend 1000, clients_web 10, revenue_web 5000
	// and no explicit avg_ticket resolves a portfolio average ticket of 500.
	campaigns := []domain.Campaign{
		{ID: "a", Channel: domain.ChannelGoogle, BudgetSpent: 1000},
	}
	latest := map[string]*domain.MetricSnapshot{
		"a": {CampaignID: "a", Google: &domain.GoogleSnapshotExt{ClientsWeb: 10, RevenueWeb: 5000}},
	}

	got := Aggregate(campaigns, nil, latest)

	if got.AvgTicket != 500 {
		t.Errorf("AvgTicket = %v, want 500", got.AvgTicket)
	}
	if got.MediaCost != 1000 {
		t.Errorf("MediaCost = %v, want budget_spent 1000", got.MediaCost)
	}
	if got.CAC != 100 {
		t.Errorf("CAC = %v, want 100", got.CAC)
	}
}

func TestAggregate_ManualLTVIsMaxNotSum(t *testing.T) {
	campaigns := []domain.Campaign{
		{ID: "a", Channel: domain.ChannelGoogle},
		{ID: "b", Channel: domain.ChannelGoogle},
	}
	latest := map[string]*domain.MetricSnapshot{
		"a": {CampaignID: "a", Google: &domain.GoogleSnapshotExt{LTV: 1000}},
		"b": {CampaignID: "b", Google: &domain.GoogleSnapshotExt{LTV: 1500}},
	}

	got := Aggregate(campaigns, nil, latest)

	if got.LTV != 1500 {
		t.Errorf("LTV = %v, want max 1500, not sum 2500", got.LTV)
	}
}

func TestAggregate_MediaCostFallbackChain(t *testing.T) {
	campaigns := []domain.Campaign{
		{ID: "spent", Channel: domain.ChannelMeta, BudgetSpent: 100},
		{ID: "summary", Channel: domain.ChannelMeta},
		{ID: "snap", Channel: domain.ChannelMeta},
		{ID: "gads", Channel: domain.ChannelGoogle},
		{ID: "none", Channel: domain.ChannelTikTok},
	}
	summaries := map[string]*domain.MetricsSummary{
		"summary": {CampaignID: "summary", TotalCost: 40},
	}
	latest := map[string]*domain.MetricSnapshot{
		"snap": {CampaignID: "snap", Cost: 25},
		"gads": {CampaignID: "gads", Google: &domain.GoogleSnapshotExt{GoogleAdsCost: 15}},
	}

	got := Aggregate(campaigns, summaries, latest)

	if got.MediaCost != 180 {
		t.Errorf("MediaCost = %v, want 100+40+25+15 = 180", got.MediaCost)
	}
}

func TestAggregate_ChannelAwareRevenue(t *testing.T) {
	// Google prefers web-specific snapshot fields; other channels prefer the
	// summary over the generic snapshot fields.
	campaigns := []domain.Campaign{
		{ID: "g", Channel: domain.ChannelGoogle},
		{ID: "m", Channel: domain.ChannelMeta},
	}
	summaries := map[string]*domain.MetricsSummary{
		"g": {CampaignID: "g", TotalRevenue: 111, TotalConversions: 3},
		"m": {CampaignID: "m", TotalRevenue: 200, TotalConversions: 4},
	}
	latest := map[string]*domain.MetricSnapshot{
		"g": {CampaignID: "g", Revenue: 999, Conversions: 9, Google: &domain.GoogleSnapshotExt{RevenueWeb: 300, ClientsWeb: 6}},
		"m": {CampaignID: "m", Revenue: 999, Conversions: 9},
	}

	got := Aggregate(campaigns, summaries, latest)

	if got.Revenue != 500 {
		t.Errorf("Revenue = %v, want 300 (google web) + 200 (meta summary) = 500", got.Revenue)
	}
	if got.Conversions != 10 {
		t.Errorf("Conversions = %v, want 6 + 4 = 10", got.Conversions)
	}
}

func TestAggregate_ZeroSpendGuards(t *testing.T) {
	// cac = 0 means the LTV:CAC ratio resolves to 0, never Inf.
	campaigns := []domain.Campaign{
		{ID: "a", Channel: domain.ChannelGoogle},
	}
	latest := map[string]*domain.MetricSnapshot{
		"a": {CampaignID: "a", Google: &domain.GoogleSnapshotExt{LTV: 1200}},
	}

	got := Aggregate(campaigns, nil, latest)

	if got.CAC != 0 {
		t.Fatalf("CAC = %v, want 0", got.CAC)
	}
	if got.CACLTVRatio != 0 {
		t.Errorf("CACLTVRatio = %v, want 0 when CAC is 0", got.CACLTVRatio)
	}
	if math.IsInf(got.CACLTVRatio, 0) || math.IsNaN(got.CACLTVRatio) {
		t.Errorf("CACLTVRatio = %v, must never be Inf/NaN", got.CACLTVRatio)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	campaigns := []domain.Campaign{
		{ID: "a", Channel: domain.ChannelGoogle, BudgetTotal: 5000, BudgetSpent: 1200},
		{ID: "b", Channel: domain.ChannelLinkedIn, BudgetTotal: 2000, BudgetSpent: 300},
	}
	summaries := map[string]*domain.MetricsSummary{
		"a": {CampaignID: "a", TotalImpressions: 10000, TotalClicks: 250, TotalSessions: 900},
		"b": {CampaignID: "b", TotalLeads: 12, TotalRevenue: 600},
	}
	latest := map[string]*domain.MetricSnapshot{
		"a": {CampaignID: "a", Google: &domain.GoogleSnapshotExt{LeadsMonth: 30, ClientsWeb: 4, RevenueWeb: 2400}},
	}

	first := Aggregate(campaigns, summaries, latest)
	for i := 0; i < 10; i++ {
		if got := Aggregate(campaigns, summaries, latest); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged: %+v != %+v", i, got, first)
		}
	}
}

func TestAggregate_MediaCostInvariant(t *testing.T) {
	campaigns := []domain.Campaign{
		{ID: "a", Channel: domain.ChannelMeta, BudgetSpent: -500}, // hostile input
		{ID: "b", Channel: domain.ChannelTikTok},
	}
	got := Aggregate(campaigns, nil, nil)
	if got.MediaCost < 0 || math.IsNaN(got.MediaCost) || math.IsInf(got.MediaCost, 0) {
		t.Errorf("MediaCost = %v, violates >= 0 / non-NaN invariant", got.MediaCost)
	}
}
