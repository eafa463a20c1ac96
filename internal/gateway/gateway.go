// Package gateway defines the data access contract for the live dashboard.
//
// The gateway is the only component allowed to touch the backend store. It
// exposes two read paths: an owner-direct path scoped to the caller's own
// tenant, and a proxy path executed server-side under a target identity so
// anonymous viewers never hold credentials. Implementations live in
// gateway/postgres.
package gateway

import (
	"context"
	"errors"

	"github.com/stratify/live-metrics/internal/domain"
)

// Sentinel errors for the gateway layer.
var (
	// ErrProxyDenied means the target identity exists but has public viewing
	// disabled. Callers must render this as an explicit denied state,
	// distinct from "no data yet".
	ErrProxyDenied = errors.New("target has disabled public viewing")
)

// Filters narrows an owner aggregation. The shareable view address carries at
// most a project scope.
type Filters struct {
	ProjectID string
}

// AggregationPayload is everything one dashboard render needs, fetched in a
// single round trip.
//
// Contract: any snapshot list backing LatestMetricsByCampaign is pre-sorted
// by (period_end DESC, created_at DESC), so the first row per campaign is the
// latest snapshot. Consumers rely on that ordering instead of re-sorting.
type AggregationPayload struct {
	Campaigns               []domain.Campaign                 `json:"campaigns"`
	SummariesByCampaign     map[string]*domain.MetricsSummary  `json:"summariesByCampaign"`
	LatestMetricsByCampaign map[string]*domain.MetricSnapshot  `json:"latestMetricsByCampaign"`
	Allocations             []domain.BudgetAllocation          `json:"allocations"`
	MonthlyActuals          map[string]float64                 `json:"monthlyActuals"` // keyed "YYYY-MM"
}

// Gateway is the data access contract. Implementations must be safe for
// concurrent use.
type Gateway interface {
	// FetchOwnerAggregation returns the aggregation payload for ownerID.
	// The caller's session identity must equal ownerID; queries are scoped
	// strictly to that tenant's records.
	FetchOwnerAggregation(ctx context.Context, ownerID string, f Filters) (*AggregationPayload, error)

	// FetchProxyAggregation runs the aggregation server-side under targetID
	// without caller credentials. Returns ErrProxyDenied when the target has
	// disabled public viewing.
	FetchProxyAggregation(ctx context.Context, targetID string) (*AggregationPayload, error)
}
