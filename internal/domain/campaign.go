package domain

import "time"

// Channel enumerates the ad platforms a campaign runs on.
type Channel string

const (
	ChannelGoogle   Channel = "google"
	ChannelMeta     Channel = "meta"
	ChannelLinkedIn Channel = "linkedin"
	ChannelTikTok   Channel = "tiktok"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
	CampaignDraft     CampaignStatus = "draft"
)

// Campaign represents a paid marketing campaign owned by a single tenant.
//
// BudgetSpent is the live spend figure mutated by the ingestion subsystems,
// not a period-locked ledger value; pacing intentionally reads it so the
// dashboard reflects real-time spend.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	OwnerID     string         `json:"owner_id" db:"owner_id"`
	ProjectID   *string        `json:"project_id" db:"project_id"`
	Name        string         `json:"name" db:"name"`
	Channel     Channel        `json:"channel" db:"channel"`
	Status      CampaignStatus `json:"status" db:"status"`
	BudgetTotal float64        `json:"budget_total" db:"budget_total"`
	BudgetSpent float64        `json:"budget_spent" db:"budget_spent"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// IsLive returns true if the campaign counts toward live pacing.
func (c *Campaign) IsLive() bool {
	return c.Status == CampaignActive || c.Status == CampaignPaused
}
