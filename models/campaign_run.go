package models

import (
	"time"

	"github.com/lib/pq"
)

// CampaignRun represents one execution of a campaign with its resolved target
// list. The list is frozen at the draft->running transition and re-used
// verbatim on resume, so membership changes to the underlying group never
// affect an in-progress run.
// Table: campaign_runs
// Indices: campaign_id
// Array columns use PostgreSQL text[]
type CampaignRun struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CampaignID uint `gorm:"not null;index:idx_campaign_runs_campaign_id" json:"campaign_id"`

	// Ordered, de-duplicated recipient addresses; TargetNames is positionally
	// aligned with Targets (empty string when the contact has no display name).
	Targets     pq.StringArray `gorm:"type:text[];not null" json:"targets"`
	TargetNames pq.StringArray `gorm:"type:text[]" json:"target_names,omitempty"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (CampaignRun) TableName() string { return "campaign_runs" }

// CampaignRunFilter provides filter fields for repository queries
type CampaignRunFilter struct {
	ID            *uint
	CampaignID    *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
