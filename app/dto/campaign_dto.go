package dto

import (
	"time"
)

// TargetDTO describes which audience a campaign addresses
type TargetDTO struct {
	Kind         string  `json:"kind" validate:"required,oneof=contact_group chat_group all_contacts"`
	GroupID      *uint   `json:"group_id,omitempty" validate:"omitempty,gt=0"`
	ChatGroupJID *string `json:"chat_group_jid,omitempty" validate:"omitempty,min=1"`
}

// ScheduleDTO describes when a campaign is allowed to dispatch
type ScheduleDTO struct {
	Mode   string     `json:"mode" validate:"required,oneof=immediate at window"`
	At     *time.Time `json:"at,omitempty"`
	Window *string    `json:"window,omitempty" validate:"omitempty,oneof=odd_hours even_hours daytime nighttime"`
}

// CreateCampaignRequest represents the request to create a new campaign draft
type CreateCampaignRequest struct {
	Title       string      `json:"title" validate:"required,min=1,max=255"`
	Message     string      `json:"message" validate:"required,min=1"`
	MediaURL    *string     `json:"media_url,omitempty" validate:"omitempty,url"`
	Target      TargetDTO   `json:"target" validate:"required"`
	Schedule    ScheduleDTO `json:"schedule" validate:"required"`
	MinInterval uint        `json:"min_interval" validate:"gte=0"`
	MaxInterval uint        `json:"max_interval" validate:"gte=0"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// GetCampaignRequest represents the request to fetch a campaign
type GetCampaignRequest struct {
	UUID string `json:"-"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	UUID          string      `json:"uuid"`
	Title         string      `json:"title"`
	Message       string      `json:"message"`
	MediaURL      *string     `json:"media_url,omitempty"`
	Target        TargetDTO   `json:"target"`
	Schedule      ScheduleDTO `json:"schedule"`
	MinInterval   uint        `json:"min_interval"`
	MaxInterval   uint        `json:"max_interval"`
	Status        string      `json:"status"`
	StatusDisplay string      `json:"status_display"`
	Cursor        uint        `json:"cursor"`
	SentCount     uint        `json:"sent_count"`
	FailedCount   uint        `json:"failed_count"`
	TotalTargets  uint        `json:"total_targets"`
	FailureReason *string     `json:"failure_reason,omitempty"`
	LastActivity  *time.Time  `json:"last_activity_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     *time.Time  `json:"updated_at,omitempty"`
}

// ListCampaignsRequest represents the request to list campaigns
type ListCampaignsRequest struct {
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled running paused completed failed"`
	Page     int     `json:"page" validate:"omitempty,gte=1"`
	PageSize int     `json:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// ListCampaignsResponse represents a page of campaigns
type ListCampaignsResponse struct {
	Items      []CampaignResponse `json:"items"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// CloneCampaignResponse represents the response to cloning a finished campaign
type CloneCampaignResponse struct {
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// CampaignProgressResponse represents a point-in-time progress snapshot
type CampaignProgressResponse struct {
	UUID         string     `json:"uuid"`
	Status       string     `json:"status"`
	Cursor       uint       `json:"cursor"`
	SentCount    uint       `json:"sent_count"`
	FailedCount  uint       `json:"failed_count"`
	TotalTargets uint       `json:"total_targets"`
	LastActivity *time.Time `json:"last_activity_at,omitempty"`
}

// AuditLogResponse represents an audit trail entry in API responses
type AuditLogResponse struct {
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListAuditLogsResponse represents a page of audit entries for a campaign
type ListAuditLogsResponse struct {
	Items []AuditLogResponse `json:"items"`
	Total int64              `json:"total"`
}

// ProgressEvent is the payload published after every dispatch state change.
// The same shape goes to in-process subscribers, the SSE stream, and Redis.
type ProgressEvent struct {
	CampaignUUID string    `json:"campaign_uuid"`
	Status       string    `json:"status"`
	Cursor       uint      `json:"cursor"`
	SentCount    uint      `json:"sent_count"`
	FailedCount  uint      `json:"failed_count"`
	TotalTargets uint      `json:"total_targets"`
	Target       string    `json:"target,omitempty"`
	Sent         bool      `json:"sent"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
