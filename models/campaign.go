package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a terminal state
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// TargetKind identifies which collection a campaign's recipients come from
type TargetKind string

const (
	TargetKindContactGroup TargetKind = "contact_group"
	TargetKindChatGroup    TargetKind = "chat_group"
	TargetKindAllContacts  TargetKind = "all_contacts"
)

// Valid checks if the target kind is valid
func (k TargetKind) Valid() bool {
	switch k {
	case TargetKindContactGroup, TargetKindChatGroup, TargetKindAllContacts:
		return true
	default:
		return false
	}
}

// TargetSpec is the tagged variant selecting a campaign's audience.
// Exactly one selector is meaningful per kind: GroupID for contact_group,
// ChatGroupJID for chat_group, neither for all_contacts.
type TargetSpec struct {
	Kind         TargetKind `json:"kind"`
	GroupID      *uint      `json:"group_id,omitempty"`
	ChatGroupJID *string    `json:"chat_group_jid,omitempty"`
}

// ScheduleMode selects how a campaign's send window is evaluated
type ScheduleMode string

const (
	ScheduleModeImmediate ScheduleMode = "immediate"
	ScheduleModeAt        ScheduleMode = "at"
	ScheduleModeWindow    ScheduleMode = "window"
)

// Valid checks if the schedule mode is valid
func (m ScheduleMode) Valid() bool {
	switch m {
	case ScheduleModeImmediate, ScheduleModeAt, ScheduleModeWindow:
		return true
	default:
		return false
	}
}

// ScheduleWindow names a recurring set of eligible local hours
type ScheduleWindow string

const (
	ScheduleWindowOddHours  ScheduleWindow = "odd_hours"
	ScheduleWindowEvenHours ScheduleWindow = "even_hours"
	ScheduleWindowDaytime   ScheduleWindow = "daytime"
	ScheduleWindowNighttime ScheduleWindow = "nighttime"
)

// Valid checks if the schedule window is valid
func (w ScheduleWindow) Valid() bool {
	switch w {
	case ScheduleWindowOddHours, ScheduleWindowEvenHours, ScheduleWindowDaytime, ScheduleWindowNighttime:
		return true
	default:
		return false
	}
}

// Contains reports whether the given local hour falls inside the window.
// Daytime covers 08..19, nighttime is the complement.
func (w ScheduleWindow) Contains(hour int) bool {
	switch w {
	case ScheduleWindowOddHours:
		return hour%2 == 1
	case ScheduleWindowEvenHours:
		return hour%2 == 0
	case ScheduleWindowDaytime:
		return hour >= 8 && hour < 20
	case ScheduleWindowNighttime:
		return hour < 8 || hour >= 20
	default:
		return false
	}
}

// ScheduleSpec describes when a campaign is allowed to send
type ScheduleSpec struct {
	Mode   ScheduleMode   `json:"mode"`
	At     *time.Time     `json:"at,omitempty"`
	Window ScheduleWindow `json:"window,omitempty"`
}

// CampaignSpec represents the immutable JSON specification of a campaign.
// It is fixed at creation time; a clone creates a new campaign copying only
// this spec.
type CampaignSpec struct {
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	MediaURL *string `json:"media_url,omitempty"`

	Target   TargetSpec   `json:"target"`
	Schedule ScheduleSpec `json:"schedule"`

	// Pacing bounds in seconds; each inter-send delay is drawn uniformly
	// from [MinInterval, MaxInterval].
	MinInterval uint `json:"min_interval"`
	MaxInterval uint `json:"max_interval"`
}

// Value implements the driver.Valuer interface for CampaignSpec
func (s CampaignSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for CampaignSpec
func (s *CampaignSpec) Scan(value any) error {
	if value == nil {
		*s = CampaignSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignSpec", value)
	}

	return json.Unmarshal(bytes, s)
}

// Campaign represents a bulk messaging campaign in the database.
// Spec is immutable after creation; the runtime columns (status, cursor and
// counters) are owned by the dispatch loop while the campaign is running.
type Campaign struct {
	ID     uint           `gorm:"primaryKey" json:"id"`
	UUID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	Status CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`
	Spec   CampaignSpec   `gorm:"type:jsonb;not null" json:"spec"`

	// Runtime state; Cursor == SentCount + FailedCount while running.
	Cursor        uint    `gorm:"not null;default:0" json:"cursor"`
	SentCount     uint    `gorm:"not null;default:0" json:"sent_count"`
	FailedCount   uint    `gorm:"not null;default:0" json:"failed_count"`
	TotalTargets  uint    `gorm:"not null;default:0" json:"total_targets"`
	FailureReason *string `gorm:"type:text" json:"failure_reason,omitempty"`

	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status.
// There is no path back to draft; terminal campaigns can only be cloned.
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled ||
			newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusFailed
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusFailed
	case CampaignStatusRunning:
		return newStatus == CampaignStatusPaused ||
			newStatus == CampaignStatusCompleted ||
			newStatus == CampaignStatusFailed
	case CampaignStatusPaused:
		return newStatus == CampaignStatusRunning ||
			newStatus == CampaignStatusFailed
	default:
		return false
	}
}

// MarkSent records a successful delivery for the target at the cursor
func (c *Campaign) MarkSent() {
	c.SentCount++
	c.Cursor++
	now := utils.UTCNow()
	c.LastActivityAt = &now
}

// MarkFailed records a failed delivery for the target at the cursor
func (c *Campaign) MarkFailed() {
	c.FailedCount++
	c.Cursor++
	now := utils.UTCNow()
	c.LastActivityAt = &now
}

// Processed returns how many targets have an outcome recorded
func (c *Campaign) Processed() uint {
	return c.SentCount + c.FailedCount
}

// Done reports whether every resolved target has an outcome
func (c *Campaign) Done() bool {
	return c.TotalTargets > 0 && c.Processed() >= c.TotalTargets
}

// CloneSpec creates a fresh draft campaign copying only the immutable spec
func (c *Campaign) CloneSpec() *Campaign {
	return &Campaign{
		UUID:   uuid.New(),
		Status: CampaignStatusDraft,
		Spec:   c.Spec,
	}
}

// CampaignStateUpdate is the partial update the dispatch loop persists after
// every mutation, so the stored record always reflects the last known state.
// Nil fields are left untouched.
type CampaignStateUpdate struct {
	Status         *CampaignStatus
	Cursor         *uint
	SentCount      *uint
	FailedCount    *uint
	TotalTargets   *uint
	FailureReason  *string
	LastActivityAt *time.Time
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	TargetKind    *TargetKind     `json:"target_kind,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}

// GetStatusDisplayName returns a human-readable status name
func (c *Campaign) GetStatusDisplayName() string {
	switch c.Status {
	case CampaignStatusDraft:
		return "Draft"
	case CampaignStatusScheduled:
		return "Scheduled"
	case CampaignStatusRunning:
		return "Running"
	case CampaignStatusPaused:
		return "Paused"
	case CampaignStatusCompleted:
		return "Completed"
	case CampaignStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
