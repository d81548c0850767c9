package models

import (
	"time"

	"github.com/amirphl/peyk/utils"
	"gorm.io/gorm"
)

// Contact represents a single local contact known to the messaging session.
// Address is the transport-level recipient identifier (phone-like or chat
// group JID); it is treated as opaque by the engine. IsValid is computed by
// the contact-management side during import and never re-checked here.
type Contact struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Address     string  `gorm:"not null;uniqueIndex:uk_contacts_address" json:"address"`
	DisplayName *string `json:"display_name,omitempty"`
	IsValid     bool    `gorm:"not null;default:true;index:idx_contacts_is_valid" json:"is_valid"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Contact) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID      *uint   `json:"id,omitempty"`
	Address *string `json:"address,omitempty"`
	IsValid *bool   `json:"is_valid,omitempty"`
	GroupID *uint   `json:"group_id,omitempty"`
}
