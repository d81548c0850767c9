package models

import (
	"time"

	"github.com/amirphl/peyk/utils"
	"gorm.io/gorm"
)

// ContactGroup represents a named collection of contacts used as a campaign
// audience. Membership order is the insertion order of contact_group_members
// and is the order the dispatch loop walks.
type ContactGroup struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex:uk_contact_groups_name" json:"name"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (ContactGroup) TableName() string {
	return "contact_groups"
}

// BeforeCreate is called before creating a new record
func (g *ContactGroup) BeforeCreate(tx *gorm.DB) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (g *ContactGroup) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	g.UpdatedAt = &now
	return nil
}

// ContactGroupMember joins contacts to groups. The auto-increment ID doubles
// as the stable membership ordering.
type ContactGroupMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"not null;index:idx_group_members_group_id;uniqueIndex:uk_group_members_pair,priority:1" json:"group_id"`
	ContactID uint      `gorm:"not null;uniqueIndex:uk_group_members_pair,priority:2" json:"contact_id"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Group   *ContactGroup `gorm:"foreignKey:GroupID;references:ID" json:"group,omitempty"`
	Contact *Contact      `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

// TableName returns the table name for the model
func (ContactGroupMember) TableName() string {
	return "contact_group_members"
}

// ContactGroupFilter represents filter criteria for contact groups
type ContactGroupFilter struct {
	ID   *uint   `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}
