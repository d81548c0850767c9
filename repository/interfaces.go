// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/peyk/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error)
	ListDueScheduled(ctx context.Context, limit int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	UpdateState(ctx context.Context, id uint, update models.CampaignStateUpdate) error
	Delete(ctx context.Context, id uint) error
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByAddress(ctx context.Context, address string) (*models.Contact, error)
	ListByGroup(ctx context.Context, groupID uint) ([]*models.Contact, error)
	ListAllLocal(ctx context.Context) ([]*models.Contact, error)
}

// ContactGroupRepository defines operations for contact groups
type ContactGroupRepository interface {
	Repository[models.ContactGroup, models.ContactGroupFilter]
	ByName(ctx context.Context, name string) (*models.ContactGroup, error)
	AddMember(ctx context.Context, groupID, contactID uint) error
}

// CampaignRunRepository defines operations for campaign runs
type CampaignRunRepository interface {
	Repository[models.CampaignRun, models.CampaignRunFilter]
	LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error)
	MarkFinished(ctx context.Context, id uint) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error)
}
