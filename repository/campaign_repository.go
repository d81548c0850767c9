package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	parsedUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign by UUID: %w", err)
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ByStatus retrieves campaigns by status with pagination
func (r *CampaignRepositoryImpl) ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{Status: &status}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// ListDueScheduled retrieves scheduled campaigns whose start instant has passed
func (r *CampaignRepositoryImpl) ListDueScheduled(ctx context.Context, limit int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := db.Model(&models.Campaign{}).
		Where("status = ?", models.CampaignStatusScheduled).
		Where("(spec->'schedule'->>'at') IS NULL OR (spec->'schedule'->>'at')::timestamptz <= ?", utils.UTCNow()).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list due scheduled campaigns: %w", err)
	}

	return campaigns, nil
}

// Update updates a campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Save(campaign).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	return nil
}

// UpdateState applies a partial runtime-state update to a campaign row.
// Only non-nil fields are written.
func (r *CampaignRepositoryImpl) UpdateState(ctx context.Context, id uint, update models.CampaignStateUpdate) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	values := map[string]any{
		"updated_at": utils.UTCNow(),
	}
	if update.Status != nil {
		values["status"] = *update.Status
	}
	if update.Cursor != nil {
		values["cursor"] = *update.Cursor
	}
	if update.SentCount != nil {
		values["sent_count"] = *update.SentCount
	}
	if update.FailedCount != nil {
		values["failed_count"] = *update.FailedCount
	}
	if update.TotalTargets != nil {
		values["total_targets"] = *update.TotalTargets
	}
	if update.FailureReason != nil {
		values["failure_reason"] = *update.FailureReason
	}
	if update.LastActivityAt != nil {
		values["last_activity_at"] = *update.LastActivityAt
	}

	err = db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign state: %w", err)
	}

	return nil
}

// Delete removes a campaign row
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Delete(&models.Campaign{}, id).Error
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	return nil
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find campaigns by filter: %w", err)
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	return count, nil
}

// Exists checks if any campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.TargetKind != nil {
		db = db.Where("spec->'target'->>'kind' = ?", string(*filter.TargetKind))
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
