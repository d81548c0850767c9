package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/utils"
	"gorm.io/gorm"
)

// CampaignRunRepositoryImpl implements the CampaignRunRepository interface
type CampaignRunRepositoryImpl struct {
	*BaseRepository[models.CampaignRun, models.CampaignRunFilter]
}

// NewCampaignRunRepository creates a new campaign run repository
func NewCampaignRunRepository(db *gorm.DB) CampaignRunRepository {
	return &CampaignRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignRun, models.CampaignRunFilter](db),
	}
}

// LatestByCampaign retrieves the most recent run of a campaign
func (r *CampaignRunRepositoryImpl) LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	filter := models.CampaignRunFilter{CampaignID: &campaignID}
	runs, err := r.ByFilter(ctx, filter, "started_at DESC", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest campaign run: %w", err)
	}

	if len(runs) == 0 {
		return nil, nil
	}

	return runs[0], nil
}

// MarkFinished records the finish instant of a run
func (r *CampaignRunRepositoryImpl) MarkFinished(ctx context.Context, id uint) error {
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
	err = db.Model(&models.CampaignRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"finished_at": now,
			"updated_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark campaign run finished: %w", err)
	}

	return nil
}

// ByFilter retrieves campaign runs based on filter criteria
func (r *CampaignRunRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	db := r.getDB(ctx)

	var runs []*models.CampaignRun
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

	err := query.Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign runs by filter: %w", err)
	}

	return runs, nil
}

// Count returns the number of campaign runs matching the filter
func (r *CampaignRunRepositoryImpl) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.CampaignRun{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count campaign runs: %w", err)
	}

	return count, nil
}

// Exists checks if any campaign run matching the filter exists
func (r *CampaignRunRepositoryImpl) Exists(ctx context.Context, filter models.CampaignRunFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRunRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignRunFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
