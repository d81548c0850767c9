package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/peyk/models"
	"gorm.io/gorm"
)

// ContactGroupRepositoryImpl implements the ContactGroupRepository interface
type ContactGroupRepositoryImpl struct {
	*BaseRepository[models.ContactGroup, models.ContactGroupFilter]
}

// NewContactGroupRepository creates a new contact group repository
func NewContactGroupRepository(db *gorm.DB) ContactGroupRepository {
	return &ContactGroupRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ContactGroup, models.ContactGroupFilter](db),
	}
}

// ByName retrieves a contact group by its unique name
func (r *ContactGroupRepositoryImpl) ByName(ctx context.Context, name string) (*models.ContactGroup, error) {
	filter := models.ContactGroupFilter{Name: &name}
	groups, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find contact group by name: %w", err)
	}

	if len(groups) == 0 {
		return nil, nil
	}

	return groups[0], nil
}

// AddMember appends a contact to a group. Membership order follows
// insertion order of the member rows.
func (r *ContactGroupRepositoryImpl) AddMember(ctx context.Context, groupID, contactID uint) error {
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

	member := &models.ContactGroupMember{
		GroupID:   groupID,
		ContactID: contactID,
	}

	err = db.Create(member).Error
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	return nil
}

// ByFilter retrieves contact groups based on filter criteria
func (r *ContactGroupRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactGroupFilter, orderBy string, limit, offset int) ([]*models.ContactGroup, error) {
	db := r.getDB(ctx)

	var groups []*models.ContactGroup
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

	err := query.Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find contact groups by filter: %w", err)
	}

	return groups, nil
}

// Count returns the number of contact groups matching the filter
func (r *ContactGroupRepositoryImpl) Count(ctx context.Context, filter models.ContactGroupFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.ContactGroup{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count contact groups: %w", err)
	}

	return count, nil
}

// Exists checks if any contact group matching the filter exists
func (r *ContactGroupRepositoryImpl) Exists(ctx context.Context, filter models.ContactGroupFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ContactGroupRepositoryImpl) applyFilter(db *gorm.DB, filter models.ContactGroupFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	return db
}
