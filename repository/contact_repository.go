package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/peyk/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements the ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db),
	}
}

// ByAddress retrieves a contact by its messaging address
func (r *ContactRepositoryImpl) ByAddress(ctx context.Context, address string) (*models.Contact, error) {
	filter := models.ContactFilter{Address: &address}
	contacts, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by address: %w", err)
	}

	if len(contacts) == 0 {
		return nil, nil
	}

	return contacts[0], nil
}

// ListByGroup retrieves the contacts of a group in stable membership order.
// Order follows the member row ID, so repeated reads of an unchanged group
// yield the same sequence.
func (r *ContactRepositoryImpl) ListByGroup(ctx context.Context, groupID uint) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
	err := db.Model(&models.Contact{}).
		Joins("JOIN contact_group_members ON contact_group_members.contact_id = contacts.id").
		Where("contact_group_members.group_id = ?", groupID).
		Order("contact_group_members.id ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts by group: %w", err)
	}

	return contacts, nil
}

// ListAllLocal retrieves every stored contact ordered by creation
func (r *ContactRepositoryImpl) ListAllLocal(ctx context.Context) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
	err := db.Model(&models.Contact{}).
		Order("id ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	return contacts, nil
}

// ByFilter retrieves contacts based on filter criteria
func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
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

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find contacts by filter: %w", err)
	}

	return contacts, nil
}

// Count returns the number of contacts matching the filter
func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Contact{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	return count, nil
}

// Exists checks if any contact matching the filter exists
func (r *ContactRepositoryImpl) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Address != nil {
		db = db.Where("address = ?", *filter.Address)
	}
	if filter.IsValid != nil {
		db = db.Where("is_valid = ?", *filter.IsValid)
	}
	if filter.GroupID != nil {
		db = db.Joins("JOIN contact_group_members ON contact_group_members.contact_id = contacts.id").
			Where("contact_group_members.group_id = ?", *filter.GroupID)
	}
	return db
}
