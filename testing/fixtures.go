package testing

import (
	"context"

	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
)

// CampaignOption mutates a fixture campaign before it is stored
type CampaignOption func(*models.Campaign)

// WithStatus sets the fixture campaign status
func WithStatus(status models.CampaignStatus) CampaignOption {
	return func(c *models.Campaign) { c.Status = status }
}

// WithTarget sets the fixture target spec
func WithTarget(target models.TargetSpec) CampaignOption {
	return func(c *models.Campaign) { c.Spec.Target = target }
}

// WithSchedule sets the fixture schedule spec
func WithSchedule(schedule models.ScheduleSpec) CampaignOption {
	return func(c *models.Campaign) { c.Spec.Schedule = schedule }
}

// WithIntervals sets the fixture pacing bounds in seconds
func WithIntervals(minSec, maxSec uint) CampaignOption {
	return func(c *models.Campaign) {
		c.Spec.MinInterval = minSec
		c.Spec.MaxInterval = maxSec
	}
}

// NewCampaign builds and stores a fixture campaign. Defaults: draft,
// all_contacts target, immediate schedule, zero-second pacing so dispatch
// loop tests run without real sleeps.
func NewCampaign(repo *MemoryCampaignRepository, opts ...CampaignOption) *models.Campaign {
	c := &models.Campaign{
		UUID:   uuid.New(),
		Status: models.CampaignStatusDraft,
		Spec: models.CampaignSpec{
			Title:   "fixture campaign",
			Message: "hello there",
			Target: models.TargetSpec{
				Kind: models.TargetKindAllContacts,
			},
			Schedule: models.ScheduleSpec{
				Mode: models.ScheduleModeImmediate,
			},
			MinInterval: 0,
			MaxInterval: 0,
		},
		CreatedAt: utils.UTCNow(),
	}

	for _, opt := range opts {
		opt(c)
	}

	_ = repo.Save(context.Background(), c)
	return c
}

// SeedContacts registers n valid contacts and returns their addresses
func SeedContacts(repo *MemoryContactRepository, addresses ...string) []string {
	for _, addr := range addresses {
		repo.AddContact(addr, "", true)
	}
	return addresses
}
