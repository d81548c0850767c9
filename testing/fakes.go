// Package testing provides in-memory test doubles for the campaign engine
package testing

import (
	"context"
	"sort"
	"sync"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/app/services"
	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
)

// MemoryCampaignRepository is an in-memory CampaignRepository
type MemoryCampaignRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Campaign
}

// NewMemoryCampaignRepository creates an empty in-memory campaign store
func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{rows: make(map[uint]*models.Campaign)}
}

func (r *MemoryCampaignRepository) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryCampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if campaign.ID == 0 {
		r.nextID++
		campaign.ID = r.nextID
	}
	if campaign.UUID == uuid.Nil {
		campaign.UUID = uuid.New()
	}
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = utils.UTCNow()
	}

	cp := *campaign
	r.rows[campaign.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) SaveBatch(ctx context.Context, campaigns []*models.Campaign) error {
	for _, c := range campaigns {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryCampaignRepository) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.UUID == parsed {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryCampaignRepository) ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status}, "", limit, offset)
}

func (r *MemoryCampaignRepository) ListDueScheduled(ctx context.Context, limit int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := utils.UTCNow()
	var out []*models.Campaign
	for _, c := range r.rows {
		if c.Status != models.CampaignStatusScheduled {
			continue
		}
		at := c.Spec.Schedule.At
		if at == nil || !at.After(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryCampaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *campaign
	r.rows[campaign.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) UpdateState(ctx context.Context, id uint, update models.CampaignStateUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.Cursor != nil {
		c.Cursor = *update.Cursor
	}
	if update.SentCount != nil {
		c.SentCount = *update.SentCount
	}
	if update.FailedCount != nil {
		c.FailedCount = *update.FailedCount
	}
	if update.TotalTargets != nil {
		c.TotalTargets = *update.TotalTargets
	}
	if update.FailureReason != nil {
		c.FailureReason = update.FailureReason
	}
	if update.LastActivityAt != nil {
		c.LastActivityAt = update.LastActivityAt
	}
	return nil
}

func (r *MemoryCampaignRepository) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *MemoryCampaignRepository) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Campaign
	for _, c := range r.rows {
		if filter.ID != nil && c.ID != *filter.ID {
			continue
		}
		if filter.UUID != nil && c.UUID != *filter.UUID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.TargetKind != nil && c.Spec.Target.Kind != *filter.TargetKind {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortByID(out)
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryCampaignRepository) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	all, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (r *MemoryCampaignRepository) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	return count > 0, err
}

func sortByID(campaigns []*models.Campaign) {
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].ID < campaigns[j].ID })
}

// MemoryRunRepository is an in-memory CampaignRunRepository
type MemoryRunRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.CampaignRun
}

// NewMemoryRunRepository creates an empty in-memory run store
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{rows: make(map[uint]*models.CampaignRun)}
}

func (r *MemoryRunRepository) ByID(ctx context.Context, id uint) (*models.CampaignRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.rows[id]; ok {
		cp := *run
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRunRepository) Save(ctx context.Context, run *models.CampaignRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == 0 {
		r.nextID++
		run.ID = r.nextID
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = utils.UTCNow()
	}
	cp := *run
	r.rows[run.ID] = &cp
	return nil
}

func (r *MemoryRunRepository) SaveBatch(ctx context.Context, runs []*models.CampaignRun) error {
	for _, run := range runs {
		if err := r.Save(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRunRepository) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.CampaignRun
	for _, run := range r.rows {
		if filter.ID != nil && run.ID != *filter.ID {
			continue
		}
		if filter.CampaignID != nil && run.CampaignID != *filter.CampaignID {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MemoryRunRepository) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	all, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(all)), err
}

func (r *MemoryRunRepository) Exists(ctx context.Context, filter models.CampaignRunFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	return count > 0, err
}

func (r *MemoryRunRepository) LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	runs, err := r.ByFilter(ctx, models.CampaignRunFilter{CampaignID: &campaignID}, "", 0, 0)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[len(runs)-1], nil
}

func (r *MemoryRunRepository) MarkFinished(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.rows[id]; ok {
		now := utils.UTCNow()
		run.FinishedAt = &now
	}
	return nil
}

// MemoryContactRepository is an in-memory ContactRepository backed by
// explicit group membership lists
type MemoryContactRepository struct {
	mu       sync.Mutex
	contacts []*models.Contact
	groups   map[uint][]uint // group ID -> ordered contact IDs
}

// NewMemoryContactRepository creates an empty in-memory contact store
func NewMemoryContactRepository() *MemoryContactRepository {
	return &MemoryContactRepository{groups: make(map[uint][]uint)}
}

// AddContact registers a contact and returns it
func (r *MemoryContactRepository) AddContact(address, name string, valid bool) *models.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &models.Contact{
		ID:      uint(len(r.contacts) + 1),
		Address: address,
		IsValid: valid,
	}
	if name != "" {
		c.DisplayName = &name
	}
	r.contacts = append(r.contacts, c)
	return c
}

// AddToGroup appends a contact to a group's membership
func (r *MemoryContactRepository) AddToGroup(groupID, contactID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupID] = append(r.groups[groupID], contactID)
}

func (r *MemoryContactRepository) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contact.ID == 0 {
		contact.ID = uint(len(r.contacts) + 1)
	}
	cp := *contact
	r.contacts = append(r.contacts, &cp)
	return nil
}

func (r *MemoryContactRepository) SaveBatch(ctx context.Context, contacts []*models.Contact) error {
	for _, c := range contacts {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryContactRepository) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Contact
	for _, c := range r.contacts {
		if filter.ID != nil && c.ID != *filter.ID {
			continue
		}
		if filter.Address != nil && c.Address != *filter.Address {
			continue
		}
		if filter.IsValid != nil && c.IsValid != *filter.IsValid {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryContactRepository) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	all, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(all)), err
}

func (r *MemoryContactRepository) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	return count > 0, err
}

func (r *MemoryContactRepository) ByAddress(ctx context.Context, address string) (*models.Contact, error) {
	contacts, err := r.ByFilter(ctx, models.ContactFilter{Address: &address}, "", 0, 0)
	if err != nil || len(contacts) == 0 {
		return nil, err
	}
	return contacts[0], nil
}

func (r *MemoryContactRepository) ListByGroup(ctx context.Context, groupID uint) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Contact
	for _, contactID := range r.groups[groupID] {
		for _, c := range r.contacts {
			if c.ID == contactID {
				cp := *c
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryContactRepository) ListAllLocal(ctx context.Context) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// MemoryGroupRepository is an in-memory ContactGroupRepository
type MemoryGroupRepository struct {
	mu       sync.Mutex
	groups   []*models.ContactGroup
	contacts *MemoryContactRepository
}

// NewMemoryGroupRepository creates a group store sharing membership with the
// given contact store
func NewMemoryGroupRepository(contacts *MemoryContactRepository) *MemoryGroupRepository {
	return &MemoryGroupRepository{contacts: contacts}
}

// AddGroup registers a group and returns it
func (r *MemoryGroupRepository) AddGroup(name string) *models.ContactGroup {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &models.ContactGroup{
		ID:   uint(len(r.groups) + 1),
		Name: name,
	}
	r.groups = append(r.groups, g)
	return g
}

func (r *MemoryGroupRepository) ByID(ctx context.Context, id uint) (*models.ContactGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.ID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryGroupRepository) Save(ctx context.Context, group *models.ContactGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group.ID == 0 {
		group.ID = uint(len(r.groups) + 1)
	}
	cp := *group
	r.groups = append(r.groups, &cp)
	return nil
}

func (r *MemoryGroupRepository) SaveBatch(ctx context.Context, groups []*models.ContactGroup) error {
	for _, g := range groups {
		if err := r.Save(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryGroupRepository) ByFilter(ctx context.Context, filter models.ContactGroupFilter, orderBy string, limit, offset int) ([]*models.ContactGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ContactGroup
	for _, g := range r.groups {
		if filter.ID != nil && g.ID != *filter.ID {
			continue
		}
		if filter.Name != nil && g.Name != *filter.Name {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryGroupRepository) Count(ctx context.Context, filter models.ContactGroupFilter) (int64, error) {
	all, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(all)), err
}

func (r *MemoryGroupRepository) Exists(ctx context.Context, filter models.ContactGroupFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	return count > 0, err
}

func (r *MemoryGroupRepository) ByName(ctx context.Context, name string) (*models.ContactGroup, error) {
	groups, err := r.ByFilter(ctx, models.ContactGroupFilter{Name: &name}, "", 0, 0)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return groups[0], nil
}

func (r *MemoryGroupRepository) AddMember(ctx context.Context, groupID, contactID uint) error {
	r.contacts.AddToGroup(groupID, contactID)
	return nil
}

// MemoryAuditRepository is an in-memory AuditLogRepository
type MemoryAuditRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []*models.AuditLog
}

// NewMemoryAuditRepository creates an empty in-memory audit store
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.rows {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryAuditRepository) Save(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *MemoryAuditRepository) SaveBatch(ctx context.Context, entries []*models.AuditLog) error {
	for _, e := range entries {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryAuditRepository) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.AuditLog
	for _, l := range r.rows {
		if filter.CampaignID != nil && (l.CampaignID == nil || *l.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.Action != nil && l.Action != *filter.Action {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryAuditRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	all, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(all)), err
}

func (r *MemoryAuditRepository) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	return count > 0, err
}

func (r *MemoryAuditRepository) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{CampaignID: &campaignID}, "", limit, offset)
}

// Actions returns the recorded action names in insertion order
func (r *MemoryAuditRepository) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.rows))
	for _, l := range r.rows {
		out = append(out, l.Action)
	}
	return out
}

// FakeTransport is a scripted Transport for dispatch loop tests. Outcomes
// are consumed per send in order; when the script runs out every send
// succeeds.
type FakeTransport struct {
	mu       sync.Mutex
	script   []error
	sent     []services.OutboundMessage
	readyErr error
}

// NewFakeTransport creates a transport whose sends all succeed
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Script sets the outcome of the next sends in order
func (t *FakeTransport) Script(outcomes ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, outcomes...)
}

// FailReady makes Ready return the given error
func (t *FakeTransport) FailReady(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyErr = err
}

func (t *FakeTransport) Ready(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyErr
}

func (t *FakeTransport) Send(ctx context.Context, msg services.OutboundMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = append(t.sent, msg)
	if len(t.script) > 0 {
		err := t.script[0]
		t.script = t.script[1:]
		return err
	}
	return nil
}

// Sent returns a copy of every message handed to the transport
func (t *FakeTransport) Sent() []services.OutboundMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]services.OutboundMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

// CapturePublisher records every published progress event
type CapturePublisher struct {
	mu     sync.Mutex
	events []dto.ProgressEvent
}

// NewCapturePublisher creates an empty capturing publisher
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(event dto.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns a copy of the captured events
func (p *CapturePublisher) Events() []dto.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dto.ProgressEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Last returns the most recent event, or a zero event when none were
// published
func (p *CapturePublisher) Last() dto.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return dto.ProgressEvent{}
	}
	return p.events[len(p.events)-1]
}
