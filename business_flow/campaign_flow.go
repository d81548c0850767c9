// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/repository"
	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignController starts and signals campaign runs. The engine manager
// implements it; the flow stays decoupled from the run loop internals.
type CampaignController interface {
	Start(ctx context.Context, campaign *models.Campaign) error
	Pause(ctx context.Context, campaignUUID uuid.UUID) error
	Cancel(ctx context.Context, campaignUUID uuid.UUID) error
}

// CampaignFlow handles the campaign lifecycle business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error)
	StartCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	PauseCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	ResumeCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	CancelCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	CloneCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CloneCampaignResponse, error)
	DeleteCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) error
	GetProgress(ctx context.Context, campaignUUID string) (*dto.CampaignProgressResponse, error)
	ListAuditLogs(ctx context.Context, campaignUUID string, limit, offset int) (*dto.ListAuditLogsResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	groupRepo    repository.ContactGroupRepository
	auditRepo    repository.AuditLogRepository
	controller   CampaignController
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	groupRepo repository.ContactGroupRepository,
	auditRepo repository.AuditLogRepository,
	controller CampaignController,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		groupRepo:    groupRepo,
		auditRepo:    auditRepo,
		controller:   controller,
		db:           db,
	}
}

// CreateCampaign validates the submitted spec and persists a new draft
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	spec, err := s.buildSpec(ctx, req)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	campaign := &models.Campaign{
		Status: models.CampaignStatusDraft,
		Spec:   *spec,
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = s.createAuditLog(ctx, nil, models.AuditActionCampaignCreationFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignCreated, msg, true, nil, metadata)

	return &dto.CreateCampaignResponse{
		UUID:      campaign.UUID.String(),
		Status:    string(campaign.Status),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetCampaign returns a single campaign by UUID
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, req.UUID)
	if err != nil {
		return nil, err
	}

	resp := toCampaignResponse(campaign)
	return &resp, nil
}

// ListCampaigns returns a page of campaigns, optionally filtered by status
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var filter models.CampaignFilter
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrStatusInvalid)
		}
		filter.Status = &status
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, toCampaignResponse(c))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &dto.ListCampaignsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// StartCampaign moves a draft into execution. Campaigns with a future fixed
// start time become scheduled; everything else begins running right away.
func (s *CampaignFlowImpl) StartCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusDraft {
		if campaign.Status == models.CampaignStatusRunning || campaign.Status == models.CampaignStatusScheduled {
			return nil, NewBusinessError("CAMPAIGN_ALREADY_ACTIVE", "Campaign is already active", ErrCampaignAlreadyActive)
		}
		return nil, NewBusinessError("CAMPAIGN_NOT_DRAFT", "Only draft campaigns can be started", ErrCampaignNotDraft)
	}

	sched := campaign.Spec.Schedule
	if sched.Mode == models.ScheduleModeAt && sched.At != nil && sched.At.After(utils.UTCNow()) {
		status := models.CampaignStatusScheduled
		if err := s.campaignRepo.UpdateState(ctx, campaign.ID, models.CampaignStateUpdate{Status: &status}); err != nil {
			return nil, NewBusinessError("CAMPAIGN_START_FAILED", "Failed to schedule campaign", err)
		}
		campaign.Status = status

		msg := fmt.Sprintf("Campaign scheduled for %s", sched.At.Format(time.RFC3339))
		_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignStarted, msg, true, nil, metadata)

		resp := toCampaignResponse(campaign)
		return &resp, nil
	}

	if err := s.controller.Start(ctx, campaign); err != nil {
		errMsg := fmt.Sprintf("Campaign start failed: %s", err.Error())
		_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignStartFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("CAMPAIGN_START_FAILED", "Failed to start campaign", err)
	}

	msg := fmt.Sprintf("Campaign started: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignStarted, msg, true, nil, metadata)

	return s.refreshed(ctx, campaign.UUID.String())
}

// PauseCampaign signals a running campaign to halt between sends
func (s *CampaignFlowImpl) PauseCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusRunning {
		return nil, NewBusinessError("CAMPAIGN_NOT_RUNNING", "Only running campaigns can be paused", ErrCampaignNotRunning)
	}

	if err := s.controller.Pause(ctx, campaign.UUID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_PAUSE_FAILED", "Failed to pause campaign", err)
	}

	msg := fmt.Sprintf("Campaign paused at cursor %d", campaign.Cursor)
	_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignPaused, msg, true, nil, metadata)

	return s.refreshed(ctx, campaign.UUID.String())
}

// ResumeCampaign restarts a paused campaign from its persisted cursor
func (s *CampaignFlowImpl) ResumeCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusPaused {
		return nil, NewBusinessError("CAMPAIGN_NOT_PAUSED", "Only paused campaigns can be resumed", ErrCampaignNotPaused)
	}

	if err := s.controller.Start(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_RESUME_FAILED", "Failed to resume campaign", err)
	}

	msg := fmt.Sprintf("Campaign resumed from cursor %d", campaign.Cursor)
	_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignResumed, msg, true, nil, metadata)

	return s.refreshed(ctx, campaign.UUID.String())
}

// CancelCampaign stops a running, paused or scheduled campaign for good.
// The campaign lands in failed with an operator-cancel reason.
func (s *CampaignFlowImpl) CancelCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if campaign.Status.Terminal() {
		return nil, NewBusinessError("CAMPAIGN_TERMINAL", "Campaign has already finished", ErrCampaignTerminal)
	}

	if err := s.controller.Cancel(ctx, campaign.UUID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Failed to cancel campaign", err)
	}

	msg := fmt.Sprintf("Campaign canceled at cursor %d", campaign.Cursor)
	_ = s.createAuditLog(ctx, campaign, models.AuditActionCampaignCanceled, msg, true, nil, metadata)

	return s.refreshed(ctx, campaign.UUID.String())
}

// CloneCampaign creates a fresh draft from a finished campaign's spec.
// Runtime state is not carried over.
func (s *CampaignFlowImpl) CloneCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) (*dto.CloneCampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if !campaign.Status.Terminal() {
		return nil, NewBusinessError("CAMPAIGN_NOT_FINISHED", "Only completed or failed campaigns can be cloned", ErrCampaignNotFinished)
	}

	clone := campaign.CloneSpec()

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, clone)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CLONE_FAILED", "Failed to clone campaign", err)
	}

	msg := fmt.Sprintf("Campaign cloned from %s as %s", campaign.UUID.String(), clone.UUID.String())
	_ = s.createAuditLog(ctx, clone, models.AuditActionCampaignCloned, msg, true, nil, metadata)

	return &dto.CloneCampaignResponse{
		UUID:      clone.UUID.String(),
		Status:    string(clone.Status),
		CreatedAt: clone.CreatedAt.Format(time.RFC3339),
	}, nil
}

// DeleteCampaign removes a draft that never ran
func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, campaignUUID string, metadata *ClientMetadata) error {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return err
	}

	if campaign.Status != models.CampaignStatusDraft {
		return NewBusinessError("CAMPAIGN_NOT_DRAFT", "Only draft campaigns can be deleted", ErrCampaignNotDraft)
	}

	if err := s.campaignRepo.Delete(ctx, campaign.ID); err != nil {
		return NewBusinessError("CAMPAIGN_DELETE_FAILED", "Failed to delete campaign", err)
	}

	msg := fmt.Sprintf("Campaign deleted: %s", campaign.UUID.String())
	_ = s.createAuditLog(ctx, nil, models.AuditActionCampaignDeleted, msg, true, nil, metadata)

	return nil
}

// GetProgress returns a point-in-time progress snapshot
func (s *CampaignFlowImpl) GetProgress(ctx context.Context, campaignUUID string) (*dto.CampaignProgressResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	return &dto.CampaignProgressResponse{
		UUID:         campaign.UUID.String(),
		Status:       string(campaign.Status),
		Cursor:       campaign.Cursor,
		SentCount:    campaign.SentCount,
		FailedCount:  campaign.FailedCount,
		TotalTargets: campaign.TotalTargets,
		LastActivity: campaign.LastActivityAt,
	}, nil
}

// ListAuditLogs returns the audit trail of a campaign, newest first
func (s *CampaignFlowImpl) ListAuditLogs(ctx context.Context, campaignUUID string, limit, offset int) (*dto.ListAuditLogsResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	if limit < 1 {
		limit = 50
	}

	logs, err := s.auditRepo.ListByCampaign(ctx, campaign.ID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("AUDIT_LIST_FAILED", "Failed to list audit logs", err)
	}

	total, err := s.auditRepo.Count(ctx, models.AuditLogFilter{CampaignID: &campaign.ID})
	if err != nil {
		return nil, NewBusinessError("AUDIT_LIST_FAILED", "Failed to list audit logs", err)
	}

	items := make([]dto.AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		item := dto.AuditLogResponse{
			Action:    l.Action,
			Success:   utils.IsTrue(l.Success),
			CreatedAt: l.CreatedAt,
		}
		if l.Description != nil {
			item.Description = *l.Description
		}
		items = append(items, item)
	}

	return &dto.ListAuditLogsResponse{Items: items, Total: total}, nil
}

// buildSpec validates a create request and produces the immutable spec
func (s *CampaignFlowImpl) buildSpec(ctx context.Context, req *dto.CreateCampaignRequest) (*models.CampaignSpec, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrCampaignTitleRequired
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrCampaignMessageRequired
	}

	if req.MinInterval > req.MaxInterval {
		return nil, ErrIntervalOrderInvalid
	}

	target := models.TargetSpec{
		Kind:         models.TargetKind(req.Target.Kind),
		GroupID:      req.Target.GroupID,
		ChatGroupJID: req.Target.ChatGroupJID,
	}
	if !target.Kind.Valid() {
		return nil, ErrTargetKindInvalid
	}
	switch target.Kind {
	case models.TargetKindContactGroup:
		if target.GroupID == nil {
			return nil, ErrTargetGroupRequired
		}
		group, err := s.groupRepo.ByID(ctx, *target.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup target group: %w", err)
		}
		if group == nil {
			return nil, ErrTargetGroupNotFound
		}
	case models.TargetKindChatGroup:
		if target.ChatGroupJID == nil || strings.TrimSpace(*target.ChatGroupJID) == "" {
			return nil, ErrTargetChatGroupRequired
		}
	}

	schedule := models.ScheduleSpec{
		Mode: models.ScheduleMode(req.Schedule.Mode),
		At:   req.Schedule.At,
	}
	if !schedule.Mode.Valid() {
		return nil, ErrScheduleModeInvalid
	}
	switch schedule.Mode {
	case models.ScheduleModeAt:
		if schedule.At == nil {
			return nil, ErrScheduleTimeNotPresent
		}
		if schedule.At.Before(utils.UTCNow()) {
			return nil, ErrScheduleTimeInPast
		}
	case models.ScheduleModeWindow:
		if req.Schedule.Window == nil {
			return nil, ErrScheduleWindowInvalid
		}
		schedule.Window = models.ScheduleWindow(*req.Schedule.Window)
		if !schedule.Window.Valid() {
			return nil, ErrScheduleWindowInvalid
		}
	}

	return &models.CampaignSpec{
		Title:       title,
		Message:     message,
		MediaURL:    req.MediaURL,
		Target:      target,
		Schedule:    schedule,
		MinInterval: req.MinInterval,
		MaxInterval: req.MaxInterval,
	}, nil
}

// lookup fetches a campaign by UUID and maps absence to a business error
func (s *CampaignFlowImpl) lookup(ctx context.Context, campaignUUID string) (*models.Campaign, error) {
	if strings.TrimSpace(campaignUUID) == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}

	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	return campaign, nil
}

// refreshed re-reads a campaign and maps it to its response shape
func (s *CampaignFlowImpl) refreshed(ctx context.Context, campaignUUID string) (*dto.CampaignResponse, error) {
	campaign, err := s.lookup(ctx, campaignUUID)
	if err != nil {
		return nil, err
	}

	resp := toCampaignResponse(campaign)
	return &resp, nil
}

// createAuditLog persists an audit trail entry
func (s *CampaignFlowImpl) createAuditLog(ctx context.Context, campaign *models.Campaign, action, description string, success bool, errorMessage *string, metadata *ClientMetadata) error {
	auditLog := &models.AuditLog{
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMessage,
		CreatedAt:    utils.UTCNow(),
	}

	if campaign != nil {
		auditLog.CampaignID = &campaign.ID
	}
	if metadata != nil {
		if metadata.IPAddress != "" {
			auditLog.IPAddress = &metadata.IPAddress
		}
		if metadata.UserAgent != "" {
			auditLog.UserAgent = &metadata.UserAgent
		}
		if metadata.RequestID != "" {
			auditLog.RequestID = &metadata.RequestID
		}
	}

	return s.auditRepo.Save(ctx, auditLog)
}

func toCampaignResponse(c *models.Campaign) dto.CampaignResponse {
	target := dto.TargetDTO{
		Kind:         string(c.Spec.Target.Kind),
		GroupID:      c.Spec.Target.GroupID,
		ChatGroupJID: c.Spec.Target.ChatGroupJID,
	}

	schedule := dto.ScheduleDTO{
		Mode: string(c.Spec.Schedule.Mode),
		At:   c.Spec.Schedule.At,
	}
	if c.Spec.Schedule.Window != "" {
		schedule.Window = utils.ToPtr(string(c.Spec.Schedule.Window))
	}

	return dto.CampaignResponse{
		UUID:          c.UUID.String(),
		Title:         c.Spec.Title,
		Message:       c.Spec.Message,
		MediaURL:      c.Spec.MediaURL,
		Target:        target,
		Schedule:      schedule,
		MinInterval:   c.Spec.MinInterval,
		MaxInterval:   c.Spec.MaxInterval,
		Status:        string(c.Status),
		StatusDisplay: c.GetStatusDisplayName(),
		Cursor:        c.Cursor,
		SentCount:     c.SentCount,
		FailedCount:   c.FailedCount,
		TotalTargets:  c.TotalTargets,
		FailureReason: c.FailureReason,
		LastActivity:  c.LastActivityAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
