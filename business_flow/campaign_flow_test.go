package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/models"
	ptesting "github.com/amirphl/peyk/testing"
	"github.com/amirphl/peyk/utils"
)

// stubController records lifecycle calls without running a real dispatch
// loop. Start persists the running status the way the engine does.
type stubController struct {
	campaigns *ptesting.MemoryCampaignRepository

	started  []uuid.UUID
	paused   []uuid.UUID
	canceled []uuid.UUID

	startErr  error
	pauseErr  error
	cancelErr error
}

func (c *stubController) Start(ctx context.Context, campaign *models.Campaign) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started = append(c.started, campaign.UUID)
	campaign.Status = models.CampaignStatusRunning
	return c.campaigns.Update(ctx, campaign)
}

func (c *stubController) Pause(ctx context.Context, campaignUUID uuid.UUID) error {
	if c.pauseErr != nil {
		return c.pauseErr
	}
	c.paused = append(c.paused, campaignUUID)
	return nil
}

func (c *stubController) Cancel(ctx context.Context, campaignUUID uuid.UUID) error {
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.canceled = append(c.canceled, campaignUUID)
	return nil
}

type flowFixture struct {
	campaigns  *ptesting.MemoryCampaignRepository
	contacts   *ptesting.MemoryContactRepository
	groups     *ptesting.MemoryGroupRepository
	audits     *ptesting.MemoryAuditRepository
	controller *stubController
	flow       CampaignFlow
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	f := &flowFixture{
		campaigns: ptesting.NewMemoryCampaignRepository(),
		contacts:  ptesting.NewMemoryContactRepository(),
		audits:    ptesting.NewMemoryAuditRepository(),
	}
	f.controller = &stubController{campaigns: f.campaigns}
	f.groups = ptesting.NewMemoryGroupRepository(f.contacts)
	f.flow = NewCampaignFlow(f.campaigns, f.groups, f.audits, f.controller, nil)
	return f
}

func validCreateRequest() *dto.CreateCampaignRequest {
	return &dto.CreateCampaignRequest{
		Title:       "spring launch",
		Message:     "we are live",
		Target:      dto.TargetDTO{Kind: string(models.TargetKindAllContacts)},
		Schedule:    dto.ScheduleDTO{Mode: string(models.ScheduleModeImmediate)},
		MinInterval: 5,
		MaxInterval: 30,
	}
}

func TestCreateCampaignPersistsDraft(t *testing.T) {
	f := newFlowFixture(t)

	resp, err := f.flow.CreateCampaign(context.Background(), validCreateRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.CampaignStatusDraft), resp.Status)

	stored, err := f.campaigns.ByUUID(context.Background(), resp.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "spring launch", stored.Spec.Title)
	assert.Equal(t, uint(5), stored.Spec.MinInterval)

	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignCreated)
}

func TestCreateCampaignAcceptsZeroIntervals(t *testing.T) {
	f := newFlowFixture(t)

	// min == max == 0 means back-to-back sending; the flow imposes no floor
	req := validCreateRequest()
	req.MinInterval = 0
	req.MaxInterval = 0

	resp, err := f.flow.CreateCampaign(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.CampaignStatusDraft), resp.Status)

	stored, err := f.campaigns.ByUUID(context.Background(), resp.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Zero(t, stored.Spec.MinInterval)
	assert.Zero(t, stored.Spec.MaxInterval)
}

func TestCreateCampaignValidation(t *testing.T) {
	groupID := uint(77)
	emptyJID := "  "
	badWindow := "lunchtime"
	past := utils.UTCNow().Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*dto.CreateCampaignRequest)
		wantErr error
	}{
		{"blank title", func(r *dto.CreateCampaignRequest) { r.Title = "   " }, ErrCampaignTitleRequired},
		{"blank message", func(r *dto.CreateCampaignRequest) { r.Message = "" }, ErrCampaignMessageRequired},
		{"inverted intervals", func(r *dto.CreateCampaignRequest) { r.MinInterval = 60; r.MaxInterval = 10 }, ErrIntervalOrderInvalid},
		{"unknown target kind", func(r *dto.CreateCampaignRequest) { r.Target.Kind = "broadcast" }, ErrTargetKindInvalid},
		{"group target without id", func(r *dto.CreateCampaignRequest) {
			r.Target.Kind = string(models.TargetKindContactGroup)
		}, ErrTargetGroupRequired},
		{"group target not found", func(r *dto.CreateCampaignRequest) {
			r.Target.Kind = string(models.TargetKindContactGroup)
			r.Target.GroupID = &groupID
		}, ErrTargetGroupNotFound},
		{"chat target without jid", func(r *dto.CreateCampaignRequest) {
			r.Target.Kind = string(models.TargetKindChatGroup)
			r.Target.ChatGroupJID = &emptyJID
		}, ErrTargetChatGroupRequired},
		{"unknown schedule mode", func(r *dto.CreateCampaignRequest) { r.Schedule.Mode = "someday" }, ErrScheduleModeInvalid},
		{"at mode without time", func(r *dto.CreateCampaignRequest) {
			r.Schedule.Mode = string(models.ScheduleModeAt)
		}, ErrScheduleTimeNotPresent},
		{"at mode in the past", func(r *dto.CreateCampaignRequest) {
			r.Schedule.Mode = string(models.ScheduleModeAt)
			r.Schedule.At = &past
		}, ErrScheduleTimeInPast},
		{"window mode without window", func(r *dto.CreateCampaignRequest) {
			r.Schedule.Mode = string(models.ScheduleModeWindow)
		}, ErrScheduleWindowInvalid},
		{"window mode with unknown window", func(r *dto.CreateCampaignRequest) {
			r.Schedule.Mode = string(models.ScheduleModeWindow)
			r.Schedule.Window = &badWindow
		}, ErrScheduleWindowInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFlowFixture(t)
			req := validCreateRequest()
			tt.mutate(req)

			_, err := f.flow.CreateCampaign(context.Background(), req, nil)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateCampaignAcceptsExistingGroup(t *testing.T) {
	f := newFlowFixture(t)
	g := f.groups.AddGroup("beta testers")

	req := validCreateRequest()
	req.Target.Kind = string(models.TargetKindContactGroup)
	req.Target.GroupID = &g.ID

	_, err := f.flow.CreateCampaign(context.Background(), req, nil)
	assert.NoError(t, err)
}

func TestStartCampaignImmediate(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)

	resp, err := f.flow.StartCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.CampaignStatusRunning), resp.Status)
	require.Len(t, f.controller.started, 1)
	assert.Equal(t, campaign.UUID, f.controller.started[0])
	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignStarted)
}

func TestStartCampaignWithFutureAtBecomesScheduled(t *testing.T) {
	f := newFlowFixture(t)
	at := utils.UTCNow().Add(2 * time.Hour)
	campaign := ptesting.NewCampaign(f.campaigns,
		ptesting.WithSchedule(models.ScheduleSpec{Mode: models.ScheduleModeAt, At: &at}),
	)

	resp, err := f.flow.StartCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.CampaignStatusScheduled), resp.Status)
	assert.Empty(t, f.controller.started, "scheduled campaigns must not start a loop yet")
}

func TestStartCampaignStatusGuards(t *testing.T) {
	tests := []struct {
		status   models.CampaignStatus
		wantCode string
	}{
		{models.CampaignStatusRunning, "CAMPAIGN_ALREADY_ACTIVE"},
		{models.CampaignStatusScheduled, "CAMPAIGN_ALREADY_ACTIVE"},
		{models.CampaignStatusPaused, "CAMPAIGN_NOT_DRAFT"},
		{models.CampaignStatusCompleted, "CAMPAIGN_NOT_DRAFT"},
		{models.CampaignStatusFailed, "CAMPAIGN_NOT_DRAFT"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFlowFixture(t)
			campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(tt.status))

			_, err := f.flow.StartCampaign(context.Background(), campaign.UUID.String(), nil)
			require.Error(t, err)

			var be *BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantCode, be.Code)
		})
	}
}

func TestStartCampaignControllerFailureIsAudited(t *testing.T) {
	f := newFlowFixture(t)
	f.controller.startErr = errors.New("transport is not ready")
	campaign := ptesting.NewCampaign(f.campaigns)

	_, err := f.flow.StartCampaign(context.Background(), campaign.UUID.String(), nil)
	require.Error(t, err)
	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignStartFailed)
}

func TestPauseCampaignRequiresRunning(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))

	_, err := f.flow.PauseCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{campaign.UUID}, f.controller.paused)

	draft := ptesting.NewCampaign(f.campaigns)
	_, err = f.flow.PauseCampaign(context.Background(), draft.UUID.String(), nil)
	require.Error(t, err)

	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "CAMPAIGN_NOT_RUNNING", be.Code)
}

func TestResumeCampaignRequiresPaused(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusPaused))

	_, err := f.flow.ResumeCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)
	require.Len(t, f.controller.started, 1)
	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignResumed)

	running := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))
	_, err = f.flow.ResumeCampaign(context.Background(), running.UUID.String(), nil)
	require.Error(t, err)

	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "CAMPAIGN_NOT_PAUSED", be.Code)
}

func TestCancelCampaignRejectsTerminal(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusCompleted))

	_, err := f.flow.CancelCampaign(context.Background(), campaign.UUID.String(), nil)
	require.Error(t, err)
	assert.True(t, IsCampaignTerminal(err))
	assert.Empty(t, f.controller.canceled)
}

func TestCancelCampaignSignalsController(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))

	_, err := f.flow.CancelCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{campaign.UUID}, f.controller.canceled)
	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignCanceled)
}

func TestCloneCampaignCopiesSpecOnly(t *testing.T) {
	f := newFlowFixture(t)
	reason := "canceled by operator"
	campaign := ptesting.NewCampaign(f.campaigns,
		ptesting.WithStatus(models.CampaignStatusFailed),
		ptesting.WithIntervals(10, 60),
	)
	campaign.Cursor = 5
	campaign.SentCount = 4
	campaign.FailedCount = 1
	campaign.TotalTargets = 9
	campaign.FailureReason = &reason
	require.NoError(t, f.campaigns.Update(context.Background(), campaign))

	resp, err := f.flow.CloneCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.CampaignStatusDraft), resp.Status)
	assert.NotEqual(t, campaign.UUID.String(), resp.UUID)

	clone, err := f.campaigns.ByUUID(context.Background(), resp.UUID)
	require.NoError(t, err)
	require.NotNil(t, clone)
	assert.Equal(t, campaign.Spec, clone.Spec)
	assert.Zero(t, clone.Cursor)
	assert.Zero(t, clone.TotalTargets)
	assert.Nil(t, clone.FailureReason)

	assert.Contains(t, f.audits.Actions(), models.AuditActionCampaignCloned)
}

func TestCloneCampaignRequiresTerminal(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))

	_, err := f.flow.CloneCampaign(context.Background(), campaign.UUID.String(), nil)
	require.Error(t, err)
	assert.True(t, IsCampaignNotFinished(err))
}

func TestDeleteCampaignRequiresDraft(t *testing.T) {
	f := newFlowFixture(t)
	draft := ptesting.NewCampaign(f.campaigns)

	require.NoError(t, f.flow.DeleteCampaign(context.Background(), draft.UUID.String(), nil))

	gone, err := f.campaigns.ByUUID(context.Background(), draft.UUID.String())
	require.NoError(t, err)
	assert.Nil(t, gone)

	running := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))
	err = f.flow.DeleteCampaign(context.Background(), running.UUID.String(), nil)
	require.Error(t, err)
	assert.True(t, IsCampaignNotDraft(err))
}

func TestLookupErrors(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.GetCampaign(context.Background(), &dto.GetCampaignRequest{UUID: ""}, nil)
	require.Error(t, err)
	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "CAMPAIGN_UUID_REQUIRED", be.Code)

	_, err = f.flow.GetCampaign(context.Background(), &dto.GetCampaignRequest{UUID: uuid.NewString()}, nil)
	require.Error(t, err)
	assert.True(t, IsCampaignNotFound(err))
}

func TestGetProgressSnapshot(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusRunning))
	campaign.Cursor = 7
	campaign.SentCount = 6
	campaign.FailedCount = 1
	campaign.TotalTargets = 20
	require.NoError(t, f.campaigns.Update(context.Background(), campaign))

	progress, err := f.flow.GetProgress(context.Background(), campaign.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, uint(7), progress.Cursor)
	assert.Equal(t, uint(6), progress.SentCount)
	assert.Equal(t, uint(1), progress.FailedCount)
	assert.Equal(t, uint(20), progress.TotalTargets)
	assert.Equal(t, string(models.CampaignStatusRunning), progress.Status)
}

func TestListCampaignsFiltersByStatus(t *testing.T) {
	f := newFlowFixture(t)
	ptesting.NewCampaign(f.campaigns)
	ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusCompleted))
	ptesting.NewCampaign(f.campaigns, ptesting.WithStatus(models.CampaignStatusCompleted))

	status := string(models.CampaignStatusCompleted)
	resp, err := f.flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Status: &status}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	assert.Len(t, resp.Items, 2)

	bogus := "archived"
	_, err = f.flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Status: &bogus}, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestListAuditLogs(t *testing.T) {
	f := newFlowFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)

	_, err := f.flow.StartCampaign(context.Background(), campaign.UUID.String(), nil)
	require.NoError(t, err)

	resp, err := f.flow.ListAuditLogs(context.Background(), campaign.UUID.String(), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, models.AuditActionCampaignStarted, resp.Items[0].Action)
	assert.True(t, resp.Items[0].Success)
}
