package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/app/services"
	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/repository"
	"github.com/amirphl/peyk/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Engine lifecycle errors
var (
	ErrRunAlreadyActive   = errors.New("campaign run already active")
	ErrRunNotActive       = errors.New("campaign run not active")
	ErrTransportNotReady  = errors.New("transport is not ready")
	ErrFrozenRunMissing   = errors.New("no frozen run found for paused campaign")
	ErrStatusNotStartable = errors.New("campaign status does not allow starting")
)

// Engine owns every active dispatch loop. It starts runs, routes pause and
// cancel signals, promotes scheduled campaigns whose start instant arrived,
// and drains loops on shutdown.
type Engine struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*runHandle

	dispatcher   *Dispatcher
	resolver     TargetResolver
	transport    services.Transport
	campaignRepo repository.CampaignRepository
	runRepo      repository.CampaignRunRepository
	publisher    services.ProgressPublisher
	logger       *log.Logger

	promoteInterval time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates the campaign engine
func NewEngine(
	dispatcher *Dispatcher,
	resolver TargetResolver,
	transport services.Transport,
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	publisher services.ProgressPublisher,
	promoteInterval time.Duration,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if promoteInterval <= 0 {
		promoteInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		runs:            make(map[uuid.UUID]*runHandle),
		dispatcher:      dispatcher,
		resolver:        resolver,
		transport:       transport,
		campaignRepo:    campaignRepo,
		runRepo:         runRepo,
		publisher:       publisher,
		logger:          logger,
		promoteInterval: promoteInterval,
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// Start begins or resumes execution of a campaign. Draft and scheduled
// campaigns get a fresh frozen resolution; paused campaigns reload the
// frozen list of their last run and continue from the persisted cursor.
func (e *Engine) Start(ctx context.Context, campaign *models.Campaign) error {
	e.mu.Lock()
	if _, exists := e.runs[campaign.UUID]; exists {
		e.mu.Unlock()
		return ErrRunAlreadyActive
	}
	e.mu.Unlock()

	switch campaign.Status {
	case models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusPaused:
	default:
		return ErrStatusNotStartable
	}

	if err := e.transport.Ready(ctx); err != nil {
		e.failBeforeRun(ctx, campaign, "transport not ready")
		return fmt.Errorf("%w: %v", ErrTransportNotReady, err)
	}

	var (
		run     *models.CampaignRun
		targets []Target
		err     error
	)

	if campaign.Status == models.CampaignStatusPaused {
		run, targets, err = e.frozenRun(ctx, campaign)
	} else {
		run, targets, err = e.freshRun(ctx, campaign)
	}
	if err != nil {
		return err
	}

	status := models.CampaignStatusRunning
	update := models.CampaignStateUpdate{
		Status:       &status,
		Cursor:       &campaign.Cursor,
		SentCount:    &campaign.SentCount,
		FailedCount:  &campaign.FailedCount,
		TotalTargets: &campaign.TotalTargets,
	}
	if err := e.campaignRepo.UpdateState(ctx, campaign.ID, update); err != nil {
		return fmt.Errorf("failed to mark campaign running: %w", err)
	}
	campaign.Status = status

	handle := newRunHandle(campaign, run, targets)

	e.mu.Lock()
	if _, exists := e.runs[campaign.UUID]; exists {
		e.mu.Unlock()
		return ErrRunAlreadyActive
	}
	e.runs[campaign.UUID] = handle
	e.mu.Unlock()

	runsStartedTotal.Inc()
	runsActive.Inc()
	e.publishStatus(campaign)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer runsActive.Dec()
		defer e.remove(campaign.UUID)
		e.dispatcher.Run(e.baseCtx, handle)
	}()

	return nil
}

// Pause asks a running campaign to halt at the next send boundary
func (e *Engine) Pause(ctx context.Context, campaignUUID uuid.UUID) error {
	e.mu.Lock()
	handle, ok := e.runs[campaignUUID]
	e.mu.Unlock()

	if !ok {
		return ErrRunNotActive
	}

	handle.signalPause()
	return nil
}

// Cancel terminates a campaign for good. An active loop is signalled; a
// parked campaign (scheduled or paused) is failed directly.
func (e *Engine) Cancel(ctx context.Context, campaignUUID uuid.UUID) error {
	e.mu.Lock()
	handle, ok := e.runs[campaignUUID]
	e.mu.Unlock()

	if ok {
		handle.signalCancel()
		return nil
	}

	campaign, err := e.campaignRepo.ByUUID(ctx, campaignUUID.String())
	if err != nil {
		return fmt.Errorf("failed to lookup campaign: %w", err)
	}
	if campaign == nil {
		return ErrRunNotActive
	}
	if campaign.Status.Terminal() {
		return nil
	}

	reason := "canceled by operator"
	status := models.CampaignStatusFailed
	update := models.CampaignStateUpdate{
		Status:        &status,
		FailureReason: &reason,
	}
	if err := e.campaignRepo.UpdateState(ctx, campaign.ID, update); err != nil {
		return fmt.Errorf("failed to cancel campaign: %w", err)
	}
	campaign.Status = status
	campaign.FailureReason = &reason

	if run, err := e.runRepo.LatestByCampaign(ctx, campaign.ID); err == nil && run != nil && run.FinishedAt == nil {
		_ = e.runRepo.MarkFinished(ctx, run.ID)
	}

	runsFinishedTotal.WithLabelValues("failed").Inc()
	e.publishStatus(campaign)
	e.logger.Printf("campaign %s: canceled while parked", campaign.UUID)

	return nil
}

// Active reports whether a campaign has a live dispatch loop
func (e *Engine) Active(campaignUUID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[campaignUUID]
	return ok
}

// Run drives the scheduled-campaign promoter until the context is done
func (e *Engine) Run(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(e.promoteInterval)
		defer ticker.Stop()

		e.promoteDue(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.promoteDue(ctx)
			}
		}
	}()

	return cancel
}

// Stop signals every loop to park and waits for them to drain. Running
// campaigns land in paused and resume cleanly after a restart.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// promoteDue starts scheduled campaigns whose fixed instant has passed
func (e *Engine) promoteDue(ctx context.Context) {
	due, err := e.campaignRepo.ListDueScheduled(ctx, 50)
	if err != nil {
		e.logger.Printf("engine: list due scheduled campaigns failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	e.logger.Printf("engine: promoting %d scheduled campaigns", len(due))

	for _, campaign := range due {
		if err := e.Start(ctx, campaign); err != nil {
			if errors.Is(err, ErrRunAlreadyActive) {
				continue
			}
			e.logger.Printf("engine: promote campaign %s failed: %v", campaign.UUID, err)
		}
	}
}

// freshRun resolves the target spec and freezes it as a new run record.
// Zero resolved recipients fails the campaign immediately.
func (e *Engine) freshRun(ctx context.Context, campaign *models.Campaign) (*models.CampaignRun, []Target, error) {
	targets, err := e.resolver.Resolve(ctx, campaign.Spec.Target)
	if err != nil {
		e.failBeforeRun(ctx, campaign, err.Error())
		return nil, nil, err
	}
	if len(targets) == 0 {
		e.failBeforeRun(ctx, campaign, ErrTargetsEmpty.Error())
		return nil, nil, ErrTargetsEmpty
	}

	addresses := make(pq.StringArray, len(targets))
	names := make(pq.StringArray, len(targets))
	for i, t := range targets {
		addresses[i] = t.Address
		names[i] = t.Name
	}

	run := &models.CampaignRun{
		CampaignID:  campaign.ID,
		Targets:     addresses,
		TargetNames: names,
		StartedAt:   utils.UTCNow(),
	}
	if err := e.runRepo.Save(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to freeze campaign run: %w", err)
	}

	campaign.Cursor = 0
	campaign.SentCount = 0
	campaign.FailedCount = 0
	campaign.TotalTargets = uint(len(targets))

	return run, targets, nil
}

// frozenRun reloads the target list frozen when the campaign first started
func (e *Engine) frozenRun(ctx context.Context, campaign *models.Campaign) (*models.CampaignRun, []Target, error) {
	run, err := e.runRepo.LatestByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load frozen run: %w", err)
	}
	if run == nil {
		return nil, nil, ErrFrozenRunMissing
	}

	targets := make([]Target, len(run.Targets))
	for i, addr := range run.Targets {
		targets[i] = Target{Address: addr}
		if i < len(run.TargetNames) {
			targets[i].Name = run.TargetNames[i]
		}
	}

	return run, targets, nil
}

// failBeforeRun fails a campaign that never produced a dispatchable run
func (e *Engine) failBeforeRun(ctx context.Context, campaign *models.Campaign, reason string) {
	status := models.CampaignStatusFailed
	update := models.CampaignStateUpdate{
		Status:        &status,
		FailureReason: &reason,
	}
	if err := e.campaignRepo.UpdateState(ctx, campaign.ID, update); err != nil {
		e.logger.Printf("campaign %s: failed to persist resolution failure: %v", campaign.UUID, err)
	}
	campaign.Status = status
	campaign.FailureReason = &reason

	runsFinishedTotal.WithLabelValues("failed").Inc()
	e.publishStatus(campaign)
}

// remove drops a finished loop from the registry
func (e *Engine) remove(campaignUUID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runs, campaignUUID)
}

func (e *Engine) publishStatus(c *models.Campaign) {
	reason := ""
	if c.FailureReason != nil {
		reason = *c.FailureReason
	}
	e.publisher.Publish(dto.ProgressEvent{
		CampaignUUID: c.UUID.String(),
		Status:       string(c.Status),
		Cursor:       c.Cursor,
		SentCount:    c.SentCount,
		FailedCount:  c.FailedCount,
		TotalTargets: c.TotalTargets,
		Reason:       reason,
		OccurredAt:   utils.UTCNow(),
	})
}
