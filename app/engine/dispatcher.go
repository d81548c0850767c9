package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/app/services"
	"github.com/amirphl/peyk/models"
	"github.com/amirphl/peyk/repository"
	"github.com/amirphl/peyk/utils"
)

// runHandle carries the signalling channels and frozen state of one active
// dispatch loop. Pause and cancel are level signals; closing twice is
// guarded by sync.Once.
type runHandle struct {
	campaign *models.Campaign
	run      *models.CampaignRun
	targets  []Target

	pauseOnce  sync.Once
	cancelOnce sync.Once
	pauseCh    chan struct{}
	cancelCh   chan struct{}
	done       chan struct{}
}

func newRunHandle(campaign *models.Campaign, run *models.CampaignRun, targets []Target) *runHandle {
	return &runHandle{
		campaign: campaign,
		run:      run,
		targets:  targets,
		pauseCh:  make(chan struct{}),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *runHandle) signalPause()  { h.pauseOnce.Do(func() { close(h.pauseCh) }) }
func (h *runHandle) signalCancel() { h.cancelOnce.Do(func() { close(h.cancelCh) }) }

// waitOutcome tells the loop why a wait ended
type waitOutcome int

const (
	waitProceed waitOutcome = iota
	waitPaused
	waitCanceled
	waitStopped
)

// Dispatcher runs the per-campaign send loop: one target at a time, a
// random delay between sends, pause and cancel honored at every boundary.
type Dispatcher struct {
	campaignRepo repository.CampaignRepository
	runRepo      repository.CampaignRunRepository
	transport    services.Transport
	publisher    services.ProgressPublisher
	pacing       *PacingPolicy
	logger       *log.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	transport services.Transport,
	publisher services.ProgressPublisher,
	pacing *PacingPolicy,
	logger *log.Logger,
) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		campaignRepo: campaignRepo,
		runRepo:      runRepo,
		transport:    transport,
		publisher:    publisher,
		pacing:       pacing,
		logger:       logger,
	}
}

// Run executes one campaign until it completes, pauses, fails or the engine
// shuts down. The campaign inside the handle is owned by this goroutine;
// every counter mutation is persisted and published before the next send.
func (d *Dispatcher) Run(ctx context.Context, h *runHandle) {
	defer close(h.done)

	c := h.campaign
	total := uint(len(h.targets))

	d.logger.Printf("campaign %s: dispatch loop started (cursor=%d total=%d)", c.UUID, c.Cursor, total)

	for c.Cursor < total {
		// Fast exit so a signal queued before this iteration wins.
		switch d.poll(ctx, h) {
		case waitPaused, waitStopped:
			d.pause(ctx, c)
			return
		case waitCanceled:
			d.fail(ctx, h, "canceled by operator")
			return
		}

		// Hold until the schedule window allows sending.
		for !d.pacing.Eligible(c.Spec.Schedule) {
			wait := d.pacing.NextEligibleWait(c.Spec.Schedule)
			d.logger.Printf("campaign %s: outside schedule window, holding %s", c.UUID, wait)
			switch d.wait(ctx, h, wait) {
			case waitPaused, waitStopped:
				d.pause(ctx, c)
				return
			case waitCanceled:
				d.fail(ctx, h, "canceled by operator")
				return
			}
		}

		target := h.targets[c.Cursor]
		err := d.transport.Send(ctx, services.OutboundMessage{
			Target:   target.Address,
			Body:     c.Spec.Message,
			MediaURL: c.Spec.MediaURL,
		})

		switch {
		case err == nil:
			c.MarkSent()
			messagesTotal.WithLabelValues("sent").Inc()
			d.persistProgress(ctx, c)
			d.publish(c, target.Address, true, "")

		case services.IsFatal(err):
			// The session is poisoned; the current target was not
			// consumed as a plain failure.
			d.logger.Printf("campaign %s: fatal transport error: %v", c.UUID, err)
			d.fail(ctx, h, err.Error())
			return

		default:
			d.logger.Printf("campaign %s: send to %s failed: %v", c.UUID, target.Address, err)
			c.MarkFailed()
			messagesTotal.WithLabelValues("failed").Inc()
			d.persistProgress(ctx, c)
			d.publish(c, target.Address, false, err.Error())
		}

		if c.Cursor >= total {
			break
		}

		delay := d.pacing.NextDelay(c.Spec.MinInterval, c.Spec.MaxInterval)
		switch d.wait(ctx, h, delay) {
		case waitPaused, waitStopped:
			d.pause(ctx, c)
			return
		case waitCanceled:
			d.fail(ctx, h, "canceled by operator")
			return
		}
	}

	d.complete(ctx, h)
}

// poll checks the signal channels without blocking
func (d *Dispatcher) poll(ctx context.Context, h *runHandle) waitOutcome {
	select {
	case <-h.cancelCh:
		return waitCanceled
	case <-h.pauseCh:
		return waitPaused
	case <-ctx.Done():
		return waitStopped
	default:
		return waitProceed
	}
}

// wait sleeps for dur with the timer raced against the signal channels
func (d *Dispatcher) wait(ctx context.Context, h *runHandle, dur time.Duration) waitOutcome {
	if dur <= 0 {
		return d.poll(ctx, h)
	}

	tmr := time.NewTimer(dur)
	defer func() {
		if !tmr.Stop() {
			select {
			case <-tmr.C:
			default:
			}
		}
	}()

	select {
	case <-h.cancelCh:
		return waitCanceled
	case <-h.pauseCh:
		return waitPaused
	case <-ctx.Done():
		return waitStopped
	case <-tmr.C:
		return waitProceed
	}
}

// pause parks the campaign; the cursor stays where it is and a later
// resume picks up the frozen run
func (d *Dispatcher) pause(ctx context.Context, c *models.Campaign) {
	status := models.CampaignStatusPaused
	c.Status = status

	update := models.CampaignStateUpdate{
		Status:      &status,
		Cursor:      &c.Cursor,
		SentCount:   &c.SentCount,
		FailedCount: &c.FailedCount,
	}
	if err := d.campaignRepo.UpdateState(ctx, c.ID, update); err != nil {
		d.logger.Printf("campaign %s: failed to persist pause: %v", c.UUID, err)
	}

	runsFinishedTotal.WithLabelValues("paused").Inc()
	d.publish(c, "", false, "")
	d.logger.Printf("campaign %s: paused at cursor %d", c.UUID, c.Cursor)
}

// fail moves the campaign to failed with a reason and closes the run
func (d *Dispatcher) fail(ctx context.Context, h *runHandle, reason string) {
	c := h.campaign
	status := models.CampaignStatusFailed
	c.Status = status
	c.FailureReason = &reason

	update := models.CampaignStateUpdate{
		Status:        &status,
		Cursor:        &c.Cursor,
		SentCount:     &c.SentCount,
		FailedCount:   &c.FailedCount,
		FailureReason: &reason,
	}
	if err := d.campaignRepo.UpdateState(ctx, c.ID, update); err != nil {
		d.logger.Printf("campaign %s: failed to persist failure: %v", c.UUID, err)
	}
	if h.run != nil {
		if err := d.runRepo.MarkFinished(ctx, h.run.ID); err != nil {
			d.logger.Printf("campaign %s: failed to close run: %v", c.UUID, err)
		}
	}

	runsFinishedTotal.WithLabelValues("failed").Inc()
	d.publish(c, "", false, reason)
	d.logger.Printf("campaign %s: failed: %s", c.UUID, reason)
}

// complete finishes a run whose cursor reached the end of the target list
func (d *Dispatcher) complete(ctx context.Context, h *runHandle) {
	c := h.campaign
	status := models.CampaignStatusCompleted
	c.Status = status

	update := models.CampaignStateUpdate{
		Status:      &status,
		Cursor:      &c.Cursor,
		SentCount:   &c.SentCount,
		FailedCount: &c.FailedCount,
	}
	if err := d.campaignRepo.UpdateState(ctx, c.ID, update); err != nil {
		d.logger.Printf("campaign %s: failed to persist completion: %v", c.UUID, err)
	}
	if h.run != nil {
		if err := d.runRepo.MarkFinished(ctx, h.run.ID); err != nil {
			d.logger.Printf("campaign %s: failed to close run: %v", c.UUID, err)
		}
	}

	runsFinishedTotal.WithLabelValues("completed").Inc()
	d.publish(c, "", false, "")
	d.logger.Printf("campaign %s: completed (sent=%d failed=%d total=%d)", c.UUID, c.SentCount, c.FailedCount, c.TotalTargets)
}

// persistProgress writes the campaign's runtime counters
func (d *Dispatcher) persistProgress(ctx context.Context, c *models.Campaign) {
	update := models.CampaignStateUpdate{
		Cursor:         &c.Cursor,
		SentCount:      &c.SentCount,
		FailedCount:    &c.FailedCount,
		LastActivityAt: c.LastActivityAt,
	}
	if err := d.campaignRepo.UpdateState(ctx, c.ID, update); err != nil {
		d.logger.Printf("campaign %s: failed to persist progress: %v", c.UUID, err)
	}
}

// publish emits a progress event; the publisher contract guarantees this
// never blocks the loop
func (d *Dispatcher) publish(c *models.Campaign, target string, sent bool, reason string) {
	d.publisher.Publish(dto.ProgressEvent{
		CampaignUUID: c.UUID.String(),
		Status:       string(c.Status),
		Cursor:       c.Cursor,
		SentCount:    c.SentCount,
		FailedCount:  c.FailedCount,
		TotalTargets: c.TotalTargets,
		Target:       target,
		Sent:         sent,
		Reason:       reason,
		OccurredAt:   utils.UTCNow(),
	})
}
