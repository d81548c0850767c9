package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/peyk/app/services"
	"github.com/amirphl/peyk/models"
	ptesting "github.com/amirphl/peyk/testing"
)

type dispatchFixture struct {
	campaigns *ptesting.MemoryCampaignRepository
	runs      *ptesting.MemoryRunRepository
	transport *ptesting.FakeTransport
	publisher *ptesting.CapturePublisher
	dispatch  *Dispatcher
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	f := &dispatchFixture{
		campaigns: ptesting.NewMemoryCampaignRepository(),
		runs:      ptesting.NewMemoryRunRepository(),
		transport: ptesting.NewFakeTransport(),
		publisher: ptesting.NewCapturePublisher(),
	}
	f.dispatch = NewDispatcher(
		f.campaigns,
		f.runs,
		f.transport,
		f.publisher,
		NewPacingPolicyWith(SystemClock(), rand.NewSource(1)),
		log.New(io.Discard, "", 0),
	)
	return f
}

// handleFor builds a run handle over the given addresses with the campaign
// already marked running, the way the engine hands loops to the dispatcher.
func (f *dispatchFixture) handleFor(t *testing.T, campaign *models.Campaign, addresses ...string) *runHandle {
	t.Helper()

	targets := make([]Target, len(addresses))
	for i, addr := range addresses {
		targets[i] = Target{Address: addr}
	}

	campaign.Status = models.CampaignStatusRunning
	campaign.TotalTargets = uint(len(addresses))
	require.NoError(t, f.campaigns.Update(context.Background(), campaign))

	run := &models.CampaignRun{CampaignID: campaign.ID, StartedAt: time.Now().UTC()}
	require.NoError(t, f.runs.Save(context.Background(), run))

	return newRunHandle(campaign, run, targets)
}

func (f *dispatchFixture) stored(t *testing.T, id uint) *models.Campaign {
	t.Helper()
	c, err := f.campaigns.ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestDispatchCompletesAllTargets(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)
	h := f.handleFor(t, campaign, "+15550001", "+15550002", "+15550003")

	f.dispatch.Run(context.Background(), h)

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, uint(3), stored.Cursor)
	assert.Equal(t, uint(3), stored.SentCount)
	assert.Zero(t, stored.FailedCount)
	assert.Nil(t, stored.FailureReason)

	sent := f.transport.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "+15550001", sent[0].Target)
	assert.Equal(t, "+15550003", sent[2].Target)
	assert.Equal(t, campaign.Spec.Message, sent[0].Body)

	run, err := f.runs.ByID(context.Background(), h.run.ID)
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)

	// one event per delivery plus the terminal status event
	events := f.publisher.Events()
	require.Len(t, events, 4)
	assert.True(t, events[0].Sent)
	assert.Equal(t, uint(1), events[0].Cursor)
	assert.Equal(t, string(models.CampaignStatusCompleted), events[3].Status)
}

func TestDispatchContinuesPastTargetFailures(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)
	h := f.handleFor(t, campaign, "+15550001", "+15550002", "+15550003")

	f.transport.Script(nil, errors.New("mailbox full"), nil)

	f.dispatch.Run(context.Background(), h)

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, uint(3), stored.Cursor)
	assert.Equal(t, uint(2), stored.SentCount)
	assert.Equal(t, uint(1), stored.FailedCount)

	events := f.publisher.Events()
	require.Len(t, events, 4)
	assert.False(t, events[1].Sent)
	assert.Equal(t, "mailbox full", events[1].Reason)
	assert.Equal(t, "+15550002", events[1].Target)
}

func TestDispatchFatalErrorFailsCampaign(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)
	h := f.handleFor(t, campaign, "+15550001", "+15550002", "+15550003")

	f.transport.Script(nil, services.NewFatalError(errors.New("session expired")))

	f.dispatch.Run(context.Background(), h)

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "session expired")

	// the fatal target is not consumed as a plain failure
	assert.Equal(t, uint(1), stored.Cursor)
	assert.Equal(t, uint(1), stored.SentCount)
	assert.Zero(t, stored.FailedCount)

	run, err := f.runs.ByID(context.Background(), h.run.ID)
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
}

func TestDispatchPauseStopsAtSendBoundary(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithIntervals(3600, 3600))
	h := f.handleFor(t, campaign, "+15550001", "+15550002", "+15550003")

	go f.dispatch.Run(context.Background(), h)

	require.Eventually(t, func() bool {
		return len(f.transport.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.signalPause()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after pause")
	}

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	assert.Equal(t, uint(1), stored.Cursor)
	assert.Equal(t, uint(1), stored.SentCount)
	assert.Len(t, f.transport.Sent(), 1)
	assert.Equal(t, string(models.CampaignStatusPaused), f.publisher.Last().Status)
}

func TestDispatchCancelFailsCampaign(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithIntervals(3600, 3600))
	h := f.handleFor(t, campaign, "+15550001", "+15550002")

	go f.dispatch.Run(context.Background(), h)

	require.Eventually(t, func() bool {
		return len(f.transport.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.signalCancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after cancel")
	}

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "canceled by operator", *stored.FailureReason)

	run, err := f.runs.ByID(context.Background(), h.run.ID)
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
}

func TestDispatchCancelBeforeFirstSend(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)
	h := f.handleFor(t, campaign, "+15550001", "+15550002")

	h.signalCancel()
	f.dispatch.Run(context.Background(), h)

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusFailed, stored.Status)
	assert.Zero(t, stored.Cursor)
	assert.Empty(t, f.transport.Sent())
}

func TestDispatchShutdownParksAsPaused(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithIntervals(3600, 3600))
	h := f.handleFor(t, campaign, "+15550001", "+15550002")

	ctx, cancel := context.WithCancel(context.Background())
	go f.dispatch.Run(ctx, h)

	require.Eventually(t, func() bool {
		return len(f.transport.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop after shutdown")
	}

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	assert.Equal(t, uint(1), stored.Cursor)
}

func TestDispatchHoldsOutsideScheduleWindow(t *testing.T) {
	f := newDispatchFixture(t)

	// 14:30 against an odd-hours window: the loop must hold, not send
	f.dispatch.pacing = NewPacingPolicyWith(atHour(14), rand.NewSource(1))

	campaign := ptesting.NewCampaign(f.campaigns, ptesting.WithSchedule(models.ScheduleSpec{
		Mode:   models.ScheduleModeWindow,
		Window: models.ScheduleWindowOddHours,
	}))
	h := f.handleFor(t, campaign, "+15550001")

	go f.dispatch.Run(context.Background(), h)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.transport.Sent())

	h.signalPause()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop while holding")
	}

	stored := f.stored(t, campaign.ID)
	assert.Equal(t, models.CampaignStatusPaused, stored.Status)
	assert.Zero(t, stored.Cursor)
}

func TestDispatchEventCountersAreConsistent(t *testing.T) {
	f := newDispatchFixture(t)
	campaign := ptesting.NewCampaign(f.campaigns)
	h := f.handleFor(t, campaign, "+15550001", "+15550002", "+15550003", "+15550004")

	f.transport.Script(errors.New("rejected"), nil, errors.New("rejected"), nil)

	f.dispatch.Run(context.Background(), h)

	for _, e := range f.publisher.Events() {
		assert.Equal(t, e.Cursor, e.SentCount+e.FailedCount,
			"event %+v violates the cursor invariant", e)
		assert.LessOrEqual(t, e.Cursor, e.TotalTargets)
	}

	last := f.publisher.Last()
	assert.Equal(t, uint(2), last.SentCount)
	assert.Equal(t, uint(2), last.FailedCount)
	assert.Equal(t, string(models.CampaignStatusCompleted), last.Status)
}
