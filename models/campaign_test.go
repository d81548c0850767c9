package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{"draft to running", CampaignStatusDraft, CampaignStatusRunning, true},
		{"draft to scheduled", CampaignStatusDraft, CampaignStatusScheduled, true},
		{"draft to failed", CampaignStatusDraft, CampaignStatusFailed, true},
		{"draft to paused", CampaignStatusDraft, CampaignStatusPaused, false},
		{"draft to completed", CampaignStatusDraft, CampaignStatusCompleted, false},
		{"scheduled to running", CampaignStatusScheduled, CampaignStatusRunning, true},
		{"scheduled to failed", CampaignStatusScheduled, CampaignStatusFailed, true},
		{"scheduled to paused", CampaignStatusScheduled, CampaignStatusPaused, false},
		{"running to paused", CampaignStatusRunning, CampaignStatusPaused, true},
		{"running to completed", CampaignStatusRunning, CampaignStatusCompleted, true},
		{"running to failed", CampaignStatusRunning, CampaignStatusFailed, true},
		{"running to draft", CampaignStatusRunning, CampaignStatusDraft, false},
		{"paused to running", CampaignStatusPaused, CampaignStatusRunning, true},
		{"paused to failed", CampaignStatusPaused, CampaignStatusFailed, true},
		{"paused to completed", CampaignStatusPaused, CampaignStatusCompleted, false},
		{"completed is terminal", CampaignStatusCompleted, CampaignStatusRunning, false},
		{"failed is terminal", CampaignStatusFailed, CampaignStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{Status: tt.from}
			assert.Equal(t, tt.allowed, c.CanTransitionTo(tt.to))
		})
	}
}

func TestCampaignStatusTerminal(t *testing.T) {
	assert.True(t, CampaignStatusCompleted.Terminal())
	assert.True(t, CampaignStatusFailed.Terminal())
	assert.False(t, CampaignStatusRunning.Terminal())
	assert.False(t, CampaignStatusPaused.Terminal())
	assert.False(t, CampaignStatusDraft.Terminal())
	assert.False(t, CampaignStatusScheduled.Terminal())
}

func TestMarkSentAdvancesCursorAndCounter(t *testing.T) {
	c := &Campaign{TotalTargets: 3}

	c.MarkSent()
	c.MarkSent()
	c.MarkFailed()

	assert.Equal(t, uint(2), c.SentCount)
	assert.Equal(t, uint(1), c.FailedCount)
	assert.Equal(t, uint(3), c.Cursor)
	assert.Equal(t, uint(3), c.Processed())
	assert.Equal(t, c.Cursor, c.SentCount+c.FailedCount)
	assert.True(t, c.Done())
	assert.NotNil(t, c.LastActivityAt)
}

func TestCloneSpecResetsRuntimeState(t *testing.T) {
	reason := "boom"
	now := time.Now().UTC()
	original := &Campaign{
		ID:     7,
		UUID:   uuid.New(),
		Status: CampaignStatusFailed,
		Spec: CampaignSpec{
			Title:       "promo",
			Message:     "hi",
			Target:      TargetSpec{Kind: TargetKindAllContacts},
			Schedule:    ScheduleSpec{Mode: ScheduleModeImmediate},
			MinInterval: 5,
			MaxInterval: 10,
		},
		Cursor:         4,
		SentCount:      3,
		FailedCount:    1,
		TotalTargets:   4,
		FailureReason:  &reason,
		LastActivityAt: &now,
	}

	clone := original.CloneSpec()

	require.NotNil(t, clone)
	assert.Equal(t, original.Spec, clone.Spec)
	assert.NotEqual(t, original.UUID, clone.UUID)
	assert.Equal(t, uint(0), clone.ID)
	assert.Equal(t, CampaignStatusDraft, clone.Status)
	assert.Zero(t, clone.Cursor)
	assert.Zero(t, clone.SentCount)
	assert.Zero(t, clone.FailedCount)
	assert.Zero(t, clone.TotalTargets)
	assert.Nil(t, clone.FailureReason)
	assert.Nil(t, clone.LastActivityAt)
}

func TestScheduleWindowContains(t *testing.T) {
	tests := []struct {
		window ScheduleWindow
		hour   int
		want   bool
	}{
		{ScheduleWindowOddHours, 13, true},
		{ScheduleWindowOddHours, 14, false},
		{ScheduleWindowEvenHours, 14, true},
		{ScheduleWindowEvenHours, 13, false},
		{ScheduleWindowDaytime, 8, true},
		{ScheduleWindowDaytime, 19, true},
		{ScheduleWindowDaytime, 20, false},
		{ScheduleWindowDaytime, 7, false},
		{ScheduleWindowNighttime, 20, true},
		{ScheduleWindowNighttime, 7, true},
		{ScheduleWindowNighttime, 8, false},
		{ScheduleWindowNighttime, 19, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.window.Contains(tt.hour),
			"window %s hour %d", tt.window, tt.hour)
	}
}

func TestCampaignSpecValueScanRoundTrip(t *testing.T) {
	groupID := uint(42)
	spec := CampaignSpec{
		Title:   "launch",
		Message: "we are live",
		Target: TargetSpec{
			Kind:    TargetKindContactGroup,
			GroupID: &groupID,
		},
		Schedule: ScheduleSpec{
			Mode:   ScheduleModeWindow,
			Window: ScheduleWindowDaytime,
		},
		MinInterval: 30,
		MaxInterval: 90,
	}

	value, err := spec.Value()
	require.NoError(t, err)

	var decoded CampaignSpec
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, spec, decoded)
}

func TestCampaignStatusScanRejectsUnknownType(t *testing.T) {
	var s CampaignStatus
	require.NoError(t, s.Scan("running"))
	assert.Equal(t, CampaignStatusRunning, s)

	assert.Error(t, s.Scan(42))

	var invalid CampaignStatus = "bogus"
	_, err := invalid.Value()
	assert.Error(t, err)
}
