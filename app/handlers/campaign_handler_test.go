package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/peyk/app/dto"
	businessflow "github.com/amirphl/peyk/business_flow"
)

// progressOnlyFlow captures the context handed to the flow. Only GetProgress
// is implemented; the embedded interface panics for everything else.
type progressOnlyFlow struct {
	businessflow.CampaignFlow
	gotCtx context.Context
}

func (s *progressOnlyFlow) GetProgress(ctx context.Context, campaignUUID string) (*dto.CampaignProgressResponse, error) {
	s.gotCtx = ctx
	return &dto.CampaignProgressResponse{UUID: campaignUUID, Status: "running"}, nil
}

func TestRequestContextReleasedAfterHandler(t *testing.T) {
	flow := &progressOnlyFlow{}
	h := NewCampaignHandler(flow, nil)

	app := fiber.New()
	app.Get("/api/v1/campaigns/:uuid/progress", h.GetProgress)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/campaigns/abc/progress", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, flow.gotCtx)
	// the deferred cancel releases the context as soon as the handler returns
	assert.ErrorIs(t, flow.gotCtx.Err(), context.Canceled)

	deadline, ok := flow.gotCtx.Deadline()
	assert.True(t, ok, "request context should carry a deadline")
	assert.False(t, deadline.IsZero())
}
