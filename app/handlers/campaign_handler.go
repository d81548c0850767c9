package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/app/services"
	businessflow "github.com/amirphl/peyk/business_flow"
	"github.com/amirphl/peyk/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	CloneCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
	GetProgress(c fiber.Ctx) error
	StreamEvents(c fiber.Ctx) error
	ListAuditLogs(c fiber.Ctx) error
	HealthCheck(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	hub          *services.Hub
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, hub *services.Hub) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		hub:          hub,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles campaign draft creation
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign validation failed", "CAMPAIGN_VALIDATION_FAILED", err.Error())
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// GetCampaign returns a single campaign by UUID
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	req := dto.GetCampaignRequest{UUID: c.Params("uuid")}
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, &req, metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns returns a page of campaigns
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	req := dto.ListCampaignsRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, &req, metadata)
	if err != nil {
		log.Println("Campaign list failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// StartCampaign moves a draft into execution
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/start")
	defer cancel()

	result, err := h.campaignFlow.StartCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to start campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign started successfully", result)
}

// PauseCampaign halts a running campaign between sends
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/pause")
	defer cancel()

	result, err := h.campaignFlow.PauseCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to pause campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign paused successfully", result)
}

// ResumeCampaign restarts a paused campaign from its cursor
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/resume")
	defer cancel()

	result, err := h.campaignFlow.ResumeCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to resume campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign resumed successfully", result)
}

// CancelCampaign terminates a campaign for good
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/cancel")
	defer cancel()

	result, err := h.campaignFlow.CancelCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to cancel campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign canceled successfully", result)
}

// CloneCampaign duplicates a finished campaign's spec into a fresh draft
func (h *CampaignHandler) CloneCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/clone")
	defer cancel()

	result, err := h.campaignFlow.CloneCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to clone campaign")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign cloned successfully", result)
}

// DeleteCampaign removes a draft campaign
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	err := h.campaignFlow.DeleteCampaign(ctx, c.Params("uuid"), metadata)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to delete campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign deleted successfully", nil)
}

// GetProgress returns a point-in-time progress snapshot
func (h *CampaignHandler) GetProgress(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/progress")
	defer cancel()

	result, err := h.campaignFlow.GetProgress(ctx, c.Params("uuid"))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get campaign progress")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign progress retrieved successfully", result)
}

// StreamEvents streams progress events over SSE. An optional uuid query
// filters the stream to one campaign.
func (h *CampaignHandler) StreamEvents(c fiber.Ctx) error {
	if h.hub == nil {
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Event streaming is not enabled", "EVENTS_DISABLED", nil)
	}

	filterUUID := c.Query("uuid")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if filterUUID != "" && event.CampaignUUID != filterUUID {
					continue
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}

// ListAuditLogs returns the audit trail of a campaign
func (h *CampaignHandler) ListAuditLogs(c fiber.Ctx) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:uuid/audit")
	defer cancel()

	result, err := h.campaignFlow.ListAuditLogs(ctx, c.Params("uuid"), limit, offset)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list audit logs")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Audit logs retrieved successfully", result)
}

// HealthCheck provides a health check endpoint
func (h *CampaignHandler) HealthCheck(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "campaign-engine",
	})
}

// businessErrorResponse maps business flow errors onto HTTP responses
func (h *CampaignHandler) businessErrorResponse(c fiber.Ctx, err error, fallback string) error {
	switch {
	case businessflow.IsCampaignNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	case businessflow.IsCampaignNotDraft(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Operation requires a draft campaign", "CAMPAIGN_NOT_DRAFT", nil)
	case businessflow.IsCampaignNotFinished(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Operation requires a finished campaign", "CAMPAIGN_NOT_FINISHED", nil)
	case businessflow.IsCampaignTerminal(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign has already finished", "CAMPAIGN_TERMINAL", nil)
	}

	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case "CAMPAIGN_UUID_REQUIRED", "CAMPAIGN_VALIDATION_FAILED":
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		case "CAMPAIGN_ALREADY_ACTIVE", "CAMPAIGN_NOT_RUNNING", "CAMPAIGN_NOT_PAUSED":
			return h.ErrorResponse(c, fiber.StatusConflict, be.Message, be.Code, nil)
		}
	}

	log.Println(fallback, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, "INTERNAL_ERROR", nil)
}

// clientMetadata extracts audit metadata from the request
func (h *CampaignHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.RequestID = c.Get(businessflow.RequestIDKey)
	return metadata
}

// createRequestContext creates a context with request-scoped values for
// observability and timeout. The caller must defer the cancel func so the
// context is released as soon as the handler returns.
func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *CampaignHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get(businessflow.RequestIDKey))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)

	return ctx, cancel
}

func queryInt(c fiber.Ctx, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
