// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign lookup and lifecycle errors
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrCampaignNotDraft      = errors.New("campaign is not a draft")
	ErrCampaignNotFinished   = errors.New("campaign has not finished")
	ErrCampaignNotRunning    = errors.New("campaign is not running")
	ErrCampaignNotPaused     = errors.New("campaign is not paused")
	ErrCampaignAlreadyActive = errors.New("campaign is already active")
	ErrCampaignTerminal      = errors.New("campaign is in a terminal state")
	ErrCampaignUUIDRequired  = errors.New("campaign UUID is required")
	ErrStatusInvalid         = errors.New("campaign status is invalid")

	// Spec validation errors
	ErrCampaignTitleRequired   = errors.New("campaign title is required")
	ErrCampaignMessageRequired = errors.New("campaign message is required")
	ErrTargetKindInvalid       = errors.New("target kind is invalid")
	ErrTargetGroupRequired     = errors.New("target group is required for contact_group campaigns")
	ErrTargetChatGroupRequired = errors.New("chat group identifier is required for chat_group campaigns")
	ErrTargetGroupNotFound     = errors.New("target contact group not found")
	ErrScheduleModeInvalid     = errors.New("schedule mode is invalid")
	ErrScheduleTimeNotPresent  = errors.New("schedule time is not present")
	ErrScheduleTimeInPast      = errors.New("schedule time is in the past")
	ErrScheduleWindowInvalid   = errors.New("schedule window is invalid")
	ErrIntervalOrderInvalid    = errors.New("min interval must not exceed max interval")
)

// BusinessError represents a business logic error with context
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignNotDraft(err error) bool {
	return errors.Is(err, ErrCampaignNotDraft)
}

func IsCampaignNotFinished(err error) bool {
	return errors.Is(err, ErrCampaignNotFinished)
}

func IsCampaignTerminal(err error) bool {
	return errors.Is(err, ErrCampaignTerminal)
}

func IsValidationError(err error) bool {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code == "CAMPAIGN_VALIDATION_FAILED"
	}
	return false
}
