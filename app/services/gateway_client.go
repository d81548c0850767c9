package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/amirphl/peyk/config"
	"golang.org/x/time/rate"
)

// GatewayClient delivers messages through the external messaging gateway.
// It implements Transport. Authentication failures and gateway outages are
// session-fatal; per-recipient rejections are not.
type GatewayClient struct {
	config  *config.TransportConfig
	client  *http.Client
	limiter *rate.Limiter
}

// gatewaySendRequest is the gateway's send payload
type gatewaySendRequest struct {
	Recipient string  `json:"recipient"`
	Body      string  `json:"body"`
	MediaURL  *string `json:"media_url,omitempty"`
}

// gatewaySendResponse is the gateway's per-message result
type gatewaySendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// NewGatewayClient creates a new gateway transport
func NewGatewayClient(cfg *config.TransportConfig) *GatewayClient {
	var limiter *rate.Limiter
	if cfg.MaxSendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxSendRate), 1)
	}

	return &GatewayClient{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
	}
}

// Ready probes the gateway health endpoint
func (g *GatewayClient) Ready(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", g.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway not ready: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Participant is one member of an external chat group
type Participant struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Participants lists the members of a chat group from the gateway roster
func (g *GatewayClient) Participants(ctx context.Context, chatGroupJID string) ([]Participant, error) {
	url := fmt.Sprintf("%s/api/v1/groups/%s/participants", g.config.BaseURL, chatGroupJID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create roster request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway roster request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("gateway roster lookup failed: HTTP %d", resp.StatusCode)
	}

	var participants []Participant
	if err := json.NewDecoder(resp.Body).Decode(&participants); err != nil {
		return nil, fmt.Errorf("failed to decode roster response: %w", err)
	}
	return participants, nil
}

// Send delivers a single message through the gateway
func (g *GatewayClient) Send(ctx context.Context, msg OutboundMessage) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return NewFatalError(err)
		}
	}

	payload := gatewaySendRequest{
		Recipient: msg.Target,
		Body:      msg.Body,
		MediaURL:  msg.MediaURL,
	}
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/messages", g.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.APIToken)

	resp, err := g.client.Do(req)
	if err != nil {
		// The gateway never answered; nothing suggests the next target
		// would fare better.
		return NewFatalError(fmt.Errorf("gateway request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return NewFatalError(fmt.Errorf("gateway rejected credentials: HTTP %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		io.Copy(io.Discard, resp.Body)
		return NewFatalError(fmt.Errorf("gateway unavailable: HTTP %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		var result gatewaySendResponse
		_ = json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("delivery rejected for %s: %s (HTTP %d)", msg.Target, result.Detail, resp.StatusCode)
	}

	var result gatewaySendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode send response: %w", err)
	}
	if result.Status != "accepted" && result.Status != "sent" {
		return fmt.Errorf("delivery failed for %s: %s", msg.Target, result.Status)
	}

	return nil
}
