package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/peyk/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GatewayClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewGatewayClient(&config.TransportConfig{
		BaseURL:  server.URL,
		APIToken: "test-token",
		Timeout:  5 * time.Second,
	})
	return client, server
}

func TestGatewaySendSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload gatewaySendRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/messages", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		json.NewEncoder(w).Encode(gatewaySendResponse{MessageID: "m-1", Status: "accepted"})
	})

	err := client.Send(context.Background(), OutboundMessage{Target: "+15550001", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "+15550001", gotPayload.Recipient)
	assert.Equal(t, "hello", gotPayload.Body)
}

func TestGatewaySendRejectedStatusIsPlainFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gatewaySendResponse{Status: "blocked"})
	})

	err := client.Send(context.Background(), OutboundMessage{Target: "+15550001"})
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "blocked")
}

func TestGatewaySendBadRequestIsPlainFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(gatewaySendResponse{Detail: "invalid recipient"})
	})

	err := client.Send(context.Background(), OutboundMessage{Target: "bogus"})
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestGatewaySendFatalStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			err := client.Send(context.Background(), OutboundMessage{Target: "+15550001"})
			require.Error(t, err)
			assert.True(t, IsFatal(err), "HTTP %d must poison the session", tt.status)
		})
	}
}

func TestGatewaySendUnreachableIsFatal(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	err := client.Send(context.Background(), OutboundMessage{Target: "+15550001"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestGatewayReady(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, client.Ready(context.Background()))

	failing, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, failing.Ready(context.Background()))
}

func TestGatewayParticipants(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/groups/12036302@g.us/participants", r.URL.Path)
		json.NewEncoder(w).Encode([]Participant{
			{Address: "+15550001", Name: "Ada"},
			{Address: "+15550002"},
		})
	})

	participants, err := client.Participants(context.Background(), "12036302@g.us")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "Ada", participants[0].Name)
	assert.Equal(t, "+15550002", participants[1].Address)
}

func TestGatewayParticipantsLookupFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Participants(context.Background(), "missing@g.us")
	assert.Error(t, err)
}
