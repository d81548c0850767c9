package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/peyk/app/dto"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(4)

	ch1, cancel1 := hub.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Publish(dto.ProgressEvent{CampaignUUID: "c-1", Cursor: 1})

	select {
	case e := <-ch1:
		assert.Equal(t, "c-1", e.CampaignUUID)
	case <-time.After(time.Second):
		t.Fatal("first subscriber never received the event")
	}
	select {
	case e := <-ch2:
		assert.Equal(t, uint(1), e.Cursor)
	case <-time.After(time.Second):
		t.Fatal("second subscriber never received the event")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(2)
	ch, cancel := hub.Subscribe()
	defer cancel()

	// never blocks, even with the buffer saturated
	for i := 0; i < 10; i++ {
		hub.Publish(dto.ProgressEvent{Cursor: uint(i)})
	}

	require.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, uint(0), first.Cursor)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(2)
	ch, cancel := hub.Subscribe()

	cancel()
	cancel() // second cancel is a no-op

	_, open := <-ch
	assert.False(t, open)

	// publishing after cancel must not panic or deliver
	hub.Publish(dto.ProgressEvent{})
}

func TestMultiPublisherFansOut(t *testing.T) {
	hub1 := NewHub(2)
	hub2 := NewHub(2)
	ch1, cancel1 := hub1.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub2.Subscribe()
	defer cancel2()

	multi := MultiPublisher{hub1, hub2, NopPublisher{}}
	multi.Publish(dto.ProgressEvent{CampaignUUID: "c-2"})

	assert.Len(t, ch1, 1)
	assert.Len(t, ch2, 1)
}
