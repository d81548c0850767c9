package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/redis/go-redis/v9"
)

const redisPublishTimeout = 3 * time.Second

// ProgressPublisher receives a progress event after every campaign state
// change. Publish must never block the dispatch loop: slow or absent
// consumers lose events, they do not stall sending.
type ProgressPublisher interface {
	Publish(event dto.ProgressEvent)
}

// NopPublisher discards all events
type NopPublisher struct{}

func (NopPublisher) Publish(dto.ProgressEvent) {}

// Hub fans progress events out to in-process subscribers over buffered
// channels. A subscriber that falls behind has events dropped rather than
// delaying the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan dto.ProgressEvent
	nextID uint64
	buffer int
}

// NewHub creates a new in-process event hub
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[uint64]chan dto.ProgressEvent),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer. The returned cancel func removes the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan dto.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan dto.ProgressEvent, h.buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking
func (h *Hub) Publish(event dto.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer is full; drop.
		}
	}
}

// RedisPublisher pushes progress events onto a Redis pub/sub channel so
// other processes can follow campaign progress. Failures are logged and
// swallowed.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a Redis-backed progress publisher
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "campaign:progress"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish serializes the event and fires it at Redis without waiting on
// the result beyond a short deadline
func (p *RedisPublisher) Publish(event dto.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("progress publisher: failed to marshal event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			log.Printf("progress publisher: redis publish failed: %v", err)
		}
	}()
}

// MultiPublisher forwards each event to a set of publishers
type MultiPublisher []ProgressPublisher

func (m MultiPublisher) Publish(event dto.ProgressEvent) {
	for _, p := range m {
		p.Publish(event)
	}
}
