package drawsync

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
)

// RunEvent announces a finished sync run.
type RunEvent struct {
	Game          lottery.Game `json:"game"`
	RunID         string       `json:"run_id"`
	Status        RunStatus    `json:"status"`
	UpsertedCount int          `json:"upserted_count"`
	Error         string       `json:"error,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// EventHub fans run events out to per-game subscribers. Slow subscribers miss events instead of blocking syncs.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[lottery.Game]map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan RunEvent
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[lottery.Game]map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe streams events for game until ctx ends or the returned cleanup runs.
func (h *EventHub) Subscribe(ctx context.Context, game lottery.Game) (<-chan RunEvent, func()) {
	if game == "" {
		ch := make(chan RunEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &eventSubscriber{
		id:     h.nextSequence(),
		stream: make(chan RunEvent, h.bufferSize),
	}
	h.register(game, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.unregister(game, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (h *EventHub) Publish(event RunEvent) {
	if event.Game == "" {
		return
	}
	h.mu.RLock()
	subscribers := h.subscribers[event.Game]
	if len(subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	copies := make([]*eventSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (h *EventHub) nextSequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *EventHub) register(game lottery.Game, subscriber *eventSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[game]; !ok {
		h.subscribers[game] = make(map[int64]*eventSubscriber)
	}
	h.subscribers[game][subscriber.id] = subscriber
}

func (h *EventHub) unregister(game lottery.Game, subscriberID int64) {
	h.mu.Lock()
	subscribers := h.subscribers[game]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(h.subscribers, game)
		}
	}
	h.mu.Unlock()
}
