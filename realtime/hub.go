package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("realtime: hub closed")

const defaultBuffer = 64

// Subscription is a live handle on a table's change stream.
type Subscription struct {
	id    uint64
	table string
	ch    chan ChangeEvent

	// mu serialises publishers; tailResync is set while the newest queued
	// event is a RESYNC.
	mu         sync.Mutex
	tailResync bool
}

// offer queues ev and returns how many events were lost. A full buffer
// gives up its oldest event for a RESYNC, which stands in for everything
// dropped until the subscriber catches up.
func (s *Subscription) offer(ev ChangeEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- ev:
		s.tailResync = ev.Type == EventResync
		return 0
	default:
	}
	lost := 1
	if ev.Type == EventResync {
		lost = 0
	}
	if s.tailResync {
		return lost
	}
	select {
	case <-s.ch:
		lost++
	default:
	}
	select {
	case s.ch <- ChangeEvent{Type: EventResync, Table: s.table}:
		s.tailResync = true
	default:
	}
	return lost
}

// Events is closed once the subscription is removed.
func (s *Subscription) Events() <-chan ChangeEvent { return s.ch }

func (s *Subscription) Table() string { return s.table }

// Hub is the in-process change fan-out. Publish never blocks: a subscriber
// whose buffer is full loses events and is told to resync.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
	logger  *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(table string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	sub := &Subscription{
		id:    h.nextID,
		table: table,
		ch:    make(chan ChangeEvent, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
}

func (h *Hub) Publish(_ context.Context, ev ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for _, sub := range h.subs {
		if sub.table != ev.Table && ev.Type != EventResync {
			continue
		}
		if lost := sub.offer(ev); lost > 0 {
			h.dropped.Add(uint64(lost))
			h.logger.Warn("realtime subscriber lagging, resync queued",
				zap.Uint64("subscription", sub.id),
				zap.String("type", string(ev.Type)),
				zap.Int("lost", lost),
			)
		}
	}
	return nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events lost to full subscriber buffers, RESYNCs excluded.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close removes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	return nil
}
