// Package notify fans completed transfers out to live event-stream
// subscribers and to external sinks such as the message broker.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/models"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultKeepalive = 25 * time.Second
	eventBuffer      = 256
	sinkTimeout      = 5 * time.Second
)

var (
	FrameConnected = []byte(":connected\n\n")
	FramePing      = []byte(":ping\n\n")
)

// Subscriber receives textual event frames. Send must not block; an error
// removes the subscriber from the hub.
type Subscriber interface {
	Send(frame []byte) error
}

// Sink receives every event after live subscribers have been served.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Handle identifies a registration.
type Handle uint64

// Filter selects the events a subscriber receives. A nil Filter receives all.
type Filter func(Event) bool

type registration struct {
	sub   Subscriber
	match Filter
}

// Hub is the registry of live subscribers. Create one per process with
// NewHub, Start it, and Close it at shutdown.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Handle]registration
	nextID Handle

	events    chan Event
	sinks     []Sink
	keepalive time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

func NewHub(keepalive time.Duration, sinks ...Sink) *Hub {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &Hub{
		subs:      make(map[Handle]registration),
		events:    make(chan Event, eventBuffer),
		sinks:     sinks,
		keepalive: keepalive,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the delivery loop in the background until Close is called.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		go h.loop()
	})
}

// Close stops the delivery loop and closes every subscriber that supports it.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.startOnce.Do(func() { close(h.done) })
	<-h.done

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Handle]registration)
	h.mu.Unlock()
	for _, reg := range subs {
		closeSubscriber(reg.sub)
	}
	observability.SetSubscribers(0)
}

// Register adds s. Completion events reach it only when match accepts them;
// keepalive frames always do.
func (h *Hub) Register(s Subscriber, match Filter) Handle {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = registration{sub: s, match: match}
	n := len(h.subs)
	h.mu.Unlock()
	observability.SetSubscribers(n)
	return id
}

func (h *Hub) Unregister(id Handle) {
	h.mu.Lock()
	reg, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		closeSubscriber(reg.sub)
	}
	observability.SetSubscribers(n)
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast writes frame to every subscriber and drops the ones that fail.
func (h *Hub) Broadcast(frame []byte) {
	h.fanout(frame, nil)
}

// fanout writes frame to the subscribers whose filter accepts e, or to all of
// them when e is nil.
func (h *Hub) fanout(frame []byte, e *Event) {
	h.mu.RLock()
	targets := make(map[Handle]registration, len(h.subs))
	for id, reg := range h.subs {
		targets[id] = reg
	}
	h.mu.RUnlock()

	for id, reg := range targets {
		if e != nil && reg.match != nil && !reg.match(*e) {
			continue
		}
		if err := reg.sub.Send(frame); err != nil {
			observability.IncrementNotifyDropped("subscriber")
			zap.L().Debug("dropping event subscriber", zap.Uint64("handle", uint64(id)), zap.Error(err))
			h.Unregister(id)
		}
	}
}

// Notify queues a completion event for t. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Notify(t models.Transaction) {
	h.Publish(EventFromTransaction(t))
}

func (h *Hub) Publish(e Event) {
	select {
	case <-h.stopCh:
		return
	default:
	}
	select {
	case h.events <- e:
	default:
		observability.IncrementNotifyDropped("queue_full")
		zap.L().Warn("notification queue full, dropping event", zap.String("transaction_id", e.TransactionID))
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.Broadcast(FramePing)
		case e := <-h.events:
			h.deliver(e)
		}
	}
}

func (h *Hub) deliver(e Event) {
	frame, err := EncodeFrame(e)
	if err != nil {
		zap.L().Error("encode event frame", zap.Error(err))
		return
	}
	h.fanout(frame, &e)

	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Publish(ctx, e); err != nil {
			observability.IncrementNotifyDropped("sink")
			zap.L().Warn("event sink publish failed", zap.String("transaction_id", e.TransactionID), zap.Error(err))
		}
		cancel()
	}
}

// EncodeFrame renders e as a server-sent-events data frame.
func EncodeFrame(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

func closeSubscriber(s Subscriber) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}
