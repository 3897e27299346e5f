package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	id "medigate/pkg/domain"
	"medigate/pkg/requestcontext"
)

// seenLimit bounds the per-subscriber idempotency set. Retried publishes are
// near-immediate, so a short memory is enough.
const seenLimit = 256

// Subscription is one live client stream. Events arrive on Events() in
// publish order until the subscription's context ends.
type Subscription struct {
	key          uuid.UUID
	Role         id.Role
	SubscriberID id.UserID

	mu     sync.Mutex
	ch     chan Event
	closed bool
	seen   map[uuid.UUID]struct{}
	order  []uuid.UUID
}

// Events is the stream of delivered events. Closed on unsubscribe.
func (s *Subscription) Events() <-chan Event { return s.ch }

// deliver enqueues the event unless it was already seen or the buffer is
// full. Returns (delivered, dropped).
func (s *Subscription) deliver(event Event) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, false
	}
	if _, dup := s.seen[event.ID]; dup {
		return false, false
	}

	select {
	case s.ch <- event:
	default:
		// Slow consumer: drop for this subscriber only.
		return false, true
	}

	s.seen[event.ID] = struct{}{}
	s.order = append(s.order, event.ID)
	if len(s.order) > seenLimit {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return true, false
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Router maintains the live subscriber registry and routes events to exactly
// the subscribers matching their target. Safe for concurrent subscribe,
// unsubscribe, and publish.
type Router struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	buffer int
}

// NewRouter builds a router with the given per-subscriber channel capacity.
func NewRouter(buffer int) *Router {
	if buffer <= 0 {
		buffer = 64
	}
	return &Router{
		subs:   make(map[uuid.UUID]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a live stream for (role, subscriberID). The slot is
// released as soon as ctx ends, so disconnected clients never accumulate.
func (r *Router) Subscribe(ctx context.Context, role id.Role, subscriberID id.UserID) *Subscription {
	sub := &Subscription{
		key:          uuid.New(),
		Role:         role,
		SubscriberID: subscriberID,
		ch:           make(chan Event, r.buffer),
		seen:         make(map[uuid.UUID]struct{}),
	}

	r.mu.Lock()
	r.subs[sub.key] = sub
	r.mu.Unlock()
	liveSubscribers.Inc()

	go func() {
		<-ctx.Done()
		r.unsubscribe(sub)
	}()

	return sub
}

func (r *Router) unsubscribe(sub *Subscription) {
	r.mu.Lock()
	_, present := r.subs[sub.key]
	delete(r.subs, sub.key)
	r.mu.Unlock()

	if present {
		liveSubscribers.Dec()
	}
	// Buffered-but-undelivered events are discarded with the channel.
	sub.close()
}

// Publish routes the event to matching live subscribers. A targeted event
// reaches only subscribers with that ID; a broadcast reaches every live
// subscriber of the role and nobody else. One slow or failed subscriber
// never affects the rest.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}

	r.mu.RLock()
	targets := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Role != event.Role {
			continue
		}
		if !event.Broadcast() && sub.SubscriberID != event.RecipientID {
			continue
		}
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	for _, sub := range targets {
		delivered, dropped := sub.deliver(event)
		if delivered {
			eventsDelivered.Inc()
		}
		if dropped {
			eventsDropped.Inc()
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
