package events

import "sync"

// Event is the closed set of notifications carried on the in-process bus.
// Payload-free events mean "state changed, re-read your store"; subscribers
// re-fetch from the authoritative source rather than trusting the payload.
type Event interface{ isEvent() }

// CartChanged signals that the contents of the authoritative cart changed.
type CartChanged struct{}

// SessionChanged signals an auth transition. Authenticated carries the new
// state so subscribers can re-resolve which cart store they should read.
type SessionChanged struct {
	Authenticated bool
	UserID        string
}

// OrderPaid signals that the payment gateway confirmed settlement for an
// order; subscribers refetch the order to pick up the new status.
type OrderPaid struct {
	OrderID string
}

// NoticeLevel grades user-facing notices.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a non-blocking user-visible notification (the daemon analogue
// of a toast).
type Notice struct {
	Level   NoticeLevel
	Message string
}

func (CartChanged) isEvent()    {}
func (SessionChanged) isEvent() {}
func (OrderPaid) isEvent()      {}
func (Notice) isEvent()         {}

// Subscription unsubscribes its handler when closed.
type Subscription struct {
	once sync.Once
	stop func()
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

// Bus is a fire-and-forget broadcast bus. Publish never blocks on slow
// subscribers and delivery order across subscribers is unspecified; handlers
// must be idempotent re-reads, never mutation triggers.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	entries map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{entries: make(map[int]func(Event))}
}

// Subscribe registers a handler for every published event. Handlers filter
// by type themselves; the closed Event set keeps switches exhaustive.
func (b *Bus) Subscribe(handler func(Event)) *Subscription {
	if handler == nil {
		return &Subscription{stop: func() {}}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.entries[id] = handler
	b.mu.Unlock()

	return &Subscription{stop: func() {
		b.mu.Lock()
		delete(b.entries, id)
		b.mu.Unlock()
	}}
}

// Publish delivers the event to every current subscriber on the caller's
// goroutine. Subscribers registered during delivery see only later events.
func (b *Bus) Publish(event Event) {
	if b == nil || event == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.entries))
	for _, h := range b.entries {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
