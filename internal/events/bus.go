// Package events provides an in-process publish/subscribe bus for UI signals.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
)

// Topic names an event type on the wire.
type Topic string

const (
	TopicNavbar        Topic = "navbar"
	TopicChatState     Topic = "chat_state"
	TopicChatFinalized Topic = "chat_finalized"
	TopicContactBanner Topic = "contact_banner"
)

const defaultSubscriberBuffer = 32

// NavbarVisibility asks the frontend to show or hide the navigation bar.
type NavbarVisibility struct {
	Visible bool `json:"visible"`
}

// ContactBanner mirrors the contact page status banner.
type ContactBanner struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Expanded bool   `json:"expanded"`
}

// Event is one published message. VisitorID scopes delivery; an empty
// VisitorID reaches every subscriber.
type Event struct {
	ID        int64     `json:"id"`
	Topic     Topic     `json:"topic"`
	VisitorID string    `json:"-"`
	Payload   any       `json:"payload"`
	At        time.Time `json:"at"`
}

// Subscription receives events until Cancel is called.
type Subscription struct {
	C         <-chan Event
	ch        chan Event
	visitorID string
	bus       *Bus
	once      sync.Once
}

// Cancel stops delivery and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.bus.unsubscribe(s) })
}

// Bus fans events out to subscribers. Delivery never blocks publishers: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	nextID int64
	buffer int
	logger *slog.Logger
}

// NewBus creates a bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for visitorID's events. An empty
// visitorID receives everything.
func (b *Bus) Subscribe(visitorID string) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, visitorID: visitorID, bus: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers payload under topic.
func (b *Bus) Publish(topic Topic, visitorID string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ev := Event{ID: b.nextID, Topic: topic, VisitorID: visitorID, Payload: payload, At: time.Now()}
	for sub := range b.subs {
		if visitorID != "" && sub.visitorID != "" && sub.visitorID != visitorID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("Dropping event for slow subscriber", "topic", topic, "visitor_id", sub.visitorID)
		}
	}
}

// SetNavbarVisible publishes a NavbarVisibility event.
func (b *Bus) SetNavbarVisible(visitorID string, visible bool) {
	b.Publish(TopicNavbar, visitorID, NavbarVisibility{Visible: visible})
}

// StateChanged implements chat.Observer.
func (b *Bus) StateChanged(ev chat.StateEvent) {
	b.Publish(TopicChatState, ev.VisitorID, ev)
}

// MessageFinalized implements chat.Observer.
func (b *Bus) MessageFinalized(ev chat.FinalizedEvent) {
	b.Publish(TopicChatFinalized, ev.VisitorID, ev)
}

var _ chat.Observer = (*Bus)(nil)
