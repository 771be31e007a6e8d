package stream

import (
	"context"
	"sync"
	"time"
)

// EventType names an auth request lifecycle transition.
type EventType string

const (
	EventCreated  EventType = "auth_request.created"
	EventAnswered EventType = "auth_request.answered"
)

// Event describes an auth request lifecycle change pushed to approving
// clients so they can react without polling.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Approved  *bool     `json:"approved,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs auth request events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch     chan Event
	userID string
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for events concerning userID and returns
// a channel which will receive them. The channel is closed when the provided
// context ends.
func (s *Stream) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, userID: userID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to subscribers of the event's user.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
