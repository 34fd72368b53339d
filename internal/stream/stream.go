package stream

import (
	"context"
	"sync"
	"time"

	"notenest.app/internal/accounts"
)

// PlanChanged tells a connected client that its account's plan was updated.
type PlanChanged struct {
	AccountID string        `json:"account_id"`
	Plan      accounts.Plan `json:"plan"`
	At        time.Time     `json:"at"`
}

type subscriber struct {
	accountID string
	ch        chan PlanChanged
}

// Stream fans plan changes out to the subscribers of the affected account.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for accountID and returns a channel which
// will receive its events. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, accountID string) <-chan PlanChanged {
	ch := make(chan PlanChanged, 4)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{accountID: accountID, ch: ch}
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

// Publish delivers evt to every subscriber of evt.AccountID.
func (s *Stream) Publish(evt PlanChanged) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.accountID != evt.AccountID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
