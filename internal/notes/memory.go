package notes

import (
	"context"
	"sort"
	"sync"
	"time"

	"notenest.app/internal/ids"
	"notenest.app/internal/quota"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu      sync.Mutex
	byOwner map[string][]Note
}

func NewInMemory() *InMemory {
	return &InMemory{byOwner: make(map[string][]Note)}
}

func (s *InMemory) Create(ctx context.Context, ownerID, content string, limit quota.Limit) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := len(s.byOwner[ownerID])
	if !limit.Allows(current) {
		n, _ := limit.Max()
		return Note{}, &quota.LimitError{Limit: n, Current: current}
	}
	now := time.Now().UTC()
	note := Note{ID: ids.NewAt(now), OwnerID: ownerID, Content: content, CreatedAt: now}
	s.byOwner[ownerID] = append(s.byOwner[ownerID], note)
	return note, nil
}

func (s *InMemory) ListByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, len(s.byOwner[ownerID]))
	copy(out, s.byOwner[ownerID])
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byOwner[ownerID]
	for i, n := range list {
		if n.ID == id {
			s.byOwner[ownerID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) CountOwnedBy(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOwner[ownerID]), nil
}
