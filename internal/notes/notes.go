package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"notenest.app/internal/quota"
)

// Note is a piece of text owned by one account.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrEmptyContent = errors.New("notes: content cannot be empty")

// Store persists notes keyed by owner.
//
// Create must refuse with a *quota.LimitError when the owner already has
// limit or more notes, checked atomically with the insert.
type Store interface {
	Create(ctx context.Context, ownerID, content string, limit quota.Limit) (Note, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Note, error)
	Delete(ctx context.Context, ownerID, id string) (bool, error)
	CountOwnedBy(ctx context.Context, ownerID string) (int, error)
}

// Service validates input before it reaches the store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create trims content and stores it for ownerID under limit.
func (s *Service) Create(ctx context.Context, ownerID, content string, limit quota.Limit) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	return s.store.Create(ctx, ownerID, content, limit)
}

// List returns the owner's notes, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Note, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Delete removes the note if it belongs to ownerID. Deleting a missing note is not an error.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	return s.store.Delete(ctx, ownerID, id)
}

// CountOwnedBy lets the service act as a quota.Counter.
func (s *Service) CountOwnedBy(ctx context.Context, ownerID string) (int, error) {
	return s.store.CountOwnedBy(ctx, ownerID)
}
