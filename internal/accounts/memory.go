package accounts

import (
	"context"
	"sync"
	"time"

	"notenest.app/internal/ids"
)

// InMemory implements Directory for tests and for running without PostgreSQL.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string // email -> id
	now     func() time.Time
}

// NewInMemory creates an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (d *InMemory) FindByID(ctx context.Context, id string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acct, nil
}

func (d *InMemory) FindByEmail(ctx context.Context, email string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *d.byID[id], nil
}

func (d *InMemory) Create(ctx context.Context, email string, plan Plan) (Account, error) {
	if email == "" {
		return Account{}, ErrInvalidEmail
	}
	if !plan.Valid() {
		return Account{}, ErrInvalidPlan
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byEmail[email]; ok {
		return *d.byID[id], nil
	}
	now := d.now().UTC()
	acct := &Account{
		ID:        ids.NewAt(now),
		Email:     email,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.byID[acct.ID] = acct
	d.byEmail[email] = acct.ID
	return *acct, nil
}

func (d *InMemory) UpdatePlan(ctx context.Context, email string, plan Plan) ([]Account, error) {
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byEmail[email]
	if !ok {
		return nil, nil
	}
	acct := d.byID[id]
	if acct.Plan != plan {
		acct.Plan = plan
		acct.UpdatedAt = d.now().UTC()
	}
	return []Account{*acct}, nil
}
