package accounts

import (
	"context"
	"errors"
	"time"
)

// Plan is the subscription tier of an account.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// Account is the identity and entitlement record of a user.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound     = errors.New("accounts: not found")
	ErrInvalidEmail = errors.New("accounts: email is required")
	ErrInvalidPlan  = errors.New("accounts: unknown plan")
)

// Directory is the durable account store the core depends on.
//
// Create must converge concurrent creates for the same email to a single row.
// UpdatePlan returns the affected accounts; an empty slice means no account
// matched the email.
type Directory interface {
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, email string, plan Plan) (Account, error)
	UpdatePlan(ctx context.Context, email string, plan Plan) ([]Account, error)
}

// FindOrCreate returns the account for email, creating it on the free plan
// when none exists.
func FindOrCreate(ctx context.Context, dir Directory, email string) (acct Account, created bool, err error) {
	if email == "" {
		return Account{}, false, ErrInvalidEmail
	}
	acct, err = dir.FindByEmail(ctx, email)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, false, err
	}
	acct, err = dir.Create(ctx, email, PlanFree)
	if err != nil {
		return Account{}, false, err
	}
	return acct, true, nil
}
