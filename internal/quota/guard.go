package quota

import (
	"context"
	"fmt"

	"notenest.app/internal/accounts"
)

// Counter reports how many notes an account owns.
type Counter interface {
	CountOwnedBy(ctx context.Context, accountID string) (int, error)
}

// LimitError is returned when a plan limit has been reached.
type LimitError struct {
	Limit   int
	Current int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("quota: note limit reached (%d/%d)", e.Current, e.Limit)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admit   bool
	Limit   Limit
	Current int
}

// Err returns a *LimitError for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Admit {
		return nil
	}
	n, _ := d.Limit.Max()
	return &LimitError{Limit: n, Current: d.Current}
}

// Guard decides whether an account may create another note.
type Guard struct {
	counter   Counter
	freeLimit Limit
}

// NewGuard builds a guard enforcing freeLimit on free accounts.
func NewGuard(counter Counter, freeLimit int) *Guard {
	return &Guard{counter: counter, freeLimit: Bounded(freeLimit)}
}

// LimitFor returns the note limit of plan. Unknown plans get the free limit.
func (g *Guard) LimitFor(plan accounts.Plan) Limit {
	if plan == accounts.PlanPro {
		return Unlimited()
	}
	return g.freeLimit
}

// Admit checks acct against its plan limit. Pro accounts are admitted without
// counting. The check is not atomic with the insert that follows; stores that
// accept a Limit on create re-check it under their own lock.
func (g *Guard) Admit(ctx context.Context, acct accounts.Account) (Decision, error) {
	limit := g.LimitFor(acct.Plan)
	if _, bounded := limit.Max(); !bounded {
		return Decision{Admit: true, Limit: limit}, nil
	}
	current, err := g.counter.CountOwnedBy(ctx, acct.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: count notes: %w", err)
	}
	return Decision{Admit: limit.Allows(current), Limit: limit, Current: current}, nil
}
