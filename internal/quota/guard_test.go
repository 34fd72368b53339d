package quota

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notenest.app/internal/accounts"
)

type fixedCounter struct {
	n     int
	err   error
	calls int
}

func (c *fixedCounter) CountOwnedBy(ctx context.Context, accountID string) (int, error) {
	c.calls++
	return c.n, c.err
}

func TestAdmitFreePlanBoundary(t *testing.T) {
	t.Parallel()
	for c := 0; c <= 6; c++ {
		counter := &fixedCounter{n: c}
		g := NewGuard(counter, 3)

		d, err := g.Admit(context.Background(), accounts.Account{ID: "a", Plan: accounts.PlanFree})
		require.NoError(t, err)
		assert.Equal(t, c < 3, d.Admit, "count %d", c)
		assert.Equal(t, c, d.Current)
		assert.Equal(t, 1, counter.calls)

		if !d.Admit {
			var limitErr *LimitError
			require.ErrorAs(t, d.Err(), &limitErr)
			assert.Equal(t, 3, limitErr.Limit)
			assert.Equal(t, c, limitErr.Current)
		} else {
			assert.NoError(t, d.Err())
		}
	}
}

func TestAdmitProPlanSkipsCount(t *testing.T) {
	t.Parallel()
	counter := &fixedCounter{n: 1000}
	g := NewGuard(counter, 3)

	d, err := g.Admit(context.Background(), accounts.Account{ID: "a", Plan: accounts.PlanPro})
	require.NoError(t, err)
	assert.True(t, d.Admit)
	assert.Zero(t, counter.calls)
	_, bounded := d.Limit.Max()
	assert.False(t, bounded)
}

func TestAdmitPropagatesCounterError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	g := NewGuard(&fixedCounter{err: boom}, 3)

	_, err := g.Admit(context.Background(), accounts.Account{ID: "a", Plan: accounts.PlanFree})
	assert.ErrorIs(t, err, boom)
}

func TestLimitJSON(t *testing.T) {
	t.Parallel()
	out, err := json.Marshal(map[string]any{"unlimited": Unlimited(), "bounded": Bounded(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"unlimited":null,"bounded":3}`, string(out))
}

func TestLimitAllows(t *testing.T) {
	t.Parallel()
	assert.True(t, Unlimited().Allows(1<<30))
	assert.True(t, Bounded(1).Allows(0))
	assert.False(t, Bounded(1).Allows(1))
	assert.False(t, Bounded(-5).Allows(0))
	assert.Equal(t, "unlimited", Unlimited().String())
	assert.Equal(t, "3", Bounded(3).String())
}
