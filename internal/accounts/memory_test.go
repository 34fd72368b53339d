package accounts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateCreatesFreeAccountOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := NewInMemory()

	first, created, err := FindOrCreate(ctx, dir, "a@x.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, PlanFree, first.Plan)
	assert.Equal(t, "a@x.com", first.Email)

	second, created, err := FindOrCreate(ctx, dir, "a@x.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateRejectsEmptyEmail(t *testing.T) {
	t.Parallel()
	_, _, err := FindOrCreate(context.Background(), NewInMemory(), "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestEmailIsCaseSensitive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := NewInMemory()

	lower, err := dir.Create(ctx, "a@x.com", PlanFree)
	require.NoError(t, err)
	upper, err := dir.Create(ctx, "A@x.com", PlanFree)
	require.NoError(t, err)
	assert.NotEqual(t, lower.ID, upper.ID)
}

func TestConcurrentCreateConverges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := NewInMemory()

	const n = 16
	got := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := dir.Create(ctx, "race@x.com", PlanFree)
			if err == nil {
				got[i] = acct.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range got {
		assert.Equal(t, got[0], id)
	}
}

func TestUpdatePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := NewInMemory()

	rows, err := dir.UpdatePlan(ctx, "nobody@x.com", PlanPro)
	require.NoError(t, err)
	assert.Empty(t, rows)

	acct, err := dir.Create(ctx, "a@x.com", PlanFree)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rows, err = dir.UpdatePlan(ctx, "a@x.com", PlanPro)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, PlanPro, rows[0].Plan)
	}

	reloaded, err := dir.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, PlanPro, reloaded.Plan)

	_, err = dir.UpdatePlan(ctx, "a@x.com", Plan("gold"))
	assert.ErrorIs(t, err, ErrInvalidPlan)
}
