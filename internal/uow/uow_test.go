package uow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := memory.New(time.Second)
	id := s.AddOffering(domain.Offering{Capacity: 3})

	var seen []int
	err := NewUoW(s).Do(ctx, func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		if err := tx.Offerings().SetOccupancy(ctx, id, 2); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			o, err := s.Offerings().Get(ctx, id)
			require.NoError(t, err)
			seen = append(seen, o.Occupancy)
		})
		after(nil)
		after(func(ctx context.Context) { seen = append(seen, -1) })

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, -1}, seen)
}

func TestDo_DropsHooksOnRollback(t *testing.T) {
	ctx := context.Background()
	s := memory.New(time.Second)

	boom := errors.New("boom")
	called := false

	err := NewUoW(s).Do(ctx, func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		after(func(ctx context.Context) { called = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}
