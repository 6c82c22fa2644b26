package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOffering(s *Store, capacity int) int64 {
	return s.AddOffering(domain.Offering{Capacity: capacity, StartsAt: time.Now().Add(24 * time.Hour)})
}

func TestRunTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	id := newOffering(s, 5)

	boom := errors.New("boom")
	bookingID := uuid.New()

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Offerings().SetOccupancy(ctx, id, 3))
		require.NoError(t, tx.Bookings().Insert(ctx, &domain.Booking{
			ID:            bookingID,
			ParticipantID: 1,
			OfferingID:    id,
			Status:        domain.BookingConfirmed,
			Payment:       domain.PaymentCompleted,
		}))
		require.NoError(t, tx.Audit().Append(ctx, &domain.AuditRecord{OfferingID: id, Action: domain.AuditIncrement}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	o, err := s.Offerings().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, o.Occupancy)

	_, err = s.Bookings().Get(ctx, bookingID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	recs, err := s.Audit().ListByOffering(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetForUpdate_TimesOutWhenLocked(t *testing.T) {
	ctx := context.Background()
	s := New(50 * time.Millisecond)
	id := newOffering(s, 1)

	locked := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.Offerings().GetForUpdate(ctx, id)
			assert.NoError(t, err)
			close(locked)
			<-done
			return nil
		})
	}()

	<-locked
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Offerings().GetForUpdate(ctx, id)
		return err
	})
	close(done)

	assert.ErrorIs(t, err, repository.ErrBusy)
}

func TestGetForUpdate_ReentrantWithinTx(t *testing.T) {
	ctx := context.Background()
	s := New(50 * time.Millisecond)
	id := newOffering(s, 1)

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Offerings().GetForUpdate(ctx, id); err != nil {
			return err
		}
		_, err := tx.Offerings().GetForUpdate(ctx, id)
		return err
	})
	assert.NoError(t, err)
}

func TestGetForUpdate_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := New(5 * time.Second)
	id := newOffering(s, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				o, err := tx.Offerings().GetForUpdate(ctx, id)
				if err != nil {
					return err
				}
				return tx.Offerings().SetOccupancy(ctx, id, o.Occupancy+1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	o, err := s.Offerings().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, o.Occupancy)
}

func TestBookings_OneConfirmedPerParticipant(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	id := newOffering(s, 5)

	first := &domain.Booking{ID: uuid.New(), ParticipantID: 7, OfferingID: id, Status: domain.BookingConfirmed, Payment: domain.PaymentPending}
	require.NoError(t, s.Bookings().Insert(ctx, first))

	dup := &domain.Booking{ID: uuid.New(), ParticipantID: 7, OfferingID: id, Status: domain.BookingConfirmed, Payment: domain.PaymentPending}
	assert.ErrorIs(t, s.Bookings().Insert(ctx, dup), repository.ErrConflict)

	require.NoError(t, s.Bookings().UpdateStatus(ctx, first.ID, domain.BookingCancelled, domain.PaymentPending))
	require.NoError(t, s.Bookings().Insert(ctx, dup))

	// reactivating the cancelled one would create a second confirmed booking
	err := s.Bookings().UpdateStatus(ctx, first.ID, domain.BookingConfirmed, domain.PaymentPending)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSetOccupancy_RejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	id := newOffering(s, 2)

	assert.Error(t, s.Offerings().SetOccupancy(ctx, id, 3))
	assert.Error(t, s.Offerings().SetOccupancy(ctx, id, -1))
	assert.ErrorIs(t, s.Offerings().SetOccupancy(ctx, 999, 1), repository.ErrNotFound)
}

func TestAuditListByOffering_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Audit().Append(ctx, &domain.AuditRecord{OfferingID: 1, Action: domain.AuditIncrement, NewCount: i + 1}))
	}
	require.NoError(t, s.Audit().Append(ctx, &domain.AuditRecord{OfferingID: 2, Action: domain.AuditSync}))

	recs, err := s.Audit().ListByOffering(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[0].NewCount)
	assert.Equal(t, 2, recs[1].NewCount)
}

func TestRunTx_StagedWritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	id := newOffering(s, 5)

	b := &domain.Booking{ID: uuid.New(), ParticipantID: 1, OfferingID: id, Status: domain.BookingConfirmed, Payment: domain.PaymentCompleted}
	require.NoError(t, s.Bookings().Insert(ctx, b))

	staged := make(chan struct{})
	commit := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.Bookings().UpdateStatus(ctx, b.ID, domain.BookingCancelled, domain.PaymentRefunded); err != nil {
				return err
			}
			if err := tx.Offerings().SetOccupancy(ctx, id, 4); err != nil {
				return err
			}

			n, err := tx.Bookings().CountCounted(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, 0, n)

			close(staged)
			<-commit
			return nil
		})
	}()

	<-staged

	n, err := s.Bookings().CountCounted(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Bookings().FindConfirmed(ctx, 1, id)
	assert.NoError(t, err)

	o, err := s.Offerings().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, o.Occupancy)

	close(commit)
	require.NoError(t, <-done)

	n, err = s.Bookings().CountCounted(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	o, err = s.Offerings().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, o.Occupancy)
}

func TestInsert_WaitsForUncommittedConfirmedBooking(t *testing.T) {
	ctx := context.Background()
	s := New(50 * time.Millisecond)
	id := newOffering(s, 5)

	boom := errors.New("boom")
	inserted := make(chan struct{})
	rollback := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			err := tx.Bookings().Insert(ctx, &domain.Booking{ID: uuid.New(), ParticipantID: 3, OfferingID: id, Status: domain.BookingConfirmed, Payment: domain.PaymentPending})
			assert.NoError(t, err)
			close(inserted)
			<-rollback
			return boom
		})
	}()

	<-inserted

	second := &domain.Booking{ID: uuid.New(), ParticipantID: 3, OfferingID: id, Status: domain.BookingConfirmed, Payment: domain.PaymentPending}
	assert.ErrorIs(t, s.Bookings().Insert(ctx, second), repository.ErrBusy)

	close(rollback)
	require.ErrorIs(t, <-done, boom)

	assert.NoError(t, s.Bookings().Insert(ctx, second))
}
