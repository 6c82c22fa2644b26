package kafkax

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/repository/memory"
	"github.com/kirinyoku/classbook/internal/service/booking"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedUpdater struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedUpdater) UpdatePaymentStatus(context.Context, uuid.UUID, domain.PaymentStatus) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.errs) == 0 {
		return &domain.Booking{}, nil
	}

	err := s.errs[0]
	s.errs = s.errs[1:]
	return nil, err
}

func message(bookingID, status string) kafka.Message {
	return kafka.Message{Value: []byte(fmt.Sprintf(`{"booking_id":%q,"status":%q}`, bookingID, status))}
}

func newConsumer(u PaymentUpdater) *PaymentConsumer {
	return NewPaymentConsumer(Config{MaxRetries: 3, Backoff: time.Millisecond}, u, nil)
}

func TestHandle_RetriesBusyUntilApplied(t *testing.T) {
	busy := fmt.Errorf("%w: %w", booking.ErrSystemBusy, repository.ErrBusy)
	u := &scriptedUpdater{errs: []error{busy, busy}}

	newConsumer(u).Handle(context.Background(), message(uuid.NewString(), "completed"))

	assert.Equal(t, 3, u.calls)
}

func TestHandle_GivesUpAfterMaxRetries(t *testing.T) {
	busy := booking.ErrSystemBusy
	u := &scriptedUpdater{errs: []error{busy, busy, busy, busy, busy, busy}}

	newConsumer(u).Handle(context.Background(), message(uuid.NewString(), "completed"))

	assert.Equal(t, 4, u.calls)
}

func TestHandle_RejectionsAreNotRetried(t *testing.T) {
	for _, err := range []error{
		&domain.InvalidTransitionError{BookingStatus: domain.BookingConfirmed, From: domain.PaymentPending, To: domain.PaymentRefunded},
		booking.ErrBookingNotFound,
		booking.ErrClassFull,
	} {
		u := &scriptedUpdater{errs: []error{err}}
		newConsumer(u).Handle(context.Background(), message(uuid.NewString(), "refunded"))
		assert.Equal(t, 1, u.calls, err.Error())
	}
}

func TestHandle_DropsMalformedMessages(t *testing.T) {
	u := &scriptedUpdater{}
	c := newConsumer(u)

	c.Handle(context.Background(), kafka.Message{Value: []byte("{not json")})
	c.Handle(context.Background(), message("not-a-uuid", "completed"))

	assert.Zero(t, u.calls)
}

func TestHandle_AppliesToLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New(time.Second)
	svc := booking.New(store, nil, nil, nil, nil, booking.Config{})
	oid := store.AddOffering(domain.Offering{Capacity: 1, StartsAt: time.Now().Add(time.Hour)})

	id, err := svc.Create(ctx, booking.CreateParams{ParticipantID: 1, OfferingID: oid})
	require.NoError(t, err)

	c := newConsumer(svc)
	c.Handle(ctx, message(id.String(), "completed"))
	// redelivery is rejected by the state machine and leaves the counter alone
	c.Handle(ctx, message(id.String(), "completed"))

	o, err := store.Offerings().Get(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, 1, o.Occupancy)
}

func TestRun_RequiresBrokers(t *testing.T) {
	c := newConsumer(&scriptedUpdater{})

	assert.Error(t, c.Run(context.Background()))
	assert.NoError(t, c.Close())
}
