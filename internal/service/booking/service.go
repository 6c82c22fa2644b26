package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/metrics"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/service/capacity"
	"github.com/kirinyoku/classbook/internal/uow"
)

type OfferingCache interface {
	InvalidateOffering(ctx context.Context, offeringID int64) error
}

type OfferingPublisher interface {
	PublishOfferingChanged(ctx context.Context, offeringID int64) error
}

type Limiter interface {
	Allow(ctx context.Context, id string) (bool, int64, time.Duration, error)
}

type Config struct {
	// Now is the clock used for the class-past check.
	Now func() time.Time
}

type Service struct {
	store   repository.Store
	counter *capacity.Counter
	cache   OfferingCache
	pubsub  OfferingPublisher
	limiter Limiter
	uow     *uow.UoW
	log     *slog.Logger
	cfg     Config
}

// New builds the booking ledger. cache, pubsub and limiter are optional.
func New(
	store repository.Store,
	cache OfferingCache,
	pubsub OfferingPublisher,
	limiter Limiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		counter: capacity.NewCounter(),
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		uow:     uow.NewUoW(store),
		log:     logger.With(slog.String("component", "booking")),
		cfg:     cfg,
	}
}

type CreateParams struct {
	ParticipantID int64
	OfferingID    int64
	// Status defaults to confirmed, the only status a booking can start in.
	Status domain.BookingStatus
	// Payment defaults to pending. Completed is used by pre-paid flows.
	Payment domain.PaymentStatus
	// RateLimitKey identifies the caller for the creation rate limit.
	// Empty disables the check.
	RateLimitKey string
}

// Create books a seat for a participant.
//
// Parameters:
//   - ctx: request-scoped context.
//   - p: participant, offering and requested statuses.
//
// Returns:
//   - uuid.UUID: the ID of the created booking. It is also set together with a
//     *ClassFullError when the booking was stored but its seat could not be
//     counted.
//   - error: booking.ErrAlreadyBooked if the participant already holds a
//     confirmed booking for the offering.
//   - error: booking.ErrOfferingNotFound if the offering does not exist.
//   - error: booking.ErrClassPast if the offering has already started.
//   - error: booking.ErrClassFull if a pre-paid booking finds no seat left.
//   - error: booking.ErrSystemBusy if the offering lock is not granted in time.
func (s *Service) Create(ctx context.Context, p CreateParams) (bookingID uuid.UUID, err error) {
	const op = "service.booking.Create"

	defer func() { observe("create", err) }()

	if p.Status == "" {
		p.Status = domain.BookingConfirmed
	}

	if p.Payment == "" {
		p.Payment = domain.PaymentPending
	}

	if err := validateCreate(p); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.allow(ctx, p.RateLimitKey); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	var fullErr *ClassFullError

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		// The offering lock covers the duplicate check and the insert, so
		// two concurrent requests for the same pair cannot both pass it.
		o, err := tx.Offerings().GetForUpdate(ctx, p.OfferingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &OfferingNotFoundError{OfferingID: p.OfferingID}
			}

			return err
		}

		_, err = tx.Bookings().FindConfirmed(ctx, p.ParticipantID, p.OfferingID)
		if err == nil {
			return ErrAlreadyBooked
		}

		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if o.StartsAt.Before(s.cfg.Now()) {
			return ErrClassPast
		}

		if p.Payment == domain.PaymentCompleted && o.Occupancy >= o.Capacity {
			return &ClassFullError{
				OfferingID: o.ID,
				Occupancy:  o.Occupancy,
				Capacity:   o.Capacity,
			}
		}

		b := &domain.Booking{
			ID:            uuid.New(),
			ParticipantID: p.ParticipantID,
			OfferingID:    p.OfferingID,
			Status:        p.Status,
			Payment:       p.Payment,
		}

		if err := tx.Bookings().Insert(ctx, b); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyBooked
			}

			return err
		}

		bookingID = b.ID

		if b.Counted() {
			err := s.counter.Increment(ctx, tx, after, o.ID, b.ParticipantID, b.ID)
			if err != nil {
				var full *capacity.ClassFullError
				if !errors.As(err, &full) {
					return err
				}

				// The booking and the validation record are kept.
				fullErr = &ClassFullError{
					OfferingID: o.ID,
					BookingID:  b.ID,
					Occupancy:  full.Occupancy,
					Capacity:   full.Capacity,
				}
			}
		}

		after(s.offeringChanged(o.ID))

		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, busy(err))
	}

	if fullErr != nil {
		s.log.Warn("booking stored without a counted seat",
			slog.String("booking_id", bookingID.String()),
			slog.Int64("offering_id", p.OfferingID),
		)

		return bookingID, fmt.Errorf("%s:%w", op, fullErr)
	}

	return bookingID, nil
}

// Cancel cancels a confirmed booking owned by participantID. A completed
// payment becomes refunded and releases its seat; other payment statuses are
// left as they are.
//
// Returns:
//   - *domain.Booking: the cancelled booking.
//   - error: booking.ErrNotFoundOrAccessDenied if the booking does not exist,
//     belongs to someone else or is already cancelled.
//   - error: booking.ErrSystemBusy if a lock is not granted in time.
func (s *Service) Cancel(
	ctx context.Context,
	bookingID uuid.UUID,
	participantID int64,
) (_ *domain.Booking, err error) {
	const op = "service.booking.Cancel"

	defer func() { observe("cancel", err) }()

	var out domain.Booking

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFoundOrAccessDenied
			}

			return err
		}

		if b.ParticipantID != participantID || b.Status == domain.BookingCancelled {
			return ErrNotFoundOrAccessDenied
		}

		next := *b
		next.Status = domain.BookingCancelled
		next.Payment = domain.RefundOnCancel(b.Payment)

		// The offering lock is taken before the booking row changes, so a
		// concurrent recount never sees the status without the decrement.
		if domain.EffectOf(*b, next) == domain.CounterDecrement {
			if err := s.counter.Decrement(ctx, tx, after, b.OfferingID, b.ParticipantID, b.ID); err != nil {
				return err
			}
		}

		if err := tx.Bookings().UpdateStatus(ctx, b.ID, next.Status, next.Payment); err != nil {
			return err
		}

		out = next

		after(s.offeringChanged(b.OfferingID))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, busy(err))
	}

	return &out, nil
}

// UpdatePaymentStatus moves a booking's payment to the given status. On a
// confirmed booking, entering completed takes a seat and leaving it releases
// one, inside the same transaction as the status write.
//
// Returns:
//   - *domain.Booking: the updated booking.
//   - error: *domain.InvalidTransitionError if the move is not allowed for the
//     booking's current state.
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrClassFull if no seat is left. The payment is not
//     changed and the rejection stays in the audit log.
//   - error: booking.ErrSystemBusy if a lock is not granted in time.
func (s *Service) UpdatePaymentStatus(
	ctx context.Context,
	bookingID uuid.UUID,
	to domain.PaymentStatus,
) (_ *domain.Booking, err error) {
	const op = "service.booking.UpdatePaymentStatus"

	defer func() { observe("update_payment", err) }()

	if !to.Valid() {
		return nil, fmt.Errorf("%s:%w: unknown payment status %q", op, ErrInvalidInput, to)
	}

	var (
		out     domain.Booking
		fullErr *ClassFullError
	)

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}

			return err
		}

		if err := domain.CheckPaymentTransition(b.Status, b.Payment, to); err != nil {
			return err
		}

		next := *b
		next.Payment = to

		switch domain.EffectOf(*b, next) {
		case domain.CounterIncrement:
			err := s.counter.Increment(ctx, tx, after, b.OfferingID, b.ParticipantID, b.ID)
			if err != nil {
				var full *capacity.ClassFullError
				if errors.As(err, &full) {
					fullErr = &ClassFullError{
						OfferingID: b.OfferingID,
						Occupancy:  full.Occupancy,
						Capacity:   full.Capacity,
					}
					// Commit only the validation record.
					return nil
				}

				return err
			}
		case domain.CounterDecrement:
			if err := s.counter.Decrement(ctx, tx, after, b.OfferingID, b.ParticipantID, b.ID); err != nil {
				return err
			}
		}

		if err := tx.Bookings().UpdateStatus(ctx, b.ID, next.Status, next.Payment); err != nil {
			return err
		}

		out = next

		after(s.offeringChanged(b.OfferingID))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, busy(err))
	}

	if fullErr != nil {
		return nil, fmt.Errorf("%s:%w", op, fullErr)
	}

	return &out, nil
}

// Reactivate turns a cancelled booking back into a confirmed one. It is a
// corrective operation: the payment status is kept and a completed payment
// takes its seat again.
//
// Returns:
//   - *domain.Booking: the reactivated booking.
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrNotCancelled if the booking is still confirmed.
//   - error: booking.ErrAlreadyBooked if the participant has booked the
//     offering again in the meantime.
//   - error: booking.ErrClassFull if the payment is completed and no seat is left.
//   - error: booking.ErrSystemBusy if a lock is not granted in time.
func (s *Service) Reactivate(ctx context.Context, bookingID uuid.UUID) (_ *domain.Booking, err error) {
	const op = "service.booking.Reactivate"

	defer func() { observe("reactivate", err) }()

	var (
		out     domain.Booking
		fullErr *ClassFullError
	)

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}

			return err
		}

		if b.Status != domain.BookingCancelled {
			return ErrNotCancelled
		}

		_, err = tx.Bookings().FindConfirmed(ctx, b.ParticipantID, b.OfferingID)
		if err == nil {
			return ErrAlreadyBooked
		}

		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		next := *b
		next.Status = domain.BookingConfirmed

		if domain.EffectOf(*b, next) == domain.CounterIncrement {
			err := s.counter.Increment(ctx, tx, after, b.OfferingID, b.ParticipantID, b.ID)
			if err != nil {
				var full *capacity.ClassFullError
				if errors.As(err, &full) {
					fullErr = &ClassFullError{
						OfferingID: b.OfferingID,
						Occupancy:  full.Occupancy,
						Capacity:   full.Capacity,
					}
					return nil
				}

				return err
			}
		}

		if err := tx.Bookings().UpdateStatus(ctx, b.ID, next.Status, next.Payment); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyBooked
			}

			return err
		}

		out = next

		after(s.offeringChanged(b.OfferingID))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, busy(err))
	}

	if fullErr != nil {
		return nil, fmt.Errorf("%s:%w", op, fullErr)
	}

	s.log.Info("booking reactivated",
		slog.String("booking_id", bookingID.String()),
		slog.Int64("offering_id", out.OfferingID),
	)

	return &out, nil
}

func (s *Service) allow(ctx context.Context, key string) error {
	if s.limiter == nil || key == "" {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// A broken limiter must not stop bookings.
		s.log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}

	if !ok {
		return &RateLimitedError{RetryAfter: retry}
	}

	return nil
}

func (s *Service) offeringChanged(offeringID int64) uow.AfterCommit {
	return func(ctx context.Context) {
		if s.cache != nil {
			if err := s.cache.InvalidateOffering(ctx, offeringID); err != nil {
				s.log.Warn("offering cache invalidation failed",
					slog.Int64("offering_id", offeringID),
					slog.String("error", err.Error()),
				)
			}
		}

		if s.pubsub != nil {
			if err := s.pubsub.PublishOfferingChanged(ctx, offeringID); err != nil {
				s.log.Warn("offering change publish failed",
					slog.Int64("offering_id", offeringID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func validateCreate(p CreateParams) error {
	if p.ParticipantID <= 0 || p.OfferingID <= 0 {
		return fmt.Errorf("%w: participant and offering ids must be positive", ErrInvalidInput)
	}

	if p.Status != domain.BookingConfirmed {
		return fmt.Errorf("%w: a booking cannot be created as %q", ErrInvalidInput, p.Status)
	}

	if !p.Payment.Valid() || p.Payment == domain.PaymentRefunded {
		return fmt.Errorf("%w: a booking cannot be created with payment %q", ErrInvalidInput, p.Payment)
	}

	return nil
}

// busy folds lock contention into ErrSystemBusy, keeping the store error
// in the chain.
func busy(err error) error {
	if errors.Is(err, repository.ErrBusy) {
		return fmt.Errorf("%w: %w", ErrSystemBusy, err)
	}

	return err
}

func observe(operation string, err error) {
	outcome := "ok"

	switch {
	case err == nil:
	case errors.Is(err, ErrClassFull):
		outcome = "class_full"
	case errors.Is(err, ErrAlreadyBooked):
		outcome = "already_booked"
	case errors.Is(err, ErrSystemBusy):
		outcome = "busy"
	case errors.Is(err, domain.ErrInvalidTransition):
		outcome = "invalid_transition"
	default:
		outcome = "error"
	}

	metrics.BookingOutcomes.WithLabelValues(operation, outcome).Inc()
}
