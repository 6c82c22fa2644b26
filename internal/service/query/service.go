package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

// OfferingCache serves offering reads, calling load on a miss.
type OfferingCache interface {
	Offering(
		ctx context.Context,
		offeringID int64,
		load func(ctx context.Context) (*domain.Offering, error),
	) (*domain.Offering, error)
}

type Config struct {
	DefaultAuditLimit int
	MaxAuditLimit     int
	Now               func() time.Time
}

type Service struct {
	store repository.Store
	cache OfferingCache
	cfg   Config
}

// New builds the read side. cache may be nil, in which case every read goes
// to the store.
func New(store repository.Store, cache OfferingCache, cfg Config) *Service {
	if cfg.DefaultAuditLimit <= 0 {
		cfg.DefaultAuditLimit = 50
	}

	if cfg.MaxAuditLimit <= 0 {
		cfg.MaxAuditLimit = 500
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// CanBook tells whether participantID could book offeringID right now. The
// answer is not a reservation: booking.Service.Create checks everything again
// under the offering lock.
//
// Returns:
//   - domain.BookingDecision: one of already_booked, class_not_found,
//     class_past, class_full or available. Full and available decisions carry
//     the current occupancy, capacity and spots left.
//   - error: only on storage failures.
func (s *Service) CanBook(ctx context.Context, participantID, offeringID int64) (domain.BookingDecision, error) {
	const op = "service.query.CanBook"

	_, err := s.store.Bookings().FindConfirmed(ctx, participantID, offeringID)
	if err == nil {
		return domain.BookingDecision{Code: domain.DecisionAlreadyBooked}, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		return domain.BookingDecision{}, fmt.Errorf("%s:%w", op, err)
	}

	o, err := s.store.Offerings().Get(ctx, offeringID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.BookingDecision{Code: domain.DecisionNotFound}, nil
		}

		return domain.BookingDecision{}, fmt.Errorf("%s:%w", op, err)
	}

	if o.StartsAt.Before(s.cfg.Now()) {
		return domain.BookingDecision{Code: domain.DecisionPast}, nil
	}

	d := domain.BookingDecision{
		Code:      domain.DecisionAvailable,
		Current:   o.Occupancy,
		Max:       o.Capacity,
		SpotsLeft: o.SpotsLeft(),
	}

	if o.Occupancy >= o.Capacity {
		d.Code = domain.DecisionFull
	}

	return d, nil
}

// GetOffering retrieves an offering by its ID, utilizing the cache when one
// is configured.
//
// Returns:
//   - *domain.Offering: the retrieved offering.
//   - error: query.ErrOfferingNotFound if the offering is not found.
func (s *Service) GetOffering(ctx context.Context, id int64) (*domain.Offering, error) {
	const op = "service.query.GetOffering"

	load := func(ctx context.Context) (*domain.Offering, error) {
		o, err := s.store.Offerings().Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOfferingNotFound
		}

		return o, err
	}

	var (
		o   *domain.Offering
		err error
	)

	if s.cache != nil {
		o, err = s.cache.Offering(ctx, id, load)
	} else {
		o, err = load(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return o, nil
}

// GetBooking retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the retrieved booking.
//   - error: query.ErrBookingNotFound if the booking is not found.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.query.GetBooking"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// ListParticipantBookings returns every booking of a participant, newest first.
func (s *Service) ListParticipantBookings(ctx context.Context, participantID int64) ([]domain.Booking, error) {
	const op = "service.query.ListParticipantBookings"

	list, err := s.store.Bookings().ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if list == nil {
		list = []domain.Booking{}
	}

	return list, nil
}

// ListAudit returns the most recent audit records of an offering, newest
// first. limit is clamped to the configured default and maximum.
//
// Returns:
//   - []domain.AuditRecord: the audit records.
//   - error: query.ErrOfferingNotFound if the offering is not found.
func (s *Service) ListAudit(ctx context.Context, offeringID int64, limit int) ([]domain.AuditRecord, error) {
	const op = "service.query.ListAudit"

	if limit <= 0 {
		limit = s.cfg.DefaultAuditLimit
	}

	if limit > s.cfg.MaxAuditLimit {
		limit = s.cfg.MaxAuditLimit
	}

	if _, err := s.store.Offerings().Get(ctx, offeringID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOfferingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	recs, err := s.store.Audit().ListByOffering(ctx, offeringID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if recs == nil {
		recs = []domain.AuditRecord{}
	}

	return recs, nil
}
