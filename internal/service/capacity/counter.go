// Package capacity owns the denormalized occupancy counter of an offering.
// Every call locks the offering row inside the caller's unit of work and
// leaves exactly one audit record behind, accepted or rejected.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/metrics"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/uow"
)

type Counter struct{}

func NewCounter() *Counter {
	return &Counter{}
}

// Increment takes one seat for the booking. Metrics are registered on after
// and only count once the unit of work commits; after may be nil.
//
// Returns:
//   - error: capacity.ErrClassFull (as *ClassFullError) if the offering has
//     no seat left. A validation record is still appended, so callers that
//     want it persisted must commit the unit of work.
//   - error: capacity.ErrOfferingNotFound if the offering does not exist.
//   - error: repository.ErrBusy if the offering lock is not granted in time.
func (c *Counter) Increment(
	ctx context.Context,
	tx repository.Tx,
	after func(uow.AfterCommit),
	offeringID, participantID int64,
	bookingID uuid.UUID,
) error {
	const op = "service.capacity.Increment"

	o, err := lockOffering(ctx, tx, offeringID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	rec := newRecord(o, participantID, bookingID)

	if o.Occupancy+1 > o.Capacity {
		rec.Action = domain.AuditValidation
		rec.NewCount = o.Occupancy
		rec.Reason = fmt.Sprintf("class full: %d/%d", o.Occupancy, o.Capacity)

		if err := tx.Audit().Append(ctx, rec); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		onCommit(after, func(context.Context) {
			metrics.CapacityRejections.Inc()
		})

		return fmt.Errorf("%s:%w", op, &ClassFullError{
			OfferingID: offeringID,
			Occupancy:  o.Occupancy,
			Capacity:   o.Capacity,
		})
	}

	rec.Action = domain.AuditIncrement
	rec.NewCount = o.Occupancy + 1
	rec.Reason = "seat taken"

	if err := write(ctx, tx, after, rec); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Decrement releases one seat. Occupancy never goes below zero; a release
// on an empty offering is recorded but changes nothing.
func (c *Counter) Decrement(
	ctx context.Context,
	tx repository.Tx,
	after func(uow.AfterCommit),
	offeringID, participantID int64,
	bookingID uuid.UUID,
) error {
	const op = "service.capacity.Decrement"

	o, err := lockOffering(ctx, tx, offeringID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	rec := newRecord(o, participantID, bookingID)
	rec.Action = domain.AuditDecrement
	rec.NewCount = max(0, o.Occupancy-1)
	rec.Reason = "seat released"
	if o.Occupancy == 0 {
		rec.Reason = "seat released on empty offering"
	}

	if err := write(ctx, tx, after, rec); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func lockOffering(ctx context.Context, tx repository.Tx, offeringID int64) (*domain.Offering, error) {
	o, err := tx.Offerings().GetForUpdate(ctx, offeringID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOfferingNotFound
		}
		return nil, err
	}
	return o, nil
}

func newRecord(o *domain.Offering, participantID int64, bookingID uuid.UUID) *domain.AuditRecord {
	pid := participantID
	bid := bookingID

	return &domain.AuditRecord{
		OfferingID:    o.ID,
		ParticipantID: &pid,
		BookingID:     &bid,
		OldCount:      o.Occupancy,
	}
}

func write(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit), rec *domain.AuditRecord) error {
	if rec.NewCount != rec.OldCount {
		if err := tx.Offerings().SetOccupancy(ctx, rec.OfferingID, rec.NewCount); err != nil {
			return err
		}
	}

	if err := tx.Audit().Append(ctx, rec); err != nil {
		return err
	}

	action := string(rec.Action)
	onCommit(after, func(context.Context) {
		metrics.CounterMutations.WithLabelValues(action).Inc()
	})

	return nil
}

func onCommit(after func(uow.AfterCommit), h uow.AfterCommit) {
	if after != nil {
		after(h)
	}
}
