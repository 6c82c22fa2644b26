// Package reconcile recomputes occupancy from the booking set and repairs
// counters that drifted from it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/metrics"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/uow"
)

const reasonDrift = "drift correction"

type OfferingCache interface {
	InvalidateOffering(ctx context.Context, offeringID int64) error
}

type OfferingPublisher interface {
	PublishOfferingChanged(ctx context.Context, offeringID int64) error
}

type Service struct {
	store  repository.Store
	cache  OfferingCache
	pubsub OfferingPublisher
	uow    *uow.UoW
	log    *slog.Logger
}

func New(store repository.Store, cache OfferingCache, pubsub OfferingPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		log:    logger.With(slog.String("component", "reconcile")),
	}
}

// SyncOne recounts the confirmed, completed bookings of one offering under
// its row lock and overwrites occupancy when it differs, appending a sync
// audit record. A second call with no writes in between changes nothing.
//
// When more bookings count than the offering has seats, occupancy is set to
// capacity and the result is flagged Overbooked.
//
// Returns:
//   - domain.SyncResult: old and new occupancy and whether it was fixed.
//   - error: reconcile.ErrOfferingNotFound if the offering does not exist.
//   - error: reconcile.ErrSystemBusy if the offering lock is not granted in time.
func (s *Service) SyncOne(ctx context.Context, offeringID int64) (domain.SyncResult, error) {
	const op = "service.reconcile.SyncOne"

	var res domain.SyncResult

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		o, err := tx.Offerings().GetForUpdate(ctx, offeringID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOfferingNotFound
			}

			return err
		}

		counted, err := tx.Bookings().CountCounted(ctx, offeringID)
		if err != nil {
			return err
		}

		res = domain.SyncResult{
			OfferingID: offeringID,
			OldCount:   o.Occupancy,
			NewCount:   counted,
		}

		reason := reasonDrift
		if counted > o.Capacity {
			res.Overbooked = true
			res.NewCount = o.Capacity
			reason = fmt.Sprintf("%s: %d counted bookings exceed capacity %d", reasonDrift, counted, o.Capacity)
		}

		if res.NewCount == o.Occupancy {
			return nil
		}

		if err := tx.Offerings().SetOccupancy(ctx, offeringID, res.NewCount); err != nil {
			return err
		}

		if err := tx.Audit().Append(ctx, &domain.AuditRecord{
			OfferingID: offeringID,
			Action:     domain.AuditSync,
			OldCount:   res.OldCount,
			NewCount:   res.NewCount,
			Reason:     reason,
		}); err != nil {
			return err
		}

		res.WasFixed = true

		after(func(ctx context.Context) {
			metrics.DriftCorrections.Inc()
			metrics.CounterMutations.WithLabelValues(string(domain.AuditSync)).Inc()

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
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrBusy) {
			err = fmt.Errorf("%w: %w", ErrSystemBusy, err)
		}

		return domain.SyncResult{}, fmt.Errorf("%s:%w", op, err)
	}

	if res.WasFixed {
		s.log.Info("occupancy drift corrected",
			slog.Int64("offering_id", offeringID),
			slog.Int("old", res.OldCount),
			slog.Int("new", res.NewCount),
		)
	}

	if res.Overbooked {
		s.log.Warn("offering has more counted bookings than seats",
			slog.Int64("offering_id", offeringID),
			slog.Int("occupancy", res.NewCount),
		)
	}

	return res, nil
}

// ValidateAll runs SyncOne for every offering, each in its own transaction,
// so a sweep never holds more than one offering lock at a time.
//
// Offerings deleted while the sweep runs are skipped. Offerings that fail for
// any other reason, lock contention included, get a row with Error set and
// the sweep moves on.
//
// Returns:
//   - []domain.SyncResult: one row per offering that still exists.
//   - error: only when the offering list cannot be read or ctx is done.
func (s *Service) ValidateAll(ctx context.Context) ([]domain.SyncResult, error) {
	const op = "service.reconcile.ValidateAll"

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := s.store.Offerings().ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	report := make([]domain.SyncResult, 0, len(ids))
	fixed := 0

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%s:%w", op, err)
		}

		res, err := s.SyncOne(ctx, id)
		if err != nil {
			if errors.Is(err, ErrOfferingNotFound) {
				s.log.Info("offering vanished during sweep, skipped", slog.Int64("offering_id", id))
				continue
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, fmt.Errorf("%s:%w", op, ctxErr)
			}

			s.log.Warn("offering not reconciled",
				slog.Int64("offering_id", id),
				slog.String("error", err.Error()),
			)

			report = append(report, domain.SyncResult{OfferingID: id, Error: err.Error()})
			continue
		}

		if res.WasFixed {
			fixed++
		}

		report = append(report, res)
	}

	s.log.Info("reconciliation sweep finished",
		slog.Int("offerings", len(report)),
		slog.Int("fixed", fixed),
		slog.Duration("took", time.Since(start)),
	)

	return report, nil
}
