package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/domain"
)

type Offerings interface {
	Get(ctx context.Context, id int64) (*domain.Offering, error)
	// GetForUpdate loads the offering and holds its row lock until the
	// enclosing transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Offering, error)
	SetOccupancy(ctx context.Context, id int64, occupancy int) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type Bookings interface {
	// Insert fails with ErrConflict when the participant already holds a
	// confirmed booking for the offering.
	Insert(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	FindConfirmed(ctx context.Context, participantID, offeringID int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, payment domain.PaymentStatus) error
	CountCounted(ctx context.Context, offeringID int64) (int, error)
	ListByParticipant(ctx context.Context, participantID int64) ([]domain.Booking, error)
}

type Audit interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	ListByOffering(ctx context.Context, offeringID int64, limit int) ([]domain.AuditRecord, error)
}

// Tx is a set of repositories bound to one unit of work.
type Tx interface {
	Offerings() Offerings
	Bookings() Bookings
	Audit() Audit
}

// Store hands out repositories outside of a transaction and runs units of
// work. RunTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Tx
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
