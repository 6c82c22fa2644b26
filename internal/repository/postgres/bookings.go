package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

const bookingColumns = `id, participant_id, offering_id, status, payment_status, created_at, updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert stores a new booking and fills its timestamps.
//
// Returns:
//   - error: repository.ErrConflict if the participant already holds a
//     confirmed booking for the offering (bookings_one_confirmed_idx).
func (r *BookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Insert"

	db := r.handle()

	err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, participant_id, offering_id, status, payment_status)
       	 VALUES ($1, $2, $3, $4, $5)
     	 RETURNING created_at, updated_at`,
		b.ID, b.ParticipantID, b.OfferingID, string(b.Status), string(b.Payment),
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) FindConfirmed(ctx context.Context, participantID, offeringID int64) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.FindConfirmed"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+`
       	 FROM bookings
      	 WHERE participant_id = $1 AND offering_id = $2 AND status = 'confirmed'`,
		participantID, offeringID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.BookingStatus,
	payment domain.PaymentStatus,
) error {
	const op = "postgres.BookingRepo.UpdateStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings
         SET status = $2, payment_status = $3, updated_at = now()
      	 WHERE id = $1`,
		id, string(status), string(payment),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

// CountCounted returns the number of confirmed, paid bookings of an offering,
// which is the ground truth for its occupancy.
func (r *BookingRepo) CountCounted(ctx context.Context, offeringID int64) (int, error) {
	const op = "postgres.BookingRepo.CountCounted"

	var n int
	err := r.handle().QueryRow(ctx,
		`SELECT count(*)
       	 FROM bookings
      	 WHERE offering_id = $1 AND status = 'confirmed' AND payment_status = 'completed'`,
		offeringID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *BookingRepo) ListByParticipant(ctx context.Context, participantID int64) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByParticipant"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
       	 FROM bookings
      	 WHERE participant_id = $1
      	 ORDER BY created_at DESC`,
		participantID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status, payment string

	if err := row.Scan(
		&b.ID,
		&b.ParticipantID,
		&b.OfferingID,
		&status,
		&payment,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	b.Payment = domain.PaymentStatus(payment)

	return &b, nil
}
