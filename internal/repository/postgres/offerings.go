package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/kirinyoku/classbook/internal/repository"
)

type OfferingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OfferingRepo) With(db DB) *OfferingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OfferingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves an offering by its ID without locking it.
//
// Returns:
//   - *domain.Offering: the offering when found.
//   - error: repository.ErrNotFound if the offering is not found.
func (r *OfferingRepo) Get(ctx context.Context, id int64) (*domain.Offering, error) {
	const op = "postgres.OfferingRepo.Get"

	return r.get(ctx, op,
		`SELECT id, capacity, occupancy, starts_at, created_at, updated_at
       	 FROM offerings WHERE id = $1`,
		id,
	)
}

// GetForUpdate retrieves an offering and takes its row lock for the rest of
// the transaction. It must run inside RunTx.
//
// Returns:
//   - *domain.Offering: the locked offering.
//   - error: repository.ErrNotFound if the offering is not found.
//   - error: repository.ErrBusy if the lock is not granted within the lock timeout.
func (r *OfferingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Offering, error) {
	const op = "postgres.OfferingRepo.GetForUpdate"

	return r.get(ctx, op,
		`SELECT id, capacity, occupancy, starts_at, created_at, updated_at
       	 FROM offerings WHERE id = $1
       	 FOR UPDATE`,
		id,
	)
}

func (r *OfferingRepo) get(ctx context.Context, op, sql string, id int64) (*domain.Offering, error) {
	db := r.handle()

	var o domain.Offering
	err := db.QueryRow(ctx, sql, id).Scan(
		&o.ID,
		&o.Capacity,
		&o.Occupancy,
		&o.StartsAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

func (r *OfferingRepo) SetOccupancy(ctx context.Context, id int64, occupancy int) error {
	const op = "postgres.OfferingRepo.SetOccupancy"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE offerings
         SET occupancy = $2, updated_at = now()
      	 WHERE id = $1`,
		id, occupancy,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *OfferingRepo) ListIDs(ctx context.Context) ([]int64, error) {
	const op = "postgres.OfferingRepo.ListIDs"

	db := r.handle()

	rows, err := db.Query(ctx, `SELECT id FROM offerings ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
