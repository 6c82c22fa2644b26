package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classbook/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AuditRepo) With(db DB) *AuditRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AuditRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Append writes an audit record. Records are never updated or deleted.
func (r *AuditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	const op = "postgres.AuditRepo.Append"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO audit_records(offering_id, participant_id, booking_id, action, old_count, new_count, reason)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7)
     	 RETURNING id, created_at`,
		rec.OfferingID,
		rec.ParticipantID,
		rec.BookingID,
		string(rec.Action),
		rec.OldCount,
		rec.NewCount,
		rec.Reason,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AuditRepo) ListByOffering(ctx context.Context, offeringID int64, limit int) ([]domain.AuditRecord, error) {
	const op = "postgres.AuditRepo.ListByOffering"

	rows, err := r.handle().Query(ctx,
		`SELECT id, offering_id, participant_id, booking_id, action, old_count, new_count, reason, created_at
         FROM audit_records
      	 WHERE offering_id = $1
       	 ORDER BY id DESC
       	 LIMIT $2`,
		offeringID, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var action string

		if err := rows.Scan(
			&rec.ID,
			&rec.OfferingID,
			&rec.ParticipantID,
			&rec.BookingID,
			&action,
			&rec.OldCount,
			&rec.NewCount,
			&rec.Reason,
			&rec.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		rec.Action = domain.AuditAction(action)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
