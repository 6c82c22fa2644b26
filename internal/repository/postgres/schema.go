package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "postgres.EnsureSchema"

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
