package migrations

import (
	"context"
	"fmt"

	"pricewatch/internal/storage/postgres"
)

// RunPostgresMigrations brings the bronze and silver schema up to date.
// Each file runs as one multi-statement exec; pgx's simple protocol
// handles that as long as the migration takes no bind parameters.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := loadSchemaFiles("postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
