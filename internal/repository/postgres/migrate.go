package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"reseller-ledger/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates every table, index and trigger the ledger needs. It is
// safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.DatabaseCall("Migrate", "schema.sql")
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		logger.DatabaseResult("Migrate", 0, err)
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}
