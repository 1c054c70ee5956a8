package repository

import (
	"context"
	_ "embed"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/database"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tables this service owns. Every statement is
// idempotent, so it is safe to run on each start.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply schema")
	}
	return nil
}
