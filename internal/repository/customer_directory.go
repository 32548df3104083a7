package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// The customers table is owned by the onboarding side of the system; the
// engine only checks that a referenced customer exists.
type customerDirectory struct {
	db *sqlx.DB
}

func NewCustomerDirectory(db *sqlx.DB) CustomerDirectory {
	return &customerDirectory{db: db}
}

func (d *customerDirectory) Exists(ctx context.Context, customerID uuid.UUID) (bool, error) {
	var exists bool
	err := d.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)", customerID)
	if err != nil {
		return false, err
	}
	return exists, nil
}
