package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wicaksono/loan-engine/internal/domain"
)

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, loan_id, installment_id, amount, payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.InstallmentID,
		payment.Amount,
		payment.PaymentDate,
		payment.CreatedAt,
	)

	return err
}

func (r *paymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	query := `
		SELECT id, loan_id, installment_id, amount, payment_date, created_at
		FROM payments
		WHERE loan_id = $1
		ORDER BY payment_date
	`

	var payments []*domain.Payment
	if err := r.db.SelectContext(ctx, &payments, query, loanID); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepository) SumPaidBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE payment_date >= $1 AND payment_date < $2
	`

	var total int64
	if err := r.db.GetContext(ctx, &total, query, from, to); err != nil {
		return 0, err
	}

	return total, nil
}
