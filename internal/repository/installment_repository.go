package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wicaksono/loan-engine/internal/domain"
)

type installmentRepository struct {
	db *sqlx.DB
}

func NewInstallmentRepository(db *sqlx.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

const installmentColumns = "id, loan_id, sequence_number, due_date, amount_due, amount_paid, status, paid_at, dpd, created_at, updated_at"

func (r *installmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM loan_installments
		WHERE id = $1
	`

	var installment domain.Installment
	if err := r.db.GetContext(ctx, &installment, query, id); err != nil {
		return nil, err
	}

	return &installment, nil
}

func (r *installmentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM loan_installments
		WHERE loan_id = $1
		ORDER BY sequence_number
	`

	var installments []*domain.Installment
	if err := r.db.SelectContext(ctx, &installments, query, loanID); err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *installmentRepository) Update(ctx context.Context, installment *domain.Installment) error {
	query := `
		UPDATE loan_installments
		SET amount_paid = $2, status = $3, paid_at = $4, dpd = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		installment.ID,
		installment.AmountPaid,
		installment.Status,
		installment.PaidAt,
		installment.DPD,
		installment.UpdatedAt,
	)

	return err
}

func (r *installmentRepository) ListUnpaidDueBefore(ctx context.Context, cutoff time.Time, loanID *uuid.UUID) ([]*domain.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM loan_installments
		WHERE amount_paid < amount_due AND due_date < $1
	`
	args := []interface{}{cutoff}

	if loanID != nil {
		query += " AND loan_id = $2"
		args = append(args, *loanID)
	}

	query += " ORDER BY due_date, loan_id, sequence_number"

	var installments []*domain.Installment
	if err := r.db.SelectContext(ctx, &installments, query, args...); err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *installmentRepository) CountUnpaidByLoan(ctx context.Context, loanID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM loan_installments
		WHERE loan_id = $1 AND amount_paid < amount_due
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, loanID); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *installmentRepository) TotalOutstanding(ctx context.Context) (int64, error) {
	query := `
		SELECT COALESCE(SUM(li.amount_due - li.amount_paid), 0)
		FROM loan_installments li
		JOIN loans l ON li.loan_id = l.id
		WHERE li.amount_paid < li.amount_due
		AND l.status NOT IN ('completed', 'defaulted', 'cancelled')
	`

	var total int64
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, err
	}

	return total, nil
}

func (r *installmentRepository) SumDueBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_due), 0)
		FROM loan_installments
		WHERE due_date >= $1 AND due_date < $2
	`

	var total int64
	if err := r.db.GetContext(ctx, &total, query, from, to); err != nil {
		return 0, err
	}

	return total, nil
}
