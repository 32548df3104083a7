package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wicaksono/loan-engine/internal/domain"
)

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, customer_id, contract_number, principal, annual_rate_percent, term_months, periodic_payment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.CustomerID,
		loan.ContractNumber,
		loan.Principal,
		loan.AnnualRatePercent,
		loan.TermMonths,
		loan.PeriodicPayment,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `
		SELECT id, customer_id, contract_number, principal, annual_rate_percent, term_months, periodic_payment, status, disbursed_at, first_due_date, created_at, updated_at
		FROM loans
		WHERE id = $1
	`

	var loan domain.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context, req domain.ListLoansRequest) ([]*domain.Loan, int, error) {
	var where []string
	var args []interface{}

	if req.CustomerID != "" {
		args = append(args, req.CustomerID)
		where = append(where, "customer_id = $"+strconv.Itoa(len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM loans"+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, (req.Page-1)*req.Limit)
	query := `
		SELECT id, customer_id, contract_number, principal, annual_rate_percent, term_months, periodic_payment, status, disbursed_at, first_due_date, created_at, updated_at
		FROM loans` + clause + `
		ORDER BY created_at DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, 0, err
	}

	return loans, total, nil
}

func (r *loanRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus) error {
	query := `
		UPDATE loans
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	return err
}

func (r *loanRepository) Disburse(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE loans
		SET status = $2, disbursed_at = $3, first_due_date = $4, updated_at = $5
		WHERE id = $1
	`

	if _, err = tx.ExecContext(ctx, query,
		loan.ID,
		loan.Status,
		loan.DisbursedAt,
		loan.FirstDueDate,
		loan.UpdatedAt,
	); err != nil {
		return err
	}

	insert := `
		INSERT INTO loan_installments (id, loan_id, sequence_number, due_date, amount_due, amount_paid, status, dpd, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, installment := range installments {
		if _, err = tx.ExecContext(ctx, insert,
			installment.ID,
			installment.LoanID,
			installment.Sequence,
			installment.DueDate,
			installment.AmountDue,
			installment.AmountPaid,
			installment.Status,
			installment.DPD,
			installment.CreatedAt,
			installment.UpdatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *loanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "DELETE FROM loan_installments WHERE loan_id = $1", id); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM loans WHERE id = $1", id); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *loanRepository) CountCreatedInYear(ctx context.Context, year int) (int, error) {
	query := `
		SELECT COUNT(*) FROM loans
		WHERE EXTRACT(YEAR FROM created_at) = $1
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, year); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *loanRepository) CountOpenByCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM loans
		WHERE customer_id = $1 AND status NOT IN ('completed', 'defaulted', 'cancelled')
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, customerID); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *loanRepository) ListByStatuses(ctx context.Context, statuses ...domain.LoanStatus) ([]*domain.Loan, error) {
	query := `
		SELECT id, customer_id, contract_number, principal, annual_rate_percent, term_months, periodic_payment, status, disbursed_at, first_due_date, created_at, updated_at
		FROM loans
		WHERE status = ANY($1)
		ORDER BY created_at
	`

	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, pq.Array(values)); err != nil {
		return nil, err
	}

	return loans, nil
}
