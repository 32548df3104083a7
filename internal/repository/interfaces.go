package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wicaksono/loan-engine/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create inserts a new loan in draft status
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List retrieves loans with optional customer/status filters and paging
	List(ctx context.Context, req domain.ListLoansRequest) ([]*domain.Loan, int, error)

	// UpdateStatus moves a loan to the given status
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LoanStatus) error

	// Disburse atomically records disbursement on the loan and creates the
	// full installment set; either all rows land or none do
	Disburse(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error

	// Delete removes the loan and its installments as a unit
	Delete(ctx context.Context, id uuid.UUID) error

	// CountCreatedInYear counts loans created in the given year, for
	// contract number assignment
	CountCreatedInYear(ctx context.Context, year int) (int, error)

	// CountOpenByCustomer counts a customer's loans in non-terminal status
	CountOpenByCustomer(ctx context.Context, customerID uuid.UUID) (int, error)

	// ListByStatuses retrieves all loans in any of the given statuses
	ListByStatuses(ctx context.Context, statuses ...domain.LoanStatus) ([]*domain.Loan, error)
}

// InstallmentRepository defines the interface for installment ledger data
type InstallmentRepository interface {
	// GetByID retrieves an installment by its id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error)

	// ListByLoan retrieves a loan's installments ordered by sequence
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error)

	// Update persists the mutable ledger fields of one installment
	Update(ctx context.Context, installment *domain.Installment) error

	// ListUnpaidDueBefore retrieves installments with amount_paid < amount_due
	// and due_date before the cutoff, optionally restricted to one loan
	ListUnpaidDueBefore(ctx context.Context, cutoff time.Time, loanID *uuid.UUID) ([]*domain.Installment, error)

	// CountUnpaidByLoan counts installments of a loan not yet fully paid
	CountUnpaidByLoan(ctx context.Context, loanID uuid.UUID) (int, error)

	// TotalOutstanding sums amount_due - amount_paid over unpaid installments
	// of loans in non-terminal status
	TotalOutstanding(ctx context.Context) (int64, error)

	// SumDueBetween sums amount_due of installments with due_date in [from, to)
	SumDueBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// PaymentRepository defines the interface for payment audit records
type PaymentRepository interface {
	// Create records one applied payment
	Create(ctx context.Context, payment *domain.Payment) error

	// ListByLoan retrieves all payments applied to a loan's installments
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error)

	// SumPaidBetween sums payments with payment_date in [from, to)
	SumPaidBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// CustomerDirectory validates customer references. Customer management itself
// lives outside the engine.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID uuid.UUID) (bool, error)
}
