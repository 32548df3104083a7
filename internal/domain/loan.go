package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the closed set of lifecycle states for a loan.
type LoanStatus string

const (
	LoanStatusDraft     LoanStatus = "draft"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusDisbursed LoanStatus = "disbursed"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted"
	LoanStatusCancelled LoanStatus = "cancelled"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusDraft, LoanStatusApproved, LoanStatusDisbursed,
		LoanStatusActive, LoanStatusCompleted, LoanStatusDefaulted, LoanStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s LoanStatus) Terminal() bool {
	switch s {
	case LoanStatusCompleted, LoanStatusDefaulted, LoanStatusCancelled:
		return true
	}
	return false
}

// LoanEvent names a lifecycle transition.
type LoanEvent string

const (
	EventApprove  LoanEvent = "approve"
	EventCancel   LoanEvent = "cancel"
	EventDisburse LoanEvent = "disburse"
	EventActivate LoanEvent = "activate"
	EventComplete LoanEvent = "complete"
	EventDefault  LoanEvent = "default"
)

// transitions is the full lifecycle state machine. Anything not listed here
// is an invalid transition.
var transitions = map[LoanEvent]map[LoanStatus]LoanStatus{
	EventApprove: {
		LoanStatusDraft: LoanStatusApproved,
	},
	EventCancel: {
		LoanStatusDraft:    LoanStatusCancelled,
		LoanStatusApproved: LoanStatusCancelled,
	},
	EventDisburse: {
		LoanStatusApproved: LoanStatusDisbursed,
	},
	EventActivate: {
		LoanStatusDisbursed: LoanStatusActive,
	},
	EventComplete: {
		LoanStatusActive: LoanStatusCompleted,
	},
	EventDefault: {
		LoanStatusActive: LoanStatusDefaulted,
	},
}

// NextStatus resolves the status reached by firing event from current.
// The second return value is false when the transition is not permitted.
func NextStatus(current LoanStatus, event LoanEvent) (LoanStatus, bool) {
	next, ok := transitions[event][current]
	return next, ok
}

// Loan is one contract in the cooperative's loan book. It owns its ordered
// installments; they are created atomically at disbursement and never outlive
// the loan.
type Loan struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	CustomerID        uuid.UUID       `json:"customer_id" db:"customer_id"`
	ContractNumber    string          `json:"contract_number" db:"contract_number"`
	Principal         int64           `json:"principal" db:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" db:"annual_rate_percent"`
	TermMonths        int             `json:"term_months" db:"term_months"`
	PeriodicPayment   int64           `json:"periodic_payment" db:"periodic_payment"`
	Status            LoanStatus      `json:"status" db:"status"`
	DisbursedAt       *time.Time      `json:"disbursed_at" db:"disbursed_at"`
	FirstDueDate      *time.Time      `json:"first_due_date" db:"first_due_date"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	Installments      []*Installment  `json:"installments,omitempty" db:"-"`
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	CustomerID        string          `json:"customer_id" validate:"required,uuid"`
	Principal         int64           `json:"principal" validate:"required,gt=0"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" validate:"dgte0"`
	TermMonths        int             `json:"term_months" validate:"required,gt=0"`
}

type DisburseLoanRequest struct {
	StartDate time.Time `json:"start_date" validate:"required"`
}

type PayInstallmentRequest struct {
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	PaymentDate time.Time `json:"payment_date" validate:"required"`
}

type ListLoansRequest struct {
	Page       int
	Limit      int
	CustomerID string
	Status     string
}

type ListLoansResponse struct {
	Loans []*Loan `json:"loans"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type LoanProgressResponse struct {
	LoanID            uuid.UUID `json:"loan_id"`
	ProgressPercent   int       `json:"progress_percent"`
	PaidInstallments  int       `json:"paid_installments"`
	TotalInstallments int       `json:"total_installments"`
	TotalPaid         int64     `json:"total_paid"`
	Outstanding       int64     `json:"outstanding"`
}

type CollectionRateResponse struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TotalCollected int64          `json:"total_collected"`
	TotalTargeted  int64          `json:"total_targeted"`
	Rate           decimal.Decimal `json:"rate"`
}

type OutstandingResponse struct {
	TotalOutstanding int64 `json:"total_outstanding"`
}
