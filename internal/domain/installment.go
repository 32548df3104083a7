package domain

import (
	"time"

	"github.com/google/uuid"
)

// InstallmentStatus is the closed set of ledger states for one installment.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPartial InstallmentStatus = "partial"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// Valid reports whether s is a known installment status.
func (s InstallmentStatus) Valid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusPartial, InstallmentStatusPaid, InstallmentStatusOverdue:
		return true
	}
	return false
}

// Installment is one scheduled repayment obligation within a loan's term.
// DueDate and AmountDue are immutable after generation; AmountPaid only grows.
type Installment struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	LoanID     uuid.UUID         `json:"loan_id" db:"loan_id"`
	Sequence   int               `json:"sequence" db:"sequence_number"`
	DueDate    time.Time         `json:"due_date" db:"due_date"`
	AmountDue  int64             `json:"amount_due" db:"amount_due"`
	AmountPaid int64             `json:"amount_paid" db:"amount_paid"`
	Status     InstallmentStatus `json:"status" db:"status"`
	PaidAt     *time.Time        `json:"paid_at" db:"paid_at"`
	DPD        int               `json:"dpd" db:"dpd"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// Settled reports whether the amount due has been fully paid.
func (i *Installment) Settled() bool {
	return i.AmountPaid >= i.AmountDue
}

// Outstanding returns the remaining amount due.
func (i *Installment) Outstanding() int64 {
	if remaining := i.AmountDue - i.AmountPaid; remaining > 0 {
		return remaining
	}
	return 0
}

// DaysPastDue counts full calendar days between dueDate and asOf, never
// negative. Both ends are taken at date granularity so intra-day times do not
// produce phantom overdue days.
func DaysPastDue(dueDate, asOf time.Time) int {
	due := atMidnightUTC(dueDate)
	at := atMidnightUTC(asOf)
	if !at.After(due) {
		return 0
	}
	return int(at.Sub(due).Hours() / 24)
}

// RecomputeState derives (status, dpd) strictly from the schedule and ledger
// fields, never from the prior status. It is idempotent and safe to call with
// out-of-order asOf dates: a regressed asOf simply yields the state that was
// true on that date.
func RecomputeState(dueDate time.Time, amountDue, amountPaid int64, asOf time.Time) (InstallmentStatus, int) {
	if amountPaid >= amountDue {
		return InstallmentStatusPaid, 0
	}

	if dpd := DaysPastDue(dueDate, asOf); dpd > 0 {
		return InstallmentStatusOverdue, dpd
	}

	if amountPaid > 0 {
		return InstallmentStatusPartial, 0
	}

	return InstallmentStatusPending, 0
}

func atMidnightUTC(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
