package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the audit record of one amount applied to an installment.
// Installment.AmountPaid is the ledger truth; payments exist so collections
// over a period can be reported without reconstructing them from snapshots.
type Payment struct {
	ID            uuid.UUID `json:"id" db:"id"`
	LoanID        uuid.UUID `json:"loan_id" db:"loan_id"`
	InstallmentID uuid.UUID `json:"installment_id" db:"installment_id"`
	Amount        int64     `json:"amount" db:"amount"`
	PaymentDate   time.Time `json:"payment_date" db:"payment_date"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
