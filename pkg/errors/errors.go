package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidTerms         = errors.New("invalid loan terms")
	ErrInvalidTransition    = errors.New("invalid loan status transition")
	ErrOverpaymentRejected  = errors.New("payment exceeds amount due on installment")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrInstallmentNotFound  = errors.New("installment not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrActiveLoanExists     = errors.New("customer already has an active loan")
	ErrLoanNotRemovable     = errors.New("loan has installments with recorded activity")
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidTerms         = "INVALID_TERMS"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeOverpaymentRejected  = "OVERPAYMENT_REJECTED"
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeInstallmentNotFound  = "INSTALLMENT_NOT_FOUND"
	ErrCodeCustomerNotFound     = "CUSTOMER_NOT_FOUND"
	ErrCodeActiveLoanExists     = "ACTIVE_LOAN_EXISTS"
	ErrCodeLoanNotRemovable     = "LOAN_NOT_REMOVABLE"
	ErrCodeInvalidPaymentAmount = "INVALID_PAYMENT_AMOUNT"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// Wrap common errors with business context
func WrapInvalidTerms(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTerms,
		reason,
		ErrInvalidTerms,
	)
}

func WrapInvalidTransition(loanID, from, event string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("Loan %s in status %s does not permit %s", loanID, from, event),
		ErrInvalidTransition,
	)
}

func WrapOverpaymentRejected(installmentID string, remaining, attempted int64) *BusinessError {
	return NewBusinessError(
		ErrCodeOverpaymentRejected,
		fmt.Sprintf("Installment %s has %d remaining due, payment of %d rejected", installmentID, remaining, attempted),
		ErrOverpaymentRejected,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrInstallmentNotFound,
	)
}

func WrapCustomerNotFound(customerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeCustomerNotFound,
		fmt.Sprintf("Customer with ID %s not found", customerID),
		ErrCustomerNotFound,
	)
}

func WrapActiveLoanExists(customerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeActiveLoanExists,
		fmt.Sprintf("Customer %s already has a loan in progress", customerID),
		ErrActiveLoanExists,
	)
}

func WrapLoanNotRemovable(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotRemovable,
		fmt.Sprintf("Loan %s cannot be removed once an installment is non-pending", loanID),
		ErrLoanNotRemovable,
	)
}

func WrapInvalidPaymentAmount(amount int64) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentAmount,
		fmt.Sprintf("Invalid payment amount: %d", amount),
		ErrInvalidPaymentAmount,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// CodeOf returns the business error code carried by err, or an empty string.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
