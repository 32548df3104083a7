package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	customError "github.com/wicaksono/loan-engine/pkg/errors"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ScheduleLine is one generated repayment obligation. Sequence numbers are
// contiguous starting at 1; the final line absorbs rounding drift so the
// schedule sums exactly to principal plus interest.
type ScheduleLine struct {
	Sequence  int       `json:"sequence"`
	DueDate   time.Time `json:"due_date"`
	AmountDue int64     `json:"amount_due"`
}

// ComputePeriodicPayment derives the fixed payment per month in smallest
// currency units using the standard reducing-balance formula
// P * r * (1+r)^n / ((1+r)^n - 1), rounded half-up. A zero rate splits the
// principal evenly, rounding down; the remainder lands on the last installment.
func ComputePeriodicPayment(principal int64, annualRatePercent decimal.Decimal, termMonths int) (int64, error) {
	if err := validateTerms(principal, annualRatePercent, termMonths); err != nil {
		return 0, err
	}

	if annualRatePercent.IsZero() {
		return principal / int64(termMonths), nil
	}

	payment := exactPeriodicPayment(principal, annualRatePercent, termMonths)
	return payment.Round(0).IntPart(), nil
}

// TotalPayable returns principal plus total interest under the exact
// (unrounded) amortization formula, rounded half-up to the currency unit.
func TotalPayable(principal int64, annualRatePercent decimal.Decimal, termMonths int) (int64, error) {
	if err := validateTerms(principal, annualRatePercent, termMonths); err != nil {
		return 0, err
	}

	if annualRatePercent.IsZero() {
		return principal, nil
	}

	total := exactPeriodicPayment(principal, annualRatePercent, termMonths).
		Mul(decimal.NewFromInt(int64(termMonths)))
	return total.Round(0).IntPart(), nil
}

// GenerateSchedule materializes the full repayment schedule. Due dates advance
// by calendar months from startDate, so month-end dates shift the way the
// calendar does. The sum of all amounts due equals TotalPayable exactly.
func GenerateSchedule(principal int64, annualRatePercent decimal.Decimal, termMonths int, startDate time.Time) ([]ScheduleLine, error) {
	payment, err := ComputePeriodicPayment(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	total, err := TotalPayable(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	lines := make([]ScheduleLine, 0, termMonths)
	for k := 1; k <= termMonths; k++ {
		amount := payment
		if k == termMonths {
			amount = total - payment*int64(termMonths-1)
		}

		lines = append(lines, ScheduleLine{
			Sequence:  k,
			DueDate:   startDate.AddDate(0, k, 0),
			AmountDue: amount,
		})
	}

	return lines, nil
}

// exactPeriodicPayment keeps the computation in decimal; the integer exponent
// makes (1+r)^n exact, and the single division carries enough places that the
// rounding at the unit never flips.
func exactPeriodicPayment(principal int64, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	monthlyRate := annualRatePercent.Div(hundred).Div(twelve)
	factor := one.Add(monthlyRate).Pow(decimal.NewFromInt(int64(termMonths)))

	numerator := decimal.NewFromInt(principal).Mul(monthlyRate).Mul(factor)
	denominator := factor.Sub(one)

	return numerator.DivRound(denominator, 12)
}

func validateTerms(principal int64, annualRatePercent decimal.Decimal, termMonths int) error {
	if principal <= 0 {
		return customError.WrapInvalidTerms(fmt.Sprintf("principal must be greater than 0, got %d", principal))
	}
	if termMonths <= 0 {
		return customError.WrapInvalidTerms(fmt.Sprintf("term must be at least 1 month, got %d", termMonths))
	}
	if annualRatePercent.IsNegative() {
		return customError.WrapInvalidTerms(fmt.Sprintf("interest rate must not be negative, got %s", annualRatePercent))
	}
	return nil
}
