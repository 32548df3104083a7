package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/config"
	"github.com/wicaksono/loan-engine/internal/domain"
	"github.com/wicaksono/loan-engine/internal/repository"
	customError "github.com/wicaksono/loan-engine/pkg/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			MaxTermMonths:          60,
			DelinquencyConsecutive: 2,
			DelinquencyMaxDPD:      90,
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config) (*LoanService, *repository.MemoryStore, uuid.UUID) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	store := repository.NewMemoryStore()
	customerID := uuid.New()
	store.AddCustomer(customerID)
	svc := NewLoanService(store.Loans(), store.Installments(), store.Payments(), store.Customers(), nil, cfg, zap.NewNop())
	return svc, store, customerID
}

func mustRate(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	rate, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return rate
}

func createDraftLoan(t *testing.T, svc *LoanService, customerID uuid.UUID, principal int64, rate string, termMonths int) *domain.Loan {
	t.Helper()
	loan, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		CustomerID:        customerID.String(),
		Principal:         principal,
		AnnualRatePercent: mustRate(t, rate),
		TermMonths:        termMonths,
	})
	require.NoError(t, err)
	return loan
}

func TestCreateLoan(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()

	loan := createDraftLoan(t, svc, customerID, 12000000, "12", 12)

	assert.Equal(t, domain.LoanStatusDraft, loan.Status)
	assert.Equal(t, int64(1066185), loan.PeriodicPayment)
	assert.Regexp(t, `^KOP-\d{4}-0001$`, loan.ContractNumber)
	assert.Nil(t, loan.DisbursedAt)

	fetched, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ContractNumber, fetched.ContractNumber)
	assert.Empty(t, fetched.Installments)
}

func TestCreateLoanRejections(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		request      *domain.CreateLoanRequest
		expectedCode string
	}{
		{
			name: "unknown customer",
			request: &domain.CreateLoanRequest{
				CustomerID:        uuid.New().String(),
				Principal:         1000000,
				AnnualRatePercent: decimal.NewFromInt(10),
				TermMonths:        6,
			},
			expectedCode: customError.ErrCodeCustomerNotFound,
		},
		{
			name: "malformed customer id",
			request: &domain.CreateLoanRequest{
				CustomerID:        "not-a-uuid",
				Principal:         1000000,
				AnnualRatePercent: decimal.NewFromInt(10),
				TermMonths:        6,
			},
			expectedCode: customError.ErrCodeCustomerNotFound,
		},
		{
			name: "term above ceiling",
			request: &domain.CreateLoanRequest{
				CustomerID:        customerID.String(),
				Principal:         1000000,
				AnnualRatePercent: decimal.NewFromInt(10),
				TermMonths:        61,
			},
			expectedCode: customError.ErrCodeInvalidTerms,
		},
		{
			name: "zero principal",
			request: &domain.CreateLoanRequest{
				CustomerID:        customerID.String(),
				Principal:         0,
				AnnualRatePercent: decimal.NewFromInt(10),
				TermMonths:        6,
			},
			expectedCode: customError.ErrCodeInvalidTerms,
		},
		{
			name: "negative rate",
			request: &domain.CreateLoanRequest{
				CustomerID:        customerID.String(),
				Principal:         1000000,
				AnnualRatePercent: decimal.NewFromInt(-1),
				TermMonths:        6,
			},
			expectedCode: customError.ErrCodeInvalidTerms,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLoan(ctx, tt.request)
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, customError.CodeOf(err))
		})
	}
}

func TestCreateLoanOnePerCustomer(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()

	first := createDraftLoan(t, svc, customerID, 6000000, "0", 6)

	_, err := svc.CreateLoan(ctx, &domain.CreateLoanRequest{
		CustomerID:        customerID.String(),
		Principal:         1000000,
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
	})
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeActiveLoanExists, customError.CodeOf(err))

	// A second loan opens up once the first reaches a terminal status.
	_, err = svc.CancelLoan(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.CreateLoan(ctx, &domain.CreateLoanRequest{
		CustomerID:        customerID.String(),
		Principal:         1000000,
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
	})
	require.NoError(t, err)
	assert.Regexp(t, `-0002$`, second.ContractNumber)
}

func TestLoanLifecycle(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 12000000, "12", 12)

	approved, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)

	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, disbursed.Status)
	require.Len(t, disbursed.Installments, 12)
	require.NotNil(t, disbursed.FirstDueDate)
	assert.Equal(t, start.AddDate(0, 1, 0), *disbursed.FirstDueDate)

	var total int64
	for i, installment := range disbursed.Installments {
		assert.Equal(t, i+1, installment.Sequence)
		assert.Equal(t, domain.InstallmentStatusPending, installment.Status)
		total += installment.AmountDue
	}
	assert.Equal(t, int64(12794226), total)
	assert.Equal(t, int64(1066191), disbursed.Installments[11].AmountDue)

	// Pay every installment on its due date; the loan activates on the first
	// payment and completes on the last.
	for i, installment := range disbursed.Installments {
		paid, err := svc.PayInstallment(ctx, installment.ID, installment.AmountDue, installment.DueDate)
		require.NoError(t, err)
		assert.Equal(t, domain.InstallmentStatusPaid, paid.Status)
		assert.Equal(t, 0, paid.DPD)
		require.NotNil(t, paid.PaidAt)

		current, err := svc.GetLoan(ctx, loan.ID)
		require.NoError(t, err)
		if i < len(disbursed.Installments)-1 {
			assert.Equal(t, domain.LoanStatusActive, current.Status)
		} else {
			assert.Equal(t, domain.LoanStatusCompleted, current.Status)
		}
	}
}

func TestDisburseLoanIdempotent(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)

	first, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)
	require.Len(t, first.Installments, 6)

	// Replaying the disbursement, even with a different start date, returns
	// the schedule produced by the first call.
	second, err := svc.DisburseLoan(ctx, loan.ID, start.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Len(t, second.Installments, 6)
	require.NotNil(t, second.DisbursedAt)
	assert.Equal(t, start, *second.DisbursedAt)
	for i := range first.Installments {
		assert.Equal(t, first.Installments[i].ID, second.Installments[i].ID)
		assert.Equal(t, first.Installments[i].DueDate, second.Installments[i].DueDate)
	}
}

func TestInvalidTransitions(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	draft := createDraftLoan(t, svc, customerID, 6000000, "0", 6)

	_, err := svc.DisburseLoan(ctx, draft.ID, start)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInvalidTransition, customError.CodeOf(err))

	_, err = svc.ApproveLoan(ctx, draft.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, draft.ID, start)
	require.NoError(t, err)

	// Disbursed money cannot be cancelled away.
	_, err = svc.CancelLoan(ctx, draft.ID)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInvalidTransition, customError.CodeOf(err))

	_, err = svc.ApproveLoan(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeLoanNotFound, customError.CodeOf(err))
}

func TestPayInstallmentOverpaymentRejected(t *testing.T) {
	svc, store, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	target := disbursed.Installments[0]
	require.Equal(t, int64(1000000), target.AmountDue)

	_, err = svc.PayInstallment(ctx, target.ID, 1000001, target.DueDate)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeOverpaymentRejected, customError.CodeOf(err))
	assert.ErrorIs(t, err, customError.ErrOverpaymentRejected)

	// The rejection leaves no trace: no partial application, no payment record.
	after, err := store.Installments().GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.AmountPaid)
	assert.Equal(t, domain.InstallmentStatusPending, after.Status)
	payments, err := store.Payments().ListByLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// Exact remaining amount is the largest accepted payment.
	_, err = svc.PayInstallment(ctx, target.ID, 400000, target.DueDate)
	require.NoError(t, err)
	_, err = svc.PayInstallment(ctx, target.ID, 600001, target.DueDate)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeOverpaymentRejected, customError.CodeOf(err))
	paid, err := svc.PayInstallment(ctx, target.ID, 600000, target.DueDate)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPaid, paid.Status)
}

func TestPayInstallmentValidation(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)
	target := disbursed.Installments[0]

	_, err = svc.PayInstallment(ctx, target.ID, 0, target.DueDate)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInvalidPaymentAmount, customError.CodeOf(err))

	_, err = svc.PayInstallment(ctx, target.ID, -500, target.DueDate)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInvalidPaymentAmount, customError.CodeOf(err))

	_, err = svc.PayInstallment(ctx, uuid.New(), 1000, target.DueDate)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInstallmentNotFound, customError.CodeOf(err))
}

func TestPayInstallmentPartialThenOverdue(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)
	target := disbursed.Installments[0]
	due := target.DueDate

	partial, err := svc.PayInstallment(ctx, target.ID, 400000, due)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPartial, partial.Status)
	assert.Equal(t, int64(400000), partial.AmountPaid)
	assert.Equal(t, 0, partial.DPD)
	assert.Nil(t, partial.PaidAt)

	swept, err := svc.RecomputeDelinquency(ctx, target.ID, due.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusOverdue, swept.Status)
	assert.Equal(t, 10, swept.DPD)
	assert.Equal(t, int64(400000), swept.AmountPaid)

	settled, err := svc.PayInstallment(ctx, target.ID, 600000, due.AddDate(0, 0, 12))
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusPaid, settled.Status)
	assert.Equal(t, 0, settled.DPD)
	require.NotNil(t, settled.PaidAt)
	assert.Equal(t, due.AddDate(0, 0, 12), *settled.PaidAt)
}

func TestPayInstallmentOnClosedLoan(t *testing.T) {
	cfg := testConfig()
	svc, _, customerID := newTestService(t, cfg)
	ctx := context.Background()
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	// Two consecutive installments long past due trip the default policy.
	_, err = svc.SweepDelinquency(ctx, start.AddDate(0, 3, 0))
	require.NoError(t, err)

	defaulted, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusDefaulted, defaulted.Status)

	_, err = svc.PayInstallment(ctx, disbursed.Installments[0].ID, 1000000, start.AddDate(0, 3, 0))
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeInvalidTransition, customError.CodeOf(err))
}

func TestSweepDelinquency(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	// First due date is Feb 1; five days later exactly one installment flips.
	changed, err := svc.SweepDelinquency(ctx, start.AddDate(0, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	// A disbursed loan observed by the sweep is under active repayment.
	active, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, active.Status)
	require.Len(t, active.Installments, 6)
	assert.Equal(t, domain.InstallmentStatusOverdue, active.Installments[0].Status)
	assert.Equal(t, 5, active.Installments[0].DPD)
	assert.Equal(t, domain.InstallmentStatusPending, active.Installments[1].Status)

	// Re-running at the same instant changes nothing.
	changed, err = svc.SweepDelinquency(ctx, start.AddDate(0, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestSweepDefaultPolicyConsecutive(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	// One overdue installment is not enough.
	_, err = svc.SweepDelinquency(ctx, start.AddDate(0, 1, 5))
	require.NoError(t, err)
	current, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, current.Status)

	// Two in a row is.
	_, err = svc.SweepDelinquency(ctx, start.AddDate(0, 2, 5))
	require.NoError(t, err)
	current, err = svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDefaulted, current.Status)
}

func TestSweepDefaultPolicySettledGapResetsRun(t *testing.T) {
	svc, _, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	// Settle the second installment so the first and third overdue installments
	// do not form a consecutive run.
	second := disbursed.Installments[1]
	_, err = svc.PayInstallment(ctx, second.ID, second.AmountDue, second.DueDate)
	require.NoError(t, err)

	_, err = svc.SweepDelinquency(ctx, start.AddDate(0, 3, 5))
	require.NoError(t, err)

	current, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, current.Status)
}

func TestSweepDefaultPolicyMaxDPD(t *testing.T) {
	cfg := testConfig()
	cfg.Business.DelinquencyConsecutive = 99
	svc, _, customerID := newTestService(t, cfg)
	ctx := context.Background()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	firstDue := start.AddDate(0, 1, 0)

	_, err = svc.SweepDelinquency(ctx, firstDue.AddDate(0, 0, 90))
	require.NoError(t, err)
	current, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, current.Status)

	_, err = svc.SweepDelinquency(ctx, firstDue.AddDate(0, 0, 91))
	require.NoError(t, err)
	current, err = svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDefaulted, current.Status)
}

func TestListOverdueInstallments(t *testing.T) {
	svc, store, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	otherCustomer := uuid.New()
	store.AddCustomer(otherCustomer)

	first := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, first.ID, start)
	require.NoError(t, err)

	second, err := svc.CreateLoan(ctx, &domain.CreateLoanRequest{
		CustomerID:        otherCustomer.String(),
		Principal:         3000000,
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
	})
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, second.ID)
	require.NoError(t, err)
	// Second loan starts a month later, so its installments carry less dpd.
	_, err = svc.DisburseLoan(ctx, second.ID, start.AddDate(0, 1, 0))
	require.NoError(t, err)

	asOf := start.AddDate(0, 2, 10)
	overdue, err := svc.ListOverdueInstallments(ctx, asOf, nil)
	require.NoError(t, err)
	require.Len(t, overdue, 3)

	// Sorted by days past due descending; a paid installment never appears.
	for i := 1; i < len(overdue); i++ {
		assert.GreaterOrEqual(t, overdue[i-1].DPD, overdue[i].DPD)
	}
	assert.Equal(t, first.ID, overdue[0].LoanID)
	assert.Equal(t, 1, overdue[0].Sequence)

	// Scoping by loan id filters the other loan's arrears.
	scoped, err := svc.ListOverdueInstallments(ctx, asOf, &second.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, second.ID, scoped[0].LoanID)

	// Nothing is overdue the day everything is due.
	none, err := svc.ListOverdueInstallments(ctx, start.AddDate(0, 1, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteLoan(t *testing.T) {
	svc, store, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 6000000, "0", 6)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	target := disbursed.Installments[0]
	_, err = svc.PayInstallment(ctx, target.ID, 100000, target.DueDate)
	require.NoError(t, err)

	// Recorded activity blocks removal.
	err = svc.DeleteLoan(ctx, loan.ID)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeLoanNotRemovable, customError.CodeOf(err))

	// An untouched loan removes cleanly together with its installments.
	otherCustomer := uuid.New()
	store.AddCustomer(otherCustomer)
	clean, err := svc.CreateLoan(ctx, &domain.CreateLoanRequest{
		CustomerID:        otherCustomer.String(),
		Principal:         3000000,
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
	})
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, clean.ID)
	require.NoError(t, err)
	_, err = svc.DisburseLoan(ctx, clean.ID, start)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLoan(ctx, clean.ID))

	_, err = svc.GetLoan(ctx, clean.ID)
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeLoanNotFound, customError.CodeOf(err))
	orphans, err := store.Installments().ListByLoan(ctx, clean.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	err = svc.DeleteLoan(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, customError.ErrCodeLoanNotFound, customError.CodeOf(err))
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	svc, store, customerID := newTestService(t, nil)
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	loan := createDraftLoan(t, svc, customerID, 1200000, "0", 12)
	_, err := svc.ApproveLoan(ctx, loan.ID)
	require.NoError(t, err)
	disbursed, err := svc.DisburseLoan(ctx, loan.ID, start)
	require.NoError(t, err)

	target := disbursed.Installments[0]
	require.Equal(t, int64(100000), target.AmountDue)

	const workers = 20
	const chunk = int64(10000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PayInstallment(ctx, target.ID, chunk, target.DueDate); err == nil {
				mu.Lock()
				accepted += chunk
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final, err := store.Installments().GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.AmountDue, final.AmountPaid, "accepted payments must land exactly at the amount due")
	assert.Equal(t, final.AmountPaid, accepted, "store state must match the sum of accepted payments")
	assert.Equal(t, domain.InstallmentStatusPaid, final.Status)

	payments, err := store.Payments().ListByLoan(ctx, loan.ID)
	require.NoError(t, err)
	var recorded int64
	for _, payment := range payments {
		recorded += payment.Amount
	}
	assert.Equal(t, accepted, recorded)
}
