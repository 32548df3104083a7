package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/config"
	"github.com/wicaksono/loan-engine/internal/domain"
	"github.com/wicaksono/loan-engine/internal/repository"
	customError "github.com/wicaksono/loan-engine/pkg/errors"
)

// LoanService owns the loan lifecycle state machine and the installment
// ledger. Every date-sensitive operation takes an explicit asOf/payment date
// so the engine never reads a global clock.
type LoanService struct {
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
	paymentRepo     repository.PaymentRepository
	customers       repository.CustomerDirectory
	redis           *redis.Client
	config          *config.Config
	logger          *zap.Logger
	locks           *loanLocks
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	paymentRepo repository.PaymentRepository,
	customers repository.CustomerDirectory,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *LoanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		customers:       customers,
		redis:           redisClient,
		config:          cfg,
		logger:          logger,
		locks:           newLoanLocks(),
	}
}

// CreateLoan registers a new draft loan. The periodic payment is derived once
// here and never recomputed after disbursement.
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	customerID, err := uuid.Parse(request.CustomerID)
	if err != nil {
		return nil, customError.WrapCustomerNotFound(request.CustomerID)
	}

	if request.TermMonths > s.config.Business.MaxTermMonths {
		return nil, customError.WrapInvalidTerms(
			fmt.Sprintf("term must be at most %d months, got %d", s.config.Business.MaxTermMonths, request.TermMonths))
	}

	payment, err := domain.ComputePeriodicPayment(request.Principal, request.AnnualRatePercent, request.TermMonths)
	if err != nil {
		return nil, err
	}

	exists, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !exists {
		return nil, customError.WrapCustomerNotFound(request.CustomerID)
	}

	open, err := s.loanRepo.CountOpenByCustomer(ctx, customerID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if open > 0 {
		return nil, customError.WrapActiveLoanExists(request.CustomerID)
	}

	contractNumber, err := s.nextContractNumber(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	now := time.Now()
	loan := &domain.Loan{
		ID:                uuid.New(),
		CustomerID:        customerID,
		ContractNumber:    contractNumber,
		Principal:         request.Principal,
		AnnualRatePercent: request.AnnualRatePercent,
		TermMonths:        request.TermMonths,
		PeriodicPayment:   payment,
		Status:            domain.LoanStatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.loanRepo.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("contract_number", loan.ContractNumber),
		zap.Int64("principal", loan.Principal),
		zap.Int("term_months", loan.TermMonths))

	return loan, nil
}

// GetLoan returns a loan with its installments.
func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	installments, err := s.installmentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	loan.Installments = installments

	return loan, nil
}

// ListLoans returns a page of loans.
func (s *LoanService) ListLoans(ctx context.Context, request domain.ListLoansRequest) (*domain.ListLoansResponse, error) {
	if request.Page < 1 {
		request.Page = 1
	}
	if request.Limit < 1 || request.Limit > 100 {
		request.Limit = 20
	}

	loans, total, err := s.loanRepo.List(ctx, request)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.ListLoansResponse{
		Loans: loans,
		Total: total,
		Page:  request.Page,
		Limit: request.Limit,
	}, nil
}

// ApproveLoan moves a draft loan to approved.
func (s *LoanService) ApproveLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return s.fireEvent(ctx, loanID, domain.EventApprove)
}

// CancelLoan cancels a loan that has not been disbursed yet.
func (s *LoanService) CancelLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return s.fireEvent(ctx, loanID, domain.EventCancel)
}

// DisburseLoan materializes the full installment schedule atomically and moves
// the loan to disbursed. A second call on an already-disbursed loan returns
// the existing schedule without regenerating it.
func (s *LoanService) DisburseLoan(ctx context.Context, loanID uuid.UUID, startDate time.Time) (*domain.Loan, error) {
	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	// At-most-once materialization: repeated disbursement is answered with
	// what the first call produced.
	if loan.DisbursedAt != nil {
		installments, err := s.installmentRepo.ListByLoan(ctx, loanID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		loan.Installments = installments
		return loan, nil
	}

	next, ok := domain.NextStatus(loan.Status, domain.EventDisburse)
	if !ok {
		return nil, customError.WrapInvalidTransition(loanID.String(), string(loan.Status), string(domain.EventDisburse))
	}

	lines, err := domain.GenerateSchedule(loan.Principal, loan.AnnualRatePercent, loan.TermMonths, startDate)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	installments := make([]*domain.Installment, 0, len(lines))
	for _, line := range lines {
		installments = append(installments, &domain.Installment{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			Sequence:  line.Sequence,
			DueDate:   line.DueDate,
			AmountDue: line.AmountDue,
			Status:    domain.InstallmentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	loan.Status = next
	loan.DisbursedAt = &startDate
	loan.FirstDueDate = &lines[0].DueDate
	loan.UpdatedAt = now

	if err := s.loanRepo.Disburse(ctx, loan, installments); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.invalidateProgress(ctx, loanID)
	s.logger.Info("loan disbursed",
		zap.String("loan_id", loan.ID.String()),
		zap.Time("start_date", startDate),
		zap.Int("installments", len(installments)))

	loan.Installments = installments
	return loan, nil
}

// PayInstallment applies a payment to one installment. The payment is rejected
// whole if it would push amount paid above amount due; nothing is capped.
// A full payment may cascade the loan to completed.
func (s *LoanService) PayInstallment(ctx context.Context, installmentID uuid.UUID, amount int64, paymentDate time.Time) (*domain.Installment, error) {
	if amount <= 0 {
		return nil, customError.WrapInvalidPaymentAmount(amount)
	}

	probe, err := s.getInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(probe.LoanID)
	defer unlock()

	// Re-read under the loan lock; a concurrent payment may have landed
	// between the probe and here.
	installment, err := s.getInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	loan, err := s.getLoan(ctx, installment.LoanID)
	if err != nil {
		return nil, err
	}

	if loan.Status != domain.LoanStatusDisbursed && loan.Status != domain.LoanStatusActive {
		return nil, customError.WrapInvalidTransition(loan.ID.String(), string(loan.Status), "payment")
	}

	if remaining := installment.AmountDue - installment.AmountPaid; amount > remaining {
		return nil, customError.WrapOverpaymentRejected(installmentID.String(), remaining, amount)
	}

	installment.AmountPaid += amount
	status, dpd := domain.RecomputeState(installment.DueDate, installment.AmountDue, installment.AmountPaid, paymentDate)
	installment.Status = status
	installment.DPD = dpd
	if status == domain.InstallmentStatusPaid && installment.PaidAt == nil {
		installment.PaidAt = &paymentDate
	}
	installment.UpdatedAt = time.Now()

	if err := s.installmentRepo.Update(ctx, installment); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		LoanID:        installment.LoanID,
		InstallmentID: installment.ID,
		Amount:        amount,
		PaymentDate:   paymentDate,
		CreatedAt:     time.Now(),
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	// First observed repayment activity puts the loan under active repayment.
	if loan.Status == domain.LoanStatusDisbursed {
		if err := s.transition(ctx, loan, domain.EventActivate); err != nil {
			return nil, err
		}
	}

	if status == domain.InstallmentStatusPaid {
		if err := s.completeIfSettled(ctx, loan); err != nil {
			return nil, err
		}
	}

	s.invalidateProgress(ctx, installment.LoanID)
	s.logger.Info("payment applied",
		zap.String("installment_id", installmentID.String()),
		zap.String("loan_id", installment.LoanID.String()),
		zap.Int64("amount", amount),
		zap.String("status", string(status)))

	return installment, nil
}

// RecomputeDelinquency re-derives one installment's status and days past due
// as of the given date. It is idempotent and never overwrites payment state:
// the derivation reads only due date, amount due, amount paid and asOf.
func (s *LoanService) RecomputeDelinquency(ctx context.Context, installmentID uuid.UUID, asOf time.Time) (*domain.Installment, error) {
	probe, err := s.getInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(probe.LoanID)
	defer unlock()

	installment, err := s.getInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	status, dpd := domain.RecomputeState(installment.DueDate, installment.AmountDue, installment.AmountPaid, asOf)
	if status == installment.Status && dpd == installment.DPD {
		return installment, nil
	}

	installment.Status = status
	installment.DPD = dpd
	installment.UpdatedAt = time.Now()

	if err := s.installmentRepo.Update(ctx, installment); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return installment, nil
}

// SweepDelinquency recomputes delinquency for every unpaid installment of
// disbursed and active loans, promotes freshly observed disbursed loans to
// active, and applies the default policy. Returns the number of installments
// whose state changed.
func (s *LoanService) SweepDelinquency(ctx context.Context, asOf time.Time) (int, error) {
	loans, err := s.loanRepo.ListByStatuses(ctx, domain.LoanStatusDisbursed, domain.LoanStatusActive)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	changed := 0
	for _, loan := range loans {
		n, err := s.sweepLoan(ctx, loan, asOf)
		if err != nil {
			s.logger.Error("delinquency sweep failed for loan",
				zap.String("loan_id", loan.ID.String()),
				zap.Error(err))
			continue
		}
		changed += n
	}

	s.logger.Info("delinquency sweep finished",
		zap.Time("as_of", asOf),
		zap.Int("loans", len(loans)),
		zap.Int("installments_changed", changed))

	return changed, nil
}

func (s *LoanService) sweepLoan(ctx context.Context, loan *domain.Loan, asOf time.Time) (int, error) {
	unlock := s.locks.Lock(loan.ID)
	defer unlock()

	// The loan may have moved (completed, defaulted) since listing.
	loan, err := s.getLoan(ctx, loan.ID)
	if err != nil {
		return 0, err
	}
	if loan.Status != domain.LoanStatusDisbursed && loan.Status != domain.LoanStatusActive {
		return 0, nil
	}

	installments, err := s.installmentRepo.ListByLoan(ctx, loan.ID)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	changed := 0
	for _, installment := range installments {
		status, dpd := domain.RecomputeState(installment.DueDate, installment.AmountDue, installment.AmountPaid, asOf)
		if status == installment.Status && dpd == installment.DPD {
			continue
		}
		installment.Status = status
		installment.DPD = dpd
		installment.UpdatedAt = time.Now()
		if err := s.installmentRepo.Update(ctx, installment); err != nil {
			return changed, customError.WrapDatabaseError(err)
		}
		changed++
	}

	if loan.Status == domain.LoanStatusDisbursed {
		if err := s.transition(ctx, loan, domain.EventActivate); err != nil {
			return changed, err
		}
	}

	if s.defaultPolicyTriggered(installments) {
		if err := s.transition(ctx, loan, domain.EventDefault); err != nil {
			return changed, err
		}
		s.logger.Warn("loan defaulted by policy",
			zap.String("loan_id", loan.ID.String()),
			zap.Int("consecutive_threshold", s.config.Business.DelinquencyConsecutive),
			zap.Int("max_dpd", s.config.Business.DelinquencyMaxDPD))
	}

	return changed, nil
}

// defaultPolicyTriggered evaluates the configured severe-delinquency policy:
// either a run of consecutive overdue installments or any installment past the
// DPD ceiling.
func (s *LoanService) defaultPolicyTriggered(installments []*domain.Installment) bool {
	consecutive := 0
	for _, installment := range installments {
		if installment.Status == domain.InstallmentStatusOverdue {
			if installment.DPD > s.config.Business.DelinquencyMaxDPD {
				return true
			}
			consecutive++
			if consecutive >= s.config.Business.DelinquencyConsecutive {
				return true
			}
		} else if installment.Settled() {
			consecutive = 0
		}
	}
	return false
}

// ListOverdueInstallments returns unpaid installments with dpd > 0 as of the
// given date, ordered by dpd descending, then loan, then sequence. Days past
// due are derived at read time, not taken from the stored sweep snapshot.
func (s *LoanService) ListOverdueInstallments(ctx context.Context, asOf time.Time, loanID *uuid.UUID) ([]*domain.Installment, error) {
	candidates, err := s.installmentRepo.ListUnpaidDueBefore(ctx, asOf, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	overdue := make([]*domain.Installment, 0, len(candidates))
	for _, installment := range candidates {
		status, dpd := domain.RecomputeState(installment.DueDate, installment.AmountDue, installment.AmountPaid, asOf)
		if dpd <= 0 {
			continue
		}
		installment.Status = status
		installment.DPD = dpd
		overdue = append(overdue, installment)
	}

	sortOverdue(overdue)
	return overdue, nil
}

// DeleteLoan removes a loan and its installments as a unit. Removal is refused
// once any installment has left pending.
func (s *LoanService) DeleteLoan(ctx context.Context, loanID uuid.UUID) error {
	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return err
	}

	installments, err := s.installmentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	for _, installment := range installments {
		if installment.Status != domain.InstallmentStatusPending || installment.AmountPaid > 0 {
			return customError.WrapLoanNotRemovable(loanID.String())
		}
	}

	if err := s.loanRepo.Delete(ctx, loanID); err != nil {
		return customError.WrapDatabaseError(err)
	}

	s.invalidateProgress(ctx, loanID)
	s.logger.Info("loan removed",
		zap.String("loan_id", loan.ID.String()),
		zap.String("contract_number", loan.ContractNumber))

	return nil
}

// helpers

func (s *LoanService) fireEvent(ctx context.Context, loanID uuid.UUID, event domain.LoanEvent) (*domain.Loan, error) {
	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, loan, event); err != nil {
		return nil, err
	}

	return loan, nil
}

func (s *LoanService) transition(ctx context.Context, loan *domain.Loan, event domain.LoanEvent) error {
	next, ok := domain.NextStatus(loan.Status, event)
	if !ok {
		return customError.WrapInvalidTransition(loan.ID.String(), string(loan.Status), string(event))
	}

	if err := s.loanRepo.UpdateStatus(ctx, loan.ID, next); err != nil {
		return customError.WrapDatabaseError(err)
	}

	loan.Status = next
	loan.UpdatedAt = time.Now()
	return nil
}

func (s *LoanService) completeIfSettled(ctx context.Context, loan *domain.Loan) error {
	unpaid, err := s.installmentRepo.CountUnpaidByLoan(ctx, loan.ID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if unpaid > 0 {
		return nil
	}

	if err := s.transition(ctx, loan, domain.EventComplete); err != nil {
		return err
	}

	s.logger.Info("loan completed", zap.String("loan_id", loan.ID.String()))
	return nil
}

func (s *LoanService) getLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapLoanNotFound(loanID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}

func (s *LoanService) getInstallment(ctx context.Context, installmentID uuid.UUID) (*domain.Installment, error) {
	installment, err := s.installmentRepo.GetByID(ctx, installmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapInstallmentNotFound(installmentID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return installment, nil
}

func (s *LoanService) nextContractNumber(ctx context.Context) (string, error) {
	year := time.Now().Year()
	count, err := s.loanRepo.CountCreatedInYear(ctx, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("KOP-%d-%04d", year, count+1), nil
}

func (s *LoanService) invalidateProgress(ctx context.Context, loanID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, progressCacheKey(loanID)).Err(); err != nil {
		s.logger.Warn("progress cache invalidation failed",
			zap.String("loan_id", loanID.String()),
			zap.Error(err))
	}
}

func sortOverdue(installments []*domain.Installment) {
	sort.Slice(installments, func(i, j int) bool {
		a, b := installments[i], installments[j]
		if a.DPD != b.DPD {
			return a.DPD > b.DPD
		}
		if a.LoanID != b.LoanID {
			return a.LoanID.String() < b.LoanID.String()
		}
		return a.Sequence < b.Sequence
	})
}
