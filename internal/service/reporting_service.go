package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wicaksono/loan-engine/internal/domain"
	"github.com/wicaksono/loan-engine/internal/repository"
	customError "github.com/wicaksono/loan-engine/pkg/errors"
)

const progressCacheTTL = 5 * time.Minute

// ReportingService answers read-only questions over the loan book and the
// installment ledger. It never mutates engine state.
type ReportingService struct {
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
	paymentRepo     repository.PaymentRepository
	redis           *redis.Client
	logger          *zap.Logger
}

func NewReportingService(
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	paymentRepo repository.PaymentRepository,
	redisClient *redis.Client,
	logger *zap.Logger,
) *ReportingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingService{
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		redis:           redisClient,
		logger:          logger,
	}
}

// TotalOutstanding sums the remaining amount due over all unpaid installments
// of loans that have not reached a terminal status.
func (s *ReportingService) TotalOutstanding(ctx context.Context) (*domain.OutstandingResponse, error) {
	total, err := s.installmentRepo.TotalOutstanding(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &domain.OutstandingResponse{TotalOutstanding: total}, nil
}

// CollectionRate reports money collected over money targeted within [from, to).
// Collected comes from payment records so partial payments count in the period
// they actually arrived; targeted is the amount due of installments maturing
// in the period.
func (s *ReportingService) CollectionRate(ctx context.Context, from, to time.Time) (*domain.CollectionRateResponse, error) {
	collected, err := s.paymentRepo.SumPaidBetween(ctx, from, to)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	targeted, err := s.installmentRepo.SumDueBetween(ctx, from, to)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	rate := decimal.Zero
	if targeted > 0 {
		rate = decimal.NewFromInt(collected).DivRound(decimal.NewFromInt(targeted), 4)
	}

	return &domain.CollectionRateResponse{
		From:           from,
		To:             to,
		TotalCollected: collected,
		TotalTargeted:  targeted,
		Rate:           rate,
	}, nil
}

// LoanProgress reports how far a loan's repayment has come. Results are cached
// in Redis; the cache is invalidated whenever a payment or disbursement lands.
func (s *ReportingService) LoanProgress(ctx context.Context, loanID uuid.UUID) (*domain.LoanProgressResponse, error) {
	if cached := s.cachedProgress(ctx, loanID); cached != nil {
		return cached, nil
	}

	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapLoanNotFound(loanID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	installments, err := s.installmentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	progress := &domain.LoanProgressResponse{
		LoanID:            loanID,
		TotalInstallments: len(installments),
	}
	for _, installment := range installments {
		progress.TotalPaid += installment.AmountPaid
		progress.Outstanding += installment.Outstanding()
		if installment.Settled() {
			progress.PaidInstallments++
		}
	}
	if progress.TotalInstallments > 0 {
		progress.ProgressPercent = int(math.Round(
			float64(progress.PaidInstallments) / float64(progress.TotalInstallments) * 100))
	}

	s.storeProgress(ctx, loanID, progress)
	return progress, nil
}

func (s *ReportingService) cachedProgress(ctx context.Context, loanID uuid.UUID) *domain.LoanProgressResponse {
	if s.redis == nil {
		return nil
	}

	raw, err := s.redis.Get(ctx, progressCacheKey(loanID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("progress cache read failed",
				zap.String("loan_id", loanID.String()),
				zap.Error(err))
		}
		return nil
	}

	var progress domain.LoanProgressResponse
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil
	}
	return &progress
}

func (s *ReportingService) storeProgress(ctx context.Context, loanID uuid.UUID, progress *domain.LoanProgressResponse) {
	if s.redis == nil {
		return
	}

	raw, err := json.Marshal(progress)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, progressCacheKey(loanID), raw, progressCacheTTL).Err(); err != nil {
		s.logger.Warn("progress cache write failed",
			zap.String("loan_id", loanID.String()),
			zap.Error(err))
	}
}

func progressCacheKey(loanID uuid.UUID) string {
	return "loan:progress:" + loanID.String()
}
