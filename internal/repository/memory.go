package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wicaksono/loan-engine/internal/domain"
)

// MemoryStore is an in-memory implementation of every repository interface.
// It mirrors the row semantics of the Postgres implementations (missing rows
// surface as sql.ErrNoRows) so services behave identically against either.
type MemoryStore struct {
	mu           sync.RWMutex
	loans        map[uuid.UUID]*domain.Loan
	installments map[uuid.UUID]*domain.Installment
	payments     []*domain.Payment
	customers    map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:        make(map[uuid.UUID]*domain.Loan),
		installments: make(map[uuid.UUID]*domain.Installment),
		customers:    make(map[uuid.UUID]struct{}),
	}
}

// AddCustomer registers a customer id in the directory.
func (s *MemoryStore) AddCustomer(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[id] = struct{}{}
}

func (s *MemoryStore) Exists(_ context.Context, customerID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.customers[customerID]
	return ok, nil
}

// LoanRepository

func (s *MemoryStore) Create(_ context.Context, loan *domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *loan
	s.loans[loan.ID] = &copied
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *loan
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, req domain.ListLoansRequest) ([]*domain.Loan, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Loan
	for _, loan := range s.loans {
		if req.CustomerID != "" && loan.CustomerID.String() != req.CustomerID {
			continue
		}
		if req.Status != "" && string(loan.Status) != req.Status {
			continue
		}
		copied := *loan
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (req.Page - 1) * req.Limit
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.LoanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return sql.ErrNoRows
	}
	loan.Status = status
	loan.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Disburse(_ context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.loans[loan.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = loan.Status
	stored.DisbursedAt = loan.DisbursedAt
	stored.FirstDueDate = loan.FirstDueDate
	stored.UpdatedAt = loan.UpdatedAt
	for _, installment := range installments {
		copied := *installment
		s.installments[installment.ID] = &copied
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loans, id)
	for installmentID, installment := range s.installments {
		if installment.LoanID == id {
			delete(s.installments, installmentID)
		}
	}
	return nil
}

func (s *MemoryStore) CountCreatedInYear(_ context.Context, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, loan := range s.loans {
		if loan.CreatedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountOpenByCustomer(_ context.Context, customerID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, loan := range s.loans {
		if loan.CustomerID == customerID && !loan.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByStatuses(_ context.Context, statuses ...domain.LoanStatus) ([]*domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Loan
	for _, loan := range s.loans {
		for _, status := range statuses {
			if loan.Status == status {
				copied := *loan
				matched = append(matched, &copied)
				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

// InstallmentRepository

func (s *MemoryStore) GetInstallmentByID(_ context.Context, id uuid.UUID) (*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	installment, ok := s.installments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *installment
	return &copied, nil
}

func (s *MemoryStore) ListByLoan(_ context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listByLoanLocked(loanID), nil
}

func (s *MemoryStore) listByLoanLocked(loanID uuid.UUID) []*domain.Installment {
	var matched []*domain.Installment
	for _, installment := range s.installments {
		if installment.LoanID == loanID {
			copied := *installment
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Sequence < matched[j].Sequence
	})
	return matched
}

func (s *MemoryStore) Update(_ context.Context, installment *domain.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.installments[installment.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.AmountPaid = installment.AmountPaid
	stored.Status = installment.Status
	stored.PaidAt = installment.PaidAt
	stored.DPD = installment.DPD
	stored.UpdatedAt = installment.UpdatedAt
	return nil
}

func (s *MemoryStore) ListUnpaidDueBefore(_ context.Context, cutoff time.Time, loanID *uuid.UUID) ([]*domain.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Installment
	for _, installment := range s.installments {
		if loanID != nil && installment.LoanID != *loanID {
			continue
		}
		if installment.AmountPaid >= installment.AmountDue {
			continue
		}
		if !installment.DueDate.Before(cutoff) {
			continue
		}
		copied := *installment
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DueDate.Equal(matched[j].DueDate) {
			return matched[i].DueDate.Before(matched[j].DueDate)
		}
		return matched[i].Sequence < matched[j].Sequence
	})

	return matched, nil
}

func (s *MemoryStore) CountUnpaidByLoan(_ context.Context, loanID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, installment := range s.installments {
		if installment.LoanID == loanID && installment.AmountPaid < installment.AmountDue {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) TotalOutstanding(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, installment := range s.installments {
		loan, ok := s.loans[installment.LoanID]
		if !ok || loan.Status.Terminal() {
			continue
		}
		if remaining := installment.AmountDue - installment.AmountPaid; remaining > 0 {
			total += remaining
		}
	}
	return total, nil
}

func (s *MemoryStore) SumDueBetween(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, installment := range s.installments {
		if !installment.DueDate.Before(from) && installment.DueDate.Before(to) {
			total += installment.AmountDue
		}
	}
	return total, nil
}

// PaymentRepository

func (s *MemoryStore) CreatePayment(_ context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *payment
	s.payments = append(s.payments, &copied)
	return nil
}

func (s *MemoryStore) ListPaymentsByLoan(_ context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Payment
	for _, payment := range s.payments {
		if payment.LoanID == loanID {
			copied := *payment
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PaymentDate.Before(matched[j].PaymentDate)
	})
	return matched, nil
}

func (s *MemoryStore) SumPaidBetween(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, payment := range s.payments {
		if !payment.PaymentDate.Before(from) && payment.PaymentDate.Before(to) {
			total += payment.Amount
		}
	}
	return total, nil
}

// Interface adapters; MemoryStore method names collide between repositories,
// so each facet is exposed through a thin view.

// Loans returns the store as a LoanRepository.
func (s *MemoryStore) Loans() LoanRepository { return s }

// Installments returns the store as an InstallmentRepository.
func (s *MemoryStore) Installments() InstallmentRepository {
	return &memoryInstallments{store: s}
}

// Payments returns the store as a PaymentRepository.
func (s *MemoryStore) Payments() PaymentRepository {
	return &memoryPayments{store: s}
}

// Customers returns the store as a CustomerDirectory.
func (s *MemoryStore) Customers() CustomerDirectory { return s }

type memoryInstallments struct {
	store *MemoryStore
}

func (m *memoryInstallments) GetByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	return m.store.GetInstallmentByID(ctx, id)
}

func (m *memoryInstallments) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	return m.store.ListByLoan(ctx, loanID)
}

func (m *memoryInstallments) Update(ctx context.Context, installment *domain.Installment) error {
	return m.store.Update(ctx, installment)
}

func (m *memoryInstallments) ListUnpaidDueBefore(ctx context.Context, cutoff time.Time, loanID *uuid.UUID) ([]*domain.Installment, error) {
	return m.store.ListUnpaidDueBefore(ctx, cutoff, loanID)
}

func (m *memoryInstallments) CountUnpaidByLoan(ctx context.Context, loanID uuid.UUID) (int, error) {
	return m.store.CountUnpaidByLoan(ctx, loanID)
}

func (m *memoryInstallments) TotalOutstanding(ctx context.Context) (int64, error) {
	return m.store.TotalOutstanding(ctx)
}

func (m *memoryInstallments) SumDueBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return m.store.SumDueBetween(ctx, from, to)
}

type memoryPayments struct {
	store *MemoryStore
}

func (m *memoryPayments) Create(ctx context.Context, payment *domain.Payment) error {
	return m.store.CreatePayment(ctx, payment)
}

func (m *memoryPayments) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	return m.store.ListPaymentsByLoan(ctx, loanID)
}

func (m *memoryPayments) SumPaidBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return m.store.SumPaidBetween(ctx, from, to)
}
