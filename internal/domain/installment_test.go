package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysPastDue(t *testing.T) {
	due := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		asOf     time.Time
		expected int
	}{
		{"before due date", due.AddDate(0, 0, -5), 0},
		{"on due date", due, 0},
		{"later the same day", due.Add(23 * time.Hour), 0},
		{"one day after", due.AddDate(0, 0, 1), 1},
		{"ten days after", due.AddDate(0, 0, 10), 10},
		{"ignores time of day", due.AddDate(0, 0, 10).Add(6 * time.Hour), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysPastDue(due, tt.asOf))
		})
	}
}

func TestDaysPastDueMonotonic(t *testing.T) {
	due := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)

	previous := 0
	for day := -3; day <= 45; day++ {
		dpd := DaysPastDue(due, due.AddDate(0, 0, day))
		assert.GreaterOrEqual(t, dpd, previous, "dpd must never decrease as asOf advances")
		assert.GreaterOrEqual(t, dpd, 0)
		previous = dpd
	}
}

func TestRecomputeState(t *testing.T) {
	due := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		amountDue      int64
		amountPaid     int64
		asOf           time.Time
		expectedStatus InstallmentStatus
		expectedDPD    int
	}{
		{
			name:           "untouched before due date",
			amountDue:      1000000,
			amountPaid:     0,
			asOf:           due.AddDate(0, 0, -1),
			expectedStatus: InstallmentStatusPending,
			expectedDPD:    0,
		},
		{
			name:           "partial payment on due date",
			amountDue:      1000000,
			amountPaid:     400000,
			asOf:           due,
			expectedStatus: InstallmentStatusPartial,
			expectedDPD:    0,
		},
		{
			name:           "partial ten days past due",
			amountDue:      1000000,
			amountPaid:     400000,
			asOf:           due.AddDate(0, 0, 10),
			expectedStatus: InstallmentStatusOverdue,
			expectedDPD:    10,
		},
		{
			name:           "fully paid resets dpd",
			amountDue:      1000000,
			amountPaid:     1000000,
			asOf:           due.AddDate(0, 0, 10),
			expectedStatus: InstallmentStatusPaid,
			expectedDPD:    0,
		},
		{
			name:           "unpaid past due",
			amountDue:      1000000,
			amountPaid:     0,
			asOf:           due.AddDate(0, 0, 3),
			expectedStatus: InstallmentStatusOverdue,
			expectedDPD:    3,
		},
		{
			name:           "asOf regression falls back to pending",
			amountDue:      1000000,
			amountPaid:     0,
			asOf:           due.AddDate(0, 0, -10),
			expectedStatus: InstallmentStatusPending,
			expectedDPD:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, dpd := RecomputeState(due, tt.amountDue, tt.amountPaid, tt.asOf)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedDPD, dpd)
		})
	}
}

func TestRecomputeStateIdempotent(t *testing.T) {
	due := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	asOf := due.AddDate(0, 0, 7)

	first, firstDPD := RecomputeState(due, 1000000, 400000, asOf)
	second, secondDPD := RecomputeState(due, 1000000, 400000, asOf)

	assert.Equal(t, first, second)
	assert.Equal(t, firstDPD, secondDPD)
}

func TestInstallmentOutstanding(t *testing.T) {
	installment := &Installment{AmountDue: 1000000, AmountPaid: 400000}
	assert.Equal(t, int64(600000), installment.Outstanding())
	assert.False(t, installment.Settled())

	installment.AmountPaid = 1000000
	assert.Equal(t, int64(0), installment.Outstanding())
	assert.True(t, installment.Settled())
}

func TestLoanStatusMachine(t *testing.T) {
	tests := []struct {
		name     string
		from     LoanStatus
		event    LoanEvent
		expected LoanStatus
		allowed  bool
	}{
		{"approve draft", LoanStatusDraft, EventApprove, LoanStatusApproved, true},
		{"cancel draft", LoanStatusDraft, EventCancel, LoanStatusCancelled, true},
		{"cancel approved", LoanStatusApproved, EventCancel, LoanStatusCancelled, true},
		{"disburse approved", LoanStatusApproved, EventDisburse, LoanStatusDisbursed, true},
		{"activate disbursed", LoanStatusDisbursed, EventActivate, LoanStatusActive, true},
		{"complete active", LoanStatusActive, EventComplete, LoanStatusCompleted, true},
		{"default active", LoanStatusActive, EventDefault, LoanStatusDefaulted, true},
		{"disburse draft rejected", LoanStatusDraft, EventDisburse, "", false},
		{"cancel disbursed rejected", LoanStatusDisbursed, EventCancel, "", false},
		{"approve completed rejected", LoanStatusCompleted, EventApprove, "", false},
		{"complete disbursed rejected", LoanStatusDisbursed, EventComplete, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := NextStatus(tt.from, tt.event)
			assert.Equal(t, tt.allowed, ok)
			if tt.allowed {
				assert.Equal(t, tt.expected, next)
			}
		})
	}
}

func TestStatusClosedSets(t *testing.T) {
	for _, status := range []LoanStatus{
		LoanStatusDraft, LoanStatusApproved, LoanStatusDisbursed, LoanStatusActive,
		LoanStatusCompleted, LoanStatusDefaulted, LoanStatusCancelled,
	} {
		assert.True(t, status.Valid())
	}
	assert.False(t, LoanStatus("closed").Valid())

	terminal := map[LoanStatus]bool{
		LoanStatusCompleted: true,
		LoanStatusDefaulted: true,
		LoanStatusCancelled: true,
	}
	for _, status := range []LoanStatus{
		LoanStatusDraft, LoanStatusApproved, LoanStatusDisbursed, LoanStatusActive,
		LoanStatusCompleted, LoanStatusDefaulted, LoanStatusCancelled,
	} {
		assert.Equal(t, terminal[status], status.Terminal())
	}

	assert.True(t, InstallmentStatusPartial.Valid())
	assert.False(t, InstallmentStatus("late").Valid())
}
