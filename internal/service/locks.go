package service

import (
	"sync"

	"github.com/google/uuid"
)

// loanLocks serializes mutations per loan. Two payments against installments
// of the same loan must not interleave; loans are independent of each other.
type loanLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLoanLocks() *loanLocks {
	return &loanLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *loanLocks) Lock(loanID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[loanID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[loanID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
