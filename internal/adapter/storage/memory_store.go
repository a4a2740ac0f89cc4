package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/port"
)

// MemoryStore is an in-process storage gateway with the same transactional
// contract as MySQLAdapter. Row locks are per item and per loan; writes are
// buffered in the transaction and applied atomically on commit, where unique
// keys and the one-active-loan-per-item rule are checked again.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	products map[string]domain.Product
	items    map[string]domain.Item
	loans    map[string]domain.Loan
	active   map[string]string // item id -> active loan id

	locksMu sync.Mutex
	locks   map[string]*rowLock
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{locks: make(map[string]*rowLock)}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.users = make(map[string]domain.User)
	s.products = make(map[string]domain.Product)
	s.items = make(map[string]domain.Item)
	s.loans = make(map[string]domain.Loan)
	s.active = make(map[string]string)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx port.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return storageErr("begin tx", err)
	}

	tx := newMemoryTx(s)
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageErr("commit", err)
	}
	return tx.commit()
}

// CreateAll is a no-op, the maps exist from construction.
func (s *MemoryStore) CreateAll(ctx context.Context) error {
	return ctx.Err()
}

// DropAll removes every row.
func (s *MemoryStore) DropAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// rowLock is a one-slot semaphore. refs counts holders and waiters; the entry
// is dropped from the table when it reaches zero.
type rowLock struct {
	ch   chan struct{}
	refs int
}

func (s *MemoryStore) ref(key string) *rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *MemoryStore) unref(key string, l *rowLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

func (s *MemoryStore) acquire(ctx context.Context, key string) error {
	l := s.ref(key)
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		s.unref(key, l)
		return storageErr(fmt.Sprintf("lock %s", key), ctx.Err())
	}
}

func (s *MemoryStore) tryAcquire(key string) bool {
	l := s.ref(key)
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		s.unref(key, l)
		return false
	}
}

func (s *MemoryStore) release(key string) {
	s.locksMu.Lock()
	l := s.locks[key]
	s.locksMu.Unlock()

	<-l.ch
	s.unref(key, l)
}

// lockCount reports the number of row locks currently tracked.
func (s *MemoryStore) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// activeLoan must be called with mu held.
func (s *MemoryStore) activeLoan(itemID string) (domain.Loan, bool) {
	id, ok := s.active[itemID]
	if !ok {
		return domain.Loan{}, false
	}
	return s.loans[id], true
}

func itemLockKey(id string) string { return "item:" + id }
func loanLockKey(id string) string { return "loan:" + id }
