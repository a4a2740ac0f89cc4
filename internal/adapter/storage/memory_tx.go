package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

type memoryTx struct {
	store *MemoryStore
	held  []string

	users    map[string]domain.User
	products map[string]domain.Product
	items    map[string]domain.Item
	newItems map[string]bool
	loans    map[string]domain.Loan
	newLoans map[string]bool
}

func newMemoryTx(s *MemoryStore) *memoryTx {
	return &memoryTx{
		store:    s,
		users:    make(map[string]domain.User),
		products: make(map[string]domain.Product),
		items:    make(map[string]domain.Item),
		newItems: make(map[string]bool),
		loans:    make(map[string]domain.Loan),
		newLoans: make(map[string]bool),
	}
}

func (t *memoryTx) holds(key string) bool {
	for _, k := range t.held {
		if k == key {
			return true
		}
	}
	return false
}

func (t *memoryTx) lock(ctx context.Context, key string) error {
	if t.holds(key) {
		return nil
	}
	if err := t.store.acquire(ctx, key); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *memoryTx) releaseLocks() {
	for _, key := range t.held {
		t.store.release(key)
	}
	t.held = nil
}

func (t *memoryTx) user(ssn string) (domain.User, bool) {
	if u, ok := t.users[ssn]; ok {
		return u, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	u, ok := t.store.users[ssn]
	return u, ok
}

func (t *memoryTx) product(id string) (domain.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.products[id]
	return p, ok
}

func (t *memoryTx) item(id string) (domain.Item, bool) {
	if it, ok := t.items[id]; ok {
		return it, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	it, ok := t.store.items[id]
	return it, ok
}

func (t *memoryTx) loan(id string) (domain.Loan, bool) {
	if l, ok := t.loans[id]; ok {
		return l, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	l, ok := t.store.loans[id]
	return l, ok
}

func (t *memoryTx) activeLoan(itemID string) (domain.Loan, bool) {
	for _, l := range t.loans {
		if l.ItemID == itemID && l.Active() {
			return l, true
		}
	}

	t.store.mu.RLock()
	l, ok := t.store.activeLoan(itemID)
	t.store.mu.RUnlock()
	if !ok {
		return domain.Loan{}, false
	}
	// returned earlier in this transaction
	if pending, seen := t.loans[l.ID]; seen && !pending.Active() {
		return domain.Loan{}, false
	}
	return l, true
}

func (t *memoryTx) GetUser(_ context.Context, ssn string) (*domain.User, error) {
	u, ok := t.user(ssn)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *memoryTx) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := t.product(productID)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memoryTx) LockItem(ctx context.Context, itemID string) (*domain.Item, error) {
	if _, ok := t.item(itemID); !ok {
		return nil, nil
	}
	if err := t.lock(ctx, itemLockKey(itemID)); err != nil {
		return nil, err
	}
	it, _ := t.item(itemID)
	return &it, nil
}

func (t *memoryTx) TryLockItem(_ context.Context, itemID string) (*domain.Item, error) {
	if _, ok := t.item(itemID); !ok {
		return nil, nil
	}
	key := itemLockKey(itemID)
	if !t.holds(key) {
		if !t.store.tryAcquire(key) {
			return nil, nil
		}
		t.held = append(t.held, key)
	}
	it, _ := t.item(itemID)
	return &it, nil
}

func (t *memoryTx) ActiveLoanForItem(_ context.Context, itemID string) (*domain.Loan, error) {
	l, ok := t.activeLoan(itemID)
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *memoryTx) GetLoan(_ context.Context, loanID string) (*domain.Loan, error) {
	l, ok := t.loan(loanID)
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *memoryTx) LockLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	if _, ok := t.loan(loanID); !ok {
		return nil, nil
	}
	if err := t.lock(ctx, loanLockKey(loanID)); err != nil {
		return nil, err
	}
	l, _ := t.loan(loanID)
	return &l, nil
}

func (t *memoryTx) AvailableItemIDs(_ context.Context, productID, size string) ([]string, error) {
	t.store.mu.RLock()
	var ids []string
	for id, it := range t.store.items {
		if it.ProductID == productID && it.Size == size {
			ids = append(ids, id)
		}
	}
	t.store.mu.RUnlock()

	for id, it := range t.items {
		if t.newItems[id] && it.ProductID == productID && it.Size == size {
			ids = append(ids, id)
		}
	}

	available := ids[:0]
	for _, id := range ids {
		if _, onLoan := t.activeLoan(id); !onLoan {
			available = append(available, id)
		}
	}
	sort.Strings(available)
	return available, nil
}

func (t *memoryTx) InsertUser(_ context.Context, user domain.User) error {
	if _, ok := t.user(user.SSN); ok {
		return fmt.Errorf("insert user: %w: %s", domain.ErrDuplicateKey, user.SSN)
	}
	t.users[user.SSN] = user
	return nil
}

func (t *memoryTx) InsertProduct(_ context.Context, product domain.Product) error {
	if _, ok := t.product(product.ID); ok {
		return fmt.Errorf("insert product: %w: %s", domain.ErrDuplicateKey, product.ID)
	}
	t.products[product.ID] = product
	return nil
}

func (t *memoryTx) InsertItem(_ context.Context, item domain.Item) error {
	if _, ok := t.product(item.ProductID); !ok {
		return fmt.Errorf("insert item: %w: product %s", domain.ErrNotFound, item.ProductID)
	}
	if _, ok := t.item(item.ID); ok {
		return fmt.Errorf("insert item: %w: %s", domain.ErrDuplicateKey, item.ID)
	}
	t.items[item.ID] = item
	t.newItems[item.ID] = true
	return nil
}

func (t *memoryTx) InsertLoan(_ context.Context, loan domain.Loan) error {
	if _, ok := t.user(loan.SSN); !ok {
		return fmt.Errorf("insert loan: %w: user %s", domain.ErrNotFound, loan.SSN)
	}
	if _, ok := t.item(loan.ItemID); !ok {
		return fmt.Errorf("insert loan: %w: item %s", domain.ErrNotFound, loan.ItemID)
	}
	if _, ok := t.loan(loan.ID); ok {
		return fmt.Errorf("insert loan: %w: %s", domain.ErrDuplicateKey, loan.ID)
	}
	if loan.Active() {
		if _, onLoan := t.activeLoan(loan.ItemID); onLoan {
			return fmt.Errorf("insert loan: %w: item %s", domain.ErrItemAlreadyBorrowed, loan.ItemID)
		}
	}
	t.loans[loan.ID] = loan
	t.newLoans[loan.ID] = true
	return nil
}

func (t *memoryTx) MarkReturned(_ context.Context, loanID string, returnDate time.Time) error {
	l, ok := t.loan(loanID)
	if !ok || !l.Active() {
		return fmt.Errorf("mark returned: %w: loan %s", domain.ErrNoActiveLoan, loanID)
	}
	d := returnDate
	l.ReturnDate = &d
	t.loans[loanID] = l
	return nil
}

func (t *memoryTx) UpdateItemCondition(_ context.Context, itemID string, condition float64) error {
	it, ok := t.item(itemID)
	if !ok {
		return fmt.Errorf("update item: %w: %s", domain.ErrNotFound, itemID)
	}
	it.Condition = condition
	t.items[itemID] = it
	return nil
}

// commit re-checks the constraints against the committed state and applies all
// buffered writes under one exclusive section.
func (t *memoryTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for ssn := range t.users {
		if _, ok := s.users[ssn]; ok {
			return fmt.Errorf("commit: %w: user %s", domain.ErrDuplicateKey, ssn)
		}
	}
	for id := range t.products {
		if _, ok := s.products[id]; ok {
			return fmt.Errorf("commit: %w: product %s", domain.ErrDuplicateKey, id)
		}
	}
	for id := range t.newItems {
		if _, ok := s.items[id]; ok {
			return fmt.Errorf("commit: %w: item %s", domain.ErrDuplicateKey, id)
		}
	}
	for id := range t.newLoans {
		if _, ok := s.loans[id]; ok {
			return fmt.Errorf("commit: %w: loan %s", domain.ErrDuplicateKey, id)
		}
	}
	for _, l := range t.loans {
		if !l.Active() {
			continue
		}
		if current, ok := s.active[l.ItemID]; ok && current != l.ID {
			if pending, seen := t.loans[current]; !seen || pending.Active() {
				return fmt.Errorf("commit: %w: item %s", domain.ErrItemAlreadyBorrowed, l.ItemID)
			}
		}
	}

	for ssn, u := range t.users {
		s.users[ssn] = u
	}
	for id, p := range t.products {
		s.products[id] = p
	}
	for id, it := range t.items {
		s.items[id] = it
	}
	for id, l := range t.loans {
		s.loans[id] = l
		if !l.Active() && s.active[l.ItemID] == id {
			delete(s.active, l.ItemID)
		}
	}
	for id, l := range t.loans {
		if l.Active() {
			s.active[l.ItemID] = id
		}
	}
	return nil
}
