package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/armory-atlas/internal/adapter/storage"
	"github.com/rl1809/armory-atlas/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LoanEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.LoanEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.LoanEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.LoanEvent(nil), p.events...)
}

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *storage.MemoryStore
	lending *LendingService
	catalog *CatalogService
	events  *recordingPublisher
	items   []domain.Item
}

// newTestEnv registers one user, product BOOT-1 and n items of size "10".
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	events := &recordingPublisher{}
	env := &testEnv{
		store: store,
		lending: NewLendingService(store,
			WithEventPublisher(events),
			WithClock(func() time.Time { return testDay.Add(10 * time.Hour) })),
		catalog: NewCatalogService(store, nil),
		events:  events,
	}

	ctx := context.Background()
	_, err := env.lending.RegisterUser(ctx, domain.User{SSN: "900101-1234", Name: "Test Person"})
	require.NoError(t, err)
	_, err = env.lending.RegisterProduct(ctx, domain.Product{ID: "BOOT-1", Name: "Combat boot", Type: "Boots"})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		item, err := env.lending.RegisterItem(ctx, "BOOT-1", "10", 1.0)
		require.NoError(t, err)
		env.items = append(env.items, item)
	}
	return env
}

func (e *testEnv) stock(t *testing.T) int {
	t.Helper()
	n, err := e.catalog.StockForProductSize(context.Background(), "BOOT-1", "10")
	require.NoError(t, err)
	return n
}

func TestBorrowReturn_StockRoundTrip(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()
	itemID := env.items[0].ID

	assert.Equal(t, 3, env.stock(t))

	loan, err := env.lending.Borrow(ctx, "900101-1234", itemID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, testDay, loan.BorrowDate, "zero date means today")
	assert.True(t, loan.Active())
	assert.Equal(t, 2, env.stock(t))

	_, err = env.lending.Borrow(ctx, "900101-1234", itemID, time.Time{})
	assert.ErrorIs(t, err, domain.ErrItemAlreadyBorrowed)

	returned, err := env.lending.ReturnItem(ctx, itemID, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, loan.ID, returned.ID)
	assert.Equal(t, 3, env.stock(t))

	item, err := env.catalog.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, item.Condition, 1e-9)
}

func TestReturn_TwiceFails(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	itemID := env.items[0].ID

	loan, err := env.lending.Borrow(ctx, "900101-1234", itemID, testDay)
	require.NoError(t, err)
	_, err = env.lending.ReturnItem(ctx, itemID, testDay)
	require.NoError(t, err)

	_, err = env.lending.ReturnItem(ctx, itemID, testDay)
	assert.ErrorIs(t, err, domain.ErrNoActiveLoan)

	_, err = env.lending.ReturnLoan(ctx, loan.ID, testDay)
	assert.ErrorIs(t, err, domain.ErrNoActiveLoan)

	item, err := env.catalog.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, item.Condition, 1e-9, "failed returns do not decay the item")
}

func TestReturnLoan(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	loan, err := env.lending.Borrow(ctx, "900101-1234", env.items[0].ID, testDay)
	require.NoError(t, err)

	_, err = env.lending.ReturnLoan(ctx, "missing", testDay)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.lending.ReturnLoan(ctx, loan.ID, testDay.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	returned, err := env.lending.ReturnLoan(ctx, loan.ID, testDay.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, testDay.AddDate(0, 0, 7), *returned.ReturnDate)
	assert.Equal(t, 1, env.stock(t))
}

func TestConditionClampsAtZero(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	item, err := env.lending.RegisterItem(ctx, "BOOT-1", "10", 0.25)
	require.NoError(t, err)

	want := []float64{0.15, 0.05, 0, 0, 0}
	for i, w := range want {
		_, err := env.lending.Borrow(ctx, "900101-1234", item.ID, testDay)
		require.NoError(t, err)
		_, err = env.lending.ReturnItem(ctx, item.ID, testDay)
		require.NoError(t, err)

		got, err := env.catalog.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.InDelta(t, w, got.Condition, 1e-9, "cycle %d", i)
		assert.GreaterOrEqual(t, got.Condition, 0.0)
	}
}

func TestReturn_DecaysConditionWithAnyPrecision(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	item, err := env.lending.RegisterItem(ctx, "BOOT-1", "10", 0.123)
	require.NoError(t, err)

	_, err = env.lending.Borrow(ctx, "900101-1234", item.ID, testDay)
	require.NoError(t, err)
	_, err = env.lending.ReturnItem(ctx, item.ID, testDay)
	require.NoError(t, err)

	got, err := env.catalog.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.023, got.Condition, 1e-9)
}

func TestBorrow_Validation(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	_, err := env.lending.Borrow(ctx, "", env.items[0].ID, testDay)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.lending.Borrow(ctx, "nobody", env.items[0].ID, testDay)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.lending.Borrow(ctx, "900101-1234", "no-such-item", testDay)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.lending.ReturnItem(ctx, env.items[0].ID, testDay)
	assert.ErrorIs(t, err, domain.ErrNoActiveLoan)

	assert.Empty(t, env.events.Events())
}

func TestRegister_Duplicates(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	_, err := env.lending.RegisterUser(ctx, domain.User{SSN: "900101-1234", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = env.lending.RegisterProduct(ctx, domain.Product{ID: "BOOT-1", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = env.lending.RegisterItem(ctx, "HELMET", "M", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.lending.RegisterItem(ctx, "BOOT-1", "XXXXXL", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.lending.RegisterItem(ctx, "BOOT-1", "M", 1.5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	item, err := env.lending.RegisterItem(ctx, "BOOT-1", "M", -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultCondition, item.Condition)
}

func TestBorrow_ConcurrentSameItem(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	itemID := env.items[0].ID

	const workers = 50
	var successCount, rejectedCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.lending.Borrow(ctx, "900101-1234", itemID, testDay)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrItemAlreadyBorrowed):
				rejectedCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(workers-1), rejectedCount.Load())
	assert.Equal(t, 0, env.stock(t))
}

func TestBorrowAny_ConcurrentNeverOverlends(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	const workers = 20
	var mu sync.Mutex
	borrowed := make(map[string]int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loan, err := env.lending.BorrowAny(ctx, "900101-1234", "BOOT-1", "10", testDay)
			if errors.Is(err, domain.ErrItemAlreadyBorrowed) {
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			borrowed[loan.ItemID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, n := range borrowed {
		assert.Equal(t, 1, n, "item %s lent %d times", id, n)
	}
	assert.LessOrEqual(t, len(borrowed), 5)
	assert.Equal(t, 5-len(borrowed), env.stock(t))
}

func TestBorrowAny_OutOfStock(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.lending.BorrowAny(ctx, "900101-1234", "BOOT-1", "10", testDay)
		require.NoError(t, err)
	}

	_, err := env.lending.BorrowAny(ctx, "900101-1234", "BOOT-1", "10", testDay)
	assert.ErrorIs(t, err, domain.ErrItemAlreadyBorrowed)

	_, err = env.lending.BorrowAny(ctx, "900101-1234", "NOPE", "10", testDay)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvents_PublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	itemID := env.items[0].ID

	loan, err := env.lending.Borrow(ctx, "900101-1234", itemID, testDay)
	require.NoError(t, err)
	_, err = env.lending.Borrow(ctx, "900101-1234", itemID, testDay)
	require.Error(t, err)
	_, err = env.lending.ReturnItem(ctx, itemID, testDay)
	require.NoError(t, err)

	events := env.events.Events()
	require.Len(t, events, 2, "rejected borrow publishes nothing")
	assert.Equal(t, domain.LoanEventBorrowed, events[0].Type)
	assert.Equal(t, loan.ID, events[0].LoanID)
	assert.InDelta(t, 1.0, events[0].Condition, 1e-9)
	assert.Equal(t, domain.LoanEventReturned, events[1].Type)
	assert.InDelta(t, 0.9, events[1].Condition, 1e-9)
}

func TestEvents_PublishFailureDoesNotFailBorrow(t *testing.T) {
	env := newTestEnv(t, 1)
	env.events.err = errors.New("broker down")

	_, err := env.lending.Borrow(context.Background(), "900101-1234", env.items[0].ID, testDay)
	require.NoError(t, err)
	assert.Equal(t, 0, env.stock(t))
}
