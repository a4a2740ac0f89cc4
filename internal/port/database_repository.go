package port

import (
	"context"
	"time"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

// TxManager runs fn inside one storage transaction. Everything fn writes commits
// together when fn returns nil, and is rolled back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the set of statements available inside a write transaction.
// Getters return nil, nil when the row does not exist.
type TxRepository interface {
	GetUser(ctx context.Context, ssn string) (*domain.User, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// LockItem reads the item and holds an exclusive lock on it until the transaction ends.
	LockItem(ctx context.Context, itemID string) (*domain.Item, error)

	// TryLockItem is LockItem without waiting: it returns nil, nil when the item
	// is absent or another transaction holds its lock.
	TryLockItem(ctx context.Context, itemID string) (*domain.Item, error)

	// ActiveLoanForItem is a locking read of the item's loan without a return date.
	ActiveLoanForItem(ctx context.Context, itemID string) (*domain.Loan, error)

	// GetLoan is a plain read, LockLoan additionally locks the row.
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
	LockLoan(ctx context.Context, loanID string) (*domain.Loan, error)

	// AvailableItemIDs lists items of the product and size that have no active loan.
	AvailableItemIDs(ctx context.Context, productID, size string) ([]string, error)

	InsertUser(ctx context.Context, user domain.User) error
	InsertProduct(ctx context.Context, product domain.Product) error
	InsertItem(ctx context.Context, item domain.Item) error
	InsertLoan(ctx context.Context, loan domain.Loan) error

	// MarkReturned sets the return date only while it is still null.
	// It fails with domain.ErrNoActiveLoan when the loan was already returned.
	MarkReturned(ctx context.Context, loanID string, returnDate time.Time) error

	UpdateItemCondition(ctx context.Context, itemID string, condition float64) error
}

// QueryRepository holds the read-only projections. Implementations take no locks.
type QueryRepository interface {
	ListStock(ctx context.Context, onlyAvailable bool) ([]domain.StockRow, error)
	StockForProductSize(ctx context.Context, productID, size string) (int, error)
	SearchStock(ctx context.Context, text string) ([]domain.StockRow, error)

	GetUser(ctx context.Context, ssn string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)

	LoanHistory(ctx context.Context, ssn string) ([]domain.LoanDetail, error)
	ListLoans(ctx context.Context, limit int) ([]domain.LoanDetail, error)
	BorrowCounts(ctx context.Context) ([]domain.BorrowCount, error)

	RandomUser(ctx context.Context) (*domain.User, error)
	RandomAvailableItem(ctx context.Context) (*domain.Item, error)
}

// SchemaManager creates and removes the persisted schema. Both calls are idempotent.
type SchemaManager interface {
	CreateAll(ctx context.Context) error
	DropAll(ctx context.Context) error
}
