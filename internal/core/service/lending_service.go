package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/port"
)

// DefaultCondition is used by RegisterItem when the caller passes a negative condition.
const DefaultCondition = 1.0

// LendingService owns every write to loans and to item condition. Each public
// method runs inside exactly one storage transaction.
type LendingService struct {
	tx     port.TxManager
	events port.LoanEventPublisher
	logger *zap.Logger
	now    func() time.Time
}

type LendingOption func(*LendingService)

func WithLogger(logger *zap.Logger) LendingOption {
	return func(s *LendingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventPublisher makes the service publish a LoanEvent after each committed borrow or return.
func WithEventPublisher(p port.LoanEventPublisher) LendingOption {
	return func(s *LendingService) {
		s.events = p
	}
}

func WithClock(now func() time.Time) LendingOption {
	return func(s *LendingService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewLendingService(tx port.TxManager, opts ...LendingOption) *LendingService {
	s := &LendingService{
		tx:     tx,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser stores a user with trimmed SSN and name and returns the stored row.
func (s *LendingService) RegisterUser(ctx context.Context, user domain.User) (domain.User, error) {
	user.SSN = strings.TrimSpace(user.SSN)
	user.Name = strings.TrimSpace(user.Name)
	if user.SSN == "" || user.Name == "" {
		return domain.User{}, fmt.Errorf("register user: %w: ssn and name are required", domain.ErrInvalidInput)
	}

	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		existing, err := tx.GetUser(ctx, user.SSN)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: user %s", domain.ErrDuplicateKey, user.SSN)
		}
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		s.logFailure("register user", err, zap.String("ssn", user.SSN))
		return domain.User{}, fmt.Errorf("register user: %w", err)
	}

	s.logger.Info("user registered", zap.String("ssn", user.SSN))
	return user, nil
}

// RegisterProduct stores a product with trimmed fields and returns the stored row.
func (s *LendingService) RegisterProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	product.Type = strings.TrimSpace(product.Type)
	if product.ID == "" || product.Name == "" {
		return domain.Product{}, fmt.Errorf("register product: %w: product id and name are required", domain.ErrInvalidInput)
	}

	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		existing, err := tx.GetProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: product %s", domain.ErrDuplicateKey, product.ID)
		}
		return tx.InsertProduct(ctx, product)
	})
	if err != nil {
		s.logFailure("register product", err, zap.String("product_id", product.ID))
		return domain.Product{}, fmt.Errorf("register product: %w", err)
	}

	s.logger.Info("product registered", zap.String("product_id", product.ID))
	return product, nil
}

// RegisterItem adds one physical unit of an existing product and returns it with its generated ID.
func (s *LendingService) RegisterItem(ctx context.Context, productID, size string, condition float64) (domain.Item, error) {
	if condition < 0 {
		condition = DefaultCondition
	}
	item := domain.Item{
		ID:        uuid.NewString(),
		ProductID: strings.TrimSpace(productID),
		Size:      strings.TrimSpace(size),
		Condition: condition,
	}
	if item.ProductID == "" {
		return domain.Item{}, fmt.Errorf("register item: %w: product id is required", domain.ErrInvalidInput)
	}
	if !domain.ValidSize(item.Size) {
		return domain.Item{}, fmt.Errorf("register item: %w: size %q longer than %d", domain.ErrInvalidInput, item.Size, domain.MaxSizeLength)
	}
	if !domain.ValidCondition(item.Condition) {
		return domain.Item{}, fmt.Errorf("register item: %w: condition %v outside [0,1]", domain.ErrInvalidInput, item.Condition)
	}

	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, item.ProductID)
		}
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		s.logFailure("register item", err, zap.String("product_id", item.ProductID))
		return domain.Item{}, fmt.Errorf("register item: %w", err)
	}

	s.logger.Info("item registered",
		zap.String("item_id", item.ID),
		zap.String("product_id", item.ProductID),
		zap.String("size", item.Size))
	return item, nil
}

// Borrow lends one specific item. The availability check and the insert happen in
// the same transaction while the item row is locked, so two concurrent borrows of
// the same item cannot both succeed.
func (s *LendingService) Borrow(ctx context.Context, ssn, itemID string, borrowDate time.Time) (domain.Loan, error) {
	if ssn == "" || itemID == "" {
		return domain.Loan{}, fmt.Errorf("borrow: %w: ssn and item id are required", domain.ErrInvalidInput)
	}

	loan := domain.Loan{
		ID:         uuid.NewString(),
		SSN:        ssn,
		ItemID:     itemID,
		BorrowDate: s.dateOrToday(borrowDate),
	}

	var condition float64
	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		if err := requireUser(ctx, tx, ssn); err != nil {
			return err
		}

		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: item %s", domain.ErrNotFound, itemID)
		}

		active, err := tx.ActiveLoanForItem(ctx, itemID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: item %s is on loan %s", domain.ErrItemAlreadyBorrowed, itemID, active.ID)
		}

		condition = item.Condition
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		s.logFailure("borrow", err, zap.String("ssn", ssn), zap.String("item_id", itemID))
		return domain.Loan{}, fmt.Errorf("borrow item %s: %w", itemID, err)
	}

	s.logger.Info("item borrowed",
		zap.String("loan_id", loan.ID),
		zap.String("ssn", ssn),
		zap.String("item_id", itemID))
	s.publish(ctx, domain.LoanEventBorrowed, loan, loan.BorrowDate, condition)
	return loan, nil
}

// BorrowAny lends a uniformly random available item of the product and size.
// Candidates are read and re-validated inside the same transaction; items another
// transaction is working on are skipped instead of waited for.
func (s *LendingService) BorrowAny(ctx context.Context, ssn, productID, size string, borrowDate time.Time) (domain.Loan, error) {
	if ssn == "" || productID == "" {
		return domain.Loan{}, fmt.Errorf("borrow: %w: ssn and product id are required", domain.ErrInvalidInput)
	}

	loan := domain.Loan{
		ID:         uuid.NewString(),
		SSN:        ssn,
		BorrowDate: s.dateOrToday(borrowDate),
	}

	var condition float64
	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		if err := requireUser(ctx, tx, ssn); err != nil {
			return err
		}

		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
		}

		ids, err := tx.AvailableItemIDs(ctx, productID, size)
		if err != nil {
			return err
		}

		for _, i := range rand.Perm(len(ids)) {
			item, err := tx.TryLockItem(ctx, ids[i])
			if err != nil {
				return err
			}
			if item == nil {
				continue
			}

			active, err := tx.ActiveLoanForItem(ctx, item.ID)
			if err != nil {
				return err
			}
			if active != nil {
				continue
			}

			loan.ItemID = item.ID
			condition = item.Condition
			return tx.InsertLoan(ctx, loan)
		}

		return fmt.Errorf("%w: no %s in size %q in stock", domain.ErrItemAlreadyBorrowed, productID, size)
	})
	if err != nil {
		s.logFailure("borrow any", err,
			zap.String("ssn", ssn),
			zap.String("product_id", productID),
			zap.String("size", size))
		return domain.Loan{}, fmt.Errorf("borrow %s/%s: %w", productID, size, err)
	}

	s.logger.Info("item borrowed",
		zap.String("loan_id", loan.ID),
		zap.String("ssn", ssn),
		zap.String("item_id", loan.ItemID),
		zap.String("product_id", productID))
	s.publish(ctx, domain.LoanEventBorrowed, loan, loan.BorrowDate, condition)
	return loan, nil
}

// ReturnItem closes the active loan of the item. Returning an item that is not
// on loan fails with domain.ErrNoActiveLoan.
func (s *LendingService) ReturnItem(ctx context.Context, itemID string, returnDate time.Time) (domain.Loan, error) {
	if itemID == "" {
		return domain.Loan{}, fmt.Errorf("return: %w: item id is required", domain.ErrInvalidInput)
	}
	date := s.dateOrToday(returnDate)

	var (
		loan      domain.Loan
		condition float64
	)
	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: item %s", domain.ErrNotFound, itemID)
		}

		active, err := tx.ActiveLoanForItem(ctx, itemID)
		if err != nil {
			return err
		}
		if active == nil {
			return fmt.Errorf("%w: item %s", domain.ErrNoActiveLoan, itemID)
		}

		loan, condition, err = closeLoan(ctx, tx, *item, *active, date)
		return err
	})
	if err != nil {
		s.logFailure("return", err, zap.String("item_id", itemID))
		return domain.Loan{}, fmt.Errorf("return item %s: %w", itemID, err)
	}

	s.logReturned(loan, condition)
	s.publish(ctx, domain.LoanEventReturned, loan, date, condition)
	return loan, nil
}

// ReturnLoan is ReturnItem addressed by loan ID.
func (s *LendingService) ReturnLoan(ctx context.Context, loanID string, returnDate time.Time) (domain.Loan, error) {
	if loanID == "" {
		return domain.Loan{}, fmt.Errorf("return: %w: loan id is required", domain.ErrInvalidInput)
	}
	date := s.dateOrToday(returnDate)

	var (
		loan      domain.Loan
		condition float64
	)
	err := s.tx.WithinTx(ctx, func(tx port.TxRepository) error {
		found, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("%w: loan %s", domain.ErrNotFound, loanID)
		}

		// item before loan, same order as Borrow
		item, err := tx.LockItem(ctx, found.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: item %s", domain.ErrNotFound, found.ItemID)
		}

		locked, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if locked == nil || !locked.Active() {
			return fmt.Errorf("%w: loan %s", domain.ErrNoActiveLoan, loanID)
		}

		loan, condition, err = closeLoan(ctx, tx, *item, *locked, date)
		return err
	})
	if err != nil {
		s.logFailure("return", err, zap.String("loan_id", loanID))
		return domain.Loan{}, fmt.Errorf("return loan %s: %w", loanID, err)
	}

	s.logReturned(loan, condition)
	s.publish(ctx, domain.LoanEventReturned, loan, date, condition)
	return loan, nil
}

// closeLoan sets the return date and applies the wear of one loan to the item.
// Both writes belong to the caller's transaction.
func closeLoan(ctx context.Context, tx port.TxRepository, item domain.Item, loan domain.Loan, date time.Time) (domain.Loan, float64, error) {
	if date.Before(loan.BorrowDate) {
		return domain.Loan{}, 0, fmt.Errorf("%w: return date %s before borrow date %s",
			domain.ErrInvalidInput, date.Format(time.DateOnly), loan.BorrowDate.Format(time.DateOnly))
	}

	if err := tx.MarkReturned(ctx, loan.ID, date); err != nil {
		return domain.Loan{}, 0, err
	}

	condition := domain.DecayCondition(item.Condition)
	if err := tx.UpdateItemCondition(ctx, item.ID, condition); err != nil {
		return domain.Loan{}, 0, err
	}

	loan.ReturnDate = &date
	return loan, condition, nil
}

func requireUser(ctx context.Context, tx port.TxRepository, ssn string) error {
	user, err := tx.GetUser(ctx, ssn)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, ssn)
	}
	return nil
}

func (s *LendingService) dateOrToday(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return domain.Date(t)
}

func (s *LendingService) publish(ctx context.Context, typ domain.LoanEventType, loan domain.Loan, date time.Time, condition float64) {
	if s.events == nil {
		return
	}

	event := domain.LoanEvent{
		Type:       typ,
		LoanID:     loan.ID,
		SSN:        loan.SSN,
		ItemID:     loan.ItemID,
		Date:       date,
		Condition:  condition,
		OccurredAt: s.now().UTC(),
	}
	// the loan is committed at this point, a lost event must not fail the call
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish loan event",
			zap.String("type", string(typ)),
			zap.String("loan_id", loan.ID),
			zap.Error(err))
	}
}

func (s *LendingService) logReturned(loan domain.Loan, condition float64) {
	s.logger.Info("item returned",
		zap.String("loan_id", loan.ID),
		zap.String("item_id", loan.ItemID),
		zap.Float64("condition", condition))
}

func (s *LendingService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, domain.ErrStorage) || !isDomainError(err) {
		s.logger.Error(op+" failed", fields...)
		return
	}
	s.logger.Info(op+" rejected", fields...)
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrDuplicateKey) ||
		errors.Is(err, domain.ErrItemAlreadyBorrowed) ||
		errors.Is(err, domain.ErrNoActiveLoan) ||
		errors.Is(err, domain.ErrInvalidInput)
}
