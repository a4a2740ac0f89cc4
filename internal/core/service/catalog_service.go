package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/port"
)

// CatalogService answers read-only questions about stock, users and loans.
// Results are snapshots; callers that act on them go through LendingService,
// which re-validates inside its own transaction.
type CatalogService struct {
	repo   port.QueryRepository
	logger *zap.Logger
}

func NewCatalogService(repo port.QueryRepository, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) ListAvailableItems(ctx context.Context) ([]domain.StockRow, error) {
	rows, err := s.repo.ListStock(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list available items: %w", err)
	}
	return rows, nil
}

func (s *CatalogService) StockForProductSize(ctx context.Context, productID, size string) (int, error) {
	if productID == "" {
		return 0, fmt.Errorf("stock: %w: product id is required", domain.ErrInvalidInput)
	}
	n, err := s.repo.StockForProductSize(ctx, productID, size)
	if err != nil {
		return 0, fmt.Errorf("stock for %s/%s: %w", productID, size, err)
	}
	return n, nil
}

// SearchItems finds rows whose product name, type or size contains the trimmed
// text, ignoring case.
func (s *CatalogService) SearchItems(ctx context.Context, text string) ([]domain.StockRow, error) {
	query := strings.TrimSpace(text)
	rows, err := s.repo.SearchStock(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search items %q: %w", query, err)
	}
	s.logger.Debug("search", zap.String("query", query), zap.Int("rows", len(rows)))
	return rows, nil
}

// LoanHistoryForUser lists active loans first, then the rest by borrow date and return date, newest first.
func (s *CatalogService) LoanHistoryForUser(ctx context.Context, ssn string) ([]domain.LoanDetail, error) {
	user, err := s.repo.GetUser(ctx, ssn)
	if err != nil {
		return nil, fmt.Errorf("loan history for %s: %w", ssn, err)
	}
	if user == nil {
		return nil, fmt.Errorf("loan history: %w: user %s", domain.ErrNotFound, ssn)
	}

	loans, err := s.repo.LoanHistory(ctx, ssn)
	if err != nil {
		return nil, fmt.Errorf("loan history for %s: %w", ssn, err)
	}
	return loans, nil
}

// ListLoans returns the most recent loans in history order. limit <= 0 returns all of them.
func (s *CatalogService) ListLoans(ctx context.Context, limit int) ([]domain.LoanDetail, error) {
	loans, err := s.repo.ListLoans(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (s *CatalogService) BorrowCountsByUser(ctx context.Context) ([]domain.BorrowCount, error) {
	counts, err := s.repo.BorrowCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrow counts: %w", err)
	}
	return counts, nil
}

func (s *CatalogService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if item == nil {
		return domain.Item{}, fmt.Errorf("get item: %w: item %s", domain.ErrNotFound, itemID)
	}
	return *item, nil
}

func (s *CatalogService) RandomUser(ctx context.Context) (domain.User, error) {
	user, err := s.repo.RandomUser(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("random user: %w", err)
	}
	if user == nil {
		return domain.User{}, fmt.Errorf("random user: %w: no users", domain.ErrNotFound)
	}
	return *user, nil
}

// RandomAvailableItem picks uniformly among items without an active loan.
func (s *CatalogService) RandomAvailableItem(ctx context.Context) (domain.Item, error) {
	item, err := s.repo.RandomAvailableItem(ctx)
	if err != nil {
		return domain.Item{}, fmt.Errorf("random item: %w", err)
	}
	if item == nil {
		return domain.Item{}, fmt.Errorf("random item: %w: nothing in stock", domain.ErrNotFound)
	}
	return *item, nil
}
