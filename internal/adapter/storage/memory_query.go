package storage

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

type stockKey struct {
	productID string
	size      string
}

// stockRows must be called with mu held.
func (s *MemoryStore) stockRows() []domain.StockRow {
	counts := make(map[stockKey]*domain.StockRow)
	for _, it := range s.items {
		p, ok := s.products[it.ProductID]
		if !ok {
			continue
		}
		k := stockKey{productID: it.ProductID, size: it.Size}
		row, ok := counts[k]
		if !ok {
			row = &domain.StockRow{
				ProductID:   p.ID,
				ProductName: p.Name,
				ProductType: p.Type,
				Size:        it.Size,
			}
			counts[k] = row
		}
		if _, onLoan := s.active[it.ID]; !onLoan {
			row.Quantity++
		}
	}

	rows := make([]domain.StockRow, 0, len(counts))
	for _, row := range counts {
		rows = append(rows, *row)
	}
	sortStock(rows)
	return rows
}

func sortStock(rows []domain.StockRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		return a.ProductID < b.ProductID
	})
}

func (s *MemoryStore) ListStock(ctx context.Context, onlyAvailable bool) ([]domain.StockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list stock", err)
	}
	s.mu.RLock()
	rows := s.stockRows()
	s.mu.RUnlock()

	if !onlyAvailable {
		return rows, nil
	}
	available := rows[:0]
	for _, r := range rows {
		if r.Quantity > 0 {
			available = append(available, r)
		}
	}
	return available, nil
}

func (s *MemoryStore) StockForProductSize(ctx context.Context, productID, size string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("stock", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, it := range s.items {
		if it.ProductID != productID || it.Size != size {
			continue
		}
		if _, onLoan := s.active[it.ID]; !onLoan {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SearchStock(ctx context.Context, text string) ([]domain.StockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("search stock", err)
	}
	s.mu.RLock()
	rows := s.stockRows()
	s.mu.RUnlock()

	needle := strings.ToLower(text)
	matched := rows[:0]
	for _, r := range rows {
		if containsFold(r.ProductName, needle) || containsFold(r.ProductType, needle) || containsFold(r.Size, needle) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// containsFold reports whether the lower-cased field contains needle, which
// must already be lower case.
func containsFold(field, needle string) bool {
	return strings.Contains(strings.ToLower(field), needle)
}

func (s *MemoryStore) GetUser(ctx context.Context, ssn string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get user", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[ssn]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list users", err)
	}
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].SSN < users[j].SSN })
	return users, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get item", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

// loanDetails must be called with mu held.
func (s *MemoryStore) loanDetails(keep func(domain.Loan) bool) []domain.LoanDetail {
	var details []domain.LoanDetail
	for _, l := range s.loans {
		if !keep(l) {
			continue
		}
		it := s.items[l.ItemID]
		details = append(details, domain.LoanDetail{
			LoanID:      l.ID,
			SSN:         l.SSN,
			Name:        s.users[l.SSN].Name,
			ItemID:      l.ItemID,
			ProductName: s.products[it.ProductID].Name,
			Size:        it.Size,
			BorrowDate:  l.BorrowDate,
			ReturnDate:  l.ReturnDate,
		})
	}
	sortHistory(details)
	return details
}

// sortHistory orders active loans first, then borrow date and return date descending.
func sortHistory(loans []domain.LoanDetail) {
	sort.Slice(loans, func(i, j int) bool {
		a, b := loans[i], loans[j]
		aActive, bActive := a.ReturnDate == nil, b.ReturnDate == nil
		if aActive != bActive {
			return aActive
		}
		if !a.BorrowDate.Equal(b.BorrowDate) {
			return a.BorrowDate.After(b.BorrowDate)
		}
		if !aActive && !a.ReturnDate.Equal(*b.ReturnDate) {
			return a.ReturnDate.After(*b.ReturnDate)
		}
		return a.LoanID < b.LoanID
	})
}

func (s *MemoryStore) LoanHistory(ctx context.Context, ssn string) ([]domain.LoanDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("loan history", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loanDetails(func(l domain.Loan) bool { return l.SSN == ssn }), nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, limit int) ([]domain.LoanDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list loans", err)
	}
	s.mu.RLock()
	details := s.loanDetails(func(domain.Loan) bool { return true })
	s.mu.RUnlock()

	if limit > 0 && len(details) > limit {
		details = details[:limit]
	}
	return details, nil
}

func (s *MemoryStore) BorrowCounts(ctx context.Context) ([]domain.BorrowCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("borrow counts", err)
	}
	s.mu.RLock()
	byUser := make(map[string]*domain.BorrowCount, len(s.users))
	for _, u := range s.users {
		byUser[u.SSN] = &domain.BorrowCount{SSN: u.SSN, Name: u.Name}
	}
	for _, l := range s.loans {
		c, ok := byUser[l.SSN]
		if !ok {
			continue
		}
		c.Total++
		if l.Active() {
			c.Active++
		}
	}
	s.mu.RUnlock()

	counts := make([]domain.BorrowCount, 0, len(byUser))
	for _, c := range byUser {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].SSN < counts[j].SSN })
	return counts, nil
}

func (s *MemoryStore) RandomUser(ctx context.Context) (*domain.User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	u := users[rand.IntN(len(users))]
	return &u, nil
}

func (s *MemoryStore) RandomAvailableItem(ctx context.Context) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("random item", err)
	}
	s.mu.RLock()
	var eligible []domain.Item
	for _, it := range s.items {
		if _, onLoan := s.active[it.ID]; !onLoan {
			eligible = append(eligible, it)
		}
	}
	s.mu.RUnlock()

	if len(eligible) == 0 {
		return nil, nil
	}
	it := eligible[rand.IntN(len(eligible))]
	return &it, nil
}
