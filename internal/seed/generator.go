package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

const (
	// ReturnedShare is the fraction of generated loans that are returned again.
	ReturnedShare = 0.5

	maxLoanDays = 60
)

// Generator fills a store with random data. Every write goes through
// LendingService, so generated loans obey the same rules as real ones.
type Generator struct {
	lending *service.LendingService
	catalog *service.CatalogService
	rng     *rand.Rand
	now     func() time.Time
	logger  *zap.Logger
}

func NewGenerator(lending *service.LendingService, catalog *service.CatalogService, rng *rand.Rand, logger *zap.Logger) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{lending: lending, catalog: catalog, rng: rng, now: time.Now, logger: logger}
}

// Products registers the default catalog, skipping products that already exist.
func (g *Generator) Products(ctx context.Context) (int, error) {
	products, err := DefaultProducts()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range products {
		_, err := g.lending.RegisterProduct(ctx, p)
		if errors.Is(err, domain.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	g.logger.Info("generated products", zap.Int("count", created))
	return created, nil
}

// Users registers n users with random names and unique SSNs.
func (g *Generator) Users(ctx context.Context, n int) (int, error) {
	created := 0
	for attempts := 0; created < n && attempts < 10*n; attempts++ {
		female := g.rng.IntN(2) == 0
		user := domain.User{SSN: NewSSN(g.rng, female), Name: g.name(female)}

		_, err := g.lending.RegisterUser(ctx, user)
		if errors.Is(err, domain.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	g.logger.Info("generated users", zap.Int("count", created))
	return created, nil
}

// Items registers n items of random default products, sizes and conditions.
func (g *Generator) Items(ctx context.Context, n int) ([]domain.Item, error) {
	products, err := DefaultProducts()
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		p := products[g.rng.IntN(len(products))]
		size := Sizes[g.rng.IntN(len(Sizes))]
		condition := math.Round((0.3+0.7*g.rng.Float64())*100) / 100

		item, err := g.lending.RegisterItem(ctx, p.ID, size, condition)
		if err != nil {
			return items, fmt.Errorf("generate item %d: %w", i, err)
		}
		items = append(items, item)
	}
	g.logger.Info("generated items", zap.Int("count", len(items)))
	return items, nil
}

// Loans lends up to n random available items to random users and returns about
// ReturnedShare of them. It stops early when nothing is left in stock.
func (g *Generator) Loans(ctx context.Context, n int) ([]domain.Loan, error) {
	today := domain.Date(g.now())

	var loans []domain.Loan
	for i := 0; i < n; i++ {
		user, err := g.catalog.RandomUser(ctx)
		if err != nil {
			return loans, err
		}
		item, err := g.catalog.RandomAvailableItem(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return loans, err
		}

		borrowed := today.AddDate(0, 0, -g.rng.IntN(maxLoanDays+1))
		loan, err := g.lending.Borrow(ctx, user.SSN, item.ID, borrowed)
		if errors.Is(err, domain.ErrItemAlreadyBorrowed) {
			continue
		}
		if err != nil {
			return loans, err
		}

		if g.rng.Float64() < ReturnedShare {
			days := int(today.Sub(borrowed).Hours() / 24)
			returned := borrowed.AddDate(0, 0, g.rng.IntN(days+1))
			if loan, err = g.lending.ReturnLoan(ctx, loan.ID, returned); err != nil {
				return loans, err
			}
		}
		loans = append(loans, loan)
	}
	g.logger.Info("generated loans", zap.Int("count", len(loans)))
	return loans, nil
}

// All generates the catalog, n users, n items and n/2 loans.
func (g *Generator) All(ctx context.Context, n int) error {
	if _, err := g.Products(ctx); err != nil {
		return err
	}
	if _, err := g.Users(ctx, n); err != nil {
		return err
	}
	if _, err := g.Items(ctx, n); err != nil {
		return err
	}
	_, err := g.Loans(ctx, n/2)
	return err
}

func (g *Generator) name(female bool) string {
	first := firstNamesMale
	if female {
		first = firstNamesFemale
	}
	return first[g.rng.IntN(len(first))] + " " + lastNames[g.rng.IntN(len(lastNames))]
}
