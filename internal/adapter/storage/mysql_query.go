package storage

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

var stockColumns = []any{"product_id", "product_name", "product_type", "size", "quantity"}

var loanDetailColumns = []any{
	"loan_id", "ssn", "name", "item_id", "product_name", "size", "borrow_date", "return_date",
}

// historyOrder puts active loans first, then newest borrow and return dates.
var historyOrder = []exp.OrderedExpression{
	goqu.L("return_date IS NULL").Desc(),
	goqu.C("borrow_date").Desc(),
	goqu.C("return_date").Desc(),
	goqu.C("loan_id").Asc(),
}

var stockOrder = []exp.OrderedExpression{
	goqu.C("product_name").Asc(),
	goqu.C("size").Asc(),
	goqu.C("product_id").Asc(),
}

func (m *MySQLAdapter) ListStock(ctx context.Context, onlyAvailable bool) ([]domain.StockRow, error) {
	ds := m.dialect.From(stockView).Select(stockColumns...).Order(stockOrder...)
	if onlyAvailable {
		ds = ds.Where(goqu.C("quantity").Gt(0))
	}

	rows := []domain.StockRow{}
	if err := m.selectAll(ctx, "list stock", &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MySQLAdapter) StockForProductSize(ctx context.Context, productID, size string) (int, error) {
	ds := m.dialect.From(stockView).
		Select(goqu.L("CAST(COALESCE(SUM(quantity), 0) AS SIGNED)").As("quantity")).
		Where(goqu.Ex{"product_id": productID, "size": size})

	var n int
	if _, err := m.selectOne(ctx, "stock", &n, ds); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *MySQLAdapter) SearchStock(ctx context.Context, text string) ([]domain.StockRow, error) {
	ds := m.dialect.From(stockView).Select(stockColumns...).Order(stockOrder...)
	if text != "" {
		pattern := likePattern(text)
		ds = ds.Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("product_name")).Like(pattern),
			goqu.Func("LOWER", goqu.C("product_type")).Like(pattern),
			goqu.Func("LOWER", goqu.C("size")).Like(pattern),
		))
	}

	rows := []domain.StockRow{}
	if err := m.selectAll(ctx, "search stock", &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, ssn string) (*domain.User, error) {
	ds := m.dialect.From("users").Select("ssn", "name").Where(goqu.C("ssn").Eq(ssn))

	var u domain.User
	found, err := m.selectOne(ctx, "get user", &u, ds)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (m *MySQLAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	ds := m.dialect.From("users").Select("ssn", "name").Order(goqu.C("ssn").Asc())

	users := []domain.User{}
	if err := m.selectAll(ctx, "list users", &users, ds); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MySQLAdapter) itemsDataset() *goqu.SelectDataset {
	return m.dialect.From(goqu.T("items").As("i")).Select(
		goqu.I("i.item_id"),
		goqu.I("i.product_id"),
		goqu.L("COALESCE(i.size, '')").As("size"),
		goqu.I("i.item_condition"),
	)
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	ds := m.itemsDataset().Where(goqu.I("i.item_id").Eq(itemID))

	var it domain.Item
	found, err := m.selectOne(ctx, "get item", &it, ds)
	if err != nil || !found {
		return nil, err
	}
	return &it, nil
}

func (m *MySQLAdapter) LoanHistory(ctx context.Context, ssn string) ([]domain.LoanDetail, error) {
	ds := m.dialect.From(loanView).
		Select(loanDetailColumns...).
		Where(goqu.C("ssn").Eq(ssn)).
		Order(historyOrder...)

	loans := []domain.LoanDetail{}
	if err := m.selectAll(ctx, "loan history", &loans, ds); err != nil {
		return nil, err
	}
	return loans, nil
}

func (m *MySQLAdapter) ListLoans(ctx context.Context, limit int) ([]domain.LoanDetail, error) {
	ds := m.dialect.From(loanView).Select(loanDetailColumns...).Order(historyOrder...)
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	loans := []domain.LoanDetail{}
	if err := m.selectAll(ctx, "list loans", &loans, ds); err != nil {
		return nil, err
	}
	return loans, nil
}

func (m *MySQLAdapter) BorrowCounts(ctx context.Context) ([]domain.BorrowCount, error) {
	ds := m.dialect.From(borrowCountView).
		Select("ssn", "name", "total", "active").
		Order(goqu.C("ssn").Asc())

	counts := []domain.BorrowCount{}
	if err := m.selectAll(ctx, "borrow counts", &counts, ds); err != nil {
		return nil, err
	}
	return counts, nil
}

// RandomUser relies on ORDER BY RAND(), uniform over all rows.
func (m *MySQLAdapter) RandomUser(ctx context.Context) (*domain.User, error) {
	ds := m.dialect.From("users").Select("ssn", "name").Order(goqu.Func("RAND").Asc()).Limit(1)

	var u domain.User
	found, err := m.selectOne(ctx, "random user", &u, ds)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (m *MySQLAdapter) RandomAvailableItem(ctx context.Context) (*domain.Item, error) {
	ds := m.itemsDataset().
		LeftJoin(goqu.T("loans").As("l"), goqu.On(goqu.I("l.active_item_id").Eq(goqu.I("i.item_id")))).
		Where(goqu.I("l.loan_id").IsNull()).
		Order(goqu.Func("RAND").Asc()).
		Limit(1)

	var it domain.Item
	found, err := m.selectOne(ctx, "random item", &it, ds)
	if err != nil || !found {
		return nil, err
	}
	return &it, nil
}
