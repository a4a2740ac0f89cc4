package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

const (
	itemColumns = `item_id, product_id, COALESCE(size, '') AS size, item_condition`
	loanColumns = `loan_id, ssn, item_id, borrow_date, return_date`
)

type mysqlTx struct {
	tx *sqlx.Tx
}

// get scans one row into dest and reports false when there is none.
func (t *mysqlTx) get(ctx context.Context, op string, dest any, query string, args ...any) (bool, error) {
	err := t.tx.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(op, err)
	}
	return true, nil
}

func (t *mysqlTx) GetUser(ctx context.Context, ssn string) (*domain.User, error) {
	var u domain.User
	found, err := t.get(ctx, "get user", &u, `SELECT ssn, name FROM users WHERE ssn = ?`, ssn)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (t *mysqlTx) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	found, err := t.get(ctx, "get product", &p,
		`SELECT product_id, name, type FROM products WHERE product_id = ?`, productID)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (t *mysqlTx) LockItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var it domain.Item
	found, err := t.get(ctx, "lock item", &it,
		`SELECT `+itemColumns+` FROM items WHERE item_id = ? FOR UPDATE`, itemID)
	if err != nil || !found {
		return nil, err
	}
	return &it, nil
}

func (t *mysqlTx) TryLockItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var it domain.Item
	found, err := t.get(ctx, "try lock item", &it,
		`SELECT `+itemColumns+` FROM items WHERE item_id = ? FOR UPDATE SKIP LOCKED`, itemID)
	if err != nil || !found {
		return nil, err
	}
	return &it, nil
}

func (t *mysqlTx) ActiveLoanForItem(ctx context.Context, itemID string) (*domain.Loan, error) {
	var l domain.Loan
	found, err := t.get(ctx, "active loan", &l,
		`SELECT `+loanColumns+` FROM loans WHERE active_item_id = ? FOR UPDATE`, itemID)
	if err != nil || !found {
		return nil, err
	}
	return &l, nil
}

func (t *mysqlTx) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	var l domain.Loan
	found, err := t.get(ctx, "get loan", &l,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = ?`, loanID)
	if err != nil || !found {
		return nil, err
	}
	return &l, nil
}

func (t *mysqlTx) LockLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	var l domain.Loan
	found, err := t.get(ctx, "lock loan", &l,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = ? FOR UPDATE`, loanID)
	if err != nil || !found {
		return nil, err
	}
	return &l, nil
}

func (t *mysqlTx) AvailableItemIDs(ctx context.Context, productID, size string) ([]string, error) {
	var ids []string
	err := t.tx.SelectContext(ctx, &ids, `
		SELECT i.item_id
		FROM items i
		LEFT JOIN loans l ON l.active_item_id = i.item_id
		WHERE i.product_id = ? AND COALESCE(i.size, '') = ? AND l.loan_id IS NULL
		ORDER BY i.item_id`,
		productID, size,
	)
	if err != nil {
		return nil, classify("available items", err)
	}
	return ids, nil
}

func (t *mysqlTx) InsertUser(ctx context.Context, user domain.User) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO users (ssn, name) VALUES (?, ?)`, user.SSN, user.Name)
	if err != nil {
		return classify("insert user", err)
	}
	return nil
}

func (t *mysqlTx) InsertProduct(ctx context.Context, product domain.Product) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO products (product_id, name, type) VALUES (?, ?, ?)`,
		product.ID, product.Name, product.Type)
	if err != nil {
		return classify("insert product", err)
	}
	return nil
}

func (t *mysqlTx) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO items (item_id, product_id, size, item_condition)
		VALUES (?, ?, ?, ?)`,
		item.ID, item.ProductID, nullString(item.Size), item.Condition,
	)
	if err != nil {
		return classify("insert item", err)
	}
	return nil
}

func (t *mysqlTx) InsertLoan(ctx context.Context, loan domain.Loan) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loans (loan_id, ssn, item_id, borrow_date, return_date)
		VALUES (?, ?, ?, ?, ?)`,
		loan.ID, loan.SSN, loan.ItemID, loan.BorrowDate, loan.ReturnDate,
	)
	if err != nil {
		return classify("insert loan", err)
	}
	return nil
}

func (t *mysqlTx) MarkReturned(ctx context.Context, loanID string, returnDate time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE loans SET return_date = ?
		WHERE loan_id = ? AND return_date IS NULL`,
		returnDate, loanID,
	)
	if err != nil {
		return classify("mark returned", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("mark returned", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark returned: %w: loan %s", domain.ErrNoActiveLoan, loanID)
	}
	return nil
}

// UpdateItemCondition does not check RowsAffected: MySQL reports 0 when the value is unchanged.
func (t *mysqlTx) UpdateItemCondition(ctx context.Context, itemID string, condition float64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE items SET item_condition = ? WHERE item_id = ?`, condition, itemID)
	if err != nil {
		return classify("update item condition", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
