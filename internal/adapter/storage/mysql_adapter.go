package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/armory-atlas/internal/port"
)

// MySQLAdapter implements the transactional gateway, the read projections and
// the schema manager on MySQL 8.
type MySQLAdapter struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:      db,
		dialect: goqu.Dialect("mysql"),
	}
}

// OpenMySQL opens a pooled connection and checks it is reachable.
func OpenMySQL(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, storageErr("open mysql", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("ping mysql", err)
	}
	return db, nil
}

// WithinTx runs fn at READ COMMITTED. Every availability check inside a write is
// a locking read, so the isolation level only affects the plain reads.
func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.TxRepository) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (m *MySQLAdapter) selectAll(ctx context.Context, op string, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if err := m.db.SelectContext(ctx, dest, query, args...); err != nil {
		return classify(op, err)
	}
	return nil
}

// selectOne reports false when no row matched.
func (m *MySQLAdapter) selectOne(ctx context.Context, op string, dest any, ds *goqu.SelectDataset) (bool, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("%s: build query: %w", op, err)
	}
	err = m.db.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(op, err)
	}
	return true, nil
}
