package storage

import (
	"context"
)

const (
	stockView       = "stock_by_size"
	loanView        = "loan_details"
	borrowCountView = "borrow_counts"

	// activeLoanKey is the unique index that allows one loan without a return
	// date per item. MySQL has no partial indexes, so it indexes a generated
	// column that is NULL for returned loans.
	activeLoanKey = "uq_loans_active_item"

	// keys and sizes compare exactly, names stay case-insensitive
	exact = "COLLATE utf8mb4_bin"
)

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		ssn  VARCHAR(32)  ` + exact + ` NOT NULL,
		name VARCHAR(100) NOT NULL,
		PRIMARY KEY (ssn)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_ai_ci`,

	`CREATE TABLE IF NOT EXISTS products (
		product_id VARCHAR(50)  ` + exact + ` NOT NULL,
		name       VARCHAR(100) NOT NULL,
		type       VARCHAR(50)  NOT NULL,
		PRIMARY KEY (product_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_ai_ci`,

	`CREATE TABLE IF NOT EXISTS items (
		item_id        CHAR(36)    ` + exact + ` NOT NULL,
		product_id     VARCHAR(50) ` + exact + ` NOT NULL,
		size           VARCHAR(5)  ` + exact + ` DEFAULT NULL,
		item_condition DOUBLE      NOT NULL,
		PRIMARY KEY (item_id),
		KEY idx_items_product_size (product_id, size),
		CONSTRAINT fk_items_product FOREIGN KEY (product_id) REFERENCES products (product_id),
		CONSTRAINT chk_items_condition CHECK (item_condition BETWEEN 0 AND 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_ai_ci`,

	`CREATE TABLE IF NOT EXISTS loans (
		loan_id        CHAR(36)    ` + exact + ` NOT NULL,
		ssn            VARCHAR(32) ` + exact + ` NOT NULL,
		item_id        CHAR(36)    ` + exact + ` NOT NULL,
		borrow_date    DATE        NOT NULL,
		return_date    DATE        DEFAULT NULL,
		active_item_id CHAR(36) ` + exact + ` GENERATED ALWAYS AS (IF(return_date IS NULL, item_id, NULL)) STORED,
		PRIMARY KEY (loan_id),
		UNIQUE KEY ` + activeLoanKey + ` (active_item_id),
		KEY idx_loans_ssn (ssn),
		KEY idx_loans_item (item_id),
		CONSTRAINT fk_loans_user FOREIGN KEY (ssn) REFERENCES users (ssn),
		CONSTRAINT fk_loans_item FOREIGN KEY (item_id) REFERENCES items (item_id),
		CONSTRAINT chk_loans_dates CHECK (return_date IS NULL OR return_date >= borrow_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_ai_ci`,

	// one row per loan at most joins each item, so COUNT(*) - COUNT(l.loan_id)
	// is the number of items without an active loan
	`CREATE OR REPLACE VIEW ` + stockView + ` AS
	SELECT
		p.product_id,
		p.name AS product_name,
		p.type AS product_type,
		COALESCE(i.size, '') AS size,
		CAST(COUNT(*) - COUNT(l.loan_id) AS SIGNED) AS quantity
	FROM items i
	JOIN products p ON p.product_id = i.product_id
	LEFT JOIN loans l ON l.active_item_id = i.item_id
	GROUP BY p.product_id, p.name, p.type, COALESCE(i.size, '')`,

	`CREATE OR REPLACE VIEW ` + loanView + ` AS
	SELECT
		l.loan_id,
		l.ssn,
		u.name,
		l.item_id,
		p.name AS product_name,
		COALESCE(i.size, '') AS size,
		l.borrow_date,
		l.return_date
	FROM loans l
	JOIN users u ON u.ssn = l.ssn
	JOIN items i ON i.item_id = l.item_id
	JOIN products p ON p.product_id = i.product_id`,

	`CREATE OR REPLACE VIEW ` + borrowCountView + ` AS
	SELECT
		u.ssn,
		u.name,
		CAST(COUNT(l.loan_id) AS SIGNED) AS total,
		CAST(COALESCE(SUM(l.loan_id IS NOT NULL AND l.return_date IS NULL), 0) AS SIGNED) AS active
	FROM users u
	LEFT JOIN loans l ON l.ssn = u.ssn
	GROUP BY u.ssn, u.name`,
}

var dropStatements = []string{
	`DROP VIEW IF EXISTS ` + borrowCountView,
	`DROP VIEW IF EXISTS ` + loanView,
	`DROP VIEW IF EXISTS ` + stockView,
	`DROP TABLE IF EXISTS loans`,
	`DROP TABLE IF EXISTS items`,
	`DROP TABLE IF EXISTS products`,
	`DROP TABLE IF EXISTS users`,
}

// CreateAll creates the tables and views that do not exist yet.
func (m *MySQLAdapter) CreateAll(ctx context.Context) error {
	return m.execAll(ctx, "create schema", createStatements)
}

// DropAll removes views and tables in reverse dependency order.
func (m *MySQLAdapter) DropAll(ctx context.Context) error {
	return m.execAll(ctx, "drop schema", dropStatements)
}

func (m *MySQLAdapter) execAll(ctx context.Context, op string, statements []string) error {
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return storageErr(op, err)
		}
	}
	return nil
}
