package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrItemAlreadyBorrowed = errors.New("item already borrowed")
	ErrNoActiveLoan        = errors.New("no active loan")
	ErrInvalidInput        = errors.New("invalid input")

	// ErrStorage marks infrastructure failures (connection, transaction, driver).
	// Callers may retry operations that fail with it.
	ErrStorage = errors.New("storage failure")
)
