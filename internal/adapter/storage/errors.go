package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

const (
	errDupEntry          = 1062
	errNoReferencedRow   = 1452
	errNoReferencedRowV2 = 1216
	errLockWaitTimeout   = 1205
	errDeadlock          = 1213
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// classify turns driver errors into domain errors. Anything it does not
// recognise is a storage failure.
func classify(op string, err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return storageErr(op, err)
	}

	switch myErr.Number {
	case errDupEntry:
		if strings.Contains(myErr.Message, activeLoanKey) {
			return fmt.Errorf("%s: %w", op, domain.ErrItemAlreadyBorrowed)
		}
		return fmt.Errorf("%s: %w: %s", op, domain.ErrDuplicateKey, myErr.Message)
	case errNoReferencedRow, errNoReferencedRowV2:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, myErr.Message)
	case errLockWaitTimeout, errDeadlock:
		return fmt.Errorf("%s: %w: retryable: %w", op, domain.ErrStorage, err)
	default:
		return storageErr(op, err)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a lower-case LIKE pattern matching text as a literal substring.
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
}
