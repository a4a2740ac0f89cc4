package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BorrowRequest lends ItemID when it is set, otherwise any free item of ProductID and Size.
type BorrowRequest struct {
	RequestID  string `json:"request_id"`
	SSN        string `json:"ssn"`
	ItemID     string `json:"item_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	Size       string `json:"size,omitempty"`
	BorrowDate string `json:"borrow_date,omitempty"`
}

// ReturnRequest closes the loan of ItemID, or LoanID when ItemID is empty.
type ReturnRequest struct {
	RequestID  string `json:"request_id"`
	ItemID     string `json:"item_id,omitempty"`
	LoanID     string `json:"loan_id,omitempty"`
	ReturnDate string `json:"return_date,omitempty"`
}

type StockRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
}

type StockReply struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type LoanReply struct {
	Loan domain.Loan `json:"loan"`
}

type errorReply struct {
	Error string `json:"error"`
}

// parseDate accepts YYYY-MM-DD. Empty means today.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrInvalidInput, s)
	}
	return t, nil
}

func borrow(ctx context.Context, guard *service.RequestGuard, lending *service.LendingService, req BorrowRequest) (domain.Loan, error) {
	date, err := parseDate(req.BorrowDate)
	if err != nil {
		return domain.Loan{}, err
	}

	var loan domain.Loan
	err = guard.Run(ctx, "borrow", req.RequestID, func() error {
		var err error
		if req.ItemID != "" {
			loan, err = lending.Borrow(ctx, req.SSN, req.ItemID, date)
		} else {
			loan, err = lending.BorrowAny(ctx, req.SSN, req.ProductID, req.Size, date)
		}
		return err
	})
	return loan, err
}

func giveBack(ctx context.Context, guard *service.RequestGuard, lending *service.LendingService, req ReturnRequest) (domain.Loan, error) {
	if req.ItemID == "" && req.LoanID == "" {
		return domain.Loan{}, fmt.Errorf("%w: item_id or loan_id is required", domain.ErrInvalidInput)
	}
	date, err := parseDate(req.ReturnDate)
	if err != nil {
		return domain.Loan{}, err
	}

	var loan domain.Loan
	err = guard.Run(ctx, "return", req.RequestID, func() error {
		var err error
		if req.ItemID != "" {
			loan, err = lending.ReturnItem(ctx, req.ItemID, date)
		} else {
			loan, err = lending.ReturnLoan(ctx, req.LoanID, date)
		}
		return err
	})
	return loan, err
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrDuplicateKey) ||
		errors.Is(err, domain.ErrItemAlreadyBorrowed) ||
		errors.Is(err, domain.ErrNoActiveLoan) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, service.ErrDuplicateRequest)
}
