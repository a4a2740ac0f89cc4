package domain

import "time"

// StockRow is the number of items of one product and size that are not on loan.
type StockRow struct {
	ProductID   string `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	ProductType string `json:"product_type" db:"product_type"`
	Size        string `json:"size" db:"size"`
	Quantity    int    `json:"quantity" db:"quantity"`
}

// LoanDetail is a loan joined with the borrower and the borrowed product.
type LoanDetail struct {
	LoanID      string     `json:"loan_id" db:"loan_id"`
	SSN         string     `json:"ssn" db:"ssn"`
	Name        string     `json:"name" db:"name"`
	ItemID      string     `json:"item_id" db:"item_id"`
	ProductName string     `json:"product_name" db:"product_name"`
	Size        string     `json:"size" db:"size"`
	BorrowDate  time.Time  `json:"borrow_date" db:"borrow_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty" db:"return_date"`
}

type BorrowCount struct {
	SSN    string `json:"ssn" db:"ssn"`
	Name   string `json:"name" db:"name"`
	Total  int    `json:"total" db:"total"`
	Active int    `json:"active" db:"active"`
}
