package domain

import "time"

type Loan struct {
	ID         string     `json:"loan_id" db:"loan_id"`
	SSN        string     `json:"ssn" db:"ssn"`
	ItemID     string     `json:"item_id" db:"item_id"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
}

// Active reports whether the loan has not been returned yet.
func (l Loan) Active() bool {
	return l.ReturnDate == nil
}

// Date truncates t to a calendar day in UTC, the resolution loans are stored at.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
