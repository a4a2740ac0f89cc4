package domain

import "time"

type LoanEventType string

const (
	LoanEventBorrowed LoanEventType = "loan.borrowed"
	LoanEventReturned LoanEventType = "loan.returned"
)

// LoanEvent is emitted after a borrow or return has been committed.
type LoanEvent struct {
	Type       LoanEventType `json:"type"`
	LoanID     string        `json:"loan_id"`
	SSN        string        `json:"ssn"`
	ItemID     string        `json:"item_id"`
	Date       time.Time     `json:"date"`
	Condition  float64       `json:"condition"`
	OccurredAt time.Time     `json:"occurred_at"`
}
