package domain

// User is a person allowed to borrow items. SSN is the natural key.
type User struct {
	SSN  string `json:"ssn" db:"ssn"`
	Name string `json:"name" db:"name"`
}
