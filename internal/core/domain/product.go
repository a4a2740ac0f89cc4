package domain

// Product groups interchangeable items, e.g. a boot model.
type Product struct {
	ID   string `json:"product_id" db:"product_id"`
	Name string `json:"name" db:"name"`
	Type string `json:"type" db:"type"`
}
