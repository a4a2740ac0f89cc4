package domain

import "math"

const (
	// ConditionDecrement is the wear applied to an item each time a loan of it is returned.
	ConditionDecrement = 0.10

	// MaxSizeLength matches the width of the size column.
	MaxSizeLength = 5
)

// Item is a single physical unit of a product. An empty Size means the item has no size.
type Item struct {
	ID        string  `json:"item_id" db:"item_id"`
	ProductID string  `json:"product_id" db:"product_id"`
	Size      string  `json:"size" db:"size"`
	Condition float64 `json:"condition" db:"item_condition"`
}

// conditionPrecision drops float noise from subtraction without touching
// the digits a caller can set.
const conditionPrecision = 1e9

// DecayCondition returns the condition after one completed loan, never below zero.
func DecayCondition(c float64) float64 {
	next := math.Round((c-ConditionDecrement)*conditionPrecision) / conditionPrecision
	if next <= 0 {
		return 0
	}
	return next
}

func ValidCondition(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

func ValidSize(size string) bool {
	return len(size) <= MaxSizeLength
}
