package seed

import (
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	ssnBornFrom = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	ssnBornTo   = time.Date(2005, 12, 31, 0, 0, 0, 0, time.UTC)
)

// NewSSN returns a personal identity number YYMMDD-NNGC. G is odd for men and
// even for women, C is the Luhn control digit over the nine digits before it.
func NewSSN(rng *rand.Rand, female bool) string {
	days := int(ssnBornTo.Sub(ssnBornFrom).Hours() / 24)
	born := ssnBornFrom.AddDate(0, 0, rng.IntN(days+1))

	g := 2*rng.IntN(5) + 1
	if female {
		g--
	}
	digits := fmt.Sprintf("%s%02d%d", born.Format("060102"), rng.IntN(100), g)
	return fmt.Sprintf("%s-%s%d", digits[:6], digits[6:], ControlDigit(digits))
}

// ControlDigit computes the Luhn check digit of nine decimal digits, weights 2,1,2,...
func ControlDigit(nine string) int {
	sum := 0
	for i, r := range nine {
		d := int(r - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// ValidSSN checks the YYMMDD-NNNC layout, the date and the control digit.
func ValidSSN(s string) bool {
	if len(s) != 11 || s[6] != '-' {
		return false
	}
	digits := s[:6] + s[7:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	if _, err := time.Parse("060102", s[:6]); err != nil {
		return false
	}
	return ControlDigit(digits[:9]) == int(digits[9]-'0')
}
