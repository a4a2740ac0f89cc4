package seed

import (
	_ "embed"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

//go:embed products.json
var defaultProducts []byte

// Sizes are the sizes generated items get.
var Sizes = []string{"XS", "S", "M", "L", "XL", "XXL"}

// DefaultProducts is the built-in product catalog.
func DefaultProducts() ([]domain.Product, error) {
	var products []domain.Product
	if err := jsoniter.Unmarshal(defaultProducts, &products); err != nil {
		return nil, fmt.Errorf("decode default products: %w", err)
	}
	return products, nil
}

var (
	firstNamesMale = []string{
		"Erik", "Lars", "Karl", "Anders", "Johan", "Per", "Nils", "Mikael", "Jonas", "Oskar",
		"Gustav", "Axel", "Viktor", "Henrik", "Olof",
	}
	firstNamesFemale = []string{
		"Anna", "Maria", "Karin", "Sara", "Emma", "Ingrid", "Elin", "Sofia", "Linnea", "Astrid",
		"Maja", "Frida", "Klara", "Johanna", "Lena",
	}
	lastNames = []string{
		"Andersson", "Johansson", "Karlsson", "Nilsson", "Eriksson", "Larsson", "Olsson", "Persson",
		"Svensson", "Gustafsson", "Lindberg", "Lindqvist", "Berg", "Holm", "Sandberg",
	}
)
