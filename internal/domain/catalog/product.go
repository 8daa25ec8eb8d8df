package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/storefront-orders/internal/money"
)

type Size string

const (
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists the supported sizes in display order.
var Sizes = []Size{SizeS, SizeM, SizeL, SizeXL, SizeXXL}

var ErrInvalidSize = errors.New("unsupported size")

// ParseSize normalizes s and checks it against the supported sizes.
func ParseSize(s string) (Size, error) {
	candidate := Size(strings.ToUpper(strings.TrimSpace(s)))
	for _, size := range Sizes {
		if size == candidate {
			return size, nil
		}
	}
	return "", fmt.Errorf("%w: %q (supported: S, M, L, XL, XXL)", ErrInvalidSize, s)
}

// StockLevel is the available quantity of one size of a product.
type StockLevel struct {
	Size     Size `json:"size"`
	Quantity int  `json:"quantity"`
}

type Product struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Price     money.Amount `json:"price"`
	Inventory []StockLevel `json:"inventory"`
}

// StockFor returns the quantity held for size and whether the product carries it.
func (p *Product) StockFor(size Size) (int, bool) {
	for _, level := range p.Inventory {
		if level.Size == size {
			return level.Quantity, true
		}
	}
	return 0, false
}

// Reader is the read-only view of the product catalog.
type Reader interface {
	// FindProductsByIDs returns the products that exist among ids in no
	// particular order. Missing ids are absent from the result.
	FindProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Index keys products by id.
func Index(products []Product) map[string]*Product {
	byID := make(map[string]*Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID
}
