package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/storefront-orders/internal/domain/catalog"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUnknownStock      = errors.New("no stock entry for product size")
)

// StockError describes a line that cannot be covered by current stock.
type StockError struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	Size        catalog.Size `json:"size"`
	Requested   int          `json:"requested"`
	Available   int          `json:"available"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for %s (size %s): requested %d, available %d",
		e.ProductName, e.Size, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func (e *StockError) Details() map[string]any {
	return map[string]any{
		"product_id":   e.ProductID,
		"product_name": e.ProductName,
		"size":         e.Size,
		"requested":    e.Requested,
		"available":    e.Available,
	}
}

// Item is one (product, size, quantity) movement.
type Item struct {
	ProductID   string
	ProductName string
	Size        catalog.Size
	Quantity    int
}

// StockStore holds per-(product, size) counters. Implementations must make
// each call atomic for its single (product, size) pair.
type StockStore interface {
	// Decrement subtracts qty only if at least qty is held. On shortfall it
	// returns the quantity currently available together with ErrInsufficientStock.
	Decrement(ctx context.Context, productID string, size catalog.Size, qty int) (available int, err error)

	Increment(ctx context.Context, productID string, size catalog.Size, qty int) error
}

// Adjuster applies order reservations and restitutions to stock.
type Adjuster struct {
	store  StockStore
	logger *slog.Logger
}

func NewAdjuster(store StockStore) *Adjuster {
	return &Adjuster{
		store:  store,
		logger: slog.Default().With("component", "inventory"),
	}
}

// Reserve decrements stock for every item. If any item cannot be covered,
// the items already decremented are restored and a *StockError is returned.
func (a *Adjuster) Reserve(ctx context.Context, items []Item) error {
	for i, item := range items {
		if item.Quantity <= 0 {
			a.rollback(ctx, items[:i])
			return ErrInvalidQuantity
		}

		available, err := a.store.Decrement(ctx, item.ProductID, item.Size, item.Quantity)
		if err != nil {
			a.rollback(ctx, items[:i])
			if errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrUnknownStock) {
				return &StockError{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Size:        item.Size,
					Requested:   item.Quantity,
					Available:   available,
				}
			}
			return fmt.Errorf("reserve %s/%s: %w", item.ProductID, item.Size, err)
		}
	}
	return nil
}

// Release returns stock for every item. It keeps going past failures and
// reports them together.
func (a *Adjuster) Release(ctx context.Context, items []Item) error {
	var errs []error
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if err := a.store.Increment(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("release %s/%s: %w", item.ProductID, item.Size, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Adjuster) rollback(ctx context.Context, done []Item) {
	if len(done) == 0 {
		return
	}
	if err := a.Release(ctx, done); err != nil {
		a.logger.ErrorContext(ctx, "stock rollback incomplete, reconcile manually", "error", err)
	}
}
