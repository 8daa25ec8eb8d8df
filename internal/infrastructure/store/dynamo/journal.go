package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/catalog"
)

type movement struct {
	productID string
	size      catalog.Size
	qty       int
}

type compensation struct {
	desc    string
	restock *movement
	undo    func(ctx context.Context) error
}

// staged is a write held back until the unit of work commits. rejected maps
// a failed condition, given the item as it was, to a domain error.
type staged struct {
	desc     string
	item     types.TransactWriteItem
	rejected func(old map[string]types.AttributeValue) error
}

// journal lists the undo steps of one unit of work and the order and coupon
// writes it commits together at the end. A nil journal records nothing,
// which is what the stores outside a unit of work use.
type journal struct {
	entries []compensation
	writes  []staged
}

// stage holds item for the commit and reports false on a nil journal, where
// the caller writes immediately instead.
func (j *journal) stage(desc string, item types.TransactWriteItem, rejected func(map[string]types.AttributeValue) error) bool {
	if j == nil {
		return false
	}
	j.writes = append(j.writes, staged{desc: desc, item: item, rejected: rejected})
	return true
}

func (j *journal) record(desc string, undo func(ctx context.Context) error) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, compensation{desc: desc, undo: undo})
}

func (j *journal) restock(productID string, size catalog.Size, qty int, undo func(ctx context.Context) error) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, compensation{
		desc:    fmt.Sprintf("restock %d of %s/%s", qty, productID, size),
		restock: &movement{productID: productID, size: size, qty: qty},
		undo:    undo,
	})
}

// settleRestock drops the newest pending restock for the same movement and
// reports whether one was found.
func (j *journal) settleRestock(productID string, size catalog.Size, qty int) bool {
	if j == nil {
		return false
	}
	want := movement{productID: productID, size: size, qty: qty}
	for i := len(j.entries) - 1; i >= 0; i-- {
		if m := j.entries[i].restock; m != nil && *m == want {
			j.entries = append(j.entries[:i], j.entries[i+1:]...)
			return true
		}
	}
	return false
}

// replay runs every recorded undo newest first and keeps going past failures.
func (j *journal) replay(ctx context.Context) error {
	if j == nil {
		return nil
	}
	var errs []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if err := e.undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.desc, err))
		}
	}
	j.entries = nil
	j.writes = nil
	return errors.Join(errs...)
}
