// Package memory is the in-process backend. It backs local development and
// serves as the test double for every store port.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
)

// Store holds products, coupons and orders behind one mutex.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// view runs against the live state under the store lock, or against the
// state of an open unit of work when tx is set.
type view struct {
	s  *Store
	tx *state
}

func (v view) with(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func (s *Store) Stock() inventory.StockStore { return stockView{view{s: s}} }
func (s *Store) Orders() order.Repository   { return orderView{view{s: s}} }
func (s *Store) Coupons() coupon.Store      { return couponView{view{s: s}} }

// Within runs fn while holding the store lock. fn sees its own writes; if it
// returns an error every write is discarded.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, unitOfWork{tx: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type unitOfWork struct {
	tx *state
}

func (u unitOfWork) Stock() inventory.StockStore { return stockView{view{tx: u.tx}} }
func (u unitOfWork) Orders() order.Repository   { return orderView{view{tx: u.tx}} }
func (u unitOfWork) Coupons() coupon.Ledger     { return couponView{view{tx: u.tx}} }

type state struct {
	products map[string]catalog.Product
	coupons  map[string]coupon.Coupon // id -> coupon
	codes    map[string]string        // code -> id
	orders   map[string]order.Order
}

func newState() *state {
	return &state{
		products: make(map[string]catalog.Product),
		coupons:  make(map[string]coupon.Coupon),
		codes:    make(map[string]string),
		orders:   make(map[string]order.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.products {
		c.products[id] = cloneProduct(p)
	}
	for id, cp := range s.coupons {
		c.coupons[id] = cp
	}
	for code, id := range s.codes {
		c.codes[code] = id
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.Inventory = append([]catalog.StockLevel(nil), p.Inventory...)
	return p
}

func cloneOrder(o order.Order) order.Order {
	items := make([]order.LineItem, len(o.Items))
	for i, li := range o.Items {
		if li.Customization != nil {
			c := *li.Customization
			li.Customization = &c
		}
		items[i] = li
	}
	o.Items = items
	if o.CouponApplied != nil {
		snap := *o.CouponApplied
		o.CouponApplied = &snap
	}
	return o
}

// ============================================
// Catalog
// ============================================

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = cloneProduct(p)
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return cloneProduct(p), ok
}

func (s *Store) FindProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.st.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

// ============================================
// Stock
// ============================================

type stockView struct{ view }

func (v stockView) Decrement(_ context.Context, productID string, size catalog.Size, qty int) (int, error) {
	var available int
	err := v.with(func(st *state) error {
		if qty <= 0 {
			return inventory.ErrInvalidQuantity
		}
		lvl, err := st.level(productID, size)
		if err != nil {
			return err
		}
		available = lvl.Quantity
		if lvl.Quantity < qty {
			return inventory.ErrInsufficientStock
		}
		lvl.Quantity -= qty
		available = lvl.Quantity
		return nil
	})
	return available, err
}

func (v stockView) Increment(_ context.Context, productID string, size catalog.Size, qty int) error {
	return v.with(func(st *state) error {
		if qty <= 0 {
			return inventory.ErrInvalidQuantity
		}
		lvl, err := st.level(productID, size)
		if err != nil {
			return err
		}
		lvl.Quantity += qty
		return nil
	})
}

func (s *state) level(productID string, size catalog.Size) (*catalog.StockLevel, error) {
	p, ok := s.products[productID]
	if !ok {
		return nil, inventory.ErrUnknownStock
	}
	for i := range p.Inventory {
		if p.Inventory[i].Size == size {
			return &p.Inventory[i], nil
		}
	}
	return nil, inventory.ErrUnknownStock
}

// ============================================
// Coupons
// ============================================

type couponView struct{ view }

func (v couponView) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	var out *coupon.Coupon
	err := v.with(func(st *state) error {
		id, ok := st.codes[code]
		if !ok {
			return coupon.ErrNotFound
		}
		c := st.coupons[id]
		out = &c
		return nil
	})
	return out, err
}

func (v couponView) IncrementUsage(_ context.Context, id string, now time.Time) error {
	return v.with(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		if !c.IsValid(now) {
			return coupon.ErrUsageConflict
		}
		c.TimesUsed++
		st.coupons[id] = c
		return nil
	})
}

func (v couponView) List(_ context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := v.with(func(st *state) error {
		out = make([]coupon.Coupon, 0, len(st.coupons))
		for _, c := range st.coupons {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (v couponView) Get(_ context.Context, id string) (*coupon.Coupon, error) {
	var out *coupon.Coupon
	err := v.with(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (v couponView) Insert(_ context.Context, c *coupon.Coupon) error {
	return v.with(func(st *state) error {
		if _, taken := st.codes[c.Code]; taken {
			return coupon.ErrDuplicateCode
		}
		st.coupons[c.ID] = *c
		st.codes[c.Code] = c.ID
		return nil
	})
}

// Save replaces the mutable fields of an existing coupon. Code and TimesUsed
// are kept from the stored copy.
func (v couponView) Save(_ context.Context, c *coupon.Coupon) error {
	return v.with(func(st *state) error {
		stored, ok := st.coupons[c.ID]
		if !ok {
			return coupon.ErrNotFound
		}
		c.Code = stored.Code
		c.TimesUsed = stored.TimesUsed
		st.coupons[c.ID] = *c
		return nil
	})
}

func (v couponView) Delete(_ context.Context, id string) error {
	return v.with(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		delete(st.coupons, id)
		delete(st.codes, c.Code)
		return nil
	})
}

// ============================================
// Orders
// ============================================

type orderView struct{ view }

func (v orderView) Create(_ context.Context, o *order.Order) error {
	return v.with(func(st *state) error {
		if _, exists := st.orders[o.ID]; exists {
			return fmt.Errorf("order %s already exists", o.ID)
		}
		st.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

func (v orderView) Get(_ context.Context, id string) (*order.Order, error) {
	var out *order.Order
	err := v.with(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrOrderNotFound
		}
		c := cloneOrder(o)
		out = &c
		return nil
	})
	return out, err
}

func (v orderView) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return v.list(func(o *order.Order) bool { return o.UserID == userID })
}

func (v orderView) ListAll(_ context.Context) ([]order.Order, error) {
	return v.list(func(*order.Order) bool { return true })
}

func (v orderView) list(keep func(*order.Order) bool) ([]order.Order, error) {
	out := make([]order.Order, 0)
	err := v.with(func(st *state) error {
		for _, o := range st.orders {
			if keep(&o) {
				out = append(out, cloneOrder(o))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (v orderView) Update(_ context.Context, o *order.Order) error {
	return v.with(func(st *state) error {
		stored, ok := st.orders[o.ID]
		if !ok {
			return order.ErrOrderNotFound
		}
		if stored.Version != o.Version {
			return order.ErrStaleOrder
		}
		o.Version++
		st.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}
