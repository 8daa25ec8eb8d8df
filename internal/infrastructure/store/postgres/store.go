// Package postgres stores products, coupons and orders in PostgreSQL. Every
// stock and coupon-usage change is a single conditional UPDATE, and a unit
// of work is one SQL transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/money"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Stock() inventory.StockStore { return stockRepo{q: s.db} }
func (s *Store) Orders() order.Repository   { return orderRepo{q: s.db} }
func (s *Store) Coupons() coupon.Store      { return couponRepo{q: s.db} }

// Within runs fn in one transaction. Orders read through the unit of work
// are locked until commit.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(ctx, unitOfWork{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u unitOfWork) Stock() inventory.StockStore { return stockRepo{q: u.tx} }
func (u unitOfWork) Orders() order.Repository   { return orderRepo{q: u.tx, lock: true} }
func (u unitOfWork) Coupons() coupon.Ledger     { return couponRepo{q: u.tx} }

// ============================================
// Catalog
// ============================================

func (s *Store) FindProductsByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.price_cents, ps.size, ps.quantity
		 FROM products p
		 LEFT JOIN product_stock ps ON ps.product_id = p.id
		 WHERE p.id = ANY($1)
		 ORDER BY p.id, ps.size`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	index := map[string]int{}
	for rows.Next() {
		var (
			id, name string
			price    int64
			size     sql.NullString
			quantity sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &price, &size, &quantity); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(products)
			index[id] = i
			products = append(products, catalog.Product{ID: id, Name: name, Price: money.Amount(price)})
		}
		if size.Valid {
			products[i].Inventory = append(products[i].Inventory, catalog.StockLevel{
				Size:     catalog.Size(size.String),
				Quantity: int(quantity.Int64),
			})
		}
	}
	return products, rows.Err()
}

// UpsertProduct writes a product and replaces its stock levels.
func (s *Store) UpsertProduct(ctx context.Context, p catalog.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO products (id, name, price_cents) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents`,
		p.ID, p.Name, int64(p.Price),
	); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_stock WHERE product_id = $1`, p.ID); err != nil {
		return err
	}
	for _, lvl := range p.Inventory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_stock (product_id, size, quantity) VALUES ($1, $2, $3)`,
			p.ID, string(lvl.Size), lvl.Quantity,
		); err != nil {
			return fmt.Errorf("stock %s/%s: %w", p.ID, lvl.Size, err)
		}
	}
	return tx.Commit()
}

// ============================================
// Stock
// ============================================

type stockRepo struct {
	q querier
}

func (r stockRepo) Decrement(ctx context.Context, productID string, size catalog.Size, qty int) (int, error) {
	if qty <= 0 {
		return 0, inventory.ErrInvalidQuantity
	}

	var left int
	err := r.q.QueryRowContext(ctx,
		`UPDATE product_stock SET quantity = quantity - $3
		 WHERE product_id = $1 AND size = $2 AND quantity >= $3
		 RETURNING quantity`,
		productID, string(size), qty,
	).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var available int
	err = r.q.QueryRowContext(ctx,
		`SELECT quantity FROM product_stock WHERE product_id = $1 AND size = $2`,
		productID, string(size),
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrUnknownStock
	}
	if err != nil {
		return 0, err
	}
	return available, inventory.ErrInsufficientStock
}

func (r stockRepo) Increment(ctx context.Context, productID string, size catalog.Size, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE product_stock SET quantity = quantity + $3 WHERE product_id = $1 AND size = $2`,
		productID, string(size), qty,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrUnknownStock
	}
	return nil
}

// ============================================
// Coupons
// ============================================

type couponRepo struct {
	q querier
}

const couponColumns = `id, code, discount_type, discount_value, expiry_date, min_purchase_cents,
	usage_limit, times_used, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		min int64
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.ExpiryDate, &min,
		&c.UsageLimit, &c.TimesUsed, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.MinPurchase = money.Amount(min)
	return &c, nil
}

func (r couponRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return scanCoupon(r.q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
}

func (r couponRepo) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return scanCoupon(r.q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
}

func (r couponRepo) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]coupon.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r couponRepo) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE coupons SET times_used = times_used + 1, updated_at = $2
		 WHERE id = $1 AND is_active AND expiry_date > $2 AND times_used < usage_limit`,
		id, now,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return coupon.ErrUsageConflict
}

func (r couponRepo) Insert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO coupons (`+couponColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpiryDate, int64(c.MinPurchase),
		c.UsageLimit, c.TimesUsed, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return coupon.ErrDuplicateCode
	}
	return err
}

// Save writes the administrator-editable fields. Code and times_used are
// never touched here.
func (r couponRepo) Save(ctx context.Context, c *coupon.Coupon) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE coupons SET discount_type = $2, discount_value = $3, expiry_date = $4,
		 min_purchase_cents = $5, usage_limit = $6, is_active = $7, updated_at = $8
		 WHERE id = $1`,
		c.ID, string(c.DiscountType), c.DiscountValue, c.ExpiryDate,
		int64(c.MinPurchase), c.UsageLimit, c.IsActive, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func (r couponRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// ============================================
// Orders
// ============================================

type orderRepo struct {
	q    querier
	lock bool
}

const orderColumns = `id, user_id, items, total_cents, discount_cents, coupon_applied, status,
	contact, shipping_address, whatsapp_notified, created_at, updated_at, version`

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o               order.Order
		items, ship     []byte
		couponApplied   []byte
		total, discount int64
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &total, &discount, &couponApplied, &o.Status,
		&o.Contact, &ship, &o.WhatsappNotified, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(ship, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping of %s: %w", o.ID, err)
	}
	if len(couponApplied) > 0 {
		if err := json.Unmarshal(couponApplied, &o.CouponApplied); err != nil {
			return nil, fmt.Errorf("decode coupon of %s: %w", o.ID, err)
		}
	}
	o.TotalAmount = money.Amount(total)
	o.DiscountAmount = money.Amount(discount)
	return &o, nil
}

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	ship, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	var couponApplied []byte
	if o.CouponApplied != nil {
		if couponApplied, err = json.Marshal(o.CouponApplied); err != nil {
			return err
		}
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.UserID, items, int64(o.TotalAmount), int64(o.DiscountAmount), couponApplied,
		string(o.Status), o.Contact, ship, o.WhatsappNotified, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	return err
}

func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if r.lock {
		query += ` FOR UPDATE`
	}
	return scanOrder(r.q.QueryRowContext(ctx, query, id))
}

func (r orderRepo) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r orderRepo) ListAll(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func (r orderRepo) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Update writes the lifecycle fields if the stored version still matches.
// Items and totals are written once, at Create.
func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	ship, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $3, contact = $4, shipping_address = $5,
		 whatsapp_notified = $6, updated_at = $7, version = version + 1
		 WHERE id = $1 AND version = $2`,
		o.ID, o.Version, string(o.Status), o.Contact, ship, o.WhatsappNotified, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, o.ID); err != nil {
			return err
		}
		return order.ErrStaleOrder
	}
	o.Version++
	return nil
}
