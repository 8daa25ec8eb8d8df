package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a disposable database named by TEST_DATABASE_URL
// and are skipped when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return NewStore(db)
}

func seedProduct(t *testing.T, s *Store, qty int) string {
	t.Helper()
	id := uuid.New().String()
	require.NoError(t, s.UpsertProduct(context.Background(), catalog.Product{
		ID: id, Name: "Away Shirt", Price: 5000,
		Inventory: []catalog.StockLevel{{Size: catalog.SizeM, Quantity: qty}},
	}))
	return id
}

func TestSchema_DeclaresNonNegativeStock(t *testing.T) {
	assert.Contains(t, schema, "CHECK (quantity >= 0)")
	assert.Contains(t, schema, "code               TEXT NOT NULL UNIQUE")
	assert.Contains(t, schema, "version           INTEGER NOT NULL")
}

// ============================================
// Stock Tests
// ============================================

func TestStock_DecrementReportsAvailable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := seedProduct(t, s, 3)

	left, err := s.Stock().Decrement(ctx, id, catalog.SizeM, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	available, err := s.Stock().Decrement(ctx, id, catalog.SizeM, 2)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 1, available)

	_, err = s.Stock().Decrement(ctx, id, catalog.SizeXXL, 1)
	assert.ErrorIs(t, err, inventory.ErrUnknownStock)
}

func TestStock_ConcurrentDecrementsNeverOversell(t *testing.T) {
	s := testStore(t)
	id := seedProduct(t, s, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Stock().Decrement(context.Background(), id, catalog.SizeM, 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, wins)
	products, err := s.FindProductsByIDs(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, products, 1)
	q, _ := products[0].StockFor(catalog.SizeM)
	assert.Equal(t, 0, q)
}

// ============================================
// Unit Of Work Tests
// ============================================

func TestWithin_RollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := seedProduct(t, s, 2)
	orderID := uuid.New().String()

	err := s.Within(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		if _, err := uow.Stock().Decrement(ctx, id, catalog.SizeM, 2); err != nil {
			return err
		}
		if err := uow.Orders().Create(ctx, testOrder(orderID)); err != nil {
			return err
		}
		return order.ErrStaleOrder
	})

	assert.ErrorIs(t, err, order.ErrStaleOrder)
	_, err = s.Orders().Get(ctx, orderID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	left, err := s.Stock().Decrement(ctx, id, catalog.SizeM, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

// ============================================
// Coupon Tests
// ============================================

func TestCoupons_DuplicateAndUsage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	code := "PG" + uuid.New().String()[:8]
	c := &coupon.Coupon{
		ID: uuid.New().String(), Code: code, DiscountType: coupon.DiscountFixed, DiscountValue: 10,
		ExpiryDate: now.Add(time.Hour), UsageLimit: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Coupons().Insert(ctx, c))

	dup := *c
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, s.Coupons().Insert(ctx, &dup), coupon.ErrDuplicateCode)

	require.NoError(t, s.Coupons().IncrementUsage(ctx, c.ID, now))
	assert.ErrorIs(t, s.Coupons().IncrementUsage(ctx, c.ID, now), coupon.ErrUsageConflict)
	assert.ErrorIs(t, s.Coupons().IncrementUsage(ctx, uuid.New().String(), now), coupon.ErrNotFound)

	stored, err := s.Coupons().FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TimesUsed)
}

// ============================================
// Order Tests
// ============================================

func testOrder(id string) *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &order.Order{
		ID:              id,
		UserID:          "user-1",
		Status:          order.StatusPending,
		Contact:         "+54",
		Items:           []order.LineItem{{ProductID: "p", Quantity: 1, Price: 5000, Size: catalog.SizeM}},
		TotalAmount:     5000,
		ShippingAddress: order.ShippingAddress{Address: "a", City: "b", PostalCode: "c", Country: "AR"},
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
}

func TestOrders_RoundTripAndVersioning(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uuid.New().String()
	require.NoError(t, s.Orders().Create(ctx, testOrder(id)))

	first, err := s.Orders().Get(ctx, id)
	require.NoError(t, err)
	second, err := s.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AR", first.ShippingAddress.Country)
	assert.Nil(t, first.CouponApplied)

	first.Status = order.StatusConfirmed
	require.NoError(t, s.Orders().Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = order.StatusCancelled
	assert.ErrorIs(t, s.Orders().Update(ctx, second), order.ErrStaleOrder)

	missing := testOrder(uuid.New().String())
	assert.ErrorIs(t, s.Orders().Update(ctx, missing), order.ErrOrderNotFound)
}
