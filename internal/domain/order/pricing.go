package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/money"
	"golang.org/x/sync/errgroup"
)

// DefaultCustomizationFee is the per-unit surcharge for personalised items.
const DefaultCustomizationFee money.Amount = 500

// CartLine is one client-submitted line. Prices are never taken from the client.
type CartLine struct {
	ProductID     string
	Quantity      int
	Size          catalog.Size
	Customization *CustomizationRequest
}

type CustomizationRequest struct {
	Name   string
	Number string
}

func (c *CustomizationRequest) present() bool {
	return c != nil && (strings.TrimSpace(c.Name) != "" || strings.TrimSpace(c.Number) != "")
}

// Priced is the outcome of pricing a cart. It holds no reservation.
type Priced struct {
	Items             []LineItem
	Subtotal          money.Amount
	CustomizationFees money.Amount
	DiscountAmount    money.Amount
	TotalAmount       money.Amount
	CouponApplied     *coupon.Snapshot

	// Coupon is the ledger entry whose usage must be recorded with the order.
	Coupon *coupon.Coupon
	// Reservations are the stock movements backing Items, in cart order.
	Reservations []inventory.Item
}

// Pricer validates carts against a catalog snapshot and prices them.
type Pricer struct {
	catalog catalog.Reader
	coupons coupon.Ledger
	fee     money.Amount
	now     func() time.Time
}

func NewPricer(catalog catalog.Reader, coupons coupon.Ledger, customizationFee money.Amount) *Pricer {
	return &Pricer{
		catalog: catalog,
		coupons: coupons,
		fee:     customizationFee,
		now:     time.Now,
	}
}

// PriceCart validates every line and computes totals. Any failure aborts the
// whole cart. The catalog and coupon lookups run concurrently, one read each.
func (p *Pricer) PriceCart(ctx context.Context, cart []CartLine, couponCode string) (*Priced, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}

	code := coupon.NormalizeCode(couponCode)

	var (
		products  []catalog.Product
		found     *coupon.Coupon
		lookupErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = p.catalog.FindProductsByIDs(gctx, distinctProductIDs(cart))
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		return nil
	})
	if code != "" {
		g.Go(func() error {
			c, err := p.coupons.FindByCode(gctx, code)
			if errors.Is(err, coupon.ErrNotFound) {
				lookupErr = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("load coupon: %w", err)
			}
			found = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := catalog.Index(products)
	priced := &Priced{
		Items:        make([]LineItem, 0, len(cart)),
		Reservations: make([]inventory.Item, 0, len(cart)),
	}

	type stockKey struct {
		productID string
		size      catalog.Size
	}
	requested := make(map[stockKey]int, len(cart))

	for _, line := range cart {
		if line.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if line.Size == "" {
			return nil, &SizeRequiredError{ProductName: product.Name}
		}
		// lines repeating a product and size draw on the same count
		k := stockKey{productID: product.ID, size: line.Size}
		requested[k] += line.Quantity
		available, ok := product.StockFor(line.Size)
		if !ok || available < requested[k] {
			return nil, &inventory.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Size:        line.Size,
				Requested:   requested[k],
				Available:   available,
			}
		}

		priced.Subtotal += product.Price.Mul(line.Quantity)

		item := LineItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			Price:     product.Price,
			Size:      line.Size,
		}
		if line.Customization.present() {
			item.Customization = &Customization{
				Name:       strings.TrimSpace(line.Customization.Name),
				Number:     strings.TrimSpace(line.Customization.Number),
				AppliedFee: p.fee,
			}
			priced.CustomizationFees += p.fee.Mul(line.Quantity)
		}

		priced.Items = append(priced.Items, item)
		priced.Reservations = append(priced.Reservations, inventory.Item{
			ProductID:   product.ID,
			ProductName: product.Name,
			Size:        line.Size,
			Quantity:    line.Quantity,
		})
	}

	if code != "" {
		if lookupErr != nil {
			return nil, lookupErr
		}
		// Customization fees are not discount-eligible.
		discount, err := found.Evaluate(priced.Subtotal, p.now())
		if err != nil {
			return nil, err
		}
		priced.DiscountAmount = discount
		priced.Coupon = found
		priced.CouponApplied = found.Snapshot()
	}

	priced.TotalAmount = priced.Subtotal + priced.CustomizationFees - priced.DiscountAmount
	return priced, nil
}

func distinctProductIDs(cart []CartLine) []string {
	seen := make(map[string]struct{}, len(cart))
	ids := make([]string, 0, len(cart))
	for _, line := range cart {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
