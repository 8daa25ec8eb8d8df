package notification

import (
	"fmt"
	"strings"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/money"
)

// BuildOrderPlacedMessage renders the admin alert for a new order.
func BuildOrderPlacedMessage(e order.OrderPlaced) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order #%s\n", shortID(e.OrderID))
	for _, item := range e.Items {
		fmt.Fprintf(&b, "- %s (%s) x%d  $%s", item.ProductID, item.Size, item.Quantity, item.Price.Mul(item.Quantity))
		if c := item.Customization; c != nil {
			fmt.Fprintf(&b, "  [%s %s +$%s/u]", c.Name, c.Number, c.AppliedFee)
		}
		b.WriteString("\n")
	}
	if e.CouponCode != "" {
		fmt.Fprintf(&b, "Coupon: %s\n", e.CouponCode)
	}
	fmt.Fprintf(&b, "Total: $%s\nContact: %s", e.TotalAmount, e.Contact)
	return b.String()
}

// BuildConfirmedMessage renders the customer notice sent when an order is confirmed.
func BuildConfirmedMessage(e order.OrderStatusChanged) string {
	return fmt.Sprintf("Your order #%s has been confirmed and is being prepared.", shortID(e.OrderID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTotal(a money.Amount) string {
	return "$" + a.String()
}
