package notification

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to   string
	body string
}

type recordingSender struct {
	messages []sent
}

func (s *recordingSender) Send(_ context.Context, to, body string) error {
	s.messages = append(s.messages, sent{to: to, body: body})
	return nil
}

func TestHandler_OrderPlaced_NotifiesAdmin(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, "+5491100000000")
	e, err := events.New("order-12345678-abcd", "Order", order.EventOrderPlaced, order.OrderPlaced{
		OrderID: "order-12345678-abcd",
		Items: []order.LineItem{{
			ProductID: "shirt", Quantity: 2, Price: 5000, Size: catalog.SizeM,
			Customization: &order.Customization{Name: "MESSI", Number: "10", AppliedFee: 500},
		}},
		TotalAmount: 11000,
		CouponCode:  "SAVE10",
		Contact:     "+5491122223333",
		PlacedAt:    time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleEvent(context.Background(), e))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "+5491100000000", sender.messages[0].to)
	assert.Contains(t, sender.messages[0].body, "#order-12")
	assert.Contains(t, sender.messages[0].body, "x2  $100.00")
	assert.Contains(t, sender.messages[0].body, "Coupon: SAVE10")
	assert.Contains(t, sender.messages[0].body, "Total: $110.00")
}

func TestHandler_StatusChanged_OnlyConfirmedNotifies(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, "+54")

	shipped, _ := events.New("o1", "Order", order.EventOrderStatusChanged, order.OrderStatusChanged{
		OrderID: "o1", From: order.StatusConfirmed, To: order.StatusShipped, Contact: "+1",
	})
	confirmed, _ := events.New("o1", "Order", order.EventOrderStatusChanged, order.OrderStatusChanged{
		OrderID: "o1", From: order.StatusPending, To: order.StatusConfirmed, Contact: "+1",
	})

	require.NoError(t, h.HandleEvent(context.Background(), shipped))
	require.NoError(t, h.HandleEvent(context.Background(), confirmed))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "+1", sender.messages[0].to)
	assert.Contains(t, sender.messages[0].body, "confirmed")
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	sender := &recordingSender{}
	h := NewHandler(sender, "+54")
	e, _ := events.New("o1", "Order", order.EventOrderCancelled, order.OrderCancelled{OrderID: "o1"})

	require.NoError(t, h.HandleEvent(context.Background(), e))
	assert.Empty(t, sender.messages)
}

func TestHandler_BadPayload(t *testing.T) {
	h := NewHandler(&recordingSender{}, "+54")
	e := events.Event{EventType: order.EventOrderPlaced, Data: []byte(`{"items": 3}`)}

	assert.Error(t, h.HandleEvent(context.Background(), e))
}
