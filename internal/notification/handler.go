package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/events"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender only logs messages. No external delivery happens.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, to, body string) error {
	s.Logger.InfoContext(ctx, "whatsapp message simulated", "to", to, "body", body)
	return nil
}

// Handler reacts to order events with WhatsApp notifications.
type Handler struct {
	sender      Sender
	adminNumber string
	logger      *slog.Logger
}

func NewHandler(sender Sender, adminNumber string) *Handler {
	return &Handler{
		sender:      sender,
		adminNumber: adminNumber,
		logger:      slog.Default().With("component", "notifier"),
	}
}

// HandleEvent processes one event from the order stream.
func (h *Handler) HandleEvent(ctx context.Context, e events.Event) error {
	switch e.EventType {
	case order.EventOrderPlaced:
		var placed order.OrderPlaced
		if err := e.Decode(&placed); err != nil {
			return fmt.Errorf("decode %s: %w", e.EventType, err)
		}
		h.logger.InfoContext(ctx, "order placed", "order_id", placed.OrderID, "total", formatTotal(placed.TotalAmount))
		return h.sender.Send(ctx, h.adminNumber, BuildOrderPlacedMessage(placed))

	case order.EventOrderStatusChanged:
		var changed order.OrderStatusChanged
		if err := e.Decode(&changed); err != nil {
			return fmt.Errorf("decode %s: %w", e.EventType, err)
		}
		if changed.To != order.StatusConfirmed {
			return nil
		}
		return h.sender.Send(ctx, changed.Contact, BuildConfirmedMessage(changed))
	}
	return nil
}
