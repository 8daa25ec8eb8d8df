package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/events"
)

var ErrRequestInProgress = errors.New("a request with this idempotency key is still in progress")

// IdempotencyStore remembers which order an idempotency key produced.
type IdempotencyStore interface {
	// Claim reserves key. When the key is already held it returns claimed=false
	// and the order id stored for it, which is empty while the first request
	// is still running.
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type Handler struct {
	pricer    *order.Pricer
	tx        order.Transactor
	orders    order.Repository
	publisher events.Publisher
	idem      IdempotencyStore // nil disables idempotency keys
	now       func() time.Time
	logger    *slog.Logger
}

func NewHandler(
	pricer *order.Pricer,
	tx order.Transactor,
	orders order.Repository,
	publisher events.Publisher,
	idem IdempotencyStore,
) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Handler{
		pricer:    pricer,
		tx:        tx,
		orders:    orders,
		publisher: publisher,
		idem:      idem,
		now:       time.Now,
		logger:    slog.Default().With("component", "command"),
	}
}

// PlaceOrder prices the cart, then reserves stock, stores the order and
// records the coupon use as one unit of work.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*Placed, error) {
	key := ""
	if cmd.IdempotencyKey != "" && h.idem != nil {
		key = cmd.Actor.UserID + ":" + cmd.IdempotencyKey
		existing, claimed, err := h.idem.Claim(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			return h.replay(ctx, existing)
		}
	}

	o, err := h.placeOrder(ctx, cmd)
	if err != nil {
		if key != "" {
			if relErr := h.idem.Release(ctx, key); relErr != nil {
				h.logger.ErrorContext(ctx, "release idempotency key", "error", relErr)
			}
		}
		return nil, err
	}

	if key != "" {
		if err := h.idem.Complete(ctx, key, o.ID); err != nil {
			h.logger.ErrorContext(ctx, "complete idempotency key", "order_id", o.ID, "error", err)
		}
	}
	return &Placed{Order: o}, nil
}

func (h *Handler) replay(ctx context.Context, orderID string) (*Placed, error) {
	if orderID == "" {
		return nil, ErrRequestInProgress
	}
	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	return &Placed{Order: o, Replayed: true}, nil
}

func (h *Handler) placeOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	priced, err := h.pricer.PriceCart(ctx, cmd.Items, cmd.CouponCode)
	if err != nil {
		return nil, err
	}

	now := h.now()
	o, err := order.New(cmd.Actor.UserID, priced, cmd.ShippingAddress, cmd.Contact, now)
	if err != nil {
		return nil, err
	}

	err = h.tx.Within(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		if err := inventory.NewAdjuster(uow.Stock()).Reserve(ctx, priced.Reservations); err != nil {
			return err
		}
		if err := uow.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if priced.Coupon != nil {
			if err := uow.Coupons().IncrementUsage(ctx, priced.Coupon.ID, now); err != nil {
				return fmt.Errorf("record coupon %s use: %w", priced.Coupon.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "order placed",
		"order_id", o.ID, "user_id", o.UserID, "total", o.TotalAmount.String(), "items", len(o.Items))
	h.publish(ctx, o.ID, order.EventOrderPlaced, order.PlacedEvent(o))
	return o, nil
}

// CancelOrder cancels a pending order on behalf of its owner and returns
// its stock.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	o, err := h.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(cmd.Actor.UserID) {
		return nil, order.ErrForbidden
	}
	return h.cancel(ctx, cmd.OrderID, cmd.Actor)
}

func (h *Handler) cancel(ctx context.Context, orderID string, actor Actor) (*order.Order, error) {
	var cancelled *order.Order
	err := h.tx.Within(ctx, func(ctx context.Context, uow order.UnitOfWork) error {
		o, err := uow.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Cancel(h.now()); err != nil {
			return err
		}
		if err := inventory.NewAdjuster(uow.Stock()).Release(ctx, o.StockItems()); err != nil {
			return fmt.Errorf("%w: %w", order.ErrRestitutionFailed, err)
		}
		if err := uow.Orders().Update(ctx, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		if errors.Is(err, order.ErrRestitutionFailed) {
			h.logger.ErrorContext(ctx, "cancellation aborted", "order_id", orderID, "error", err)
		}
		return nil, err
	}

	h.logger.InfoContext(ctx, "order cancelled", "order_id", orderID, "by", actor.UserID, "admin", actor.Admin)
	h.publish(ctx, orderID, order.EventOrderCancelled, order.OrderCancelled{
		OrderID:     orderID,
		UserID:      cancelled.UserID,
		CancelledBy: actor.UserID,
		CancelledAt: cancelled.UpdatedAt,
	})
	return cancelled, nil
}

// UpdateStatus moves an order along its lifecycle. Admin only. Setting
// cancelled follows the same rules and restitution as CancelOrder.
func (h *Handler) UpdateStatus(ctx context.Context, cmd UpdateStatus) (*order.Order, error) {
	if !cmd.Actor.Admin {
		return nil, order.ErrForbidden
	}

	o, err := h.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.Status == order.StatusCancelled && o.Status != order.StatusCancelled {
		return h.cancel(ctx, cmd.OrderID, cmd.Actor)
	}

	from := o.Status
	changed, err := o.Advance(cmd.Status, h.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}
	if err := h.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "order status changed", "order_id", o.ID, "from", from, "to", o.Status)
	h.publish(ctx, o.ID, order.EventOrderStatusChanged, order.OrderStatusChanged{
		OrderID:   o.ID,
		UserID:    o.UserID,
		From:      from,
		To:        o.Status,
		Contact:   o.Contact,
		ChangedAt: o.UpdatedAt,
	})
	return o, nil
}

// UpdateShipping edits the shipping address or contact of a pending order.
// Owner only.
func (h *Handler) UpdateShipping(ctx context.Context, cmd UpdateShipping) (*order.Order, error) {
	o, err := h.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(cmd.Actor.UserID) {
		return nil, order.ErrForbidden
	}
	if err := o.UpdateShipping(cmd.Patch, h.now()); err != nil {
		return nil, err
	}
	if err := h.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// publish announces a committed change. Failures are logged; the write stands.
func (h *Handler) publish(ctx context.Context, orderID, eventType string, payload any) {
	e, err := events.New(orderID, "Order", eventType, payload)
	if err == nil {
		err = h.publisher.Publish(ctx, e)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "event not published, reconcile downstream",
			"order_id", orderID, "event_type", eventType, "error", err)
	}
}
