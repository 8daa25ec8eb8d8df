package order

import (
	"strings"
	"time"
)

// next holds the single forward step allowed from each status.
var next = map[Status]Status{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusShipped,
	StatusShipped:   StatusDelivered,
}

// CanTransitionTo reports whether target is reachable in one step.
func (o *Order) CanTransitionTo(target Status) bool {
	if target == StatusCancelled {
		return o.Status == StatusPending
	}
	return next[o.Status] == target
}

// Advance moves the order forward to target. Setting the current status
// again is a no-op and reports changed=false. Cancellation goes through Cancel.
func (o *Order) Advance(target Status, now time.Time) (changed bool, err error) {
	if target == o.Status {
		return false, nil
	}
	if target == StatusCancelled || !o.CanTransitionTo(target) {
		return false, &TransitionError{From: o.Status, To: target}
	}

	o.Status = target
	if target == StatusConfirmed {
		o.WhatsappNotified = true
	}
	o.UpdatedAt = now
	return true, nil
}

// Cancel marks a pending order cancelled. Stock restitution is the caller's job
// and must happen in the same unit of work.
func (o *Order) Cancel(now time.Time) error {
	if !o.CanTransitionTo(StatusCancelled) {
		return &TransitionError{From: o.Status, To: StatusCancelled}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// ShippingPatch lists the fields an owner may change while the order is pending.
type ShippingPatch struct {
	ShippingAddress *ShippingAddress
	Contact         *string
}

func (o *Order) UpdateShipping(p ShippingPatch, now time.Time) error {
	if o.Status != StatusPending {
		return &LockedError{Status: o.Status}
	}

	address := o.ShippingAddress
	contact := o.Contact
	if p.ShippingAddress != nil {
		address = *p.ShippingAddress
	}
	if p.Contact != nil {
		contact = *p.Contact
	}
	if !address.complete() || strings.TrimSpace(contact) == "" {
		return ErrInvalidShipping
	}

	o.ShippingAddress = address
	o.Contact = contact
	o.UpdatedAt = now
	return nil
}
