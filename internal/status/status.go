// Package status maps between the small stored order-status enumeration and
// the richer presented vocabulary shown to customers and farm operators.
//
// The stored column only knows pending/confirmed/shipped/delivered/cancelled.
// Whether a pending order is "waiting for payment" is derived from the payment
// status plus the payment_info metadata key, so the presentation is computed on
// every read rather than stored.
package status

import (
	"errors"
	"fmt"

	"github.com/agrihaat/api/internal/enum"
	"github.com/agrihaat/api/internal/meta"
)

// ErrInvalidStatus is returned for input outside the presented enumeration.
var ErrInvalidStatus = errors.New("invalid status")

// Presented is one of the status values exposed to callers.
type Presented string

const (
	Pending           = Presented(enum.PresentedPending)
	Confirmed         = Presented(enum.PresentedConfirmed)
	WaitingForPayment = Presented(enum.PresentedWaitingForPayment)
	Processing        = Presented(enum.PresentedProcessing)
	InTransit         = Presented(enum.PresentedInTransit)
	Delivered         = Presented(enum.PresentedDelivered)
	Cancelled         = Presented(enum.PresentedCancelled)
)

// All is the closed set of presented values, in lifecycle order.
var All = []Presented{Pending, Confirmed, WaitingForPayment, Processing, InTransit, Delivered, Cancelled}

// aliases accepted at the boundary before mapping. Legacy clients still send
// "on-transit" for shipped orders.
var aliases = map[string]Presented{
	"on-transit": InTransit,
}

// Normalize validates raw caller input against the presented enumeration,
// resolving known aliases first.
func Normalize(raw string) (Presented, error) {
	if p, ok := aliases[raw]; ok {
		return p, nil
	}
	p := Presented(raw)
	for _, v := range All {
		if p == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Present computes the presented status for a stored row. This is the forward
// mapping applied on every read.
func Present(stored, paymentStatus string, bag meta.Bag) Presented {
	switch stored {
	case enum.OrderStatusShipped:
		return InTransit
	case enum.OrderStatusPending:
		if paymentStatus == enum.PaymentStatusPending && bag.Has(meta.KeyPaymentInfo) {
			return WaitingForPayment
		}
		return Pending
	default:
		return Presented(stored)
	}
}

// ToStored is the reverse mapping applied on every write. forcePaymentPending
// is true when the target presentation additionally pins the payment status to
// pending (waiting_for_payment is a pending order by definition).
func ToStored(p Presented) (stored string, forcePaymentPending bool) {
	switch p {
	case WaitingForPayment:
		return enum.OrderStatusPending, true
	case InTransit:
		return enum.OrderStatusShipped, false
	default:
		return string(p), false
	}
}

// Filter is a presented-status list filter translated into predicates the
// query layer can push into SQL.
type Filter struct {
	// Stored is the stored-status equality predicate, empty for no filtering.
	Stored string
	// RequirePaymentInfo additionally requires payment status pending and a
	// non-empty payment_info metadata key (the waiting_for_payment case).
	RequirePaymentInfo bool
}

// ParseFilter translates a caller-supplied presented-status filter. "" and
// "all" are wildcards.
func ParseFilter(raw string) (Filter, error) {
	if raw == "" || raw == "all" {
		return Filter{}, nil
	}
	p, err := Normalize(raw)
	if err != nil {
		return Filter{}, err
	}
	stored, _ := ToStored(p)
	return Filter{
		Stored:             stored,
		RequirePaymentInfo: p == WaitingForPayment,
	}, nil
}
