package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/enum"
	"github.com/agrihaat/api/internal/meta"
	"github.com/agrihaat/api/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// StatusExtras is optional metadata supplied alongside a status change.
// Only non-empty fields are merged; existing keys survive.
type StatusExtras struct {
	PaymentInfo      string
	PaymentMessage   string
	PaymentReference string
	CourierContact   string
	CourierRefID     string
}

func (e StatusExtras) bag() meta.Bag {
	return meta.Bag{
		meta.KeyPaymentInfo:      e.PaymentInfo,
		meta.KeyPaymentMessage:   e.PaymentMessage,
		meta.KeyPaymentReference: e.PaymentReference,
		meta.KeyCourierContact:   e.CourierContact,
		meta.KeyCourierRefID:     e.CourierRefID,
	}
}

// UpdateStatusRequest moves an order to a new presented status.
type UpdateStatusRequest struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Status  string // presented vocabulary; aliases accepted
	Extras  StatusExtras
	// DeliveryFee, when non-empty, overrides the fee and recomputes the total
	// in the same write.
	DeliveryFee string
}

// UpdateStatus validates and applies a status change for a farm operator.
// The actor must own the farm the order belongs to. The write is guarded by
// the status read at the start, so a concurrent transition surfaces as
// ErrOrderChanged rather than a silent overwrite.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := s.authorizeFarmOwner(ctx, store, order.ID, req.ActorID); err != nil {
		return nil, err
	}

	presented, err := status.Normalize(req.Status)
	if err != nil {
		return nil, err
	}

	// Cancellation owns stock restoration and its own authorization rules;
	// writing 'cancelled' through here would leak the deducted units.
	if presented == status.Cancelled {
		return nil, fmt.Errorf("%w: use cancel, which restores stock", ErrInvalidTransition)
	}

	newStored, forcePaymentPending := status.ToStored(presented)

	// Terminal orders admit no further transitions; re-asserting the current
	// status is a no-op read-back.
	if enum.IsTerminalOrderStatus(order.Status) {
		if newStored == order.Status {
			return s.buildResult(ctx, store, order)
		}
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	}

	bag, err := meta.Decode(order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	bag.Merge(req.Extras.bag())
	encoded, err := bag.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	fee := numericToDecimal(order.DeliveryFee)
	if req.DeliveryFee != "" {
		fee, err = parseFee(req.DeliveryFee)
		if err != nil {
			return nil, err
		}
	}

	paymentStatus := order.PaymentStatus
	if forcePaymentPending {
		paymentStatus = enum.PaymentStatusPending
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            order.ID,
		Status:        newStored,
		PaymentStatus: paymentStatus,
		DeliveryFee:   decimalToNumeric(fee),
		Total:         decimalToNumeric(orderTotal(order, fee)),
		Metadata:      encoded,
		PrevStatus:    order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderChanged
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	items, err := store.ListOrderItemsDetailed(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{
		Order:     updated,
		Items:     items,
		Metadata:  bag,
		Presented: status.Present(updated.Status, updated.PaymentStatus, bag),
	}, nil
}

// SetDeliveryFee overrides the delivery fee and recomputes the total.
// Independent of status; same authorization as UpdateStatus.
func (s *OrderService) SetDeliveryFee(ctx context.Context, orderID, actorID uuid.UUID, rawFee string) (*OrderResult, error) {
	fee, err := parseFee(rawFee)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := s.authorizeFarmOwner(ctx, store, order.ID, actorID); err != nil {
		return nil, err
	}

	updated, err := store.SetOrderDeliveryFee(ctx, database.SetOrderDeliveryFeeParams{
		ID:          order.ID,
		DeliveryFee: decimalToNumeric(fee),
		Total:       decimalToNumeric(orderTotal(order, fee)),
	})
	if err != nil {
		return nil, fmt.Errorf("set delivery fee: %w", err)
	}

	items, err := store.ListOrderItemsDetailed(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	bag, err := meta.Decode(updated.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &OrderResult{
		Order:     updated,
		Items:     items,
		Metadata:  bag,
		Presented: status.Present(updated.Status, updated.PaymentStatus, bag),
	}, nil
}

// Cancel cancels a pending or confirmed order and restores every line item's
// quantity to the product's stock. The status flip and the restoration commit
// together, and the status precondition in the UPDATE guarantees the
// restoration runs at most once per order.
func (s *OrderService) Cancel(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Status != enum.OrderStatusPending && order.Status != enum.OrderStatusConfirmed {
		return nil, fmt.Errorf("%w: only pending or confirmed orders can be cancelled (current: %s)",
			ErrInvalidTransition, order.Status)
	}

	// The customer who placed the order or the owner of the farm may cancel.
	if order.CustomerID != actorID {
		if err := s.authorizeFarmOwner(ctx, store, order.ID, actorID); err != nil {
			return nil, err
		}
	}

	bag, err := meta.Decode(order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	bag.Merge(meta.Bag{meta.KeyCancellationReason: reason})
	encoded, err := bag.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	cancelled, err := store.CancelOrder(ctx, database.CancelOrderParams{
		ID:       order.ID,
		Metadata: encoded,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Status changed between our read and the guarded update.
			return nil, ErrOrderChanged
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	items, err := store.ListOrderItemsDetailed(ctx, cancelled.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	for _, it := range items {
		if err := store.RestoreProductStock(ctx, database.RestoreProductStockParams{
			ID:       it.ProductID,
			Quantity: it.Quantity,
		}); err != nil {
			return nil, fmt.Errorf("restore stock for product %s: %w", it.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{
		Order:     cancelled,
		Items:     items,
		Metadata:  bag,
		Presented: status.Present(cancelled.Status, cancelled.PaymentStatus, bag),
	}, nil
}

// authorizeFarmOwner checks that actorID owns the farm the order belongs to.
func (s *OrderService) authorizeFarmOwner(ctx context.Context, store OrderStore, orderID, actorID uuid.UUID) error {
	farm, err := store.GetOrderFarm(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// An order with no line items cannot exist; treat as not found.
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order farm: %w", err)
	}
	if farm.OwnerID != actorID {
		return ErrAccessDenied
	}
	return nil
}

func parseFee(raw string) (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidFee
	}
	if fee.IsNegative() {
		return decimal.Zero, ErrNegativeFee
	}
	return fee, nil
}
