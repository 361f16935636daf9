package service

import (
	"context"
	"errors"
	"testing"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// transitionStore returns a mock preloaded with one order owned by ownerID's
// farm. The order starts pending with empty metadata.
func transitionStore(orderID, customerID, farmID, ownerID uuid.UUID) *mockOrderStore {
	order := database.Order{
		ID:              orderID,
		CustomerID:      customerID,
		Status:          "pending",
		Subtotal:        makeNumeric("155.00"),
		Discount:        makeNumeric("0.00"),
		Tax:             makeNumeric("0.00"),
		DeliveryFee:     makeNumeric("0.00"),
		Total:           makeNumeric("155.00"),
		PaymentStatus:   "pending",
		PaymentMethod:   "cash_on_delivery",
		DeliveryAddress: "somewhere",
		Metadata:        []byte(`{}`),
	}
	return &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			if id == orderID {
				return order, nil
			}
			return database.Order{}, pgx.ErrNoRows
		},
		getOrderFarmFn: func(ctx context.Context, oid uuid.UUID) (database.GetOrderFarmRow, error) {
			return database.GetOrderFarmRow{FarmID: farmID, OwnerID: ownerID}, nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			updated := order
			updated.Status = arg.Status
			updated.PaymentStatus = arg.PaymentStatus
			updated.DeliveryFee = arg.DeliveryFee
			updated.Total = arg.Total
			updated.Metadata = arg.Metadata
			return updated, nil
		},
		setOrderDeliveryFeeFn: func(ctx context.Context, arg database.SetOrderDeliveryFeeParams) (database.Order, error) {
			updated := order
			updated.DeliveryFee = arg.DeliveryFee
			updated.Total = arg.Total
			return updated, nil
		},
		cancelOrderFn: func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
			updated := order
			updated.Status = "cancelled"
			updated.Metadata = arg.Metadata
			return updated, nil
		},
		restoreProductStockFn: func(ctx context.Context, arg database.RestoreProductStockParams) error {
			return nil
		},
		listOrderItemsDetailedFn: func(ctx context.Context, oid uuid.UUID) ([]database.OrderItemDetailRow, error) {
			return []database.OrderItemDetailRow{
				{
					ID:        uuid.New(),
					OrderID:   orderID,
					ProductID: uuid.New(),
					Position:  0,
					Quantity:  2,
					UnitPrice: makeNumeric("60.00"),
					LineTotal: makeNumeric("120.00"),
					FarmID:    farmID,
				},
			}, nil
		},
	}
}

// =====================
// Status transitions
// =====================

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)
	svc, _ := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "teleported",
	})
	if !errors.Is(err, status.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got: %v", err)
	}
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	store := transitionStore(uuid.New(), uuid.New(), uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: uuid.New(), // unknown
		ActorID: uuid.New(),
		Status:  "confirmed",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestUpdateStatus_UnknownOrderReportsNotFoundBeforeStatusCheck(t *testing.T) {
	store := transitionStore(uuid.New(), uuid.New(), uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	// Unknown order and garbage status: the missing order wins.
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: uuid.New(),
		ActorID: uuid.New(),
		Status:  "teleported",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestUpdateStatus_CancelledTargetRejected(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		t.Fatal("UpdateOrderStatus must not write a cancelled status")
		return database.Order{}, nil
	}
	restores := 0
	store.restoreProductStockFn = func(ctx context.Context, arg database.RestoreProductStockParams) error {
		restores++
		return nil
	}

	svc, tx := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "cancelled",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
	if restores != 0 {
		t.Fatalf("expected no stock restorations, got %d", restores)
	}
	if tx.committed {
		t.Fatal("transaction must not commit for a rejected transition")
	}
}

func TestUpdateStatus_AccessDenied(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)
	svc, _ := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: uuid.New(), // not the farm owner
		Status:  "confirmed",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got: %v", err)
	}
}

func TestUpdateStatus_InTransitStoresShipped(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	var captured database.UpdateOrderStatusParams
	inner := store.updateOrderStatusFn
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(store)

	result, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "in_transit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Status != "shipped" {
		t.Errorf("stored status: got %s, want shipped", captured.Status)
	}
	if result.Presented != status.InTransit {
		t.Errorf("presented: got %s, want in_transit", result.Presented)
	}
}

func TestUpdateStatus_OnTransitAlias(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)
	svc, _ := newTestService(store)

	result, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "on-transit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != "shipped" {
		t.Errorf("stored status: got %s, want shipped", result.Order.Status)
	}
}

func TestUpdateStatus_WaitingForPaymentForcesPaymentPending(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	// The order already has a completed payment on record; moving it to
	// waiting_for_payment must pin payment status back to pending.
	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil {
			o.PaymentStatus = "completed"
		}
		return o, err
	}

	var captured database.UpdateOrderStatusParams
	inner := store.updateOrderStatusFn
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(store)

	result, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "waiting_for_payment",
		Extras:  StatusExtras{PaymentInfo: "bkash: 01712345678"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Status != "pending" {
		t.Errorf("stored status: got %s, want pending", captured.Status)
	}
	if captured.PaymentStatus != "pending" {
		t.Errorf("payment status: got %s, want pending", captured.PaymentStatus)
	}
	if result.Presented != status.WaitingForPayment {
		t.Errorf("presented: got %s, want waiting_for_payment", result.Presented)
	}
}

func TestUpdateStatus_TerminalRejected(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil {
			o.Status = "delivered"
		}
		return o, err
	}

	svc, _ := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "confirmed",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestUpdateStatus_TerminalSameStatusNoOp(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil {
			o.Status = "delivered"
		}
		return o, err
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		t.Fatal("UpdateOrderStatus must not be called for a terminal no-op")
		return database.Order{}, nil
	}

	svc, _ := newTestService(store)

	result, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "delivered",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Presented != status.Delivered {
		t.Errorf("presented: got %s, want delivered", result.Presented)
	}
}

func TestUpdateStatus_ConcurrentChange(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		// Guarded update matched nothing: the status moved underneath us.
		return database.Order{}, pgx.ErrNoRows
	}

	svc, tx := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "confirmed",
	})
	if !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged, got: %v", err)
	}
	if tx.committed {
		t.Fatal("transaction must not commit after a lost race")
	}
}

func TestUpdateStatus_MergePreservesExistingMetadata(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil {
			o.Metadata = []byte(`{"payment_info":"bkash: 01712345678","customer_phone":"+880171"}`)
		}
		return o, err
	}

	svc, _ := newTestService(store)

	// Extras only carry a courier contact; payment keys must survive.
	result, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: orderID,
		ActorID: ownerID,
		Status:  "in_transit",
		Extras:  StatusExtras{CourierContact: "Pathao 0199"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Metadata.Get("payment_info") != "bkash: 01712345678" {
		t.Errorf("payment_info clobbered: got %q", result.Metadata.Get("payment_info"))
	}
	if result.Metadata.Get("courier_contact") != "Pathao 0199" {
		t.Errorf("courier_contact: got %q", result.Metadata.Get("courier_contact"))
	}
	if result.Metadata.Get("customer_phone") != "+880171" {
		t.Errorf("customer_phone clobbered: got %q", result.Metadata.Get("customer_phone"))
	}
}

func TestUpdateStatus_FeeOverrideRecomputesTotal(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	var captured database.UpdateOrderStatusParams
	inner := store.updateOrderStatusFn
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(store)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:     orderID,
		ActorID:     ownerID,
		Status:      "confirmed",
		DeliveryFee: "45",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(captured.DeliveryFee, "45.00") {
		t.Errorf("delivery fee: got %v, want 45.00", numericToDecimal(captured.DeliveryFee))
	}
	// subtotal 155 - discount 0 + tax 0 + fee 45 = 200
	if !numericEquals(captured.Total, "200.00") {
		t.Errorf("total: got %v, want 200.00", numericToDecimal(captured.Total))
	}
}

// =====================
// Delivery fee
// =====================

func TestSetDeliveryFee_RecomputesTotal(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)

	var captured database.SetOrderDeliveryFeeParams
	inner := store.setOrderDeliveryFeeFn
	store.setOrderDeliveryFeeFn = func(ctx context.Context, arg database.SetOrderDeliveryFeeParams) (database.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, tx := newTestService(store)

	_, err := svc.SetDeliveryFee(context.Background(), orderID, ownerID, "60")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed {
		t.Fatal("transaction was not committed")
	}
	if !numericEquals(captured.Total, "215.00") {
		t.Errorf("total: got %v, want 215.00", numericToDecimal(captured.Total))
	}
}

func TestSetDeliveryFee_NegativeFee(t *testing.T) {
	orderID, ownerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), ownerID)
	svc, _ := newTestService(store)

	_, err := svc.SetDeliveryFee(context.Background(), orderID, ownerID, "-5")
	if !errors.Is(err, ErrNegativeFee) {
		t.Fatalf("expected ErrNegativeFee, got: %v", err)
	}
}

func TestSetDeliveryFee_AccessDenied(t *testing.T) {
	orderID := uuid.New()
	store := transitionStore(orderID, uuid.New(), uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.SetDeliveryFee(context.Background(), orderID, uuid.New(), "60")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got: %v", err)
	}
}

// =====================
// Cancellation
// =====================

func TestCancel_CustomerRestoresStock(t *testing.T) {
	orderID, customerID, ownerID := uuid.New(), uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), ownerID)

	var restored []database.RestoreProductStockParams
	store.restoreProductStockFn = func(ctx context.Context, arg database.RestoreProductStockParams) error {
		restored = append(restored, arg)
		return nil
	}

	svc, tx := newTestService(store)

	result, err := svc.Cancel(context.Background(), orderID, customerID, "changed my mind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed {
		t.Fatal("transaction was not committed")
	}
	if len(restored) != 1 {
		t.Fatalf("expected 1 stock restoration, got %d", len(restored))
	}
	if restored[0].Quantity != 2 {
		t.Errorf("restored quantity: got %d, want 2", restored[0].Quantity)
	}
	if result.Presented != status.Cancelled {
		t.Errorf("presented: got %s, want cancelled", result.Presented)
	}
	if result.Metadata.Get("cancellation_reason") != "changed my mind" {
		t.Errorf("cancellation_reason: got %q", result.Metadata.Get("cancellation_reason"))
	}
}

func TestCancel_SecondCancelFailsWithoutDoubleRestore(t *testing.T) {
	orderID, customerID, ownerID := uuid.New(), uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), ownerID)

	// The store flips to cancelled after the first successful cancel.
	cancelled := false
	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil && cancelled {
			o.Status = "cancelled"
		}
		return o, err
	}
	innerCancel := store.cancelOrderFn
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		cancelled = true
		return innerCancel(ctx, arg)
	}
	restores := 0
	store.restoreProductStockFn = func(ctx context.Context, arg database.RestoreProductStockParams) error {
		restores++
		return nil
	}

	svc, _ := newTestService(store)

	if _, err := svc.Cancel(context.Background(), orderID, customerID, "first"); err != nil {
		t.Fatalf("first cancel: unexpected error: %v", err)
	}
	if restores != 1 {
		t.Fatalf("after first cancel: expected 1 stock restoration, got %d", restores)
	}

	_, err := svc.Cancel(context.Background(), orderID, customerID, "second")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel: expected ErrInvalidTransition, got: %v", err)
	}
	if restores != 1 {
		t.Fatalf("stock must be restored exactly once, got %d restorations", restores)
	}
}

func TestCancel_FarmOwnerAllowed(t *testing.T) {
	orderID, customerID, ownerID := uuid.New(), uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), ownerID)
	svc, _ := newTestService(store)

	if _, err := svc.Cancel(context.Background(), orderID, ownerID, "out of stock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCancel_StrangerDenied(t *testing.T) {
	orderID, customerID, ownerID := uuid.New(), uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), ownerID)
	svc, _ := newTestService(store)

	_, err := svc.Cancel(context.Background(), orderID, uuid.New(), "")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got: %v", err)
	}
}

func TestCancel_ShippedRejected(t *testing.T) {
	orderID, customerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), uuid.New())

	base := store.getOrderFn
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o, err := base(ctx, id)
		if err == nil {
			o.Status = "shipped"
		}
		return o, err
	}

	svc, _ := newTestService(store)

	_, err := svc.Cancel(context.Background(), orderID, customerID, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestCancel_ConcurrentChange(t *testing.T) {
	orderID, customerID := uuid.New(), uuid.New()
	store := transitionStore(orderID, customerID, uuid.New(), uuid.New())
	store.cancelOrderFn = func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}
	store.restoreProductStockFn = func(ctx context.Context, arg database.RestoreProductStockParams) error {
		t.Fatal("stock must not be restored when the cancel was lost")
		return nil
	}

	svc, tx := newTestService(store)

	_, err := svc.Cancel(context.Background(), orderID, customerID, "")
	if !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged, got: %v", err)
	}
	if tx.committed {
		t.Fatal("transaction must not commit after a lost race")
	}
}

func TestCancel_OrderNotFound(t *testing.T) {
	store := transitionStore(uuid.New(), uuid.New(), uuid.New(), uuid.New())
	svc, _ := newTestService(store)

	_, err := svc.Cancel(context.Background(), uuid.New(), uuid.New(), "")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}
