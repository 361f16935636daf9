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

// queryStore returns a mock whose listings echo the filter parameters back so
// tests can assert the SQL-facing translation.
func queryStore(orders []database.Order, count int64) *mockOrderStore {
	return &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{}, pgx.ErrNoRows
		},
		listOrdersByCustomerFn: func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
			return orders, nil
		},
		countOrdersByCustomerFn: func(ctx context.Context, arg database.CountOrdersByCustomerParams) (int64, error) {
			return count, nil
		},
		listOrdersByFarmFn: func(ctx context.Context, arg database.ListOrdersByFarmParams) ([]database.Order, error) {
			return orders, nil
		},
		countOrdersByFarmFn: func(ctx context.Context, arg database.CountOrdersByFarmParams) (int64, error) {
			return count, nil
		},
		listOrderItemsDetailedFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemDetailRow, error) {
			return nil, nil
		},
	}
}

func sampleOrders(n int) []database.Order {
	orders := make([]database.Order, n)
	for i := range orders {
		orders[i] = database.Order{
			ID:            uuid.New(),
			Status:        "pending",
			PaymentStatus: "pending",
			Metadata:      []byte(`{}`),
		}
	}
	return orders
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _ := newTestService(queryStore(nil, 0))

	_, err := svc.GetOrder(context.Background(), uuid.New())
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestListByCustomer_InvalidFilter(t *testing.T) {
	svc, _ := newTestService(queryStore(nil, 0))

	_, err := svc.ListByCustomer(context.Background(), uuid.New(), "bogus", 1, 20)
	if !errors.Is(err, status.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got: %v", err)
	}
}

func TestListByCustomer_WildcardFilters(t *testing.T) {
	for _, raw := range []string{"", "all"} {
		store := queryStore(sampleOrders(2), 2)

		var captured database.ListOrdersByCustomerParams
		inner := store.listOrdersByCustomerFn
		store.listOrdersByCustomerFn = func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
			captured = arg
			return inner(ctx, arg)
		}

		svc, _ := newTestService(store)
		if _, err := svc.ListByCustomer(context.Background(), uuid.New(), raw, 1, 20); err != nil {
			t.Fatalf("filter %q: unexpected error: %v", raw, err)
		}
		if captured.Status.Valid {
			t.Errorf("filter %q: expected NULL status predicate, got %q", raw, captured.Status.String)
		}
		if captured.RequirePaymentInfo {
			t.Errorf("filter %q: RequirePaymentInfo should be false", raw)
		}
	}
}

func TestListByCustomer_WaitingForPaymentFilter(t *testing.T) {
	store := queryStore(sampleOrders(1), 1)

	var captured database.ListOrdersByCustomerParams
	inner := store.listOrdersByCustomerFn
	store.listOrdersByCustomerFn = func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
		captured = arg
		return inner(ctx, arg)
	}

	svc, _ := newTestService(store)
	if _, err := svc.ListByCustomer(context.Background(), uuid.New(), "waiting_for_payment", 1, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// waiting_for_payment orders are stored as pending plus metadata predicates
	if !captured.Status.Valid || captured.Status.String != "pending" {
		t.Errorf("status predicate: got %+v, want pending", captured.Status)
	}
	if !captured.RequirePaymentInfo {
		t.Error("RequirePaymentInfo should be true for waiting_for_payment")
	}
}

func TestListByCustomer_InTransitFilterMapsToShipped(t *testing.T) {
	store := queryStore(nil, 0)

	var captured database.ListOrdersByCustomerParams
	store.listOrdersByCustomerFn = func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
		captured = arg
		return nil, nil
	}

	svc, _ := newTestService(store)
	if _, err := svc.ListByCustomer(context.Background(), uuid.New(), "in_transit", 1, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Status.String != "shipped" {
		t.Errorf("status predicate: got %q, want shipped", captured.Status.String)
	}
}

func TestListByCustomer_PaginationClamps(t *testing.T) {
	store := queryStore(nil, 0)

	var captured database.ListOrdersByCustomerParams
	store.listOrdersByCustomerFn = func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
		captured = arg
		return nil, nil
	}

	svc, _ := newTestService(store)

	// Page 0 clamps to 1, size 0 falls back to the default.
	page, err := svc.ListByCustomer(context.Background(), uuid.New(), "", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.Page != 1 || page.Pagination.PageSize != 20 {
		t.Errorf("clamped pagination: got page=%d size=%d, want 1/20", page.Pagination.Page, page.Pagination.PageSize)
	}
	if captured.Limit != 20 || captured.Offset != 0 {
		t.Errorf("limit/offset: got %d/%d, want 20/0", captured.Limit, captured.Offset)
	}

	// Oversized page size clamps to the maximum.
	page, err = svc.ListByCustomer(context.Background(), uuid.New(), "", 3, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.PageSize != 100 {
		t.Errorf("clamped page size: got %d, want 100", page.Pagination.PageSize)
	}
	if captured.Offset != 200 {
		t.Errorf("offset: got %d, want 200", captured.Offset)
	}
}

func TestListByCustomer_AbsurdPageClamps(t *testing.T) {
	store := queryStore(nil, 0)

	var captured database.ListOrdersByCustomerParams
	store.listOrdersByCustomerFn = func(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error) {
		captured = arg
		return nil, nil
	}

	svc, _ := newTestService(store)

	// A huge page number must not wrap the int32 offset negative.
	page, err := svc.ListByCustomer(context.Background(), uuid.New(), "", 1<<40, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.Page != maxPage {
		t.Errorf("clamped page: got %d, want %d", page.Pagination.Page, maxPage)
	}
	if want := int32((maxPage - 1) * 100); captured.Offset != want {
		t.Errorf("offset: got %d, want %d", captured.Offset, want)
	}
	if captured.Offset < 0 {
		t.Fatalf("offset wrapped negative: %d", captured.Offset)
	}
}

func TestListByCustomer_TotalPages(t *testing.T) {
	store := queryStore(sampleOrders(20), 45)
	svc, _ := newTestService(store)

	page, err := svc.ListByCustomer(context.Background(), uuid.New(), "", 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.TotalCount != 45 {
		t.Errorf("total count: got %d, want 45", page.Pagination.TotalCount)
	}
	if page.Pagination.TotalPages != 3 {
		t.Errorf("total pages: got %d, want 3", page.Pagination.TotalPages)
	}
	if len(page.Orders) != 20 {
		t.Errorf("orders in page: got %d, want 20", len(page.Orders))
	}
}

func TestListByFarm_PresentsEachOrder(t *testing.T) {
	orders := sampleOrders(2)
	// One of them should present as waiting_for_payment via its metadata.
	orders[1].Metadata = []byte(`{"payment_info":"bkash: 0171"}`)

	store := queryStore(orders, 2)
	svc, _ := newTestService(store)

	page, err := svc.ListByFarm(context.Background(), uuid.New(), "", 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Orders[0].Presented != status.Pending {
		t.Errorf("order 0 presented: got %s, want pending", page.Orders[0].Presented)
	}
	if page.Orders[1].Presented != status.WaitingForPayment {
		t.Errorf("order 1 presented: got %s, want waiting_for_payment", page.Orders[1].Presented)
	}
}
