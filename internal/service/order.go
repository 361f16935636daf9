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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the order service.
var (
	ErrEmptyItems         = errors.New("items are required")
	ErrMissingAddress     = errors.New("delivery_address is required")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidProductID   = errors.New("invalid product_id")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStockConflict      = errors.New("stock changed, please retry")
	ErrMixedFarms         = errors.New("all items must belong to the same farm")
	ErrOrderNotFound      = errors.New("order not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrOrderChanged       = errors.New("order changed, please retry")
	ErrInvalidFee         = errors.New("invalid delivery_fee")
	ErrNegativeFee        = errors.New("delivery_fee must not be negative")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order engine needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error)
	DecrementProductStock(ctx context.Context, arg database.DecrementProductStockParams) (int64, error)
	RestoreProductStock(ctx context.Context, arg database.RestoreProductStockParams) error
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByCartToken(ctx context.Context, arg database.GetOrderByCartTokenParams) (database.Order, error)
	ListOrderItemsDetailed(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemDetailRow, error)
	GetOrderFarm(ctx context.Context, orderID uuid.UUID) (database.GetOrderFarmRow, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetOrderDeliveryFee(ctx context.Context, arg database.SetOrderDeliveryFeeParams) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	ListOrdersByCustomer(ctx context.Context, arg database.ListOrdersByCustomerParams) ([]database.Order, error)
	CountOrdersByCustomer(ctx context.Context, arg database.CountOrdersByCustomerParams) (int64, error)
	ListOrdersByFarm(ctx context.Context, arg database.ListOrdersByFarmParams) ([]database.Order, error)
	CountOrdersByFarm(ctx context.Context, arg database.CountOrdersByFarmParams) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// OrderService handles the order lifecycle: placement, status transitions,
// delivery-fee edits, cancellation with stock restoration, and listings.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore // pool-bound, for reads outside a transaction
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore}
}

// PlaceOrderItem is a single {product, quantity} pair in a checkout.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int32
}

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	CustomerID      uuid.UUID
	DeliveryAddress string
	DeliveryFee     string // decimal string, optional
	Notes           string
	PaymentMethod   string
	CustomerPhone   string
	CartToken       string // idempotency token carried over from the cart
	Items           []PlaceOrderItem
}

// OrderResult is an order with its enriched line items and presented status.
type OrderResult struct {
	Order     database.Order
	Items     []database.OrderItemDetailRow
	Metadata  meta.Bag
	Presented status.Presented
}

// placedLine holds a prepared line item during placement.
type placedLine struct {
	productID uuid.UUID
	quantity  int32
	unitPrice decimal.Decimal
	lineTotal decimal.Decimal
}

// PlaceOrder validates the cart against current stock, snapshots discounted
// unit prices, and creates the order, its line items and the stock decrements
// in one transaction. A request replaying a cart token returns the order
// already placed for it instead of creating a duplicate.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if req.DeliveryAddress == "" {
		return nil, ErrMissingAddress
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	deliveryFee := decimal.Zero
	if req.DeliveryFee != "" {
		fee, err := parseFee(req.DeliveryFee)
		if err != nil {
			return nil, err
		}
		deliveryFee = fee
	}

	// Replay guard: an order already carrying this cart token wins.
	if req.CartToken != "" {
		existing, err := s.store.GetOrderByCartToken(ctx, database.GetOrderByCartTokenParams{
			CustomerID: req.CustomerID,
			Token:      req.CartToken,
		})
		if err == nil {
			return s.buildResult(ctx, s.store, existing)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup cart token: %w", err)
		}
	}

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Validate items and snapshot prices ---
	subtotal := decimal.Zero
	var farmID uuid.UUID
	var lines []placedLine

	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}

		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidProductID)
		}

		product, err := store.GetProductForOrder(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d] product %s: %w", i, productID, ErrProductNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get product: %w", i, err)
		}
		if !product.IsAvailable {
			return nil, fmt.Errorf("items[%d] product %s: %w", i, productID, ErrProductUnavailable)
		}
		if product.Stock < item.Quantity {
			return nil, fmt.Errorf("items[%d] product %s: requested %d, available %d: %w",
				i, productID, item.Quantity, product.Stock, ErrInsufficientStock)
		}

		// One order belongs to one farm; mixed carts are rejected up front.
		if i == 0 {
			farmID = product.FarmID
		} else if product.FarmID != farmID {
			return nil, fmt.Errorf("items[%d] product %s: %w", i, productID, ErrMixedFarms)
		}

		// Unit price is the current discounted price, snapshotted into the
		// line item. Later catalog changes never touch a placed order.
		unitPrice := discountedPrice(numericToDecimal(product.Price), numericToDecimal(product.DiscountPercent))
		lineTotal := unitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		subtotal = subtotal.Add(lineTotal)

		lines = append(lines, placedLine{
			productID: productID,
			quantity:  item.Quantity,
			unitPrice: unitPrice,
			lineTotal: lineTotal,
		})
	}

	discount := decimal.Zero
	tax := decimal.Zero
	total := subtotal.Sub(discount).Add(tax).Add(deliveryFee)

	bag := meta.Bag{}
	bag.Merge(meta.Bag{
		meta.KeyCustomerPhone: req.CustomerPhone,
		meta.KeyTempCartID:    req.CartToken,
	})
	encoded, err := bag.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCashOnDelivery
	}

	// --- Insert order ---
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:      req.CustomerID,
		Status:          enum.OrderStatusPending,
		Subtotal:        decimalToNumeric(subtotal),
		Discount:        decimalToNumeric(discount),
		Tax:             decimalToNumeric(tax),
		DeliveryFee:     decimalToNumeric(deliveryFee),
		Total:           decimalToNumeric(total),
		PaymentStatus:   enum.PaymentStatusPending,
		PaymentMethod:   paymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           textOrNull(req.Notes),
		Metadata:        encoded,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Insert items and decrement stock ---
	for i, line := range lines {
		_, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: line.productID,
			Position:  int32(i),
			Quantity:  line.quantity,
			UnitPrice: decimalToNumeric(line.unitPrice),
			LineTotal: decimalToNumeric(line.lineTotal),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}

		affected, err := store.DecrementProductStock(ctx, database.DecrementProductStockParams{
			ID:       line.productID,
			Quantity: line.quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if affected == 0 {
			// A concurrent placement won the stock between our validation
			// read and this decrement; everything rolls back.
			return nil, fmt.Errorf("items[%d] product %s: %w", i, line.productID, ErrStockConflict)
		}
	}

	items, err := store.ListOrderItemsDetailed(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{
		Order:     order,
		Items:     items,
		Metadata:  bag,
		Presented: status.Present(order.Status, order.PaymentStatus, bag),
	}, nil
}

// buildResult loads enriched items and computes the presented status for an
// order row.
func (s *OrderService) buildResult(ctx context.Context, store OrderStore, order database.Order) (*OrderResult, error) {
	items, err := store.ListOrderItemsDetailed(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	bag, err := meta.Decode(order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &OrderResult{
		Order:     order,
		Items:     items,
		Metadata:  bag,
		Presented: status.Present(order.Status, order.PaymentStatus, bag),
	}, nil
}

// --- Helpers ---

// discountedPrice reduces price by discountPercent (0 when none).
func discountedPrice(price, discountPercent decimal.Decimal) decimal.Decimal {
	if discountPercent.IsZero() {
		return price
	}
	hundred := decimal.NewFromInt(100)
	return price.Mul(hundred.Sub(discountPercent)).Div(hundred)
}

// orderTotal recomputes the invariant total = subtotal - discount + tax + fee.
func orderTotal(o database.Order, fee decimal.Decimal) decimal.Decimal {
	return numericToDecimal(o.Subtotal).
		Sub(numericToDecimal(o.Discount)).
		Add(numericToDecimal(o.Tax)).
		Add(fee)
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
