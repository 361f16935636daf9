package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, status, subtotal, discount, tax, delivery_fee, total,
payment_status, payment_method, delivery_address, notes, metadata, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.Subtotal, &o.Discount, &o.Tax,
		&o.DeliveryFee, &o.Total, &o.PaymentStatus, &o.PaymentMethod,
		&o.DeliveryAddress, &o.Notes, &o.Metadata, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// GetProductForOrderRow carries everything the order builder needs to check a
// line item: pricing, availability and the owning farm.
type GetProductForOrderRow struct {
	ID              uuid.UUID
	FarmID          uuid.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountPercent pgtype.Numeric
	Stock           int32
	IsAvailable     bool
}

const getProductForOrder = `
SELECT id, farm_id, name, price, discount_percent, stock, is_available
FROM store_products
WHERE id = $1
`

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (GetProductForOrderRow, error) {
	var p GetProductForOrderRow
	err := q.db.QueryRow(ctx, getProductForOrder, id).Scan(
		&p.ID, &p.FarmID, &p.Name, &p.Price, &p.DiscountPercent, &p.Stock, &p.IsAvailable,
	)
	return p, err
}

type DecrementProductStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

// The stock check and the decrement are one conditional statement so two
// concurrent placements cannot both pass a read-side check and jointly
// oversell. Zero rows affected means the stock moved underneath us.
const decrementProductStock = `
UPDATE store_products
SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND is_available AND stock >= $2
`

func (q *Queries) DecrementProductStock(ctx context.Context, arg DecrementProductStockParams) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementProductStock, arg.ID, arg.Quantity)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type RestoreProductStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

const restoreProductStock = `
UPDATE store_products
SET stock = stock + $2, updated_at = now()
WHERE id = $1
`

func (q *Queries) RestoreProductStock(ctx context.Context, arg RestoreProductStockParams) error {
	_, err := q.db.Exec(ctx, restoreProductStock, arg.ID, arg.Quantity)
	return err
}

type CreateOrderParams struct {
	CustomerID      uuid.UUID
	Status          string
	Subtotal        pgtype.Numeric
	Discount        pgtype.Numeric
	Tax             pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	Total           pgtype.Numeric
	PaymentStatus   string
	PaymentMethod   string
	DeliveryAddress string
	Notes           pgtype.Text
	Metadata        []byte
}

const createOrder = `
INSERT INTO orders (
	customer_id, status, subtotal, discount, tax, delivery_fee, total,
	payment_status, payment_method, delivery_address, notes, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.CustomerID, arg.Status, arg.Subtotal, arg.Discount, arg.Tax,
		arg.DeliveryFee, arg.Total, arg.PaymentStatus, arg.PaymentMethod,
		arg.DeliveryAddress, arg.Notes, arg.Metadata,
	))
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Position  int32
	Quantity  int32
	UnitPrice pgtype.Numeric
	LineTotal pgtype.Numeric
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, position, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, product_id, position, quantity, unit_price, line_total, created_at
`

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Position, arg.Quantity, arg.UnitPrice, arg.LineTotal,
	).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Position, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.CreatedAt)
	return it, err
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// OrderItemDetailRow is a line item joined with catalog display data.
type OrderItemDetailRow struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	Position     int32
	Quantity     int32
	UnitPrice    pgtype.Numeric
	LineTotal    pgtype.Numeric
	ProductName  string
	CategoryName pgtype.Text
	FarmID       uuid.UUID
}

const listOrderItemsDetailed = `
SELECT oi.id, oi.order_id, oi.product_id, oi.position, oi.quantity, oi.unit_price, oi.line_total,
       p.name, c.name, p.farm_id
FROM order_items oi
JOIN store_products p ON p.id = oi.product_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE oi.order_id = $1
ORDER BY oi.position
`

func (q *Queries) ListOrderItemsDetailed(ctx context.Context, orderID uuid.UUID) ([]OrderItemDetailRow, error) {
	rows, err := q.db.Query(ctx, listOrderItemsDetailed, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItemDetailRow
	for rows.Next() {
		var it OrderItemDetailRow
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.Position, &it.Quantity,
			&it.UnitPrice, &it.LineTotal, &it.ProductName, &it.CategoryName, &it.FarmID,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrderFarmRow identifies the farm an order belongs to and who owns it.
type GetOrderFarmRow struct {
	FarmID  uuid.UUID
	OwnerID uuid.UUID
}

// The farm is derived from the order's first line item; placement enforces
// that all items share one farm.
const getOrderFarm = `
SELECT p.farm_id, f.owner_id
FROM order_items oi
JOIN store_products p ON p.id = oi.product_id
JOIN farms f ON f.id = p.farm_id
WHERE oi.order_id = $1
ORDER BY oi.position
LIMIT 1
`

func (q *Queries) GetOrderFarm(ctx context.Context, orderID uuid.UUID) (GetOrderFarmRow, error) {
	var r GetOrderFarmRow
	err := q.db.QueryRow(ctx, getOrderFarm, orderID).Scan(&r.FarmID, &r.OwnerID)
	return r, err
}

type UpdateOrderStatusParams struct {
	ID            uuid.UUID
	Status        string
	PaymentStatus string
	DeliveryFee   pgtype.Numeric
	Total         pgtype.Numeric
	Metadata      []byte
	// PrevStatus guards against a concurrent transition between our read and
	// this write; no rows updated means the order changed underneath us.
	PrevStatus string
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, payment_status = $3, delivery_fee = $4, total = $5, metadata = $6, updated_at = now()
WHERE id = $1 AND status = $7
RETURNING ` + orderColumns

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID, arg.Status, arg.PaymentStatus, arg.DeliveryFee, arg.Total, arg.Metadata, arg.PrevStatus,
	))
}

type SetOrderDeliveryFeeParams struct {
	ID          uuid.UUID
	DeliveryFee pgtype.Numeric
	Total       pgtype.Numeric
}

const setOrderDeliveryFee = `
UPDATE orders
SET delivery_fee = $2, total = $3, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

func (q *Queries) SetOrderDeliveryFee(ctx context.Context, arg SetOrderDeliveryFeeParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderDeliveryFee, arg.ID, arg.DeliveryFee, arg.Total))
}

type CancelOrderParams struct {
	ID       uuid.UUID
	Metadata []byte
}

// The status precondition lives in the statement itself: only pending or
// confirmed orders flip to cancelled, so stock restoration can never run twice
// for the same order.
const cancelOrder = `
UPDATE orders
SET status = 'cancelled', metadata = $2, updated_at = now()
WHERE id = $1 AND status IN ('pending', 'confirmed')
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, arg.ID, arg.Metadata))
}

type ListOrdersByCustomerParams struct {
	CustomerID         uuid.UUID
	Status             pgtype.Text
	RequirePaymentInfo bool
	Limit              int32
	Offset             int32
}

const listOrdersByCustomer = `
SELECT ` + orderColumns + `
FROM orders
WHERE customer_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::boolean OR (payment_status = 'pending' AND COALESCE(metadata->>'payment_info', '') <> ''))
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

func (q *Queries) ListOrdersByCustomer(ctx context.Context, arg ListOrdersByCustomerParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByCustomer,
		arg.CustomerID, arg.Status, arg.RequirePaymentInfo, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

type CountOrdersByCustomerParams struct {
	CustomerID         uuid.UUID
	Status             pgtype.Text
	RequirePaymentInfo bool
}

const countOrdersByCustomer = `
SELECT count(*)
FROM orders
WHERE customer_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::boolean OR (payment_status = 'pending' AND COALESCE(metadata->>'payment_info', '') <> ''))
`

func (q *Queries) CountOrdersByCustomer(ctx context.Context, arg CountOrdersByCustomerParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersByCustomer, arg.CustomerID, arg.Status, arg.RequirePaymentInfo).Scan(&n)
	return n, err
}

type ListOrdersByFarmParams struct {
	FarmID             uuid.UUID
	Status             pgtype.Text
	RequirePaymentInfo bool
	Limit              int32
	Offset             int32
}

const listOrdersByFarm = `
SELECT ` + orderColumns + `
FROM orders
WHERE id IN (
	SELECT oi.order_id
	FROM order_items oi
	JOIN store_products p ON p.id = oi.product_id
	WHERE p.farm_id = $1
)
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::boolean OR (payment_status = 'pending' AND COALESCE(metadata->>'payment_info', '') <> ''))
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

func (q *Queries) ListOrdersByFarm(ctx context.Context, arg ListOrdersByFarmParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByFarm,
		arg.FarmID, arg.Status, arg.RequirePaymentInfo, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

type CountOrdersByFarmParams struct {
	FarmID             uuid.UUID
	Status             pgtype.Text
	RequirePaymentInfo bool
}

const countOrdersByFarm = `
SELECT count(*)
FROM orders
WHERE id IN (
	SELECT oi.order_id
	FROM order_items oi
	JOIN store_products p ON p.id = oi.product_id
	WHERE p.farm_id = $1
)
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::boolean OR (payment_status = 'pending' AND COALESCE(metadata->>'payment_info', '') <> ''))
`

func (q *Queries) CountOrdersByFarm(ctx context.Context, arg CountOrdersByFarmParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersByFarm, arg.FarmID, arg.Status, arg.RequirePaymentInfo).Scan(&n)
	return n, err
}

type GetOrderByCartTokenParams struct {
	CustomerID uuid.UUID
	Token      string
}

// Used for idempotent replays of a checkout carrying the same temp_cart_id.
const getOrderByCartToken = `
SELECT ` + orderColumns + `
FROM orders
WHERE customer_id = $1 AND metadata->>'temp_cart_id' = $2
ORDER BY created_at DESC
LIMIT 1
`

func (q *Queries) GetOrderByCartToken(ctx context.Context, arg GetOrderByCartTokenParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByCartToken, arg.CustomerID, arg.Token))
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
