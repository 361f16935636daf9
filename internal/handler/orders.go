package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/enum"
	"github.com/agrihaat/api/internal/middleware"
	"github.com/agrihaat/api/internal/service"
	"github.com/agrihaat/api/internal/status"
	"github.com/agrihaat/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.OrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*service.OrderResult, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, statusFilter string, page, pageSize int) (*service.OrderPage, error)
	ListByFarm(ctx context.Context, farmID uuid.UUID, statusFilter string, page, pageSize int) (*service.OrderPage, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*service.OrderResult, error)
	SetDeliveryFee(ctx context.Context, orderID, actorID uuid.UUID, fee string) (*service.OrderResult, error)
	Cancel(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*service.OrderResult, error)
}

// OrderNotifier broadcasts order events to farm dashboards.
// Satisfied by *ws.Hub.
type OrderNotifier interface {
	BroadcastToFarm(farmID uuid.UUID, event ws.Event)
}

// OrderFarmStore looks up farms for the farm-side listing ownership check.
type OrderFarmStore interface {
	GetFarm(ctx context.Context, id uuid.UUID) (database.Farm, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	farms OrderFarmStore
	hub   OrderNotifier
}

// NewOrderHandler creates a new OrderHandler. hub may be nil in tests.
func NewOrderHandler(svc OrderServicer, farms OrderFarmStore, hub OrderNotifier) *OrderHandler {
	return &OrderHandler{svc: svc, farms: farms, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Place)
	r.Get("/", h.ListMine)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/delivery-fee", h.SetDeliveryFee)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type placeOrderRequest struct {
	Items           []placeOrderItemRequest `json:"items"`
	DeliveryAddress string                  `json:"delivery_address"`
	DeliveryFee     string                  `json:"delivery_fee"`
	Notes           string                  `json:"notes"`
	PaymentMethod   string                  `json:"payment_method"`
	CustomerPhone   string                  `json:"customer_phone"`
	TempCartID      string                  `json:"temp_cart_id"`
}

type placeOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type updateStatusRequest struct {
	Status           string `json:"status"`
	PaymentInfo      string `json:"payment_info"`
	PaymentMessage   string `json:"payment_message"`
	PaymentReference string `json:"payment_reference"`
	CourierContact   string `json:"courier_contact"`
	CourierRefID     string `json:"courier_ref_id"`
	DeliveryFee      string `json:"delivery_fee"`
}

type deliveryFeeRequest struct {
	DeliveryFee string `json:"delivery_fee"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	CategoryName *string   `json:"category_name"`
	FarmID       uuid.UUID `json:"farm_id"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    string    `json:"unit_price"`
	LineTotal    string    `json:"line_total"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	CustomerID      uuid.UUID           `json:"customer_id"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   string              `json:"payment_method"`
	Subtotal        string              `json:"subtotal"`
	Discount        string              `json:"discount"`
	Tax             string              `json:"tax"`
	DeliveryFee     string              `json:"delivery_fee"`
	Total           string              `json:"total"`
	DeliveryAddress string              `json:"delivery_address"`
	Notes           *string             `json:"notes"`
	Metadata        map[string]string   `json:"metadata"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []orderItemResponse `json:"items"`
}

type paginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

type orderListResponse struct {
	Orders     []orderResponse    `json:"orders"`
	Pagination paginationResponse `json:"pagination"`
}

// --- Handlers ---

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.DeliveryAddress == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delivery_address is required"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, it := range req.Items {
		if it.ProductID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "items[" + strconv.Itoa(i) + "]: product_id is required",
			})
			return
		}
		items[i] = service.PlaceOrderItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		CustomerID:      claims.UserID,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryFee:     req.DeliveryFee,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
		CustomerPhone:   req.CustomerPhone,
		CartToken:       req.TempCartID,
		Items:           items,
	})
	if err != nil {
		writeOrderError(w, "place order", err)
		return
	}

	h.notify("order.created", result)
	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	result, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeOrderError(w, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// ListMine handles GET /orders — the authenticated customer's orders.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	page, pageSize := parsePagination(r)
	result, err := h.svc.ListByCustomer(r.Context(), claims.UserID, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeOrderError(w, "list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(result))
}

// ListByFarm handles GET /farms/{fid}/orders. Only the farm's owner or an
// admin may see the farm's order queue.
func (h *OrderHandler) ListByFarm(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	farmID, err := uuid.Parse(chi.URLParam(r, "fid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid farm ID"})
		return
	}

	if claims.Role != enum.UserRoleAdmin {
		farm, err := h.farms.GetFarm(r.Context(), farmID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "farm not found"})
				return
			}
			log.Printf("ERROR: get farm: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		if farm.OwnerID != claims.UserID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
			return
		}
	}

	page, pageSize := parsePagination(r)
	result, err := h.svc.ListByFarm(r.Context(), farmID, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeOrderError(w, "list farm orders", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(result))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	result, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID: orderID,
		ActorID: claims.UserID,
		Status:  req.Status,
		Extras: service.StatusExtras{
			PaymentInfo:      req.PaymentInfo,
			PaymentMessage:   req.PaymentMessage,
			PaymentReference: req.PaymentReference,
			CourierContact:   req.CourierContact,
			CourierRefID:     req.CourierRefID,
		},
		DeliveryFee: req.DeliveryFee,
	})
	if err != nil {
		writeOrderError(w, "update order status", err)
		return
	}

	h.notify("order.updated", result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// SetDeliveryFee handles PATCH /orders/{id}/delivery-fee.
func (h *OrderHandler) SetDeliveryFee(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req deliveryFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.DeliveryFee == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delivery_fee is required"})
		return
	}

	result, err := h.svc.SetDeliveryFee(r.Context(), orderID, claims.UserID, req.DeliveryFee)
	if err != nil {
		writeOrderError(w, "set delivery fee", err)
		return
	}

	h.notify("order.updated", result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	// Reason is optional; an empty or absent body is fine.
	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.svc.Cancel(r.Context(), orderID, claims.UserID, req.Reason)
	if err != nil {
		writeOrderError(w, "cancel order", err)
		return
	}

	h.notify("order.cancelled", result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// --- Helpers ---

// notify broadcasts an order event to the owning farm's room.
func (h *OrderHandler) notify(eventType string, result *service.OrderResult) {
	if h.hub == nil || len(result.Items) == 0 {
		return
	}
	payload, err := json.Marshal(toOrderResponse(result))
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastToFarm(result.Items[0].FarmID, ws.Event{Type: eventType, Payload: payload})
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	if s := r.URL.Query().Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			page = v
		}
	}
	pageSize = 20
	if s := r.URL.Query().Get("page_size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			pageSize = v
		}
	}
	return page, pageSize
}

// writeOrderError maps service errors to HTTP status codes.
func writeOrderError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrMissingAddress),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrMixedFarms),
		errors.Is(err, service.ErrInvalidFee),
		errors.Is(err, service.ErrNegativeFee),
		errors.Is(err, status.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrStockConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOrderChanged):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toOrderResponse(result *service.OrderResult) orderResponse {
	o := result.Order
	resp := orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          string(result.Presented),
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        numericToString(o.Subtotal),
		Discount:        numericToString(o.Discount),
		Tax:             numericToString(o.Tax),
		DeliveryFee:     numericToString(o.DeliveryFee),
		Total:           numericToString(o.Total),
		DeliveryAddress: o.DeliveryAddress,
		Metadata:        map[string]string(result.Metadata),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}

	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		item := orderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			FarmID:      it.FarmID,
			Quantity:    it.Quantity,
			UnitPrice:   numericToString(it.UnitPrice),
			LineTotal:   numericToString(it.LineTotal),
		}
		if it.CategoryName.Valid {
			item.CategoryName = &it.CategoryName.String
		}
		resp.Items[i] = item
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

func toOrderListResponse(page *service.OrderPage) orderListResponse {
	orders := make([]orderResponse, len(page.Orders))
	for i, r := range page.Orders {
		orders[i] = toOrderResponse(r)
	}
	return orderListResponse{
		Orders: orders,
		Pagination: paginationResponse{
			Page:       page.Pagination.Page,
			PageSize:   page.Pagination.PageSize,
			TotalCount: page.Pagination.TotalCount,
			TotalPages: page.Pagination.TotalPages,
		},
	}
}
