package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/enum"
	"github.com/agrihaat/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ProductStore defines the database methods needed by product handlers.
type ProductStore interface {
	GetFarm(ctx context.Context, id uuid.UUID) (database.Farm, error)
	ListProductsByFarm(ctx context.Context, farmID uuid.UUID) ([]database.StoreProduct, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.StoreProduct, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.StoreProduct, error)
	SoftDeleteProduct(ctx context.Context, arg database.SoftDeleteProductParams) (uuid.UUID, error)
}

// ProductHandler handles product endpoints nested under a farm.
type ProductHandler struct {
	store ProductStore
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterRoutes registers product endpoints on the given Chi router.
// Expects to be mounted under a route carrying a {fid} URL parameter.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{pid}", h.Update)
	r.Delete("/{pid}", h.Delete)
}

// --- Request / Response types ---

type productRequest struct {
	CategoryID      *uuid.UUID `json:"category_id"`
	Name            string     `json:"name"`
	Price           string     `json:"price"`
	DiscountPercent string     `json:"discount_percent"`
	Stock           int32      `json:"stock"`
	IsAvailable     *bool      `json:"is_available"`
}

type productResponse struct {
	ID              uuid.UUID  `json:"id"`
	FarmID          uuid.UUID  `json:"farm_id"`
	CategoryID      *uuid.UUID `json:"category_id"`
	Name            string     `json:"name"`
	Price           string     `json:"price"`
	DiscountPercent string     `json:"discount_percent"`
	Stock           int32      `json:"stock"`
	IsAvailable     bool       `json:"is_available"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toProductResponse(p database.StoreProduct) productResponse {
	resp := productResponse{
		ID:              p.ID,
		FarmID:          p.FarmID,
		Name:            p.Name,
		Price:           numericToString(p.Price),
		DiscountPercent: numericToString(p.DiscountPercent),
		Stock:           p.Stock,
		IsAvailable:     p.IsAvailable,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.CategoryID.Valid {
		id := uuid.UUID(p.CategoryID.Bytes)
		resp.CategoryID = &id
	}
	return resp
}

// --- Handlers ---

// List returns all products of a farm.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	farmID, err := uuid.Parse(chi.URLParam(r, "fid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid farm ID"})
		return
	}

	products, err := h.store.ListProductsByFarm(r.Context(), farmID)
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a product to a farm. Requires ownership of the farm.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	farmID, ok := h.authorizedFarm(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		FarmID:          farmID,
		CategoryID:      params.CategoryID,
		Name:            params.Name,
		Price:           params.Price,
		DiscountPercent: params.DiscountPercent,
		Stock:           params.Stock,
		IsAvailable:     params.IsAvailable,
	})
	if err != nil {
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update replaces a product's attributes. Requires ownership of the farm.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	farmID, ok := h.authorizedFarm(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:              productID,
		FarmID:          farmID,
		CategoryID:      params.CategoryID,
		Name:            params.Name,
		Price:           params.Price,
		DiscountPercent: params.DiscountPercent,
		Stock:           params.Stock,
		IsAvailable:     params.IsAvailable,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete marks a product unavailable. Requires ownership of the farm.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	farmID, ok := h.authorizedFarm(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.store.SoftDeleteProduct(r.Context(), database.SoftDeleteProductParams{
		ID:     productID,
		FarmID: farmID,
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizedFarm parses {fid} and verifies the caller owns the farm.
// Admins bypass the ownership check. Writes the error response itself.
func (h *ProductHandler) authorizedFarm(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	farmID, err := uuid.Parse(chi.URLParam(r, "fid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid farm ID"})
		return uuid.Nil, false
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, false
	}

	farm, err := h.store.GetFarm(r.Context(), farmID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "farm not found"})
			return uuid.Nil, false
		}
		log.Printf("ERROR: get farm: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return uuid.Nil, false
	}

	if claims.Role != enum.UserRoleAdmin && farm.OwnerID != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		return uuid.Nil, false
	}
	return farmID, true
}

type productParams struct {
	CategoryID      pgtype.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountPercent pgtype.Numeric
	Stock           int32
	IsAvailable     bool
}

func buildProductParams(req productRequest) (productParams, string) {
	var p productParams

	if req.Name == "" {
		return p, "name is required"
	}
	if req.Stock < 0 {
		return p, "stock cannot be negative"
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return p, "invalid price"
	}

	discount := decimal.Zero
	if req.DiscountPercent != "" {
		discount, err = decimal.NewFromString(req.DiscountPercent)
		if err != nil || discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
			return p, "invalid discount percent"
		}
	}

	p.Name = req.Name
	p.Stock = req.Stock
	p.IsAvailable = true
	if req.IsAvailable != nil {
		p.IsAvailable = *req.IsAvailable
	}
	if req.CategoryID != nil {
		p.CategoryID = pgtype.UUID{Bytes: *req.CategoryID, Valid: true}
	}
	if err := p.Price.Scan(price.StringFixed(2)); err != nil {
		return p, "invalid price"
	}
	if err := p.DiscountPercent.Scan(discount.StringFixed(2)); err != nil {
		return p, "invalid discount percent"
	}
	return p, ""
}
