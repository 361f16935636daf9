package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// FarmStore defines the database methods needed by farm handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type FarmStore interface {
	ListFarms(ctx context.Context) ([]database.Farm, error)
	GetFarm(ctx context.Context, id uuid.UUID) (database.Farm, error)
	CreateFarm(ctx context.Context, arg database.CreateFarmParams) (database.Farm, error)
}

// FarmHandler handles farm CRUD endpoints.
type FarmHandler struct {
	store FarmStore
}

// NewFarmHandler creates a new FarmHandler.
func NewFarmHandler(store FarmStore) *FarmHandler {
	return &FarmHandler{store: store}
}

// RegisterRoutes registers farm endpoints on the given Chi router.
func (h *FarmHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{fid}", h.Get)
}

// --- Request / Response types ---

type createFarmRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type farmResponse struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Location    *string   `json:"location"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func toFarmResponse(f database.Farm) farmResponse {
	resp := farmResponse{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
	}
	if f.Location.Valid {
		resp.Location = &f.Location.String
	}
	if f.Description.Valid {
		resp.Description = &f.Description.String
	}
	return resp
}

// --- Handlers ---

// List returns all farms.
func (h *FarmHandler) List(w http.ResponseWriter, r *http.Request) {
	farms, err := h.store.ListFarms(r.Context())
	if err != nil {
		log.Printf("ERROR: list farms: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]farmResponse, len(farms))
	for i, f := range farms {
		resp[i] = toFarmResponse(f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single farm.
func (h *FarmHandler) Get(w http.ResponseWriter, r *http.Request) {
	farmID, err := uuid.Parse(chi.URLParam(r, "fid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid farm ID"})
		return
	}

	farm, err := h.store.GetFarm(r.Context(), farmID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "farm not found"})
			return
		}
		log.Printf("ERROR: get farm: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toFarmResponse(farm))
}

// Create adds a farm owned by the authenticated farmer.
func (h *FarmHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createFarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	location := pgtype.Text{}
	if req.Location != "" {
		location = pgtype.Text{String: req.Location, Valid: true}
	}
	description := pgtype.Text{}
	if req.Description != "" {
		description = pgtype.Text{String: req.Description, Valid: true}
	}

	farm, err := h.store.CreateFarm(r.Context(), database.CreateFarmParams{
		OwnerID:     claims.UserID,
		Name:        req.Name,
		Location:    location,
		Description: description,
	})
	if err != nil {
		log.Printf("ERROR: create farm: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toFarmResponse(farm))
}
