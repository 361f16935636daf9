package router

import (
	"log"
	"net/http"

	"github.com/agrihaat/api/internal/config"
	"github.com/agrihaat/api/internal/database"
	"github.com/agrihaat/api/internal/enum"
	"github.com/agrihaat/api/internal/handler"
	mw "github.com/agrihaat/api/internal/middleware"
	"github.com/agrihaat/api/internal/service"
	"github.com/agrihaat/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",         // SvelteKit dev server
			"https://app.agrihaat.com.bd",   // Production storefront
			"https://admin.agrihaat.com.bd", // Production admin
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/farms/{fid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, queries, w, r)
	})

	// Order service shared by order routes
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, queries, newOrderStore)
	orderHandler := handler.NewOrderHandler(orderService, queries, hub)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Customer-facing order routes
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Farms
		farmHandler := handler.NewFarmHandler(queries)
		productHandler := handler.NewProductHandler(queries)
		r.Route("/farms", func(r chi.Router) {
			r.Get("/", farmHandler.List)
			r.Get("/{fid}", farmHandler.Get)

			// Farm creation is limited to farmers and admins
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleFarmer, enum.UserRoleAdmin))
				r.Post("/", farmHandler.Create)
			})

			r.Route("/{fid}/products", productHandler.RegisterRoutes)

			// Farm-side order listing (ownership enforced in the handler)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleFarmer, enum.UserRoleAdmin))
				r.Get("/{fid}/orders", orderHandler.ListByFarm)
			})
		})

		// Categories (writes limited to admins)
		categoryHandler := handler.NewCategoryHandler(queries)
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.List)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleAdmin))
				r.Post("/", categoryHandler.Create)
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
