package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/coffee-shop/app"
	"github.com/upb/coffee-shop/handlers"
	"github.com/upb/coffee-shop/middleware"
	"github.com/upb/coffee-shop/utils"
)

// Permissions required by the protected drink endpoints
const (
	PermGetDrinksDetail = "get:drinks-detail"
	PermPostDrinks      = "post:drinks"
	PermPatchDrinks     = "patch:drinks"
	PermDeleteDrinks    = "delete:drinks"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	requestTimeout := deps.Config.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         deps.Config.CORS.MaxAge,
	}))

	// Health check endpoints
	health := newHealthHandler(deps)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		metricsPath := deps.Config.Observability.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Method(http.MethodGet, metricsPath, deps.Metrics.Handler())
	}

	// Drinks menu
	drinks := handlers.NewDrinkHandler(deps.DrinkService, deps.Logger)
	guard := deps.Guard

	r.Get("/drinks", drinks.HandleListDrinks)
	r.Get("/drinks-detail", guard.Wrap(PermGetDrinksDetail, drinks.HandleListDrinksDetail))
	r.Post("/drinks", guard.Wrap(PermPostDrinks, drinks.HandleCreateDrink))
	r.Patch("/drinks/{id}", guard.Wrap(PermPatchDrinks, drinks.HandleUpdateDrink))
	r.Delete("/drinks/{id}", guard.Wrap(PermDeleteDrinks, drinks.HandleDeleteDrink))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}

func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var keys handlers.KeySetChecker
	if deps.KeySet != nil {
		keys = deps.KeySet
	}
	if deps.DB == nil {
		return handlers.NewHealthHandler(nil, keys, deps.Logger)
	}
	return handlers.NewHealthHandler(deps.DB.DB, keys, deps.Logger)
}
