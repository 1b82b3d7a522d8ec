package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck probes one dependency. Check returns nil when it is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Cart           *CartHandler
	Checkout       *CheckoutHandler
	Metrics        *metrics.Metrics
	HealthChecks   []HealthCheck
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	l := logger.OrDefault(cfg.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(l))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(UserMiddleware)

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(RequireUser)
			r.Get("/", cfg.Cart.GetCart)
			r.Post("/", cfg.Cart.AddItem)
			r.Put("/", cfg.Cart.UpdateQuantity)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Delete("/items/{sku}", cfg.Cart.RemoveItem)
			r.Post("/sync", cfg.Cart.SyncCart)
		})
		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Post("/", cfg.Checkout.CreateSession)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", cfg.Checkout.GetSession)
				r.Delete("/", cfg.Checkout.DeleteSession)
				r.Put("/shipping-address", cfg.Checkout.UpdateShippingAddress)
				r.Put("/shipping-method", cfg.Checkout.SelectShippingMethod)
				r.Post("/complete", cfg.Checkout.Complete)
			})
		})
	})

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[c.Name] = err.Error()
				continue
			}
			result[c.Name] = "ok"
		}
		respondJSON(w, status, result)
	}
}
