package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/health"
	"github.com/gule/marketplace/pkg/middleware"
)

// Services groups the application services the router dispatches to.
type Services struct {
	Accounts *service.AccountService
	Products *service.ProductService
	Orders   *service.OrderService
	Reviews  *service.ReviewService
	Carts    *service.CartService
	Audit    *service.AuditService
}

// RouterConfig carries the cross-cutting pieces of the HTTP stack. Metrics,
// AuthLimiter and Gatherer are optional.
type RouterConfig struct {
	ServiceName string
	Tokens      middleware.TokenValidator
	Health      *health.Handler
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	AuthLimiter *middleware.RateLimiter
	CORS        middleware.CORSConfig
	PprofCIDRs  []string
	Logger      *slog.Logger
}

const catalogueMaxAge = 30 * time.Second

var (
	buyerOnly  = middleware.RequireRole(string(domain.AccountBuyer))
	sellerOnly = middleware.RequireRole(string(domain.AccountSeller))
	adminOnly  = middleware.RequireRole(string(domain.AccountAdmin))
	staffOnly  = middleware.RequireRole(string(domain.AccountSeller), string(domain.AccountAdmin))
)

// NewRouter creates a chi router with every marketplace route registered.
func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	// Health and metrics endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	accounts := NewAccountHandler(svc.Accounts, logger)
	products := NewProductHandler(svc.Products, logger)
	orders := NewOrderHandler(svc.Orders, logger)
	reviews := NewReviewHandler(svc.Reviews, logger)
	carts := NewCartHandler(svc.Carts, logger)
	audits := NewAuditHandler(svc.Audit, logger)
	active := activeAccount(svc.Accounts, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireJSON)

		// Auth endpoints (public, rate limited per client IP)
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.NoStore)
			if cfg.AuthLimiter != nil {
				r.Use(cfg.AuthLimiter.Middleware)
			}
			r.Post("/register", accounts.Register)
			r.Post("/login", accounts.Login)
		})

		// Catalogue reads: anonymous, or authenticated to see own listings.
		r.Group(func(r chi.Router) {
			r.Use(catalogueCache(catalogueMaxAge))
			r.Use(optionalAuth(cfg.Tokens))
			r.Use(auth.Actor)
			r.Use(active)

			r.Get("/products", products.List)
			r.Get("/products/{productID}", products.Get)
			r.Get("/products/{productID}/reviews", reviews.ListByProduct)
		})

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(auth.Actor)
			r.Use(active)

			r.Get("/accounts/me", accounts.Me)

			r.With(sellerOnly).Post("/products", products.Create)
			r.With(sellerOnly).Put("/products/{productID}", products.Update)
			r.With(adminOnly).Patch("/products/{productID}/status", products.Moderate)
			r.With(staffOnly).Post("/products/{productID}/stock", products.AdjustStock)

			r.Route("/orders", func(r chi.Router) {
				r.With(buyerOnly).Post("/", orders.Create)
				r.Get("/", orders.List)
				r.Get("/{orderID}", orders.Get)
				r.With(staffOnly).Patch("/{orderID}/status", orders.UpdateStatus)
				r.Post("/{orderID}/cancel", orders.Cancel)
				r.With(buyerOnly).Post("/{orderID}/confirm-receipt", orders.ConfirmReceipt)
				r.With(staffOnly).Patch("/{orderID}/tracking", orders.UpdateTracking)
			})

			r.Route("/reviews", func(r chi.Router) {
				r.With(buyerOnly).Post("/", reviews.Create)
				r.Put("/{reviewID}", reviews.Update)
				r.Delete("/{reviewID}", reviews.Delete)
				r.Post("/{reviewID}/report", reviews.Report)
				r.With(sellerOnly).Post("/{reviewID}/response", reviews.Respond)
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(buyerOnly)
				r.Get("/", carts.Get)
				r.Delete("/", carts.Clear)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{productID}", carts.SetQuantity)
				r.Delete("/items/{productID}", carts.RemoveItem)
				r.Post("/checkout", carts.Checkout)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(adminOnly)
				r.Patch("/accounts/{accountID}/status", accounts.UpdateStatus)
				r.Get("/audit", audits.List)
			})
		})
	})

	return r
}
