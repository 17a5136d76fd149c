package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/queen-doris/admin-application/internal/handler"
	"github.com/queen-doris/admin-application/internal/middleware"
	"github.com/queen-doris/admin-application/internal/usecase/ledger"
	"github.com/queen-doris/admin-application/internal/usecase/report"
)

type Deps struct {
	Ledger *ledger.Service
	Report *report.Service
	Auth   *middleware.AuthMiddleware
	Cache  middleware.RateStore

	RateLimit         int
	RateWindow        time.Duration
	RateBlockDuration time.Duration
}

func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Per-user rate limiting; installed after auth inside each group so
	// requests are keyed by user rather than by shared proxy IP.
	limit := func(next http.Handler) http.Handler { return next }
	if d.Cache != nil {
		limit = middleware.RateLimiter(d.Cache, d.RateLimit, d.RateWindow, d.RateBlockDuration, "api")
	}

	r.Route("/api", func(r chi.Router) {
		// Balance-mutating endpoint: verified accounts only.
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.RequireVerified(middleware.RoleAdmin, middleware.RoleClient))
			r.Use(limit)
			r.Post("/transactions", handler.SubmitTransactionHandler(d.Ledger))
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Require(middleware.RoleAdmin, middleware.RoleClient))
			r.Use(limit)
			r.Get("/transactions/{id}", handler.GetTransactionHandler(d.Ledger))
			r.Get("/accounts/{accountID}", handler.GetAccountHandler(d.Ledger))
			r.Get("/accounts/{accountID}/transactions", handler.ListTransactionsHandler(d.Ledger))
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Require(middleware.RoleAdmin))
			r.Use(limit)
			r.Post("/accounts", handler.CreateAccountHandler(d.Ledger))
			r.Get("/admin/stats", handler.StatsHandler(d.Report))
		})
	})

	return r
}
