// Package httpapi wires the HTTP surface of the ledger: routing,
// middleware, and request handlers.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/handler"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/middleware"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// Config holds the router dependencies
type Config struct {
	Logger             *logger.Logger
	AuthHandler        *handler.AuthHandler
	AccountHandler     *handler.AccountHandler
	TransactionHandler *handler.TransactionHandler
	HealthHandler      *handler.HealthHandler
	JWTMiddleware      func(http.Handler) http.Handler
	AllowedOrigins     []string
}

// NewRouter builds the HTTP router with the full middleware stack.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit())

	r.Get("/health", cfg.HealthHandler.Live)
	r.Get("/health/ready", cfg.HealthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", cfg.AuthHandler.Register)
		r.Post("/auth/login", cfg.AuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(cfg.JWTMiddleware)

			r.Route("/accounts", func(r chi.Router) {
				r.Post("/", cfg.AccountHandler.Open)
				r.Get("/", cfg.AccountHandler.List)
				r.Get("/{accountNumber}", cfg.AccountHandler.Get)
				r.Post("/{accountNumber}/close", cfg.AccountHandler.Close)
				r.Post("/{accountNumber}/reopen", cfg.AccountHandler.Reopen)
				r.Get("/{accountNumber}/transactions", cfg.AccountHandler.Transactions)
				r.Get("/{accountNumber}/stats", cfg.AccountHandler.Stats)
			})

			r.Post("/admin/sweep", cfg.TransactionHandler.Sweep)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/deposit", cfg.TransactionHandler.Deposit)
				r.Post("/withdraw", cfg.TransactionHandler.Withdraw)
				r.Post("/transfer", cfg.TransactionHandler.Transfer)
				r.Post("/fee", cfg.TransactionHandler.Fee)
				r.Get("/", cfg.TransactionHandler.List)
				r.Get("/stats", cfg.TransactionHandler.Stats)
				r.Get("/{transactionID}", cfg.TransactionHandler.Get)
				r.Post("/{transactionID}/reverse", cfg.TransactionHandler.Reverse)
				r.Post("/{transactionID}/cancel", cfg.TransactionHandler.Cancel)
			})
		})
	})

	return r
}
