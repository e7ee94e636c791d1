/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from proxy headers
  3. RequestLogger: One slog line per request
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the store frontend

ROUTE GROUPS:
  /health                          Liveness check
  /metrics                         Prometheus scrape endpoint
  /api/store-manager/customers/*   Customers and their credit ledger
  /api/store-manager/credit/*      Store-wide summary and audit
  /api/store-manager/staff         Staff registration
  /api/store-manager/scenarios/*   Demo data

AUTHENTICATION:
  Identity is established upstream. Tenant requires X-Store-ID and
  X-Staff-ID on every /api/store-manager request and scopes all reads and
  writes to that store.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Tenant and request logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        http.Handler // nil disables /metrics
	Logger         *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = h.logger
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderStoreID, HeaderStaffID},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/store-manager", func(r chi.Router) {
		r.Use(Tenant)

		// Customer and ledger routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/credit-history", h.GetCreditHistory)
			r.Post("/{id}/credit-payment", h.RecordPayment)
			r.Post("/{id}/credit-adjustment", h.MakeAdjustment)
			r.Put("/{id}/credit-limit", h.UpdateCreditLimit)
			r.Post("/{id}/credit-sale", h.RecordSale)
			r.Post("/{id}/credit-refund", h.RecordRefund)
			r.Post("/{id}/credit-writeoff", h.WriteOff)
		})

		// Store-wide routes
		r.Route("/credit", func(r chi.Router) {
			r.Get("/summary", h.GetCreditSummary)
			r.Get("/audit", h.GetCreditAudit)
		})

		r.Post("/staff", h.CreateStaff)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
