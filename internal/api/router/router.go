package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vethome-platform/internal/audit"
	"github.com/wolfman30/vethome-platform/internal/authority"
	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/catalog"
	"github.com/wolfman30/vethome-platform/internal/clinic"
	httpmiddleware "github.com/wolfman30/vethome-platform/internal/http/middleware"
	"github.com/wolfman30/vethome-platform/internal/portal"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/internal/reports"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Authority  *authority.Handler
	Registry   *registry.Handler
	Catalog    *catalog.Handler
	Billing    *billing.Handler
	Scheduling *scheduling.Handler
	Reports    *reports.Handler
	Audit      *audit.Handler
	Clinic     *clinic.Handler
	Portal     *portal.Handler

	// PortalClients confirms a portal client exists before its routes run.
	PortalClients ClientDirectory

	// AdminAuthSecret enables JWT auth on /api/v1 and /portal when set.
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if cfg.RateLimiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		if cfg.AdminAuthSecret != "" {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}

		if h := cfg.Authority; h != nil {
			api.Route("/authority", func(r chi.Router) {
				r.Get("/credentials", h.Get)
				r.Put("/credentials", h.Update)
				r.Post("/connect", h.Connect)
			})
		}

		if h := cfg.Registry; h != nil {
			api.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.RegisterClient)
				r.Get("/search", h.SearchClients)
				r.Post("/lookup-identity", h.LookupIdentity)
				r.Route("/{clientID}", func(r chi.Router) {
					r.Get("/", h.GetClient)
					r.Post("/pets", h.AddPet)
					r.Post("/pets/{petID}/history", h.AddMedicalEntry)
					r.Post("/pets/{petID}/vaccinations", h.AddVaccination)
				})
			})
			api.Get("/breeds/{species}", h.Breeds)
		}

		if h := cfg.Catalog; h != nil {
			api.Route("/catalog", func(r chi.Router) {
				r.Get("/items", h.ListItems)
				r.Post("/items", h.CreateItem)
				r.Get("/items/{itemID}", h.GetItem)
				r.Get("/cabys", h.SearchCABYS)
			})
		}

		if h := cfg.Billing; h != nil {
			api.Route("/carts", func(r chi.Router) {
				r.Post("/", h.CreateCart)
				r.Get("/{cartID}", h.GetCart)
				r.Post("/{cartID}/items", h.AddCartItem)
				r.Delete("/{cartID}/items/{index}", h.RemoveCartItem)
			})
			api.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.ListInvoices)
				r.Post("/", h.SubmitInvoice)
				r.Get("/{invoiceID}", h.GetInvoice)
				r.Post("/{invoiceID}/void", h.VoidInvoice)
				r.Post("/{invoiceID}/payments", h.RegisterPayment)
			})
			api.Get("/receivables", h.Receivables)
			api.Get("/quotes", h.ListQuotes)
			api.Post("/quotes", h.SaveQuote)
			api.Route("/expenses", func(r chi.Router) {
				r.Get("/", h.ListExpenses)
				r.Post("/", h.RegisterExpense)
				r.Post("/{expenseID}/acceptance", h.AcceptExpense)
			})
		}

		if h := cfg.Scheduling; h != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Get("/", h.ListAppointments)
				r.Post("/", h.CreateAppointment)
				r.Patch("/{id}/status", h.UpdateStatus)
			})
			api.Route("/campaigns", func(r chi.Router) {
				r.Post("/", h.PrepareCampaign)
				r.Get("/{id}", h.GetCampaign)
				r.Post("/{id}/confirm", h.ConfirmCampaign)
			})
		}

		if cfg.Reports != nil {
			api.Mount("/reports", cfg.Reports.Routes())
		}
		if cfg.Clinic != nil {
			api.Mount("/clinic", cfg.Clinic.Routes())
		}
		if cfg.Audit != nil {
			api.Mount("/audit", cfg.Audit.Routes())
		}
	})

	if h := cfg.Portal; h != nil {
		r.Route("/portal/clients/{clientID}", func(p chi.Router) {
			if cfg.AdminAuthSecret != "" {
				p.Use(httpmiddleware.PortalJWT(cfg.AdminAuthSecret))
			}
			if cfg.PortalClients != nil {
				p.Use(requireKnownClient(cfg.PortalClients, cfg.Logger))
			}
			p.Get("/summary", h.Summary)
			p.Get("/messages", h.ListMessages)
			p.Post("/messages", h.PostMessage)
			p.Post("/reminders", h.Remind)
			p.Get("/ws", h.WebSocket)
		})
	}

	return r
}
