package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
)

// Deps are the services the HTTP surface is built on
type Deps struct {
	Keys               KeyStore
	Limiter            RateLimiter
	RateLimitPerMinute int
	Admins             []string

	Accountant *usage.Accountant
	Directory  Directory
	Cache      *cache.AgentCache
	Agent      Runner

	Health map[string]Pinger
	Logger logrus.FieldLogger
}

// NewRouter builds the gateway routes
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}

	mw := NewMiddleware(d.Keys, d.Limiter, d.RateLimitPerMinute, d.Admins, d.Logger)
	search := NewSearchHandler(d.Accountant, d.Directory, d.Cache, d.Logger)
	chat := NewChatHandler(d.Accountant, d.Agent, d.Logger)
	usageHandler := NewUsageHandler(d.Accountant, d.Cache, d.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(mw.LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(90 * time.Second))
	r.Use(mw.CORSMiddleware)

	// Health check (no auth required)
	r.Get("/health", HealthHandler(d.Health))

	// API routes (with auth and rate limiting)
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Use(mw.RateLimitMiddleware)

		r.Post("/companies/search", search.HandleSearch)
		r.Post("/exports", search.HandleExport)
		r.Post("/chat", chat.HandleChat)
		r.Get("/usage", usageHandler.HandleStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.AdminMiddleware)
			r.Get("/cache", usageHandler.HandleCacheStats)
			r.Delete("/cache", usageHandler.HandleCacheClear)
		})
	})

	return r
}
