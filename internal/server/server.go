// Package server exposes the auth subsystem over HTTP: login flows, token
// refresh, and session management, with cookie and bearer token transport.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"studyhub/backend/internal/audit"
	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/events"
	"studyhub/backend/internal/identity"
	"studyhub/backend/internal/magiclink"
	sessionsvc "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/token"
	userrepo "studyhub/backend/internal/user/repository"
)

// Server wires the auth services behind an HTTP router.
type Server struct {
	tokens    *token.Manager
	sessions  *sessionsvc.Service
	users     userrepo.Repository
	userCache *cache.UserCache
	magic     *magiclink.Service
	identity  *identity.Service
	cache     *cache.Cache
	auditor   audit.AuditLogger
	producer  events.Producer

	secureCookies   bool
	redirectOrigins []string
	httpServer      *http.Server
}

// Options carries the dependencies and settings for New.
type Options struct {
	Addr          string
	Tokens        *token.Manager
	Sessions      *sessionsvc.Service
	Users         userrepo.Repository
	UserCache     *cache.UserCache
	MagicLink     *magiclink.Service
	Identity      *identity.Service
	Cache         *cache.Cache
	Auditor       audit.AuditLogger
	Producer      events.Producer
	SecureCookies bool
	// RedirectOrigins lists the origins magic-link redirects may target,
	// typically the frontend URL. Relative paths are always allowed.
	RedirectOrigins []string
}

// New builds the server and its router.
func New(opts Options) *Server {
	s := &Server{
		tokens:        opts.Tokens,
		sessions:      opts.Sessions,
		users:         opts.Users,
		userCache:     opts.UserCache,
		magic:         opts.MagicLink,
		identity:      opts.Identity,
		cache:         opts.Cache,
		auditor:       opts.Auditor,
		producer:      opts.Producer,
		secureCookies:   opts.SecureCookies,
		redirectOrigins: opts.RedirectOrigins,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi router. Exposed separately so tests can mount it on httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// Server spans and request-duration metrics via the global otel providers.
	r.Use(otelhttp.NewMiddleware("studyhub.auth"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerSessionID},
		ExposedHeaders:   []string{headerRefreshSuggested},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/magic-link", s.handleMagicLinkRequest)
		auth.Get("/magic-link/verify", s.handleMagicLinkVerifyRedirect)
		auth.Post("/magic-link/verify", s.handleMagicLinkVerify)
		auth.Post("/login", s.handleLogin)
		auth.Post("/oauth", s.handleOAuth)
		auth.Post("/refresh", s.handleRefresh)
		auth.Post("/logout", s.handleLogout)

		auth.Group(func(priv chi.Router) {
			priv.Use(s.requireAuth)
			priv.Get("/me", s.handleMe)
			priv.Get("/sessions", s.handleListSessions)
			priv.Delete("/sessions/{id}", s.handleRevokeSession)
			priv.Post("/logout-all", s.handleLogoutAll)
		})
	})
	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
