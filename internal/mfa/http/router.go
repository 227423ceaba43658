package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/service"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/pkg/httpx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/jwtx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// KeyReadiness reports whether token verification keys are loaded.
type KeyReadiness interface {
	IsReady() bool
}

// Pinger is a dependency /readyz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         KeyReadiness
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store      store.Store
	MFAService *service.MFAService

	// Optional
	Replay   Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(
	keys KeyReadiness,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			BarTab MFA Service API
//	@version		0.1.0
//	@description	Lets an authenticated user turn off TOTP multi-factor authentication by presenting a current code.
//
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token issued by the BarTab auth service. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerMFA() {
	h := NewMFAHandler(r.MFAService)

	// Code submission - strict per-user limit
	disable := httpx.Chain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	status := httpx.Chain(http.HandlerFunc(h.HandleStatus),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/mfa/totp/disable", disable)
	r.Mux.Handle("DELETE /v1/mfa/totp", disable)
	r.Mux.Handle("GET /v1/mfa/totp", status)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.Replay))

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", MetricsHandler(r.Gatherer))
	}
}
