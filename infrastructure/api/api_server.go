package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/helixml/marginalia"
	apimiddleware "github.com/helixml/marginalia/infrastructure/api/middleware"
	v1 "github.com/helixml/marginalia/infrastructure/api/v1"
	mcpinternal "github.com/helixml/marginalia/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// APIServer provides an HTTP API backed by a marginalia Client.
type APIServer struct {
	client       *marginalia.Client
	version      string
	corsOrigins  []string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given Client. version is
// reported by the MCP endpoint; corsOrigins is applied when serving with
// ListenAndServe.
func NewAPIServer(client *marginalia.Client, version string, corsOrigins []string) *APIServer {
	return &APIServer{
		client:      client,
		version:     version,
		corsOrigins: corsOrigins,
		logger:      client.Logger(),
	}
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	router.Get("/healthz", a.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Mount("/documents", v1.NewDocumentsRouter(c).Routes())
		r.Mount("/cfi", v1.NewCFIRouter(c).Routes())
		r.Mount("/sanitize", v1.NewSanitizeRouter(c).Routes())
	})

	// MCP streams responses and keeps session state in headers, so it stays
	// outside the Timeout group.
	mcpSrv := mcpinternal.NewServer(c.Annotations, c.Comparator(), a.version, a.logger)
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

func (a *APIServer) health(w http.ResponseWriter, req *http.Request) {
	if err := a.client.Check(req.Context()); err != nil {
		a.logger.Warn("health check failed", slog.Any("error", err))
		apimiddleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	srv := NewServer(addr, a.corsOrigins, a.logger)
	a.server = &srv

	if a.routerCalled && a.router != nil {
		srv.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(srv.Router())
	}

	return srv.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
