// Package api exposes the kernel's Public API Surface over HTTP: a
// JSON-RPC-style POST endpoint for typed tree/sync/connection methods,
// a websocket stream carrying fan-out bus messages to each tab, and the
// usual /metrics, /healthz, /readyz operational endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/bkmsync/pkg/kernel"
	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server is the HTTP front door onto a Kernel.
type Server struct {
	kernel *kernel.Kernel
	logger zerolog.Logger
	router chi.Router
	http   *http.Server
}

// NewServer builds a Server routing to k. readOnly restricts the RPC
// surface to the read-only method set, for listeners (e.g. a loopback
// socket) that shouldn't accept mutations from untrusted local clients.
func NewServer(k *kernel.Kernel, readOnly bool) *Server {
	s := &Server{
		kernel: k,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(requestLogger(s.logger))

	rpc := rpcRouter(k)
	if readOnly {
		rpc = readOnlyMiddleware(rpc)
	}
	r.Post("/rpc/{method}", rpc)
	r.Get("/ws/{namespace}", s.handleWebSocket)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Get("/livez", metrics.LivenessHandler())

	s.router = r
	return s
}

// Start begins serving addr; it blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("api server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
