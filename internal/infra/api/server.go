package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tw-license-service/internal/config"
)

// Server owns the HTTP listener. Routes are contributed through mount.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

// NewRouter builds the chi router with the shared middleware chain,
// /health and /metrics, then lets mount add the API routes.
func NewRouter(cfg config.ServerConfig, logger *zerolog.Logger, mount func(r chi.Router)) chi.Router {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(
		TraceID(),
		ClientIP(),
		RequestLog(logger),
		Recover(logger),
		Timeout(cfg.RequestTimeout),
	)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		OK(w, r, http.StatusOK, nil)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, http.StatusMethodNotAllowed, "", "method not allowed", nil)
	})
	if mount != nil {
		mount(r)
	}
	return r
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: &l,
	}
}

// Start blocks until the listener stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
