// Package api exposes the backtest lifecycle over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/service"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	maxBodySize       = 8 << 20
	callbackBodySize  = 64 << 20
)

// BacktestWriter creates, updates and deletes backtests
type BacktestWriter interface {
	Create(ctx context.Context, portfolioID int64, req *service.BacktestRequest) (*models.Backtest, error)
	Update(ctx context.Context, backtestID, portfolioID int64, req *service.BacktestRequest) (*models.Backtest, error)
	Delete(ctx context.Context, backtestID, portfolioID int64) error
}

// BacktestReader serves read views
type BacktestReader interface {
	List(ctx context.Context, portfolioID int64) ([]*models.Backtest, error)
	Statuses(ctx context.Context, portfolioID int64) (map[string]string, error)
	Detail(ctx context.Context, backtestID int64) (*service.BacktestDetail, error)
	Metadata(ctx context.Context, backtestID int64) (*service.BacktestMetadata, error)
}

// Executor starts backtest runs
type Executor interface {
	Start(ctx context.Context, backtestID int64) (int64, error)
}

// CallbackHandler accepts engine results
type CallbackHandler interface {
	OnCallback(ctx context.Context, payload *models.CallbackPayload) (uuid.UUID, error)
}

// Dependencies are the services behind the routes
type Dependencies struct {
	Backtests BacktestWriter
	Queries   BacktestReader
	Executor  Executor
	Callbacks CallbackHandler

	// MetricsPath mounts the Prometheus handler; empty disables it
	MetricsPath string
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router *chi.Mux
	deps   Dependencies
	log    *logrus.Entry
	addr   string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, deps Dependencies, log *logrus.Logger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    log.WithField("component", "api"),
		addr:   addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(srv.recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	srv.routes()
	return srv
}

func (s *Server) routes() {
	if s.deps.MetricsPath != "" {
		s.router.Handle(s.deps.MetricsPath, metrics.Handler())
	}

	s.router.Route("/backtests", func(r chi.Router) {
		r.Post("/callback", s.handleCallback)

		r.Post("/portfolio/{portfolioID}", s.handleCreate)
		r.Get("/portfolio/{portfolioID}", s.handleList)
		r.Get("/portfolios/{portfolioID}/status", s.handleStatuses)

		r.Get("/{backtestID}", s.handleDetail)
		r.Get("/{backtestID}/metadata", s.handleMetadata)
		r.Post("/{backtestID}/execute", s.handleExecute)
		r.Put("/{backtestID}/portfolio/{portfolioID}", s.handleUpdate)
		r.Delete("/{backtestID}/portfolio/{portfolioID}", s.handleDelete)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("API server shutting down")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("API server stopped")
	return nil
}
