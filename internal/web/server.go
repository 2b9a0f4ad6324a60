package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/wyckoff_backtest/internal/domain"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router      *http.ServeMux
	server      *http.Server
	coordinator *usecase.Coordinator
	runRepo     domain.RunRepository
	tradeRepo   domain.TradeRepository
	logger      *zap.Logger
}

func NewServer(
	port int,
	coordinator *usecase.Coordinator,
	runRepo domain.RunRepository,
	tradeRepo domain.TradeRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		coordinator: coordinator,
		runRepo:     runRepo,
		tradeRepo:   tradeRepo,
		logger:      logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Runs
	s.router.HandleFunc("POST /api/runs", s.handleSubmitRun)
	s.router.HandleFunc("GET /api/runs", s.handleListRuns)
	s.router.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.router.HandleFunc("DELETE /api/runs/{id}", s.handleCancelRun)

	// Run artifacts
	s.router.HandleFunc("GET /api/runs/{id}/trades", s.handleListTrades)
	s.router.HandleFunc("GET /api/runs/{id}/rejections", s.handleListRejections)
	s.router.HandleFunc("GET /api/runs/{id}/windows", s.handleListWindows)

	// Live progress
	s.router.HandleFunc("GET /api/runs/{id}/ws", s.handleRunProgress)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
