package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/receiptsllc/sheriffsale/internal/api"
	"github.com/receiptsllc/sheriffsale/internal/config"
)

// Server wraps the HTTP server and its routes.
type Server struct {
	httpServer *http.Server
}

func NewServer(cfg *config.Config, a *App) *Server {
	handler := api.NewSaleHandler(a.Ingestor, a.Repo, cfg.MaxUploadBytes())
	router := api.NewRouter(api.RouterConfig{JWTSecret: cfg.JWTSecret, CORSOrigins: cfg.CORSOrigins}, handler)
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening.", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server.")
	return s.httpServer.Shutdown(ctx)
}
