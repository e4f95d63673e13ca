package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	// JWTSecret enables bearer auth on every sale route when non-empty.
	JWTSecret   string
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig, h *SaleHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})

	r.Group(func(protected chi.Router) {
		if cfg.JWTSecret != "" {
			protected.Use(BearerAuth([]byte(cfg.JWTSecret)))
		}
		// Ingestion is bounded by the extractor timeout per page, not a
		// request deadline.
		protected.Post("/process-sherif-sale-master-pdf", h.ProcessMasterPDF)

		protected.Group(func(read chi.Router) {
			read.Use(middleware.Timeout(60 * time.Second))
			read.Get("/sheriff-sales", h.ListSales)
			read.Get("/sheriff-sales/{id}/properties", h.ListProperties)
		})
	})
	return r
}
