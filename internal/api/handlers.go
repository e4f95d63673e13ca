package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

// Ingester runs one master document ingestion.
type Ingester interface {
	Ingest(ctx context.Context, req services.IngestRequest) services.IngestResult
}

// SaleReader serves the reporting queries.
type SaleReader interface {
	GetSalesBetween(ctx context.Context, start, end time.Time) ([]models.ChildPageDocument, error)
	GetPropertiesBySaleID(ctx context.Context, childID int64) ([]models.PropertyRecord, error)
}

type SaleHandler struct {
	ingester       Ingester
	reader         SaleReader
	maxUploadBytes int64
}

func NewSaleHandler(ingester Ingester, reader SaleReader, maxUploadBytes int64) *SaleHandler {
	return &SaleHandler{ingester: ingester, reader: reader, maxUploadBytes: maxUploadBytes}
}

// ProcessMasterPDF accepts a multipart form with "file" and
// "sherif_sale_date" and runs the ingestion synchronously.
func (h *SaleHandler) ProcessMasterPDF(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeMessage(w, http.StatusRequestEntityTooLarge, "File exceeds the upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File exceeds the upload limit")
			return
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	req := services.IngestRequest{SaleDate: r.FormValue("sherif_sale_date")}
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Data, req.FileName = data, header.Filename
	}

	res := h.ingester.Ingest(r.Context(), req)
	slog.Info("Master PDF request handled.",
		"requestId", middleware.GetReqID(r.Context()),
		"user", callerIdentity(r.Context()),
		"runId", res.RunID,
		"state", res.State,
		"pages", len(res.Pages),
		"status", res.StatusCode(),
	)
	writeMessage(w, res.StatusCode(), res.Message())
}

// ListSales returns child pages with a sale date in [start, end].
func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(services.SaleDateLayout, r.URL.Query().Get("start"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse(services.SaleDateLayout, r.URL.Query().Get("end"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid end date, expected YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeMessage(w, http.StatusBadRequest, "end must not be before start")
		return
	}

	sales, err := h.reader.GetSalesBetween(r.Context(), start, end)
	if err != nil {
		slog.Error("Failed to list sales.", "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sales == nil {
		sales = []models.ChildPageDocument{}
	}
	writeJSON(w, http.StatusOK, sales)
}

// ListProperties returns the properties extracted from one child page.
func (h *SaleHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	props, err := h.reader.GetPropertiesBySaleID(r.Context(), id)
	if err != nil {
		slog.Error("Failed to list properties.", "saleId", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	if props == nil {
		props = []models.PropertyRecord{}
	}
	writeJSON(w, http.StatusOK, props)
}
