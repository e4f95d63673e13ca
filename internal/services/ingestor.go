package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/receiptsllc/sheriffsale/internal/models"
)

const (
	SaleDateLayout = "2006-01-02"

	// DefaultExtractTimeout bounds one extractor call.
	DefaultExtractTimeout = 3 * time.Minute

	SuccessMessage = "Sherif Sale Master PDF processed successfully"

	msgNoFile          = "No file provided"
	msgNoSaleDate      = "Sherif sale date is required"
	msgBadSaleDate     = "Invalid date format, expected YYYY-MM-DD"
	msgInvalidFileType = "Invalid file format. Only PDF files are allowed"
)

// IngestRequest is one master document submission.
type IngestRequest struct {
	FileName string
	Data     []byte
	SaleDate string
}

// PageOutcome is the result of handling a single page.
type PageOutcome struct {
	Page       int
	Status     models.PageStatus
	ChildID    int64
	FileHash   string
	FilePath   string
	Properties int
	Err        error
}

// IngestResult is the aggregate result of one ingestion call.
type IngestResult struct {
	RunID    string
	MasterID int64
	State    models.RunState
	Pages    []PageOutcome
	Err      error
}

// Message is the caller-facing message for the result.
func (r IngestResult) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return SuccessMessage
}

// StatusCode is the HTTP status for the result.
func (r IngestResult) StatusCode() int {
	if r.Err == nil && r.State == models.RunCompleted {
		return http.StatusOK
	}
	return StatusCode(r.Err)
}

// Ingestor runs the master document pipeline: store and record the master,
// split it, then for each page in order store it, record it and extract its
// properties.
type Ingestor struct {
	repo           SaleRecordRepository
	store          DocumentStore
	extractor      PropertyExtractor
	paginator      Paginator
	ledger         RunLedger
	enrichment     EnrichmentTrigger
	now            func() time.Time
	extractTimeout time.Duration
}

type Option func(*Ingestor)

func WithPaginator(p Paginator) Option { return func(in *Ingestor) { in.paginator = p } }

func WithRunLedger(l RunLedger) Option { return func(in *Ingestor) { in.ledger = l } }

func WithEnrichmentTrigger(t EnrichmentTrigger) Option {
	return func(in *Ingestor) { in.enrichment = t }
}

func WithClock(now func() time.Time) Option { return func(in *Ingestor) { in.now = now } }

func WithExtractTimeout(d time.Duration) Option {
	return func(in *Ingestor) {
		if d > 0 {
			in.extractTimeout = d
		}
	}
}

func NewIngestor(repo SaleRecordRepository, store DocumentStore, extractor PropertyExtractor, opts ...Option) *Ingestor {
	in := &Ingestor{
		repo:           repo,
		store:          store,
		extractor:      extractor,
		paginator:      NewPdfPaginator(),
		now:            time.Now,
		extractTimeout: DefaultExtractTimeout,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// ValidateRequest checks a submission before anything is stored and returns
// the parsed sale date.
func ValidateRequest(req IngestRequest) (time.Time, error) {
	if len(req.Data) == 0 {
		return time.Time{}, &InvalidInputError{Reason: msgNoFile}
	}
	if strings.TrimSpace(req.SaleDate) == "" {
		return time.Time{}, &InvalidInputError{Reason: msgNoSaleDate}
	}
	saleDate, err := time.Parse(SaleDateLayout, strings.TrimSpace(req.SaleDate))
	if err != nil {
		return time.Time{}, &InvalidInputError{Reason: msgBadSaleDate}
	}
	if !strings.EqualFold(filepath.Ext(req.FileName), ".pdf") {
		return time.Time{}, &InvalidInputError{Reason: msgInvalidFileType}
	}
	return saleDate, nil
}

// TimestampedName lower-cases the base of name and prefixes it with the UTC
// time as YYYYMMDDHHMMSS_.
func TimestampedName(name string, at time.Time) string {
	return at.UTC().Format("20060102150405") + "_" + strings.ToLower(filepath.Base(name))
}

// Ingest runs the pipeline for req. Pages already committed stay committed
// when a later page aborts the run; resubmitting the same document is the
// recovery path. ctx is only checked between pages.
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) IngestResult {
	res := IngestResult{RunID: uuid.NewString(), State: models.RunStarted}

	saleDate, err := ValidateRequest(req)
	if err != nil {
		slog.Warn("Rejected ingestion request.", "runId", res.RunID, "fileName", req.FileName, "error", err)
		res.State, res.Err = models.RunAborted, err
		return res
	}
	dateKey := saleDate.Format(SaleDateLayout)
	logCtx := slog.With("runId", res.RunID, "saleDate", dateKey)

	started := in.now()
	fileName := TimestampedName(req.FileName, started)
	fileHash := Hash(req.Data)
	logCtx = logCtx.With("fileName", fileName, "fileHash", fileHash)

	pageCount, err := in.paginator.PageCount(req.Data)
	if err != nil {
		return in.abort(ctx, logCtx, res, nil, "Failed to read master document.", err)
	}
	logCtx = logCtx.With("pageCount", pageCount)

	run := models.IngestionRun{
		RunID:     res.RunID,
		FileHash:  fileHash,
		FileName:  fileName,
		SaleDate:  dateKey,
		PageCount: pageCount,
		State:     models.RunStarted,
		CreatedAt: started,
		UpdatedAt: started,
	}
	in.ledgerStart(ctx, logCtx, run)

	masterKey := path.Join(dateKey, fileName)
	if err := in.store.Upload(ctx, masterKey, req.Data); err != nil {
		return in.abort(ctx, logCtx, res, &run, "Failed to upload master document.", storageErr(masterKey, err))
	}

	master := &models.MasterSaleDocument{
		FileHash:  fileHash,
		FilePath:  masterKey,
		FileName:  fileName,
		PageCount: pageCount,
		SaleDate:  saleDate,
		CreatedAt: started,
		CreatedBy: models.DefaultCreatedBy,
	}
	masterID, err := in.repo.SaveMaster(ctx, master)
	if err != nil {
		return in.abort(ctx, logCtx, res, &run, "Failed to save master record.", persistenceErr("save master", err))
	}
	master.ID = masterID
	res.MasterID, run.MasterID = masterID, masterID
	logCtx = logCtx.With("masterId", masterID)
	logCtx.Info("Master record saved.")

	pages, err := in.paginator.SplitPages(ctx, req.Data, fileName)
	if err != nil {
		return in.abort(ctx, logCtx, res, &run, "Failed to split master document.", err)
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return in.abort(ctx, logCtx, res, &run, "Ingestion cancelled between pages.", err)
		}
		pageLog := logCtx.With("page", page.Number)
		out := in.handlePage(ctx, pageLog, master, page)
		res.Pages = append(res.Pages, out)
		in.ledgerPage(ctx, pageLog, res.RunID, out)

		switch out.Status {
		case models.PagePersisted:
			pageLog.Info("Page persisted.", "childId", out.ChildID, "properties", out.Properties)
		case models.PageDuplicateSkipped:
			pageLog.Info("Duplicate page, sale date refreshed.", "fileHash", out.FileHash)
		case models.PageExtractionSkipped:
			pageLog.Warn("Extraction rejected page, continuing.", "childId", out.ChildID, "error", out.Err)
		case models.PageFatal:
			return in.abort(ctx, pageLog, res, &run, "Page failed, aborting ingestion.", out.Err)
		}
	}

	res.State = models.RunCompleted
	run.State, run.UpdatedAt = models.RunCompleted, in.now()
	in.ledgerFinish(ctx, logCtx, run)
	in.triggerEnrichment(ctx, logCtx, res, dateKey)
	logCtx.Info("Ingestion completed.", "pagesHandled", len(res.Pages))
	return res
}

// handlePage stores, records and extracts one page. Duplicate hashes and
// rejected pages come back as non-fatal statuses.
func (in *Ingestor) handlePage(ctx context.Context, logCtx *slog.Logger, master *models.MasterSaleDocument, page Page) PageOutcome {
	key := path.Join(master.SaleDate.Format(SaleDateLayout), page.FileName)
	out := PageOutcome{Page: page.Number, FileHash: page.ContentHash, FilePath: key}
	fatal := func(err error) PageOutcome {
		out.Status, out.Err = models.PageFatal, err
		return out
	}

	if err := in.store.Upload(ctx, key, page.Data); err != nil {
		return fatal(storageErr(key, err))
	}

	childID, err := in.repo.SaveChild(ctx, &models.ChildPageDocument{
		MasterID:  master.ID,
		FileHash:  out.FileHash,
		FilePath:  key,
		FileName:  page.FileName,
		SaleDate:  master.SaleDate,
		CreatedAt: in.now(),
		CreatedBy: models.DefaultCreatedBy,
	})
	var dup *DuplicateContentHashError
	switch {
	case errors.As(err, &dup):
		updated, uerr := in.repo.UpdateChildSaleDateByHash(ctx, dup.Hash, master.SaleDate)
		if uerr != nil {
			return fatal(persistenceErr("update child sale date", uerr))
		}
		if !updated {
			return fatal(&PersistenceError{Op: "update child sale date", Err: fmt.Errorf("no child with hash %s", dup.Hash)})
		}
		out.Status = models.PageDuplicateSkipped
		return out
	case err != nil:
		return fatal(persistenceErr("save child", err))
	}
	out.ChildID = childID

	extractCtx, cancel := context.WithTimeout(ctx, in.extractTimeout)
	defer cancel()
	raw, err := in.extractor.Extract(extractCtx, in.store.URL(key))
	if err != nil {
		var unprocessable *UnprocessableInputError
		var svc *ExtractorServiceError
		switch {
		case errors.As(err, &unprocessable):
			out.Status, out.Err = models.PageExtractionSkipped, err
			return out
		case errors.As(err, &svc):
			return fatal(err)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return fatal(err)
		case extractCtx.Err() != nil && ctx.Err() == nil:
			return fatal(&ExtractorServiceError{Err: fmt.Errorf("timed out after %s: %w", in.extractTimeout, err)})
		default:
			return fatal(&ExtractorServiceError{Err: err})
		}
	}

	now := in.now()
	records := make([]models.PropertyRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, NormalizeProperty(r, childID, now))
	}
	if len(records) > 0 {
		if err := in.repo.SavePropertiesBatch(ctx, records); err != nil {
			return fatal(persistenceErr("save properties", err))
		}
	}
	out.Status, out.Properties = models.PagePersisted, len(records)
	logCtx.Debug("Properties extracted.", "count", len(records))
	return out
}

func (in *Ingestor) abort(ctx context.Context, logCtx *slog.Logger, res IngestResult, run *models.IngestionRun, message string, err error) IngestResult {
	logCtx.Error(message, "error", err)
	res.State, res.Err = models.RunAborted, err
	if run != nil {
		run.State, run.ErrorDetails, run.UpdatedAt = models.RunAborted, err.Error(), in.now()
		in.ledgerFinish(ctx, logCtx, *run)
	}
	return res
}

// Ledger and enrichment calls use a context detached from cancellation so an
// aborted request still records how far it got.

func (in *Ingestor) ledgerStart(ctx context.Context, logCtx *slog.Logger, run models.IngestionRun) {
	if in.ledger == nil {
		return
	}
	if err := in.ledger.StartRun(context.WithoutCancel(ctx), run); err != nil {
		logCtx.Warn("Failed to record run start in ledger.", "error", err)
	}
}

func (in *Ingestor) ledgerPage(ctx context.Context, logCtx *slog.Logger, runID string, out PageOutcome) {
	if in.ledger == nil {
		return
	}
	ev := models.PageEvent{
		Page:          out.Page,
		Status:        out.Status,
		ChildID:       out.ChildID,
		FileHash:      out.FileHash,
		FilePath:      out.FilePath,
		PropertyCount: out.Properties,
		RecordedAt:    in.now(),
	}
	if out.Err != nil {
		ev.ErrorDetails = out.Err.Error()
	}
	if err := in.ledger.RecordPage(context.WithoutCancel(ctx), runID, ev); err != nil {
		logCtx.Warn("Failed to record page in ledger.", "error", err)
	}
}

func (in *Ingestor) ledgerFinish(ctx context.Context, logCtx *slog.Logger, run models.IngestionRun) {
	if in.ledger == nil {
		return
	}
	if err := in.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logCtx.Warn("Failed to record run state in ledger.", "state", run.State, "error", err)
	}
}

func (in *Ingestor) triggerEnrichment(ctx context.Context, logCtx *slog.Logger, res IngestResult, saleDate string) {
	if in.enrichment == nil {
		return
	}
	var childIDs []int64
	for _, p := range res.Pages {
		if p.ChildID != 0 {
			childIDs = append(childIDs, p.ChildID)
		}
	}
	if len(childIDs) == 0 {
		return
	}
	req := models.EnrichmentRequest{RunID: res.RunID, MasterID: res.MasterID, SaleDate: saleDate, ChildIDs: childIDs}
	if err := in.enrichment.Trigger(context.WithoutCancel(ctx), req); err != nil {
		logCtx.Warn("Failed to trigger enrichment.", "error", err)
		return
	}
	logCtx.Info("Enrichment triggered.", "children", len(childIDs))
}
