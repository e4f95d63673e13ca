package services

import (
	"context"
	"time"

	"github.com/receiptsllc/sheriffsale/internal/models"
)

// SaleRecordRepository persists master, child and property records. Each call
// is its own atomic unit.
type SaleRecordRepository interface {
	// SaveMaster inserts a master document and returns its id.
	SaveMaster(ctx context.Context, doc *models.MasterSaleDocument) (int64, error)
	// SaveChild inserts a child page. A page hash that already exists yields
	// *DuplicateContentHashError and no row.
	SaveChild(ctx context.Context, doc *models.ChildPageDocument) (int64, error)
	// UpdateChildSaleDateByHash reports false when no child has the hash.
	UpdateChildSaleDateByHash(ctx context.Context, hash string, saleDate time.Time) (bool, error)
	// SavePropertiesBatch inserts all records or none.
	SavePropertiesBatch(ctx context.Context, records []models.PropertyRecord) error

	GetSalesBetween(ctx context.Context, start, end time.Time) ([]models.ChildPageDocument, error)
	GetPropertiesBySaleID(ctx context.Context, childID int64) ([]models.PropertyRecord, error)
}

// DocumentStore uploads and fetches document bytes by key.
type DocumentStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	// URL is the reference handed to a PropertyExtractor for key.
	URL(key string) string
}

// PropertyExtractor reads the stored page at documentURL and returns the
// properties listed on it. Page-specific rejections are
// *UnprocessableInputError, anything else is treated as a service failure.
type PropertyExtractor interface {
	Extract(ctx context.Context, documentURL string) ([]RawProperty, error)
}

// Paginator counts and splits master documents. Splitting the same bytes
// again must yield the same Page.ContentHash for every page.
type Paginator interface {
	PageCount(data []byte) (int, error)
	SplitPages(ctx context.Context, data []byte, name string) ([]Page, error)
}

// RunLedger records run progress outside the relational store.
type RunLedger interface {
	StartRun(ctx context.Context, run models.IngestionRun) error
	RecordPage(ctx context.Context, runID string, event models.PageEvent) error
	FinishRun(ctx context.Context, run models.IngestionRun) error
}

// EnrichmentTrigger hands completed runs to the enrichment job.
type EnrichmentTrigger interface {
	Trigger(ctx context.Context, req models.EnrichmentRequest) error
}
