package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/receiptsllc/sheriffsale/internal/config"
	"github.com/receiptsllc/sheriffsale/internal/db"
	"github.com/receiptsllc/sheriffsale/internal/formrecognizer"
	"github.com/receiptsllc/sheriffsale/internal/gcp"
	"github.com/receiptsllc/sheriffsale/internal/objectstore"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

// App owns the process-wide collaborators and the ingestor built from them.
type App struct {
	Repo     services.SaleRecordRepository
	Store    services.DocumentStore
	Ingestor *services.Ingestor

	closers []func() error
}

// New builds every collaborator selected by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if err := a.initRepo(initCtx, cfg); err != nil {
		return nil, err
	}
	if err := a.initStore(initCtx, cfg); err != nil {
		return nil, err
	}
	extractor, err := a.newExtractor(initCtx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []services.Option{services.WithExtractTimeout(cfg.ExtractTimeout)}
	if cfg.FirestoreCollection != "" {
		client, err := gcp.NewFirestoreClient(initCtx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, services.WithRunLedger(gcp.NewRunLedger(client, cfg.FirestoreCollection)))
		slog.Info("Run ledger enabled.", "collection", cfg.FirestoreCollection)
	}
	if cfg.WorkflowID != "" {
		trigger, err := gcp.NewEnrichmentTrigger(initCtx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, trigger.Close)
		opts = append(opts, services.WithEnrichmentTrigger(trigger))
		slog.Info("Enrichment trigger enabled.", "workflowId", cfg.WorkflowID)
	}

	a.Ingestor = services.NewIngestor(a.Repo, a.Store, extractor, opts...)
	ok = true
	return a, nil
}

func (a *App) initRepo(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, records are kept in memory only.")
		a.Repo = db.NewMemoryRepository()
		return nil
	}
	repo, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, repo.Close)
	a.Repo = repo
	slog.Info("Database initialized and ready.")
	return nil
}

func (a *App) initStore(ctx context.Context, cfg *config.Config) error {
	retry := services.RetryPolicy{MaxAttempts: cfg.UploadMaxRetries, InitialBackoff: services.DefaultRetryPolicy.InitialBackoff}
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := objectstore.NewS3Store(ctx, objectstore.Options{
			Region:     cfg.AwsRegion,
			Bucket:     cfg.SaleBucket,
			AccessKey:  cfg.AwsAccessKey,
			SecretKey:  cfg.AwsSecretKey,
			Retry:      retry,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return err
		}
		a.Store = store
	default:
		store, err := gcp.NewPageStore(ctx, cfg.SaleBucket, retry)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.Store = store
	}
	slog.Info("Document store initialized.", "backend", cfg.StorageBackend, "bucket", cfg.SaleBucket)
	return nil
}

func (a *App) newExtractor(ctx context.Context, cfg *config.Config) (services.PropertyExtractor, error) {
	if cfg.ExtractorBackend == config.ExtractorFormRecognizer {
		if cfg.StorageBackend == config.StorageGCS {
			slog.Warn("Form Recognizer cannot read gs:// URLs; pair it with the s3 storage backend.")
		}
		client, err := formrecognizer.New(formrecognizer.Config{
			Endpoint: cfg.FormRecognizerEndpoint,
			Key:      cfg.FormRecognizerKey,
			ModelID:  cfg.FormRecognizerModelID,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return gcp.NewPropertyExtractor(client), nil
}

// Close releases clients in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
