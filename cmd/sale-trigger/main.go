package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/receiptsllc/sheriffsale/internal/app"
	"github.com/receiptsllc/sheriffsale/internal/config"
	"github.com/receiptsllc/sheriffsale/internal/gcp"
	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

var (
	cfg           *config.Config
	application   *app.App
	storageClient *storage.Client
	once          sync.Once
	initErr       error
)

func init() {
	cfg = config.Load()
	slog.SetDefault(cfg.NewLogger(os.Stdout))

	functions.CloudEvent("IngestSaleUpload", ingestSaleUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// ingestSaleUpload runs the ingestion for a master PDF finalized in the
// intake bucket under <YYYY-MM-DD>/<file>.pdf.
func ingestSaleUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		application, initErr = app.New(context.Background(), cfg)
		if initErr != nil {
			return
		}
		storageClient, initErr = storage.NewClient(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var ev models.StorageEvent
	if err := json.Unmarshal(e.Data(), &ev); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("gcsBucket", ev.Bucket, "gcsObject", ev.Name, "eventId", e.ID())

	// Ingestion writes into the sale bucket; reacting to those writes would loop.
	if ev.Bucket == cfg.SaleBucket {
		logCtx.Info("Ignoring object in the sale bucket.")
		return nil
	}
	obj, err := gcp.ParseIntakeObject(ev.Name)
	if err != nil {
		logCtx.Warn("Ignoring object outside the intake layout.", "error", err)
		return nil
	}

	data, err := gcp.ReadObject(ctx, storageClient, ev.Bucket, ev.Name)
	if err != nil {
		logCtx.Error("Failed to download master PDF", "error", err)
		return err
	}

	res := application.Ingestor.Ingest(ctx, services.IngestRequest{
		FileName: obj.FileName,
		Data:     data,
		SaleDate: obj.SaleDate,
	})
	switch res.StatusCode() {
	case http.StatusOK:
		logCtx.Info("Master PDF ingested.", "runId", res.RunID, "masterId", res.MasterID, "pages", len(res.Pages))
		return nil
	case http.StatusBadRequest:
		// Redelivery cannot fix a bad upload.
		logCtx.Warn("Master PDF rejected.", "runId", res.RunID, "reason", res.Message())
		return nil
	default:
		return fmt.Errorf("ingestion %s aborted: %w", res.RunID, res.Err)
	}
}
