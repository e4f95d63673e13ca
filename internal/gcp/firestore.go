package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger keeps one Firestore document per ingestion run, keyed by run id,
// with a "pages" subcollection holding one document per handled page.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

var _ services.RunLedger = (*RunLedger)(nil)

func NewRunLedger(client *firestore.Client, collection string) *RunLedger {
	return &RunLedger{client: client, collection: collection}
}

func (l *RunLedger) runRef(runID string) *firestore.DocumentRef {
	return l.client.Collection(l.collection).Doc(runID)
}

func (l *RunLedger) StartRun(ctx context.Context, run models.IngestionRun) error {
	if _, err := l.runRef(run.RunID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to create run document: %w", err)
	}
	return nil
}

func (l *RunLedger) RecordPage(ctx context.Context, runID string, event models.PageEvent) error {
	ref := l.runRef(runID).Collection("pages").Doc(PageDocID(event.Page))
	if _, err := ref.Set(ctx, event); err != nil {
		return fmt.Errorf("failed to record page %d: %w", event.Page, err)
	}
	return nil
}

func (l *RunLedger) FinishRun(ctx context.Context, run models.IngestionRun) error {
	updates := []firestore.Update{
		{Path: "state", Value: string(run.State)},
		{Path: "updatedAt", Value: run.UpdatedAt},
	}
	if run.MasterID != 0 {
		updates = append(updates, firestore.Update{Path: "masterId", Value: run.MasterID})
	}
	if run.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: run.ErrorDetails})
	}
	if _, err := l.runRef(run.RunID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run state to %s: %w", run.State, err)
	}
	return nil
}

// PageDocID zero-pads page numbers so documents list in page order.
func PageDocID(page int) string {
	return fmt.Sprintf("%05d", page)
}
