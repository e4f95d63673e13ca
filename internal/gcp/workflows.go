package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/receiptsllc/sheriffsale/internal/models"
	"github.com/receiptsllc/sheriffsale/internal/services"
)

// EnrichmentTrigger starts one Cloud Workflows execution per completed run.
type EnrichmentTrigger struct {
	client   *executions.Client
	workflow string
}

var _ services.EnrichmentTrigger = (*EnrichmentTrigger)(nil)

func NewEnrichmentTrigger(ctx context.Context, projectID, location, workflowID string) (*EnrichmentTrigger, error) {
	if projectID == "" || workflowID == "" {
		return nil, fmt.Errorf("projectID and workflowID must be set")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &EnrichmentTrigger{client: client, workflow: WorkflowName(projectID, location, workflowID)}, nil
}

func WorkflowName(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

func (t *EnrichmentTrigger) Trigger(ctx context.Context, req models.EnrichmentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := t.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: t.workflow,
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Enrichment workflow execution created.", "execution", exec.GetName(), "masterId", req.MasterID)
	return nil
}

func (t *EnrichmentTrigger) Close() error {
	return t.client.Close()
}
