package models

// These structs define the JSON payloads exchanged with callers and with the
// enrichment workflow.

// MessageResponse is the body of every ingestion response.
type MessageResponse struct {
	Message string `json:"message"`
}

// EnrichmentRequest is the argument passed to the enrichment workflow after a
// completed run.
type EnrichmentRequest struct {
	RunID    string  `json:"runId"`
	MasterID int64   `json:"masterId"`
	SaleDate string  `json:"saleDate"`
	ChildIDs []int64 `json:"childIds"`
}

// StorageEvent is the payload of an object-finalized storage event.
type StorageEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}
