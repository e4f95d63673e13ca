package models

import "time"

// RunState is the terminal state of one ingestion call.
type RunState string

const (
	RunStarted   RunState = "STARTED"
	RunCompleted RunState = "COMPLETED"
	RunAborted   RunState = "ABORTED"
)

// PageStatus tags what happened to a single page.
type PageStatus string

const (
	PagePersisted         PageStatus = "PERSISTED"
	PageDuplicateSkipped  PageStatus = "DUPLICATE_SKIPPED"
	PageExtractionSkipped PageStatus = "EXTRACTION_SKIPPED"
	PageFatal             PageStatus = "FATAL"
)

// IngestionRun is the ledger entry for one ingestion call. It lets callers see
// how far an aborted run progressed without querying the relational tables.
type IngestionRun struct {
	RunID        string    `firestore:"runId" json:"run_id"`
	MasterID     int64     `firestore:"masterId,omitempty" json:"master_id,omitempty"`
	FileHash     string    `firestore:"fileHash,omitempty" json:"file_hash,omitempty"`
	FileName     string    `firestore:"fileName,omitempty" json:"file_name,omitempty"`
	SaleDate     string    `firestore:"saleDate" json:"sale_date"`
	PageCount    int       `firestore:"pageCount,omitempty" json:"page_count,omitempty"`
	State        RunState  `firestore:"state" json:"state"`
	ErrorDetails string    `firestore:"errorDetails,omitempty" json:"error_details,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `firestore:"updatedAt" json:"updated_at"`
}

// PageEvent records the outcome of one page within a run.
type PageEvent struct {
	Page          int        `firestore:"page" json:"page"`
	Status        PageStatus `firestore:"status" json:"status"`
	ChildID       int64      `firestore:"childId,omitempty" json:"child_id,omitempty"`
	FileHash      string     `firestore:"fileHash" json:"file_hash"`
	FilePath      string     `firestore:"filePath" json:"file_path"`
	PropertyCount int        `firestore:"propertyCount" json:"property_count"`
	ErrorDetails  string     `firestore:"errorDetails,omitempty" json:"error_details,omitempty"`
	RecordedAt    time.Time  `firestore:"recordedAt" json:"recorded_at"`
}
