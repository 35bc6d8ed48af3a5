package models

import "time"

// ProcessType identifies which flow a processing log entry belongs to
type ProcessType string

const (
	ProcessTypeCSVUpload     ProcessType = "csv_upload"
	ProcessTypeLoanDiscovery ProcessType = "loan_discovery"
	ProcessTypeMatching      ProcessType = "matching"
	ProcessTypeNotification  ProcessType = "notification"
)

// ProcessStatus is the lifecycle state of a processing run
type ProcessStatus string

const (
	ProcessStatusStarted   ProcessStatus = "started"
	ProcessStatusCompleted ProcessStatus = "completed"
	ProcessStatusFailed    ProcessStatus = "failed"
)

// ProcessingLog is an append-only audit record per run. A row is written at
// run start and updated once with the terminal status; no other component
// mutates it.
type ProcessingLog struct {
	ID               string        `json:"id" db:"id"`
	ProcessType      ProcessType   `json:"process_type" db:"process_type"`
	Status           ProcessStatus `json:"status" db:"status"`
	Details          *string       `json:"details,omitempty" db:"details"`
	RecordsProcessed int           `json:"records_processed" db:"records_processed"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// ProcessingLogListResponse is the response for listing processing runs
type ProcessingLogListResponse struct {
	Items      []ProcessingLog `json:"items"`
	TotalCount int             `json:"total_count"`
}
