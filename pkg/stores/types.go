package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the status of an apply run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// OperationStatus represents the status of a single plan operation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusSkipped   OperationStatus = "skipped"
)

// EventLevel represents the severity level of a history event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents one apply run against a server.
type Run struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	ServerURL   string     `json:"server_url"`
	Database    string     `json:"database"`
	DryRun      bool       `json:"dry_run"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Summary     string     `json:"summary"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OperationRecord represents a single executed plan operation.
type OperationRecord struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	Model       string          `json:"model"`
	Type        string          `json:"type"` // create, update, delete
	RecordID    string          `json:"record_id"`
	ActualID    *int64          `json:"actual_id,omitempty"`
	Status      OperationStatus `json:"status"`
	Values      string          `json:"values"` // JSON blob
	Error       *string         `json:"error,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Event represents an append-only history event.
type Event struct {
	ID          int64      `json:"id"`
	RunID       *string    `json:"run_id,omitempty"`
	OperationID *string    `json:"operation_id,omitempty"`
	Level       EventLevel `json:"level"`
	Message     string     `json:"message"`
	Details     *string    `json:"details,omitempty"` // JSON blob
	Timestamp   time.Time  `json:"timestamp"`
}

// Store defines the interface for the run-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Operation records
	CreateOperation(ctx context.Context, op *OperationRecord) error
	GetOperation(ctx context.Context, id string) (*OperationRecord, error)
	ListOperationsByRun(ctx context.Context, runID string) ([]*OperationRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
