package domain

import (
	"context"
	"time"
)

// TrackingRepository defines the interface for file tracking persistence
type TrackingRepository interface {
	// Save persists a tracking aggregate (upsert) together with its
	// pipeline events and outbox entries in one transaction
	Save(ctx context.Context, tracking *FileTracking) error

	// FindByID retrieves tracking for a file. Returns ErrFileNotFound when
	// the file is unknown.
	FindByID(ctx context.Context, fileID string) (*FileTracking, error)

	// FindInProgress retrieves all files that have not been delivered
	FindInProgress(ctx context.Context, pagination Pagination) ([]*FileTracking, error)

	// FindByStage retrieves files currently sitting in a stage
	FindByStage(ctx context.Context, stage Stage, pagination Pagination) ([]*FileTracking, error)

	// FindUpdatedSince retrieves files whose tracking changed after the
	// given instant. Used to fold recent writes over the event projection.
	FindUpdatedSince(ctx context.Context, since time.Time) ([]*FileTracking, error)

	// Count returns the number of files in a stage
	Count(ctx context.Context, stage Stage) (int64, error)
}

// PipelineReadRepository reads the append-only pipeline event log
type PipelineReadRepository interface {
	// LatestEventPerFile reduces the log to each file's most recent event.
	// An empty stage filters nothing.
	LatestEventPerFile(ctx context.Context, stage Stage) ([]PipelineEntry, error)

	// EventsForFile returns the full event history of one file, oldest first
	EventsForFile(ctx context.Context, fileID string) ([]PipelineEvent, error)
}

// WorkItemSource reports work known to the external work-item system
type WorkItemSource interface {
	// OutstandingCount returns how many work items remain open for a file's
	// stage
	OutstandingCount(ctx context.Context, fileID string, stage Stage) (int, error)

	// OpenAssignments returns work items assigned in the external system
	// that have not completed. Breach scans fold these in for files the
	// tracking store has not seen yet.
	OpenAssignments(ctx context.Context) ([]WorkItemRef, error)
}

// WorkItemRef is a lightweight view of an externally-assigned work item
type WorkItemRef struct {
	WorkItemID   string    `bson:"workItemId" json:"workItemId"`
	FileID       string    `bson:"fileId" json:"fileId"`
	Stage        Stage     `bson:"stage" json:"stage"`
	EmployeeCode string    `bson:"employeeCode,omitempty" json:"employeeCode,omitempty"`
	AssignedAt   time.Time `bson:"assignedAt" json:"assignedAt"`
}

// IdentityDirectory resolves employee codes to display names. Lookups are
// best-effort: a failed lookup degrades to the bare code, never to an error.
type IdentityDirectory interface {
	DisplayName(ctx context.Context, employeeCode string) (string, error)
}

// EscalationNotifier delivers SLA breach notifications
type EscalationNotifier interface {
	Notify(ctx context.Context, breach Breach) error
}

// Breach is one over-threshold finding from an SLA scan
type Breach struct {
	FileID            string    `json:"fileId"`
	Stage             Stage     `json:"stage"`
	EmployeeCode      string    `json:"employeeCode,omitempty"`
	ElapsedMinutes    float64   `json:"elapsedMinutes"`
	EscalationMinutes float64   `json:"escalationMinutes"`
	FirstTrigger      bool      `json:"firstTrigger"`
	DetectedAt        time.Time `json:"detectedAt"`
}

// PipelineEntry is one file's row in the pipeline view: its latest event
// folded with any fresher state from the tracking store
type PipelineEntry struct {
	FileID       string    `bson:"_id" json:"fileId"`
	EventType    string    `bson:"eventType" json:"eventType"`
	Stage        Stage     `bson:"stage" json:"stage"`
	EmployeeCode string    `bson:"employeeCode,omitempty" json:"employeeCode,omitempty"`
	EmployeeName string    `bson:"employeeName,omitempty" json:"employeeName,omitempty"`
	EventTime    time.Time `bson:"eventTime" json:"eventTime"`
	Degraded     bool      `bson:"-" json:"degraded,omitempty"`
}

// Pagination represents pagination options
type Pagination struct {
	Page     int64
	PageSize int64
}

// DefaultPagination returns default pagination options
func DefaultPagination() Pagination {
	return Pagination{
		Page:     1,
		PageSize: 50,
	}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size
func (p Pagination) Limit() int64 {
	if p.PageSize < 1 {
		return DefaultPagination().PageSize
	}
	return p.PageSize
}
