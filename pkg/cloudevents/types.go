package cloudevents

import (
	"time"
)

// EventType constants for tracking domain events
const (
	// File lifecycle events
	FileCreated       = "tracking.file.created"
	StageAssigned     = "tracking.stage.assigned"
	StageStarted      = "tracking.stage.started"
	StageCompleted    = "tracking.stage.completed"
	StageTransitioned = "tracking.stage.transitioned"
	FileDelivered     = "tracking.file.delivered"

	// SLA events
	SLABreach         = "tracking.sla.breach"
	EscalationRaised  = "tracking.escalation.raised"

	// External work-item signals (consumed)
	WorkItemAssigned  = "tracking.workitem.assigned"
	WorkItemCompleted = "tracking.workitem.completed"
)

// Source constants for event sources
const (
	SourceTracking   = "/fileflow/tracking-service"
	SourceTaskSystem = "/fileflow/task-service"
)

// TrackingCloudEvent represents a CloudEvents v1.0 compliant event
type TrackingCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Tracking-specific extensions
	CorrelationID string `json:"trackingcorrelationid,omitempty"`
	FileID        string `json:"trackingfileid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// FileCreatedData represents the data payload for FileCreated event
type FileCreatedData struct {
	FileID     string    `json:"fileId"`
	StartStage string    `json:"startStage"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StageAssignedData represents the data payload for StageAssigned event
type StageAssignedData struct {
	FileID       string `json:"fileId"`
	Stage        string `json:"stage"`
	EmployeeCode string `json:"employeeCode"`
	EmployeeName string `json:"employeeName,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// StageStartedData represents the data payload for StageStarted event
type StageStartedData struct {
	FileID       string    `json:"fileId"`
	Stage        string    `json:"stage"`
	EmployeeCode string    `json:"employeeCode"`
	StartedAt    time.Time `json:"startedAt"`
}

// StageCompletedData represents the data payload for StageCompleted event
type StageCompletedData struct {
	FileID          string  `json:"fileId"`
	Stage           string  `json:"stage"`
	EmployeeCode    string  `json:"employeeCode,omitempty"`
	DurationMinutes float64 `json:"durationMinutes"`
	SLAStatus       string  `json:"slaStatus"`
	PenaltyPoints   float64 `json:"penaltyPoints"`
}

// StageTransitionedData represents the data payload for StageTransitioned event
type StageTransitionedData struct {
	FileID        string `json:"fileId"`
	PreviousStage string `json:"previousStage"`
	NextStage     string `json:"nextStage"`
	Forced        bool   `json:"forced"`
}

// FileDeliveredData represents the data payload for FileDelivered event
type FileDeliveredData struct {
	FileID               string    `json:"fileId"`
	DeliveredAt          time.Time `json:"deliveredAt"`
	TotalDurationMinutes float64   `json:"totalDurationMinutes"`
	TotalPenaltyPoints   float64   `json:"totalPenaltyPoints"`
}

// SLABreachData represents the data payload for SLABreach and EscalationRaised events
type SLABreachData struct {
	FileID            string  `json:"fileId"`
	Stage             string  `json:"stage"`
	EmployeeCode      string  `json:"employeeCode,omitempty"`
	ElapsedMinutes    float64 `json:"elapsedMinutes"`
	EscalationMinutes float64 `json:"escalationMinutes"`
	FirstTrigger      bool    `json:"firstTrigger"`
}

// WorkItemSignalData represents the payload of external work-item signals
type WorkItemSignalData struct {
	WorkItemID   string    `json:"workItemId"`
	FileID       string    `json:"fileId"`
	Stage        string    `json:"stage"`
	EmployeeCode string    `json:"employeeCode,omitempty"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurredAt"`
}
