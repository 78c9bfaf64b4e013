package application

import "time"

// FileTrackingDTO represents a file's tracking record in responses
type FileTrackingDTO struct {
	FileID               string          `json:"fileId"`
	CurrentStage         string          `json:"currentStage"`
	CurrentStatus        string          `json:"currentStatus"`
	StageHistory         []StageVisitDTO `json:"stageHistory"`
	CurrentAssignment    *AssignmentDTO  `json:"currentAssignment,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	StartedAt            time.Time       `json:"startedAt"`
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`
	TotalDurationMinutes *float64        `json:"totalDurationMinutes,omitempty"`
	TotalPenaltyPoints   float64         `json:"totalPenaltyPoints"`
	EscalationsTriggered int             `json:"escalationsTriggered"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	Degraded             bool            `json:"degraded,omitempty"`
}

// StageVisitDTO represents one visit in a file's stage history
type StageVisitDTO struct {
	Stage                string         `json:"stage"`
	Status               string         `json:"status"`
	EnteredAt            time.Time      `json:"enteredAt"`
	CompletedAt          *time.Time     `json:"completedAt,omitempty"`
	TotalDurationMinutes *float64       `json:"totalDurationMinutes,omitempty"`
	SLABreached          bool           `json:"slaBreached"`
	EscalationSent       bool           `json:"escalationSent"`
	ForcedTransition     bool           `json:"forcedTransition,omitempty"`
	Assignment           *AssignmentDTO `json:"assignment,omitempty"`
}

// AssignmentDTO represents one person's work on a stage visit
type AssignmentDTO struct {
	EmployeeCode    string     `json:"employeeCode"`
	EmployeeName    string     `json:"employeeName,omitempty"`
	AssignedAt      time.Time  `json:"assignedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationMinutes *float64   `json:"durationMinutes,omitempty"`
	SLAStatus       string     `json:"slaStatus,omitempty"`
	PenaltyPoints   float64    `json:"penaltyPoints"`
	Notes           string     `json:"notes,omitempty"`
}

// StartWorkResult reports whether a start-work call took effect or was a
// repeat of an earlier start
type StartWorkResult struct {
	FileID  string `json:"fileId"`
	Stage   string `json:"stage"`
	Started bool   `json:"started"`
}

// ReconcileResult reports the outcome of a signal-driven reconciliation
type ReconcileResult struct {
	FileID       string `json:"fileId"`
	Advanced     bool   `json:"advanced"`
	CurrentStage string `json:"currentStage,omitempty"`
	Outstanding  int    `json:"outstanding"`
}

// PipelineEntryDTO is one file's row in the pipeline view
type PipelineEntryDTO struct {
	FileID         string    `json:"fileId"`
	Stage          string    `json:"stage"`
	EventType      string    `json:"eventType,omitempty"`
	EmployeeCode   string    `json:"employeeCode,omitempty"`
	EmployeeName   string    `json:"employeeName,omitempty"`
	EventTime      time.Time `json:"eventTime"`
	ElapsedMinutes float64   `json:"elapsedMinutes"`
	SLAStatus      string    `json:"slaStatus"`
}

// PipelineViewDTO groups pipeline entries by stage
type PipelineViewDTO struct {
	Stages      map[string][]PipelineEntryDTO `json:"stages"`
	TotalFiles  int                           `json:"totalFiles"`
	Degraded    bool                          `json:"degraded,omitempty"`
	GeneratedAt time.Time                     `json:"generatedAt"`
}

// BreachDTO is one finding from an SLA breach scan
type BreachDTO struct {
	FileID            string    `json:"fileId"`
	Stage             string    `json:"stage"`
	EmployeeCode      string    `json:"employeeCode,omitempty"`
	ElapsedMinutes    float64   `json:"elapsedMinutes"`
	EscalationMinutes float64   `json:"escalationMinutes"`
	FirstTrigger      bool      `json:"firstTrigger"`
	DetectedAt        time.Time `json:"detectedAt"`
}

// BreachScanResultDTO summarizes one SLA breach scan
type BreachScanResultDTO struct {
	Breaches  []BreachDTO `json:"breaches"`
	Scanned   int         `json:"scanned"`
	ScannedAt time.Time   `json:"scannedAt"`
}
