package domain

import "time"

// DomainEvent represents a domain event interface
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// FileCreatedEvent is emitted when tracking is initialized for a file
type FileCreatedEvent struct {
	FileID     string    `json:"fileId"`
	StartStage Stage     `json:"startStage"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *FileCreatedEvent) EventType() string     { return "tracking.file.created" }
func (e *FileCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// StageAssignedEvent is emitted when an employee is assigned to the open visit
type StageAssignedEvent struct {
	FileID       string    `json:"fileId"`
	Stage        Stage     `json:"stage"`
	EmployeeCode string    `json:"employeeCode"`
	EmployeeName string    `json:"employeeName,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	AssignedAt   time.Time `json:"assignedAt"`
}

func (e *StageAssignedEvent) EventType() string     { return "tracking.stage.assigned" }
func (e *StageAssignedEvent) OccurredAt() time.Time { return e.AssignedAt }

// StageStartedEvent is emitted when the assigned employee starts work
type StageStartedEvent struct {
	FileID       string    `json:"fileId"`
	Stage        Stage     `json:"stage"`
	EmployeeCode string    `json:"employeeCode"`
	StartedAt    time.Time `json:"startedAt"`
}

func (e *StageStartedEvent) EventType() string     { return "tracking.stage.started" }
func (e *StageStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// StageCompletedEvent is emitted when a stage visit is completed
type StageCompletedEvent struct {
	FileID          string    `json:"fileId"`
	Stage           Stage     `json:"stage"`
	EmployeeCode    string    `json:"employeeCode,omitempty"`
	EmployeeName    string    `json:"employeeName,omitempty"`
	DurationMinutes float64   `json:"durationMinutes"`
	SLAStatus       SLAStatus `json:"slaStatus"`
	PenaltyPoints   float64   `json:"penaltyPoints"`
	CompletedAt     time.Time `json:"completedAt"`
}

func (e *StageCompletedEvent) EventType() string     { return "tracking.stage.completed" }
func (e *StageCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// StageTransitionedEvent is emitted when the file moves to a new stage
type StageTransitionedEvent struct {
	FileID         string    `json:"fileId"`
	PreviousStage  Stage     `json:"previousStage"`
	NextStage      Stage     `json:"nextStage"`
	EmployeeCode   string    `json:"employeeCode,omitempty"`
	Forced         bool      `json:"forced"`
	TransitionedAt time.Time `json:"transitionedAt"`
}

func (e *StageTransitionedEvent) EventType() string     { return "tracking.stage.transitioned" }
func (e *StageTransitionedEvent) OccurredAt() time.Time { return e.TransitionedAt }

// FileDeliveredEvent is emitted when the file reaches the terminal stage
type FileDeliveredEvent struct {
	FileID               string    `json:"fileId"`
	DeliveredAt          time.Time `json:"deliveredAt"`
	TotalDurationMinutes float64   `json:"totalDurationMinutes"`
	TotalPenaltyPoints   float64   `json:"totalPenaltyPoints"`
}

func (e *FileDeliveredEvent) EventType() string     { return "tracking.file.delivered" }
func (e *FileDeliveredEvent) OccurredAt() time.Time { return e.DeliveredAt }

// SLABreachEvent is emitted when an open visit exceeds its escalation threshold
type SLABreachEvent struct {
	FileID            string    `json:"fileId"`
	Stage             Stage     `json:"stage"`
	EmployeeCode      string    `json:"employeeCode,omitempty"`
	ElapsedMinutes    float64   `json:"elapsedMinutes"`
	EscalationMinutes float64   `json:"escalationMinutes"`
	FirstTrigger      bool      `json:"firstTrigger"`
	DetectedAt        time.Time `json:"detectedAt"`
}

func (e *SLABreachEvent) EventType() string     { return "tracking.sla.breach" }
func (e *SLABreachEvent) OccurredAt() time.Time { return e.DetectedAt }

// Pipeline event log record types
const (
	PipelineEventFileCreated       = "FILE_CREATED"
	PipelineEventStageAssigned     = "STAGE_ASSIGNED"
	PipelineEventStageStarted      = "STAGE_STARTED"
	PipelineEventStageCompleted    = "STAGE_COMPLETED"
	PipelineEventStageTransitioned = "STAGE_TRANSITIONED"
	PipelineEventSLABreach         = "SLA_BREACH"
)

// PipelineEvent is one record in the append-only analytics event log. The
// pipeline view reads a latest-event-per-file projection of this log.
type PipelineEvent struct {
	FileID          string    `bson:"fileId" json:"fileId"`
	EventType       string    `bson:"eventType" json:"eventType"`
	Stage           Stage     `bson:"stage" json:"stage"`
	EmployeeCode    string    `bson:"employeeCode,omitempty" json:"employeeCode,omitempty"`
	EmployeeName    string    `bson:"employeeName,omitempty" json:"employeeName,omitempty"`
	EventTime       time.Time `bson:"eventTime" json:"eventTime"`
	DurationMinutes float64   `bson:"durationMinutes,omitempty" json:"durationMinutes,omitempty"`
	PreviousStage   Stage     `bson:"previousStage,omitempty" json:"previousStage,omitempty"`
	NextStage       Stage     `bson:"nextStage,omitempty" json:"nextStage,omitempty"`
}

// PipelineEventFrom maps a domain event to its analytics log record. Events
// with no pipeline representation return nil.
func PipelineEventFrom(event DomainEvent) *PipelineEvent {
	switch e := event.(type) {
	case *FileCreatedEvent:
		return &PipelineEvent{
			FileID:    e.FileID,
			EventType: PipelineEventFileCreated,
			Stage:     e.StartStage,
			EventTime: e.CreatedAt,
		}
	case *StageAssignedEvent:
		return &PipelineEvent{
			FileID:       e.FileID,
			EventType:    PipelineEventStageAssigned,
			Stage:        e.Stage,
			EmployeeCode: e.EmployeeCode,
			EmployeeName: e.EmployeeName,
			EventTime:    e.AssignedAt,
		}
	case *StageStartedEvent:
		return &PipelineEvent{
			FileID:       e.FileID,
			EventType:    PipelineEventStageStarted,
			Stage:        e.Stage,
			EmployeeCode: e.EmployeeCode,
			EventTime:    e.StartedAt,
		}
	case *StageCompletedEvent:
		return &PipelineEvent{
			FileID:          e.FileID,
			EventType:       PipelineEventStageCompleted,
			Stage:           e.Stage,
			EmployeeCode:    e.EmployeeCode,
			EmployeeName:    e.EmployeeName,
			EventTime:       e.CompletedAt,
			DurationMinutes: e.DurationMinutes,
		}
	case *StageTransitionedEvent:
		return &PipelineEvent{
			FileID:        e.FileID,
			EventType:     PipelineEventStageTransitioned,
			Stage:         e.NextStage,
			EmployeeCode:  e.EmployeeCode,
			EventTime:     e.TransitionedAt,
			PreviousStage: e.PreviousStage,
			NextStage:     e.NextStage,
		}
	case *SLABreachEvent:
		return &PipelineEvent{
			FileID:          e.FileID,
			EventType:       PipelineEventSLABreach,
			Stage:           e.Stage,
			EmployeeCode:    e.EmployeeCode,
			EventTime:       e.DetectedAt,
			DurationMinutes: e.ElapsedMinutes,
		}
	default:
		return nil
	}
}
