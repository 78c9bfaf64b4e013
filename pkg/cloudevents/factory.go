package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for tracking domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new TrackingCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *TrackingCloudEvent {
	event := &TrackingCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	return event
}

// CreateEventWithCorrelation creates an event with correlation tracking
func (f *EventFactory) CreateEventWithCorrelation(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
	correlationID string,
	fileID string,
) *TrackingCloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.CorrelationID = correlationID
	event.FileID = fileID
	return event
}

// CreateFileCreatedEvent creates a FileCreated event
func (f *EventFactory) CreateFileCreatedEvent(
	ctx context.Context,
	fileID string,
	startStage string,
	createdAt time.Time,
) *TrackingCloudEvent {
	data := FileCreatedData{
		FileID:     fileID,
		StartStage: startStage,
		CreatedAt:  createdAt,
	}
	event := f.CreateEvent(ctx, FileCreated, "file/"+fileID, data)
	event.FileID = fileID
	return event
}

// CreateStageAssignedEvent creates a StageAssigned event
func (f *EventFactory) CreateStageAssignedEvent(
	ctx context.Context,
	fileID string,
	stage string,
	employeeCode string,
	employeeName string,
) *TrackingCloudEvent {
	data := StageAssignedData{
		FileID:       fileID,
		Stage:        stage,
		EmployeeCode: employeeCode,
		EmployeeName: employeeName,
	}
	event := f.CreateEvent(ctx, StageAssigned, "file/"+fileID, data)
	event.FileID = fileID
	return event
}

// CreateStageCompletedEvent creates a StageCompleted event
func (f *EventFactory) CreateStageCompletedEvent(
	ctx context.Context,
	fileID string,
	stage string,
	employeeCode string,
	durationMinutes float64,
	slaStatus string,
	penaltyPoints float64,
) *TrackingCloudEvent {
	data := StageCompletedData{
		FileID:          fileID,
		Stage:           stage,
		EmployeeCode:    employeeCode,
		DurationMinutes: durationMinutes,
		SLAStatus:       slaStatus,
		PenaltyPoints:   penaltyPoints,
	}
	event := f.CreateEvent(ctx, StageCompleted, "file/"+fileID, data)
	event.FileID = fileID
	return event
}

// CreateStageTransitionedEvent creates a StageTransitioned event
func (f *EventFactory) CreateStageTransitionedEvent(
	ctx context.Context,
	fileID string,
	previousStage string,
	nextStage string,
	forced bool,
) *TrackingCloudEvent {
	data := StageTransitionedData{
		FileID:        fileID,
		PreviousStage: previousStage,
		NextStage:     nextStage,
		Forced:        forced,
	}
	event := f.CreateEvent(ctx, StageTransitioned, "file/"+fileID, data)
	event.FileID = fileID
	return event
}

// CreateSLABreachEvent creates an SLABreach event
func (f *EventFactory) CreateSLABreachEvent(
	ctx context.Context,
	fileID string,
	stage string,
	employeeCode string,
	elapsedMinutes float64,
	escalationMinutes float64,
	firstTrigger bool,
) *TrackingCloudEvent {
	data := SLABreachData{
		FileID:            fileID,
		Stage:             stage,
		EmployeeCode:      employeeCode,
		ElapsedMinutes:    elapsedMinutes,
		EscalationMinutes: escalationMinutes,
		FirstTrigger:      firstTrigger,
	}
	event := f.CreateEvent(ctx, SLABreach, "file/"+fileID, data)
	event.FileID = fileID
	return event
}

// CreateEscalationRaisedEvent creates an EscalationRaised event
func (f *EventFactory) CreateEscalationRaisedEvent(
	ctx context.Context,
	fileID string,
	stage string,
	employeeCode string,
	elapsedMinutes float64,
	escalationMinutes float64,
	firstTrigger bool,
) *TrackingCloudEvent {
	data := SLABreachData{
		FileID:            fileID,
		Stage:             stage,
		EmployeeCode:      employeeCode,
		ElapsedMinutes:    elapsedMinutes,
		EscalationMinutes: escalationMinutes,
		FirstTrigger:      firstTrigger,
	}
	event := f.CreateEvent(ctx, EscalationRaised, "file/"+fileID, data)
	event.FileID = fileID
	return event
}
