package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fileflow-platform/tracking-service/internal/application"
	"github.com/fileflow-platform/tracking-service/internal/infrastructure/mongodb"
	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
	"github.com/fileflow-platform/tracking-service/pkg/kafka"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
)

// WorkItemSignalConsumer keeps the local work-item mirror current from the
// external task system's events and triggers catch-up progression when a
// file's work completes
type WorkItemSignalConsumer struct {
	consumer *kafka.InstrumentedConsumer
	store    *mongodb.WorkItemStore
	service  *application.TrackingService
	logger   *logging.Logger
}

// NewWorkItemSignalConsumer creates a new WorkItemSignalConsumer and wires
// its subscriptions
func NewWorkItemSignalConsumer(
	consumer *kafka.InstrumentedConsumer,
	store *mongodb.WorkItemStore,
	service *application.TrackingService,
	logger *logging.Logger,
) *WorkItemSignalConsumer {
	c := &WorkItemSignalConsumer{
		consumer: consumer,
		store:    store,
		service:  service,
		logger:   logger,
	}

	consumer.Subscribe(kafka.Topics.WorkItemEvents, cloudevents.WorkItemAssigned, c.handleAssigned)
	consumer.Subscribe(kafka.Topics.WorkItemEvents, cloudevents.WorkItemCompleted, c.handleCompleted)

	return c
}

// Start begins consuming until the context is cancelled
func (c *WorkItemSignalConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close shuts the consumer down
func (c *WorkItemSignalConsumer) Close() error {
	return c.consumer.Close()
}

func (c *WorkItemSignalConsumer) handleAssigned(ctx context.Context, event *cloudevents.TrackingCloudEvent) error {
	signal, err := decodeSignal(event)
	if err != nil {
		// Malformed signals are logged and skipped, not retried forever
		c.logger.WithError(err).Warn("Skipping malformed work-item signal", "eventId", event.ID)
		return nil
	}

	status := signal.Status
	if status == "" {
		status = mongodb.WorkItemStatusOpen
	}

	doc := mongodb.WorkItemDocument{
		WorkItemID:   signal.WorkItemID,
		FileID:       signal.FileID,
		Stage:        signal.Stage,
		EmployeeCode: signal.EmployeeCode,
		Status:       status,
		AssignedAt:   signal.OccurredAt,
	}
	if err := c.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to record work item: %w", err)
	}

	return nil
}

func (c *WorkItemSignalConsumer) handleCompleted(ctx context.Context, event *cloudevents.TrackingCloudEvent) error {
	signal, err := decodeSignal(event)
	if err != nil {
		c.logger.WithError(err).Warn("Skipping malformed work-item signal", "eventId", event.ID)
		return nil
	}

	status := signal.Status
	if status == "" {
		status = mongodb.WorkItemStatusDone
	}

	doc := mongodb.WorkItemDocument{
		WorkItemID:   signal.WorkItemID,
		FileID:       signal.FileID,
		Stage:        signal.Stage,
		EmployeeCode: signal.EmployeeCode,
		Status:       status,
		AssignedAt:   signal.OccurredAt,
	}
	if err := c.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to record work item: %w", err)
	}

	// Completion may have cleared the last outstanding item for the stage
	result, err := c.service.ReconcileFromSignals(ctx, application.ReconcileCommand{FileID: signal.FileID})
	if err != nil {
		return fmt.Errorf("failed to reconcile from signal: %w", err)
	}
	if result.Advanced {
		c.logger.Info("Signal-driven progression",
			"fileId", signal.FileID,
			"currentStage", result.CurrentStage)
	}

	return nil
}

// decodeSignal extracts the work-item payload from a consumed CloudEvent
func decodeSignal(event *cloudevents.TrackingCloudEvent) (*cloudevents.WorkItemSignalData, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	var signal cloudevents.WorkItemSignalData
	if err := json.Unmarshal(payload, &signal); err != nil {
		return nil, fmt.Errorf("failed to decode work-item signal: %w", err)
	}
	if signal.FileID == "" || signal.WorkItemID == "" {
		return nil, fmt.Errorf("work-item signal missing identifiers")
	}

	return &signal, nil
}
