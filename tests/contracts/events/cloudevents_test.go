package events_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileflow-platform/tracking-service/pkg/contracts/asyncapi"
	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
)

const asyncAPISpecPath = "../../../docs/asyncapi.yaml"

func loadValidator(t *testing.T) *asyncapi.EventValidator {
	t.Helper()

	absPath, err := filepath.Abs(asyncAPISpecPath)
	require.NoError(t, err)

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		t.Skip("AsyncAPI spec not found - skipping event validation tests")
	}

	validator, err := asyncapi.NewEventValidator(absPath)
	require.NoError(t, err)
	return validator
}

func TestEventValidatorCreation(t *testing.T) {
	validator := loadValidator(t)

	eventTypes := validator.GetSupportedEventTypes()
	t.Logf("Found %d event types in AsyncAPI spec", len(eventTypes))
	assert.NotEmpty(t, eventTypes)
}

func TestPublishedEventTypesHaveSchemas(t *testing.T) {
	validator := loadValidator(t)

	published := []string{
		cloudevents.FileCreated,
		cloudevents.StageAssigned,
		cloudevents.StageStarted,
		cloudevents.StageCompleted,
		cloudevents.StageTransitioned,
		cloudevents.FileDelivered,
		cloudevents.SLABreach,
	}

	for _, eventType := range published {
		assert.Truef(t, validator.HasSchema(eventType), "no schema for %s", eventType)
	}
}

func TestFileEventSchemas(t *testing.T) {
	validator := loadValidator(t)

	t.Run("FileCreated", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.FileCreated,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-001",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":     "FILE-001",
				"startStage": "PRELIMS",
				"createdAt":  time.Now().Format(time.RFC3339),
			},
		}

		assert.NoError(t, validator.ValidateEvent(event))
	})

	t.Run("FileCreated rejects unknown stage", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.FileCreated,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-002",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":     "FILE-001",
				"startStage": "SHIPPING",
				"createdAt":  time.Now().Format(time.RFC3339),
			},
		}

		assert.Error(t, validator.ValidateEvent(event))
	})

	t.Run("FileDelivered", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.FileDelivered,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-003",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":               "FILE-001",
				"deliveredAt":          time.Now().Format(time.RFC3339),
				"totalDurationMinutes": 770.0,
				"totalPenaltyPoints":   20.0,
			},
		}

		assert.NoError(t, validator.ValidateEvent(event))
	})
}

func TestStageEventSchemas(t *testing.T) {
	validator := loadValidator(t)

	t.Run("StageCompleted", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.StageCompleted,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-010",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":          "FILE-001",
				"stage":           "PRODUCTION",
				"employeeCode":    "EMP-001",
				"durationMinutes": 490.0,
				"slaStatus":       "over_max",
				"penaltyPoints":   20.0,
			},
		}

		assert.NoError(t, validator.ValidateEvent(event))
	})

	t.Run("StageCompleted requires slaStatus", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.StageCompleted,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-011",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":          "FILE-001",
				"stage":           "PRODUCTION",
				"durationMinutes": 490.0,
				"penaltyPoints":   20.0,
			},
		}

		assert.Error(t, validator.ValidateEvent(event))
	})

	t.Run("StageTransitioned", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.StageTransitioned,
			Source:          cloudevents.SourceTracking,
			ID:              "evt-012",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"fileId":        "FILE-001",
				"previousStage": "COMPLETED",
				"nextStage":     "QC",
				"employeeCode":  "MGR-001",
				"forced":        false,
			},
		}

		assert.NoError(t, validator.ValidateEvent(event))
	})
}

func TestSLABreachSchema(t *testing.T) {
	validator := loadValidator(t)

	event := asyncapi.CloudEvent{
		SpecVersion:     "1.0",
		Type:            cloudevents.SLABreach,
		Source:          cloudevents.SourceTracking,
		ID:              "evt-020",
		Time:            time.Now().Format(time.RFC3339),
		DataContentType: "application/json",
		Data: map[string]interface{}{
			"fileId":            "FILE-001",
			"stage":             "QC",
			"employeeCode":      "EMP-002",
			"elapsedMinutes":    400.5,
			"escalationMinutes": 360.0,
			"firstTrigger":      true,
		},
	}

	assert.NoError(t, validator.ValidateEvent(event))
}

func TestWorkItemSignalSchemas(t *testing.T) {
	validator := loadValidator(t)

	t.Run("WorkItemAssigned", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.WorkItemAssigned,
			Source:          cloudevents.SourceTaskSystem,
			ID:              "evt-030",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"workItemId":   "WI-001",
				"fileId":       "FILE-001",
				"stage":        "PRELIMS",
				"employeeCode": "EMP-003",
				"status":       "OPEN",
				"occurredAt":   time.Now().Format(time.RFC3339),
			},
		}

		assert.NoError(t, validator.ValidateEvent(event))
	})

	t.Run("WorkItemCompleted rejects unknown status", func(t *testing.T) {
		event := asyncapi.CloudEvent{
			SpecVersion:     "1.0",
			Type:            cloudevents.WorkItemCompleted,
			Source:          cloudevents.SourceTaskSystem,
			ID:              "evt-031",
			Time:            time.Now().Format(time.RFC3339),
			DataContentType: "application/json",
			Data: map[string]interface{}{
				"workItemId": "WI-002",
				"fileId":     "FILE-001",
				"stage":      "PRELIMS",
				"status":     "ARCHIVED",
				"occurredAt": time.Now().Format(time.RFC3339),
			},
		}

		assert.Error(t, validator.ValidateEvent(event))
	})
}
