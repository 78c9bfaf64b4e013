package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fileflow-platform/tracking-service/internal/domain"
)

var decodeNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func marshalRaw(t *testing.T, doc interface{}) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return raw
}

// TestDecodeTrackingStrict tests that a well-formed document decodes without
// repair
func TestDecodeTrackingStrict(t *testing.T) {
	created := decodeNow.Add(-2 * time.Hour)
	tracking, err := domain.NewFileTracking("FILE-001", domain.StagePrelims, created)
	require.NoError(t, err)
	require.NoError(t, tracking.Assign("EMP-101", "Dana Reed", "", created.Add(10*time.Minute)))

	result := decodeTracking(marshalRaw(t, tracking), decodeNow)

	assert.False(t, result.degraded)
	assert.Equal(t, "FILE-001", result.tracking.FileID)
	assert.Equal(t, domain.StagePrelims, result.tracking.CurrentStage)
	require.Len(t, result.tracking.StageHistory, 1)
	require.NotNil(t, result.tracking.StageHistory[0].Assignment)
	assert.Equal(t, "EMP-101", result.tracking.StageHistory[0].Assignment.EmployeeCode)
}

// TestDecodeTrackingBackfill tests timestamp backfills for historical
// documents
func TestDecodeTrackingBackfill(t *testing.T) {
	created := decodeNow.Add(-3 * time.Hour)

	t.Run("Visit missing entered_at backfills from created_at", func(t *testing.T) {
		doc := bson.M{
			"fileId":        "FILE-OLD",
			"currentStage":  "PRODUCTION",
			"currentStatus": "IN_PROGRESS",
			"createdAt":     created,
			"startedAt":     created,
			"updatedAt":     created,
			"stageHistory": []bson.M{
				{"stage": "PRODUCTION", "status": "PENDING"},
			},
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		assert.Equal(t, "backfilled_timestamps", result.reason)
		require.Len(t, result.tracking.StageHistory, 1)
		assert.Equal(t, created, result.tracking.StageHistory[0].EnteredAt)
	})

	t.Run("Assignment missing assigned_at backfills from started_at", func(t *testing.T) {
		workStart := created.Add(30 * time.Minute)
		doc := bson.M{
			"fileId":        "FILE-OLD",
			"currentStage":  "PRELIMS",
			"currentStatus": "IN_PROGRESS",
			"createdAt":     created,
			"startedAt":     created,
			"updatedAt":     created,
			"stageHistory": []bson.M{
				{
					"stage":     "PRELIMS",
					"status":    "IN_PROGRESS",
					"enteredAt": created,
					"assignment": bson.M{
						"employeeCode": "EMP-101",
						"startedAt":    workStart,
					},
				},
			},
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		assignment := result.tracking.StageHistory[0].Assignment
		require.NotNil(t, assignment)
		assert.Equal(t, workStart, assignment.AssignedAt)
	})

	t.Run("Assignment with no timestamps at all backfills from now", func(t *testing.T) {
		doc := bson.M{
			"fileId":        "FILE-OLD",
			"currentStage":  "PRELIMS",
			"currentStatus": "IN_PROGRESS",
			"createdAt":     created,
			"stageHistory": []bson.M{
				{
					"stage":      "PRELIMS",
					"status":     "PENDING",
					"enteredAt":  created,
					"assignment": bson.M{"employeeCode": "EMP-101"},
				},
			},
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		assert.Equal(t, decodeNow, result.tracking.StageHistory[0].Assignment.AssignedAt)
	})

	t.Run("History missing its tail gains a synthetic arrival visit", func(t *testing.T) {
		doc := bson.M{
			"fileId":        "FILE-OLD",
			"currentStage":  "QC",
			"currentStatus": "IN_PROGRESS",
			"createdAt":     created,
			"startedAt":     created,
			"updatedAt":     created.Add(time.Hour),
			"stageHistory": []bson.M{
				{"stage": "PRELIMS", "status": "COMPLETED", "enteredAt": created},
			},
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		require.Len(t, result.tracking.StageHistory, 2)
		tail := result.tracking.StageHistory[1]
		assert.Equal(t, domain.StageQC, tail.Stage)
		assert.Equal(t, domain.VisitStatusPending, tail.Status)
	})

	t.Run("Missing current_status defaults to in progress", func(t *testing.T) {
		doc := bson.M{
			"fileId":       "FILE-OLD",
			"currentStage": "PRELIMS",
			"createdAt":    created,
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		assert.Equal(t, domain.FileStatusInProgress, result.tracking.CurrentStatus)
	})
}

// TestDecodeTrackingMinimal tests the last-resort minimal record
func TestDecodeTrackingMinimal(t *testing.T) {
	t.Run("Unrepairable document salvages stage and status", func(t *testing.T) {
		// No timestamps anywhere and an unknown stage in history
		doc := bson.M{
			"fileId":        "FILE-BROKEN",
			"currentStage":  "QC",
			"currentStatus": "IN_PROGRESS",
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		// Missing created_at is repairable; this one decodes via backfill
		assert.True(t, result.degraded)
		assert.Equal(t, "FILE-BROKEN", result.tracking.FileID)
	})

	t.Run("Type-mismatched document falls to the minimal record", func(t *testing.T) {
		doc := bson.M{
			"fileId":        "FILE-BROKEN",
			"currentStage":  "QC",
			"currentStatus": "IN_PROGRESS",
			"stageHistory":  "not-an-array",
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.True(t, result.degraded)
		assert.Equal(t, "minimal_record", result.reason)
		assert.Equal(t, "FILE-BROKEN", result.tracking.FileID)
		assert.Equal(t, domain.StageQC, result.tracking.CurrentStage)
		assert.Equal(t, domain.FileStatusInProgress, result.tracking.CurrentStatus)
		assert.Empty(t, result.tracking.StageHistory)
		assert.Equal(t, decodeNow, result.tracking.CreatedAt)
	})

	t.Run("Unknown stage in a broken document defaults to the start stage", func(t *testing.T) {
		doc := bson.M{
			"fileId":       "FILE-BROKEN",
			"currentStage": "SHIPPING",
			"stageHistory": "not-an-array",
		}

		result := decodeTracking(marshalRaw(t, doc), decodeNow)

		assert.Equal(t, "minimal_record", result.reason)
		assert.Equal(t, domain.StagePrelims, result.tracking.CurrentStage)
	})
}
