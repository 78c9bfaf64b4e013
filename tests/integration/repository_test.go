package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fileflow-platform/tracking-service/internal/domain"
	mongoRepo "github.com/fileflow-platform/tracking-service/internal/infrastructure/mongodb"
	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
	sharedtesting "github.com/fileflow-platform/tracking-service/pkg/testing"
)

// Test fixtures

func createTestTracking(t *testing.T, fileID string, startStage domain.Stage) *domain.FileTracking {
	t.Helper()
	tracking, err := domain.NewFileTracking(fileID, startStage, time.Now().UTC())
	require.NoError(t, err)
	return tracking
}

func setupTestRepositories(t *testing.T) (*mongoRepo.TrackingRepository, *mongo.Database, func()) {
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := sharedtesting.NewMongoDBContainer(ctx)
	require.NoError(t, err)

	client, err := mongoContainer.GetClient(ctx)
	require.NoError(t, err)

	db := client.Database("test_tracking_db")

	logConfig := logging.DefaultConfig("tracking-service-test")
	logConfig.Level = logging.LevelError
	logger := logging.New(logConfig)
	m := metrics.New(metrics.DefaultConfig("tracking-service-test"))
	eventFactory := cloudevents.NewEventFactory("/tracking-service-test")

	repo := mongoRepo.NewTrackingRepository(db, eventFactory, logger, m)

	cleanup := func() {
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Failed to disconnect MongoDB client: %v", err)
		}
		if err := mongoContainer.Close(ctx); err != nil {
			t.Logf("Failed to close MongoDB container: %v", err)
		}
	}

	return repo, db, cleanup
}

func TestTrackingRepository_Save(t *testing.T) {
	repo, db, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Save new tracking record", func(t *testing.T) {
		tracking := createTestTracking(t, "FILE-001", domain.StagePrelims)

		err := repo.Save(ctx, tracking)
		assert.NoError(t, err)

		found, err := repo.FindByID(ctx, "FILE-001")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "FILE-001", found.FileID)
		assert.Equal(t, domain.StagePrelims, found.CurrentStage)
		assert.Equal(t, domain.FileStatusInProgress, found.CurrentStatus)
		require.Len(t, found.StageHistory, 1)
		assert.Equal(t, domain.VisitStatusPending, found.StageHistory[0].Status)
	})

	t.Run("Save is an upsert", func(t *testing.T) {
		tracking := createTestTracking(t, "FILE-002", domain.StagePrelims)
		require.NoError(t, repo.Save(ctx, tracking))

		require.NoError(t, tracking.Assign("EMP-001", "Jordan Reyes", "", time.Now().UTC()))
		require.NoError(t, repo.Save(ctx, tracking))

		found, err := repo.FindByID(ctx, "FILE-002")
		require.NoError(t, err)
		require.NotNil(t, found.CurrentAssignment)
		assert.Equal(t, "EMP-001", found.CurrentAssignment.EmployeeCode)

		count, err := db.Collection("file_tracking").CountDocuments(ctx, bson.M{"fileId": "FILE-002"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Save writes pipeline events and outbox entries transactionally", func(t *testing.T) {
		tracking := createTestTracking(t, "FILE-003", domain.StagePrelims)
		require.NoError(t, tracking.Assign("EMP-002", "Sam Okafor", "", time.Now().UTC()))

		// One FileCreated and one StageAssigned pending
		require.Len(t, tracking.GetDomainEvents(), 2)

		require.NoError(t, repo.Save(ctx, tracking))

		// Events are cleared once committed
		assert.Empty(t, tracking.GetDomainEvents())

		pipelineCount, err := db.Collection("pipeline_events").CountDocuments(ctx, bson.M{"fileId": "FILE-003"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), pipelineCount)

		outboxCount, err := db.Collection("outbox_events").CountDocuments(ctx, bson.M{"aggregateId": "FILE-003"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), outboxCount)
	})

	t.Run("Save without pending events writes no log entries", func(t *testing.T) {
		tracking := createTestTracking(t, "FILE-004", domain.StageProduction)
		tracking.ClearDomainEvents()

		require.NoError(t, repo.Save(ctx, tracking))

		pipelineCount, err := db.Collection("pipeline_events").CountDocuments(ctx, bson.M{"fileId": "FILE-004"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), pipelineCount)
	})
}

func TestTrackingRepository_FindByID_NotFound(t *testing.T) {
	repo, _, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := repo.FindByID(ctx, "FILE-MISSING")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestTrackingRepository_Queries(t *testing.T) {
	repo, _, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	catalog := domain.DefaultCatalog()
	now := time.Now().UTC()

	// Three in-flight files across stages plus one delivered
	for i := 1; i <= 3; i++ {
		tracking := createTestTracking(t, fmt.Sprintf("FILE-Q%d", i), domain.StagePrelims)
		require.NoError(t, repo.Save(ctx, tracking))
	}

	delivered := createTestTracking(t, "FILE-DONE", domain.StageQC)
	require.NoError(t, delivered.Assign("EMP-QC", "Robin Vale", "", now))
	_, err := delivered.StartWork("EMP-QC", now)
	require.NoError(t, err)
	require.NoError(t, delivered.CompleteStage("EMP-QC", "", catalog, now.Add(30*time.Minute)))
	require.Equal(t, domain.StageDelivered, delivered.CurrentStage)
	require.NoError(t, repo.Save(ctx, delivered))

	t.Run("FindInProgress excludes delivered files", func(t *testing.T) {
		found, err := repo.FindInProgress(ctx, domain.DefaultPagination())
		require.NoError(t, err)
		assert.Len(t, found, 3)
		for _, f := range found {
			assert.NotEqual(t, domain.FileStatusDelivered, f.CurrentStatus)
		}
	})

	t.Run("FindInProgress paginates", func(t *testing.T) {
		page1, err := repo.FindInProgress(ctx, domain.Pagination{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, page1, 2)

		page2, err := repo.FindInProgress(ctx, domain.Pagination{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, page2, 1)
	})

	t.Run("FindByStage", func(t *testing.T) {
		found, err := repo.FindByStage(ctx, domain.StagePrelims, domain.DefaultPagination())
		require.NoError(t, err)
		assert.Len(t, found, 3)

		found, err = repo.FindByStage(ctx, domain.StageDelivered, domain.DefaultPagination())
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("FindUpdatedSince", func(t *testing.T) {
		found, err := repo.FindUpdatedSince(ctx, now.Add(-1*time.Minute))
		require.NoError(t, err)
		assert.Len(t, found, 4)

		found, err = repo.FindUpdatedSince(ctx, time.Now().UTC().Add(1*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("Count", func(t *testing.T) {
		count, err := repo.Count(ctx, domain.StagePrelims)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}

func TestTrackingRepository_LegacyDocuments(t *testing.T) {
	repo, db, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Document missing timestamps is backfilled", func(t *testing.T) {
		_, err := db.Collection("file_tracking").InsertOne(ctx, bson.M{
			"fileId":       "FILE-LEGACY-1",
			"currentStage": "PRODUCTION",
			"stageHistory": bson.A{
				bson.M{"stage": "PRODUCTION", "status": "IN_PROGRESS"},
			},
		})
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, "FILE-LEGACY-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageProduction, found.CurrentStage)
		assert.Equal(t, domain.FileStatusInProgress, found.CurrentStatus)
		assert.False(t, found.CreatedAt.IsZero())
		require.Len(t, found.StageHistory, 1)
		assert.False(t, found.StageHistory[0].EnteredAt.IsZero())
	})

	t.Run("Structurally broken document decodes to a minimal record", func(t *testing.T) {
		_, err := db.Collection("file_tracking").InsertOne(ctx, bson.M{
			"fileId":       "FILE-LEGACY-2",
			"currentStage": "QC",
			"stageHistory": "not-an-array",
		})
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, "FILE-LEGACY-2")
		require.NoError(t, err)
		assert.Equal(t, "FILE-LEGACY-2", found.FileID)
		assert.Equal(t, domain.StageQC, found.CurrentStage)
		assert.Empty(t, found.StageHistory)
	})
}

func TestPipelineEventRepository(t *testing.T) {
	repo, db, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	m := metrics.New(metrics.DefaultConfig("tracking-service-test"))
	pipelineRepo := mongoRepo.NewPipelineEventRepository(db, m)

	now := time.Now().UTC()

	// Two files progressed through stages; persisting through the tracking
	// repository keeps the log in the real write shape
	first, err := domain.NewFileTracking("FILE-P1", domain.StagePrelims, now)
	require.NoError(t, err)
	require.NoError(t, first.Assign("EMP-010", "Dana Whitfield", "", now.Add(time.Minute)))
	require.NoError(t, repo.Save(ctx, first))

	second, err := domain.NewFileTracking("FILE-P2", domain.StageProduction, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, second))

	t.Run("LatestEventPerFile reduces to one entry per file", func(t *testing.T) {
		entries, err := pipelineRepo.LatestEventPerFile(ctx, "")
		require.NoError(t, err)
		require.Len(t, entries, 2)

		byFile := make(map[string]domain.PipelineEntry)
		for _, e := range entries {
			byFile[e.FileID] = e
		}

		// FILE-P1's assignment came after its creation
		assert.Equal(t, domain.PipelineEventStageAssigned, byFile["FILE-P1"].EventType)
		assert.Equal(t, "EMP-010", byFile["FILE-P1"].EmployeeCode)
		assert.Equal(t, domain.PipelineEventFileCreated, byFile["FILE-P2"].EventType)
	})

	t.Run("Stage filter applies after the reduction", func(t *testing.T) {
		entries, err := pipelineRepo.LatestEventPerFile(ctx, domain.StageProduction)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "FILE-P2", entries[0].FileID)
	})

	t.Run("EventsForFile returns history oldest first", func(t *testing.T) {
		events, err := pipelineRepo.EventsForFile(ctx, "FILE-P1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.PipelineEventFileCreated, events[0].EventType)
		assert.Equal(t, domain.PipelineEventStageAssigned, events[1].EventType)
	})

	t.Run("Auto-progression ties resolve to the transition", func(t *testing.T) {
		// Completing PRODUCTION records the completion and the transition at
		// the same instant; the latest-event projection must pick the
		// transition so the file shows up in COMPLETED.
		catalog := domain.DefaultCatalog()
		third, err := domain.NewFileTracking("FILE-P3", domain.StageProduction, now)
		require.NoError(t, err)
		require.NoError(t, third.Assign("EMP-011", "Priya Nair", "", now.Add(time.Minute)))
		_, err = third.StartWork("EMP-011", now.Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, third.CompleteStage("EMP-011", "", catalog, now.Add(2*time.Hour)))
		require.Equal(t, domain.StageCompleted, third.CurrentStage)
		require.NoError(t, repo.Save(ctx, third))

		entries, err := pipelineRepo.LatestEventPerFile(ctx, "")
		require.NoError(t, err)

		byFile := make(map[string]domain.PipelineEntry)
		for _, e := range entries {
			byFile[e.FileID] = e
		}
		require.Contains(t, byFile, "FILE-P3")
		assert.Equal(t, domain.PipelineEventStageTransitioned, byFile["FILE-P3"].EventType)
		assert.Equal(t, domain.StageCompleted, byFile["FILE-P3"].Stage)
	})
}

func TestWorkItemStore(t *testing.T) {
	_, db, cleanup := setupTestRepositories(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := mongoRepo.NewWorkItemStore(db)

	require.NoError(t, store.Upsert(ctx, mongoRepo.WorkItemDocument{
		WorkItemID:   "WI-001",
		FileID:       "FILE-W1",
		Stage:        string(domain.StagePrelims),
		EmployeeCode: "EMP-020",
		Status:       mongoRepo.WorkItemStatusOpen,
	}))
	require.NoError(t, store.Upsert(ctx, mongoRepo.WorkItemDocument{
		WorkItemID: "WI-002",
		FileID:     "FILE-W1",
		Stage:      string(domain.StagePrelims),
		Status:     mongoRepo.WorkItemStatusInProgress,
	}))
	require.NoError(t, store.Upsert(ctx, mongoRepo.WorkItemDocument{
		WorkItemID: "WI-003",
		FileID:     "FILE-W1",
		Stage:      string(domain.StagePrelims),
		Status:     mongoRepo.WorkItemStatusDone,
	}))

	t.Run("OutstandingCount counts open and in-progress items", func(t *testing.T) {
		count, err := store.OutstandingCount(ctx, "FILE-W1", domain.StagePrelims)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("OpenAssignments excludes finished items", func(t *testing.T) {
		refs, err := store.OpenAssignments(ctx)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		for _, ref := range refs {
			assert.NotEmpty(t, ref.WorkItemID)
			assert.Equal(t, "FILE-W1", ref.FileID)
			assert.False(t, ref.AssignedAt.IsZero())
		}
	})

	t.Run("Upsert replaces by work item id", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, mongoRepo.WorkItemDocument{
			WorkItemID: "WI-001",
			FileID:     "FILE-W1",
			Stage:      string(domain.StagePrelims),
			Status:     mongoRepo.WorkItemStatusDone,
		}))

		count, err := store.OutstandingCount(ctx, "FILE-W1", domain.StagePrelims)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
