package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileflow-platform/tracking-service/internal/domain"
	apperrors "github.com/fileflow-platform/tracking-service/pkg/errors"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
)

var scanStart = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type mockRepo struct {
	saveFn             func(context.Context, *domain.FileTracking) error
	findByIDFn         func(context.Context, string) (*domain.FileTracking, error)
	findInProgressFn   func(context.Context, domain.Pagination) ([]*domain.FileTracking, error)
	findByStageFn      func(context.Context, domain.Stage, domain.Pagination) ([]*domain.FileTracking, error)
	findUpdatedSinceFn func(context.Context, time.Time) ([]*domain.FileTracking, error)

	lastSaved  *domain.FileTracking
	lastEvents []domain.DomainEvent
	saveCount  int
}

func (m *mockRepo) Save(ctx context.Context, tracking *domain.FileTracking) error {
	m.lastSaved = tracking
	m.lastEvents = tracking.GetDomainEvents()
	m.saveCount++
	if m.saveFn != nil {
		return m.saveFn(ctx, tracking)
	}
	tracking.ClearDomainEvents()
	return nil
}

func (m *mockRepo) FindByID(ctx context.Context, fileID string) (*domain.FileTracking, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, fileID)
	}
	return nil, domain.ErrFileNotFound
}

func (m *mockRepo) FindInProgress(ctx context.Context, pagination domain.Pagination) ([]*domain.FileTracking, error) {
	if m.findInProgressFn != nil {
		return m.findInProgressFn(ctx, pagination)
	}
	return nil, nil
}

func (m *mockRepo) FindByStage(ctx context.Context, stage domain.Stage, pagination domain.Pagination) ([]*domain.FileTracking, error) {
	if m.findByStageFn != nil {
		return m.findByStageFn(ctx, stage, pagination)
	}
	return nil, nil
}

func (m *mockRepo) FindUpdatedSince(ctx context.Context, since time.Time) ([]*domain.FileTracking, error) {
	if m.findUpdatedSinceFn != nil {
		return m.findUpdatedSinceFn(ctx, since)
	}
	return nil, nil
}

func (m *mockRepo) Count(ctx context.Context, stage domain.Stage) (int64, error) {
	return 0, nil
}

type mockPipeline struct {
	latestFn func(context.Context, domain.Stage) ([]domain.PipelineEntry, error)
}

func (m *mockPipeline) LatestEventPerFile(ctx context.Context, stage domain.Stage) ([]domain.PipelineEntry, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, stage)
	}
	return nil, nil
}

func (m *mockPipeline) EventsForFile(ctx context.Context, fileID string) ([]domain.PipelineEvent, error) {
	return nil, nil
}

type mockWorkItems struct {
	outstandingFn     func(context.Context, string, domain.Stage) (int, error)
	openAssignmentsFn func(context.Context) ([]domain.WorkItemRef, error)
}

func (m *mockWorkItems) OutstandingCount(ctx context.Context, fileID string, stage domain.Stage) (int, error) {
	if m.outstandingFn != nil {
		return m.outstandingFn(ctx, fileID, stage)
	}
	return 0, nil
}

func (m *mockWorkItems) OpenAssignments(ctx context.Context) ([]domain.WorkItemRef, error) {
	if m.openAssignmentsFn != nil {
		return m.openAssignmentsFn(ctx)
	}
	return nil, nil
}

type mockIdentity struct {
	displayNameFn func(context.Context, string) (string, error)
}

func (m *mockIdentity) DisplayName(ctx context.Context, employeeCode string) (string, error) {
	if m.displayNameFn != nil {
		return m.displayNameFn(ctx, employeeCode)
	}
	return "", errors.New("directory unavailable")
}

type mockNotifier struct {
	notifyFn func(context.Context, domain.Breach) error
	notified []domain.Breach
}

func (m *mockNotifier) Notify(ctx context.Context, breach domain.Breach) error {
	m.notified = append(m.notified, breach)
	if m.notifyFn != nil {
		return m.notifyFn(ctx, breach)
	}
	return nil
}

type serviceFixture struct {
	service   *TrackingService
	repo      *mockRepo
	pipeline  *mockPipeline
	workItems *mockWorkItems
	identity  *mockIdentity
	notifier  *mockNotifier
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		repo:      &mockRepo{},
		pipeline:  &mockPipeline{},
		workItems: &mockWorkItems{},
		identity:  &mockIdentity{},
		notifier:  &mockNotifier{},
	}

	f.service = NewTrackingService(
		f.repo,
		f.pipeline,
		f.workItems,
		f.identity,
		f.notifier,
		domain.DefaultCatalog(),
		metrics.New(metrics.DefaultConfig("tracking-service-test")),
		testLogger(),
	)
	f.service.nowFn = func() time.Time { return scanStart }

	return f
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("tracking-service-test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func trackingAt(t *testing.T, stage domain.Stage, at time.Time) *domain.FileTracking {
	t.Helper()
	tracking, err := domain.NewFileTracking("FILE-001", stage, at)
	require.NoError(t, err)
	tracking.ClearDomainEvents()
	return tracking
}

func workingTracking(t *testing.T, stage domain.Stage, employeeCode string, at time.Time) *domain.FileTracking {
	t.Helper()
	tracking := trackingAt(t, stage, at)
	require.NoError(t, tracking.Assign(employeeCode, "Test Worker", "", at))
	_, err := tracking.StartWork(employeeCode, at)
	require.NoError(t, err)
	tracking.ClearDomainEvents()
	return tracking
}

// TestInitializeTracking tests idempotent tracking creation
func TestInitializeTracking(t *testing.T) {
	t.Run("Creates tracking with default start stage", func(t *testing.T) {
		f := newFixture(t)

		dto, err := f.service.InitializeTracking(context.Background(), InitializeTrackingCommand{FileID: "FILE-001"})
		require.NoError(t, err)

		assert.Equal(t, "PRELIMS", dto.CurrentStage)
		assert.Equal(t, "IN_PROGRESS", dto.CurrentStatus)
		require.NotNil(t, f.repo.lastSaved)
		assert.Equal(t, "FILE-001", f.repo.lastSaved.FileID)
	})

	t.Run("Repeated initialize returns the existing record", func(t *testing.T) {
		f := newFixture(t)
		existing := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return existing, nil
		}

		dto, err := f.service.InitializeTracking(context.Background(), InitializeTrackingCommand{FileID: "FILE-001"})
		require.NoError(t, err)

		assert.Equal(t, "PRODUCTION", dto.CurrentStage)
		assert.Zero(t, f.repo.saveCount)
	})

	t.Run("Invalid start stage rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.InitializeTracking(context.Background(), InitializeTrackingCommand{
			FileID:     "FILE-001",
			StartStage: "ARCHIVE",
		})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, 400, appErr.HTTPStatus)
	})
}

// TestAssignStage tests assignment with identity enrichment
func TestAssignStage(t *testing.T) {
	t.Run("Resolves display name through the directory", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}
		f.identity.displayNameFn = func(ctx context.Context, code string) (string, error) {
			return "Dana Reed", nil
		}

		dto, err := f.service.AssignStage(context.Background(), AssignStageCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})
		require.NoError(t, err)

		require.NotNil(t, dto.CurrentAssignment)
		assert.Equal(t, "Dana Reed", dto.CurrentAssignment.EmployeeName)
		assert.Equal(t, 1, f.repo.saveCount)
	})

	t.Run("Directory failure degrades to the bare code", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		dto, err := f.service.AssignStage(context.Background(), AssignStageCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})
		require.NoError(t, err)
		assert.Equal(t, "EMP-101", dto.CurrentAssignment.EmployeeName)
	})

	t.Run("Caller-supplied name skips the directory", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}
		f.identity.displayNameFn = func(ctx context.Context, code string) (string, error) {
			t.Fatal("directory should not be called")
			return "", nil
		}

		dto, err := f.service.AssignStage(context.Background(), AssignStageCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
			EmployeeName: "Lee Park",
		})
		require.NoError(t, err)
		assert.Equal(t, "Lee Park", dto.CurrentAssignment.EmployeeName)
	})

	t.Run("Unknown file maps to not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.AssignStage(context.Background(), AssignStageCommand{
			FileID:       "FILE-404",
			EmployeeCode: "EMP-101",
		})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, 404, appErr.HTTPStatus)
	})
}

// TestStartWorkService tests the start-work use case
func TestStartWorkService(t *testing.T) {
	t.Run("Starts work and saves", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		require.NoError(t, tracking.Assign("EMP-101", "Dana Reed", "", scanStart.Add(-30*time.Minute)))
		tracking.ClearDomainEvents()
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		result, err := f.service.StartWork(context.Background(), StartWorkCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})
		require.NoError(t, err)

		assert.True(t, result.Started)
		assert.Equal(t, 1, f.repo.saveCount)
	})

	t.Run("Repeated start skips the save", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		result, err := f.service.StartWork(context.Background(), StartWorkCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})
		require.NoError(t, err)

		assert.False(t, result.Started)
		assert.Zero(t, f.repo.saveCount)
	})

	t.Run("Actor mismatch maps to conflict error", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		_, err := f.service.StartWork(context.Background(), StartWorkCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-999",
		})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "NOT_ASSIGNED", appErr.Code)
	})
}

// TestCompleteStageService tests stage completion through the service
func TestCompleteStageService(t *testing.T) {
	t.Run("Completion persists once including auto-progression", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-400*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		dto, err := f.service.CompleteStage(context.Background(), CompleteStageCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})
		require.NoError(t, err)

		assert.Equal(t, "COMPLETED", dto.CurrentStage)
		assert.Equal(t, "COMPLETED", dto.CurrentStatus)
		assert.Equal(t, 1, f.repo.saveCount)
	})

	t.Run("Illegal completion surfaces the domain error", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		_, err := f.service.CompleteStage(context.Background(), CompleteStageCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
		})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "NOT_ASSIGNED", appErr.Code)
		assert.Zero(t, f.repo.saveCount)
	})
}

// TestTransitionService tests the transition use case
func TestTransitionService(t *testing.T) {
	t.Run("Manager gate releases COMPLETED into QC", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-400*time.Minute))
		require.NoError(t, tracking.CompleteStage("EMP-101", "", domain.DefaultCatalog(), scanStart.Add(-10*time.Minute)))
		tracking.ClearDomainEvents()
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		dto, err := f.service.Transition(context.Background(), TransitionCommand{
			FileID:       "FILE-001",
			EmployeeCode: "MGR-001",
			TargetStage:  "QC",
		})
		require.NoError(t, err)

		assert.Equal(t, "QC", dto.CurrentStage)
		assert.Equal(t, "IN_PROGRESS", dto.CurrentStatus)

		events := f.repo.lastEvents
		require.Len(t, events, 1)
		transitioned, ok := events[0].(*domain.StageTransitionedEvent)
		require.True(t, ok)
		assert.Equal(t, "MGR-001", transitioned.EmployeeCode)
	})

	t.Run("Illegal transition maps to 409", func(t *testing.T) {
		f := newFixture(t)
		tracking := trackingAt(t, domain.StagePrelims, scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		_, err := f.service.Transition(context.Background(), TransitionCommand{
			FileID:       "FILE-001",
			EmployeeCode: "MGR-001",
			TargetStage:  "QC",
		})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "ILLEGAL_TRANSITION", appErr.Code)
	})
}

// TestCompleteAndTransitionService tests the combined use case
func TestCompleteAndTransitionService(t *testing.T) {
	t.Run("Completes, transitions and assigns the next employee in one save", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-100*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}
		f.identity.displayNameFn = func(ctx context.Context, code string) (string, error) {
			return "Lee Park", nil
		}

		dto, err := f.service.CompleteAndTransition(context.Background(), CompleteAndTransitionCommand{
			FileID:           "FILE-001",
			EmployeeCode:     "EMP-101",
			TargetStage:      "PRODUCTION",
			NextEmployeeCode: "EMP-202",
		})
		require.NoError(t, err)

		assert.Equal(t, "PRODUCTION", dto.CurrentStage)
		require.NotNil(t, dto.CurrentAssignment)
		assert.Equal(t, "EMP-202", dto.CurrentAssignment.EmployeeCode)
		assert.Equal(t, "Lee Park", dto.CurrentAssignment.EmployeeName)
		assert.Equal(t, 1, f.repo.saveCount)
	})

	t.Run("Target already reached by auto-progression is not re-entered", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-400*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		dto, err := f.service.CompleteAndTransition(context.Background(), CompleteAndTransitionCommand{
			FileID:       "FILE-001",
			EmployeeCode: "EMP-101",
			TargetStage:  "COMPLETED",
		})
		require.NoError(t, err)

		assert.Equal(t, "COMPLETED", dto.CurrentStage)
		// One arrival visit only
		assert.Len(t, dto.StageHistory, 2)
	})
}

// TestReconcileFromSignals tests signal-driven catch-up
func TestReconcileFromSignals(t *testing.T) {
	t.Run("Zero outstanding work advances the file", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-300*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		result, err := f.service.ReconcileFromSignals(context.Background(), ReconcileCommand{FileID: "FILE-001"})
		require.NoError(t, err)

		assert.True(t, result.Advanced)
		assert.Equal(t, "COMPLETED", result.CurrentStage)
		assert.Equal(t, 1, f.repo.saveCount)
	})

	t.Run("Outstanding work leaves the file in place", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-300*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}
		f.workItems.outstandingFn = func(ctx context.Context, fileID string, stage domain.Stage) (int, error) {
			return 3, nil
		}

		result, err := f.service.ReconcileFromSignals(context.Background(), ReconcileCommand{FileID: "FILE-001"})
		require.NoError(t, err)

		assert.False(t, result.Advanced)
		assert.Equal(t, 3, result.Outstanding)
		assert.Zero(t, f.repo.saveCount)
	})

	t.Run("Unknown file is a no-op, not an error", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.ReconcileFromSignals(context.Background(), ReconcileCommand{FileID: "FILE-404"})
		require.NoError(t, err)
		assert.False(t, result.Advanced)
	})

	t.Run("Work-item lookup failure degrades to a no-op", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageProduction, "EMP-101", scanStart.Add(-300*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}
		f.workItems.outstandingFn = func(ctx context.Context, fileID string, stage domain.Stage) (int, error) {
			return 0, errors.New("work-item store unreachable")
		}

		result, err := f.service.ReconcileFromSignals(context.Background(), ReconcileCommand{FileID: "FILE-001"})
		require.NoError(t, err)
		assert.False(t, result.Advanced)
	})

	t.Run("Stage without auto edge reports no progress", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-300*time.Minute))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		result, err := f.service.ReconcileFromSignals(context.Background(), ReconcileCommand{FileID: "FILE-001"})
		require.NoError(t, err)
		assert.False(t, result.Advanced)
		assert.Equal(t, "PRELIMS", result.CurrentStage)
	})
}

// TestCheckSLABreaches tests the breach scan
func TestCheckSLABreaches(t *testing.T) {
	t.Run("Open visit past escalation is reported and escalated", func(t *testing.T) {
		f := newFixture(t)
		// 90 minutes in-progress against a 60-minute escalation threshold
		f.service.catalog = domain.NewStageCatalog(map[domain.Stage]domain.StageConfig{
			domain.StagePrelims: {IdealMinutes: 20, MaxMinutes: 40, EscalationMinutes: 60},
		})
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-90*time.Minute))
		f.repo.findInProgressFn = func(ctx context.Context, p domain.Pagination) ([]*domain.FileTracking, error) {
			if p.Page > 1 {
				return nil, nil
			}
			return []*domain.FileTracking{tracking}, nil
		}

		result, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Breaches, 1)
		breach := result.Breaches[0]
		assert.Equal(t, "FILE-001", breach.FileID)
		assert.True(t, breach.FirstTrigger)
		assert.Equal(t, float64(90), breach.ElapsedMinutes)

		assert.Len(t, f.notifier.notified, 1)
		assert.True(t, tracking.StageHistory[0].EscalationSent)
		assert.Equal(t, domain.VisitStatusEscalated, tracking.StageHistory[0].Status)
		assert.Equal(t, 1, tracking.EscalationsTriggered)
	})

	t.Run("Second scan reports the same breach without re-escalating", func(t *testing.T) {
		f := newFixture(t)
		f.service.catalog = domain.NewStageCatalog(map[domain.Stage]domain.StageConfig{
			domain.StagePrelims: {IdealMinutes: 20, MaxMinutes: 40, EscalationMinutes: 60},
		})
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-90*time.Minute))
		f.repo.findInProgressFn = func(ctx context.Context, p domain.Pagination) ([]*domain.FileTracking, error) {
			if p.Page > 1 {
				return nil, nil
			}
			return []*domain.FileTracking{tracking}, nil
		}

		_, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)

		result, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Breaches, 1)
		assert.False(t, result.Breaches[0].FirstTrigger)
		assert.Equal(t, 1, tracking.EscalationsTriggered)
	})

	t.Run("Notifier failure leaves escalation unset for retry", func(t *testing.T) {
		f := newFixture(t)
		f.service.catalog = domain.NewStageCatalog(map[domain.Stage]domain.StageConfig{
			domain.StagePrelims: {IdealMinutes: 20, MaxMinutes: 40, EscalationMinutes: 60},
		})
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-90*time.Minute))
		f.repo.findInProgressFn = func(ctx context.Context, p domain.Pagination) ([]*domain.FileTracking, error) {
			if p.Page > 1 {
				return nil, nil
			}
			return []*domain.FileTracking{tracking}, nil
		}
		f.notifier.notifyFn = func(ctx context.Context, breach domain.Breach) error {
			return errors.New("notification channel down")
		}

		result, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Breaches, 1)
		assert.False(t, tracking.StageHistory[0].EscalationSent)
		assert.Zero(t, tracking.EscalationsTriggered)
	})

	t.Run("External work items merged and deduplicated", func(t *testing.T) {
		f := newFixture(t)
		f.service.catalog = domain.NewStageCatalog(map[domain.Stage]domain.StageConfig{
			domain.StagePrelims: {IdealMinutes: 20, MaxMinutes: 40, EscalationMinutes: 60},
		})
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-90*time.Minute))
		f.repo.findInProgressFn = func(ctx context.Context, p domain.Pagination) ([]*domain.FileTracking, error) {
			if p.Page > 1 {
				return nil, nil
			}
			return []*domain.FileTracking{tracking}, nil
		}
		f.workItems.openAssignmentsFn = func(ctx context.Context) ([]domain.WorkItemRef, error) {
			return []domain.WorkItemRef{
				// Duplicate of the tracked file: must not appear twice
				{WorkItemID: "WI-1", FileID: "FILE-001", Stage: domain.StagePrelims, EmployeeCode: "EMP-101", AssignedAt: scanStart.Add(-90 * time.Minute)},
				// Unknown to the tracking store and overdue
				{WorkItemID: "WI-2", FileID: "FILE-EXT", Stage: domain.StagePrelims, EmployeeCode: "EMP-202", AssignedAt: scanStart.Add(-120 * time.Minute)},
				// Unknown but not overdue
				{WorkItemID: "WI-3", FileID: "FILE-OK", Stage: domain.StagePrelims, EmployeeCode: "EMP-303", AssignedAt: scanStart.Add(-10 * time.Minute)},
			}, nil
		}

		result, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)

		require.Len(t, result.Breaches, 2)
		ids := []string{result.Breaches[0].FileID, result.Breaches[1].FileID}
		assert.ElementsMatch(t, []string{"FILE-001", "FILE-EXT"}, ids)
	})

	t.Run("No breaches is an empty result, not an error", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StagePrelims, "EMP-101", scanStart.Add(-10*time.Minute))
		f.repo.findInProgressFn = func(ctx context.Context, p domain.Pagination) ([]*domain.FileTracking, error) {
			if p.Page > 1 {
				return nil, nil
			}
			return []*domain.FileTracking{tracking}, nil
		}

		result, err := f.service.CheckSLABreaches(context.Background())
		require.NoError(t, err)
		assert.Empty(t, result.Breaches)
		assert.Equal(t, 1, result.Scanned)
	})
}

// TestGetFileTracking tests the typed read path
func TestGetFileTracking(t *testing.T) {
	t.Run("Returns the mapped record", func(t *testing.T) {
		f := newFixture(t)
		tracking := workingTracking(t, domain.StageQC, "EMP-303", scanStart.Add(-time.Hour))
		f.repo.findByIDFn = func(ctx context.Context, fileID string) (*domain.FileTracking, error) {
			return tracking, nil
		}

		dto, err := f.service.GetFileTracking(context.Background(), GetFileTrackingQuery{FileID: "FILE-001"})
		require.NoError(t, err)

		assert.Equal(t, "QC", dto.CurrentStage)
		require.Len(t, dto.StageHistory, 1)
		assert.Equal(t, "IN_PROGRESS", dto.StageHistory[0].Status)
	})

	t.Run("Unknown file maps to not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.GetFileTracking(context.Background(), GetFileTrackingQuery{FileID: "FILE-404"})

		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, 404, appErr.HTTPStatus)
	})
}
