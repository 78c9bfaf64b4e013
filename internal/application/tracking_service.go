package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fileflow-platform/tracking-service/pkg/errors"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"

	"github.com/fileflow-platform/tracking-service/internal/domain"
)

// DefaultRecentWriteWindow is how far back the authoritative store is scanned
// when folding recent writes over the pipeline event projection
const DefaultRecentWriteWindow = 5 * time.Minute

// breachScanPageSize bounds how many in-progress files one scan page loads
const breachScanPageSize = 200

// TrackingService handles file tracking use cases. It exclusively owns write
// access to FileTracking aggregates; every other component reads or calls in
// through these operations.
type TrackingService struct {
	repo         domain.TrackingRepository
	pipeline     domain.PipelineReadRepository
	workItems    domain.WorkItemSource
	identity     domain.IdentityDirectory
	notifier     domain.EscalationNotifier
	catalog      *domain.StageCatalog
	metrics      *metrics.Metrics
	logger       *logging.Logger
	recentWindow time.Duration
	nowFn        func() time.Time
}

// NewTrackingService creates a new TrackingService
func NewTrackingService(
	repo domain.TrackingRepository,
	pipeline domain.PipelineReadRepository,
	workItems domain.WorkItemSource,
	identity domain.IdentityDirectory,
	notifier domain.EscalationNotifier,
	catalog *domain.StageCatalog,
	m *metrics.Metrics,
	logger *logging.Logger,
) *TrackingService {
	return &TrackingService{
		repo:         repo,
		pipeline:     pipeline,
		workItems:    workItems,
		identity:     identity,
		notifier:     notifier,
		catalog:      catalog,
		metrics:      m,
		logger:       logger,
		recentWindow: DefaultRecentWriteWindow,
		nowFn:        time.Now,
	}
}

// InitializeTracking creates tracking for a file. Calling it again for a
// known file returns the existing record unchanged.
func (s *TrackingService) InitializeTracking(ctx context.Context, cmd InitializeTrackingCommand) (*FileTrackingDTO, error) {
	existing, err := s.repo.FindByID(ctx, cmd.FileID)
	if err != nil && err != domain.ErrFileNotFound {
		s.logger.WithError(err).Error("Failed to check existing tracking", "fileId", cmd.FileID)
		return nil, fmt.Errorf("failed to check existing tracking: %w", err)
	}
	if existing != nil {
		return ToFileTrackingDTO(existing), nil
	}

	startStage := domain.StagePrelims
	if cmd.StartStage != "" {
		startStage = domain.Stage(cmd.StartStage)
	}

	tracking, err := domain.NewFileTracking(cmd.FileID, startStage, s.nowFn())
	if err != nil {
		return nil, errors.MapDomainError(err)
	}

	if err := s.repo.Save(ctx, tracking); err != nil {
		s.logger.WithError(err).Error("Failed to initialize tracking", "fileId", cmd.FileID)
		return nil, fmt.Errorf("failed to initialize tracking: %w", err)
	}

	s.metrics.RecordFileInitialized(string(startStage))
	s.logger.Event(ctx, "tracking.file.initialized", map[string]any{
		"fileId":     cmd.FileID,
		"startStage": string(startStage),
	})

	return ToFileTrackingDTO(tracking), nil
}

// AssignStage assigns an employee to the file's current stage. The display
// name is resolved through the identity directory when the caller omits it;
// a failed lookup degrades to the bare code.
func (s *TrackingService) AssignStage(ctx context.Context, cmd AssignStageCommand) (*FileTrackingDTO, error) {
	tracking, err := s.load(ctx, cmd.FileID)
	if err != nil {
		return nil, err
	}

	employeeName := cmd.EmployeeName
	if employeeName == "" {
		employeeName = s.resolveEmployeeName(ctx, cmd.EmployeeCode)
	}

	if err := tracking.Assign(cmd.EmployeeCode, employeeName, cmd.Notes, s.nowFn()); err != nil {
		return nil, errors.MapDomainError(err)
	}

	if err := s.save(ctx, tracking); err != nil {
		return nil, err
	}

	s.logger.Info("Assigned stage",
		"fileId", cmd.FileID,
		"stage", string(tracking.CurrentStage),
		"employeeCode", cmd.EmployeeCode)

	return ToFileTrackingDTO(tracking), nil
}

// StartWork records the assigned employee starting work on the current
// stage. Restart-safe: a repeated call reports started=false.
func (s *TrackingService) StartWork(ctx context.Context, cmd StartWorkCommand) (*StartWorkResult, error) {
	tracking, err := s.load(ctx, cmd.FileID)
	if err != nil {
		return nil, err
	}

	started, err := tracking.StartWork(cmd.EmployeeCode, s.nowFn())
	if err != nil {
		return nil, errors.MapDomainError(err)
	}

	if started {
		if err := s.save(ctx, tracking); err != nil {
			return nil, err
		}
	}

	return &StartWorkResult{
		FileID:  cmd.FileID,
		Stage:   string(tracking.CurrentStage),
		Started: started,
	}, nil
}

// CompleteStage completes the current stage for the assigned employee,
// settling duration, SLA status and penalty, and auto-advancing where the
// pipeline allows
func (s *TrackingService) CompleteStage(ctx context.Context, cmd CompleteStageCommand) (*FileTrackingDTO, error) {
	tracking, err := s.load(ctx, cmd.FileID)
	if err != nil {
		return nil, err
	}

	if err := tracking.CompleteStage(cmd.EmployeeCode, cmd.Notes, s.catalog, s.nowFn()); err != nil {
		return nil, errors.MapDomainError(err)
	}

	events := snapshotEvents(tracking)
	if err := s.save(ctx, tracking); err != nil {
		return nil, err
	}
	s.recordEventMetrics(events)

	s.logger.Info("Completed stage",
		"fileId", cmd.FileID,
		"currentStage", string(tracking.CurrentStage),
		"employeeCode", cmd.EmployeeCode,
		"totalPenaltyPoints", tracking.TotalPenaltyPoints)

	return ToFileTrackingDTO(tracking), nil
}

// Transition moves a file to a target stage. COMPLETED to QC is the one
// manager-gated edge; force overrides reachability and force-completes open
// work.
func (s *TrackingService) Transition(ctx context.Context, cmd TransitionCommand) (*FileTrackingDTO, error) {
	tracking, err := s.load(ctx, cmd.FileID)
	if err != nil {
		return nil, err
	}

	previous := tracking.CurrentStage
	if err := tracking.TransitionTo(domain.Stage(cmd.TargetStage), cmd.EmployeeCode, s.catalog, cmd.Force, s.nowFn()); err != nil {
		return nil, errors.MapDomainError(err)
	}

	events := snapshotEvents(tracking)
	if err := s.save(ctx, tracking); err != nil {
		return nil, err
	}
	s.recordEventMetrics(events)

	s.logger.StageTransition(ctx, cmd.FileID, string(previous), cmd.TargetStage, cmd.Force)

	return ToFileTrackingDTO(tracking), nil
}

// CompleteAndTransition completes the current stage and transitions to the
// target as one logical unit, optionally assigning the next employee. A
// target already reached by auto-progression is not transitioned again.
func (s *TrackingService) CompleteAndTransition(ctx context.Context, cmd CompleteAndTransitionCommand) (*FileTrackingDTO, error) {
	tracking, err := s.load(ctx, cmd.FileID)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	target := domain.Stage(cmd.TargetStage)

	if err := tracking.CompleteStage(cmd.EmployeeCode, cmd.Notes, s.catalog, now); err != nil {
		return nil, errors.MapDomainError(err)
	}

	if tracking.CurrentStage != target {
		if err := tracking.TransitionTo(target, cmd.EmployeeCode, s.catalog, false, now); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}

	if cmd.NextEmployeeCode != "" && tracking.CurrentStatus == domain.FileStatusInProgress {
		nextName := s.resolveEmployeeName(ctx, cmd.NextEmployeeCode)
		if err := tracking.Assign(cmd.NextEmployeeCode, nextName, "", now); err != nil {
			return nil, errors.MapDomainError(err)
		}
	}

	events := snapshotEvents(tracking)
	if err := s.save(ctx, tracking); err != nil {
		return nil, err
	}
	s.recordEventMetrics(events)

	return ToFileTrackingDTO(tracking), nil
}

// ReconcileFromSignals performs catch-up progression when the external
// work-item system reports completion. Absence of progress is a normal
// result, never an error.
func (s *TrackingService) ReconcileFromSignals(ctx context.Context, cmd ReconcileCommand) (*ReconcileResult, error) {
	tracking, err := s.repo.FindByID(ctx, cmd.FileID)
	if err != nil {
		if err == domain.ErrFileNotFound {
			return &ReconcileResult{FileID: cmd.FileID, Advanced: false}, nil
		}
		s.logger.WithError(err).Error("Failed to load tracking for reconcile", "fileId", cmd.FileID)
		return nil, fmt.Errorf("failed to load tracking: %w", err)
	}

	outstanding, err := s.workItems.OutstandingCount(ctx, cmd.FileID, tracking.CurrentStage)
	if err != nil {
		s.logger.WithError(err).Warn("Work-item lookup failed, skipping reconcile", "fileId", cmd.FileID)
		return &ReconcileResult{FileID: cmd.FileID, Advanced: false, CurrentStage: string(tracking.CurrentStage)}, nil
	}

	result := &ReconcileResult{
		FileID:       cmd.FileID,
		CurrentStage: string(tracking.CurrentStage),
		Outstanding:  outstanding,
	}
	if outstanding > 0 {
		return result, nil
	}

	if !tracking.ReconcileAdvance(s.catalog, s.nowFn()) {
		return result, nil
	}

	events := snapshotEvents(tracking)
	if err := s.save(ctx, tracking); err != nil {
		return nil, err
	}
	s.recordEventMetrics(events)

	result.Advanced = true
	result.CurrentStage = string(tracking.CurrentStage)
	s.logger.Info("Reconciled from signals",
		"fileId", cmd.FileID,
		"currentStage", result.CurrentStage)

	return result, nil
}

// CheckSLABreaches scans open visits past their stage's escalation threshold
// and folds in externally-assigned work items for files the tracking store
// has not seen. Every breach is handed to the notifier; only the first
// trigger per visit escalates it and counts toward the file's totals.
// Ongoing breaches keep appearing in later scans.
func (s *TrackingService) CheckSLABreaches(ctx context.Context) (*BreachScanResultDTO, error) {
	now := s.nowFn()
	breaches := make([]domain.Breach, 0)
	seen := make(map[string]struct{})
	scanned := 0

	for page := int64(1); ; page++ {
		files, err := s.repo.FindInProgress(ctx, domain.Pagination{Page: page, PageSize: breachScanPageSize})
		if err != nil {
			s.logger.WithError(err).Error("Breach scan failed to load in-progress files")
			return nil, fmt.Errorf("failed to scan in-progress files: %w", err)
		}
		if len(files) == 0 {
			break
		}

		for _, tracking := range files {
			scanned++
			breach, ok := s.evaluateBreach(tracking, now)
			if !ok {
				continue
			}

			s.notifyAndMark(ctx, tracking, breach, now)
			breaches = append(breaches, breach)
			seen[breach.FileID] = struct{}{}
		}

		if len(files) < breachScanPageSize {
			break
		}
	}

	breaches = append(breaches, s.externalBreaches(ctx, seen, now)...)

	sort.Slice(breaches, func(i, j int) bool {
		return breaches[i].ElapsedMinutes > breaches[j].ElapsedMinutes
	})

	result := &BreachScanResultDTO{
		Breaches:  make([]BreachDTO, 0, len(breaches)),
		Scanned:   scanned,
		ScannedAt: now,
	}
	for _, breach := range breaches {
		result.Breaches = append(result.Breaches, ToBreachDTO(breach))
	}

	return result, nil
}

// evaluateBreach checks one file's open visit against its escalation
// threshold
func (s *TrackingService) evaluateBreach(tracking *domain.FileTracking, now time.Time) (domain.Breach, bool) {
	visit := tracking.CurrentVisit()
	if visit == nil || !visit.Status.IsOpen() {
		return domain.Breach{}, false
	}

	config, ok := s.catalog.Config(visit.Stage)
	if !ok || config.EscalationMinutes <= 0 {
		return domain.Breach{}, false
	}

	elapsed := tracking.ElapsedInStage(now)
	if elapsed <= config.EscalationMinutes {
		return domain.Breach{}, false
	}

	breach := domain.Breach{
		FileID:            tracking.FileID,
		Stage:             visit.Stage,
		ElapsedMinutes:    elapsed,
		EscalationMinutes: config.EscalationMinutes,
		FirstTrigger:      !visit.EscalationSent,
		DetectedAt:        now,
	}
	if visit.Assignment != nil {
		breach.EmployeeCode = visit.Assignment.EmployeeCode
	}

	return breach, true
}

// notifyAndMark invokes the notifier and, only once it returns, records the
// escalation on the aggregate. At-least-once delivery: notifier failures
// leave escalation_sent unset so the next scan retries the notification.
func (s *TrackingService) notifyAndMark(ctx context.Context, tracking *domain.FileTracking, breach domain.Breach, now time.Time) {
	if err := s.notifier.Notify(ctx, breach); err != nil {
		s.logger.WithError(err).Warn("Escalation notification failed",
			"fileId", breach.FileID,
			"stage", string(breach.Stage))
		return
	}

	first := tracking.MarkEscalated(breach.ElapsedMinutes, breach.EscalationMinutes, now)
	events := snapshotEvents(tracking)
	if err := s.save(ctx, tracking); err != nil {
		s.logger.WithError(err).Error("Failed to persist escalation", "fileId", breach.FileID)
		return
	}

	s.metrics.RecordSLABreach(string(breach.Stage))
	if first {
		s.metrics.RecordEscalationRaised(string(breach.Stage))
	}
	s.recordEventMetrics(events)
	s.logger.SLABreach(ctx, breach.FileID, string(breach.Stage), breach.ElapsedMinutes, first)
}

// externalBreaches folds in work items assigned in the external system for
// files this store has not seen yet, deduplicated by file id. Lookup
// failures degrade to tracking-store results only.
func (s *TrackingService) externalBreaches(ctx context.Context, seen map[string]struct{}, now time.Time) []domain.Breach {
	items, err := s.workItems.OpenAssignments(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Open-assignment lookup failed, breach scan degraded to tracking store")
		return nil
	}

	breaches := make([]domain.Breach, 0)
	for _, item := range items {
		if _, dup := seen[item.FileID]; dup {
			continue
		}

		config, ok := s.catalog.Config(item.Stage)
		if !ok || config.EscalationMinutes <= 0 {
			continue
		}

		elapsed := domain.ElapsedMinutes(item.AssignedAt, now)
		if elapsed <= config.EscalationMinutes {
			continue
		}

		breach := domain.Breach{
			FileID:            item.FileID,
			Stage:             item.Stage,
			EmployeeCode:      item.EmployeeCode,
			ElapsedMinutes:    elapsed,
			EscalationMinutes: config.EscalationMinutes,
			FirstTrigger:      true,
			DetectedAt:        now,
		}

		if err := s.notifier.Notify(ctx, breach); err != nil {
			s.logger.WithError(err).Warn("Escalation notification failed",
				"fileId", breach.FileID,
				"stage", string(breach.Stage))
		}

		seen[item.FileID] = struct{}{}
		breaches = append(breaches, breach)
	}

	return breaches
}

// GetFileTracking retrieves tracking for a file. Legacy-safe decoding at the
// store boundary means schema drift surfaces as a degraded record, never as
// a failure.
func (s *TrackingService) GetFileTracking(ctx context.Context, query GetFileTrackingQuery) (*FileTrackingDTO, error) {
	tracking, err := s.load(ctx, query.FileID)
	if err != nil {
		return nil, err
	}
	return ToFileTrackingDTO(tracking), nil
}

// load fetches an aggregate, mapping unknown files to the NotFound error
func (s *TrackingService) load(ctx context.Context, fileID string) (*domain.FileTracking, error) {
	tracking, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if err == domain.ErrFileNotFound {
			return nil, errors.ErrNotFoundWithID("file tracking", fileID)
		}
		s.logger.WithError(err).Error("Failed to load tracking", "fileId", fileID)
		return nil, fmt.Errorf("failed to load tracking: %w", err)
	}
	return tracking, nil
}

// save persists an aggregate; pipeline events and outbox entries ride the
// same transaction inside the repository
func (s *TrackingService) save(ctx context.Context, tracking *domain.FileTracking) error {
	if err := s.repo.Save(ctx, tracking); err != nil {
		s.logger.WithError(err).Error("Failed to save tracking", "fileId", tracking.FileID)
		return fmt.Errorf("failed to save tracking: %w", err)
	}
	return nil
}

// resolveEmployeeName looks up a display name, degrading to the bare code on
// any directory failure
func (s *TrackingService) resolveEmployeeName(ctx context.Context, employeeCode string) string {
	name, err := s.identity.DisplayName(ctx, employeeCode)
	if err != nil || name == "" {
		if err != nil {
			s.logger.WithError(err).Warn("Identity lookup failed", "employeeCode", employeeCode)
		}
		return employeeCode
	}
	return name
}

// snapshotEvents copies pending domain events before the repository clears
// them on save
func snapshotEvents(tracking *domain.FileTracking) []domain.DomainEvent {
	return append([]domain.DomainEvent(nil), tracking.GetDomainEvents()...)
}

// recordEventMetrics translates persisted domain events into counters
func (s *TrackingService) recordEventMetrics(events []domain.DomainEvent) {
	for _, event := range events {
		switch e := event.(type) {
		case *domain.StageCompletedEvent:
			s.metrics.RecordStageCompletion(string(e.Stage), string(e.SLAStatus), e.DurationMinutes)
			if e.PenaltyPoints > 0 {
				s.metrics.RecordPenaltyPoints(string(e.Stage), e.PenaltyPoints)
			}
		case *domain.StageTransitionedEvent:
			s.metrics.RecordStageTransition(string(e.PreviousStage), string(e.NextStage), e.Forced)
		}
	}
}
