package application

import (
	"context"
	"sort"
	"time"

	"github.com/fileflow-platform/tracking-service/internal/domain"
)

// PipelineView returns, per stage, the files currently in that stage with
// elapsed time and computed SLA status. It reads the latest-event-per-file
// projection from the event log; when the log is unreachable or empty it
// falls back to reducing the authoritative store, and in both cases folds in
// a recent-writes window from the authoritative store, preferring the more
// recently timestamped source per file.
func (s *TrackingService) PipelineView(ctx context.Context, query PipelineViewQuery) (*PipelineViewDTO, error) {
	now := s.nowFn()
	stageFilter := domain.Stage(query.Stage)
	degraded := false

	entries, err := s.pipeline.LatestEventPerFile(ctx, stageFilter)
	if err != nil {
		s.logger.WithError(err).Warn("Pipeline event log unreachable, falling back to tracking store")
		s.metrics.RecordPipelineFallback("event_log_error")
		degraded = true
	} else if len(entries) == 0 {
		s.metrics.RecordPipelineFallback("event_log_empty")
		degraded = true
	}

	if degraded {
		entries, err = s.reduceFromTrackingStore(ctx, stageFilter)
		if err != nil {
			return nil, err
		}
	}

	entries = s.mergeRecentWrites(ctx, entries, now)

	view := &PipelineViewDTO{
		Stages:      make(map[string][]PipelineEntryDTO),
		Degraded:    degraded,
		GeneratedAt: now,
	}

	for _, entry := range entries {
		if stageFilter != "" && entry.Stage != stageFilter {
			continue
		}

		dto := s.toPipelineEntryDTO(entry, now)
		view.Stages[string(entry.Stage)] = append(view.Stages[string(entry.Stage)], dto)
		view.TotalFiles++
	}

	for stage := range view.Stages {
		stageEntries := view.Stages[stage]
		sort.Slice(stageEntries, func(i, j int) bool {
			return stageEntries[i].ElapsedMinutes > stageEntries[j].ElapsedMinutes
		})
	}

	return view, nil
}

// reduceFromTrackingStore performs the latest-status-per-file reduction
// straight from the authoritative store. Functionally equivalent to the
// event-log projection, just slower.
func (s *TrackingService) reduceFromTrackingStore(ctx context.Context, stageFilter domain.Stage) ([]domain.PipelineEntry, error) {
	entries := make([]domain.PipelineEntry, 0)

	for page := int64(1); ; page++ {
		pagination := domain.Pagination{Page: page, PageSize: breachScanPageSize}

		var files []*domain.FileTracking
		var err error
		if stageFilter != "" {
			files, err = s.repo.FindByStage(ctx, stageFilter, pagination)
		} else {
			files, err = s.repo.FindInProgress(ctx, pagination)
		}
		if err != nil {
			s.logger.WithError(err).Error("Pipeline fallback scan failed")
			return nil, err
		}
		if len(files) == 0 {
			break
		}

		for _, tracking := range files {
			entries = append(entries, entryFromTracking(tracking))
		}

		if len(files) < breachScanPageSize {
			break
		}
	}

	return entries, nil
}

// mergeRecentWrites folds files mutated inside the recent-writes window over
// the projected entries so fresh mutations are visible before log ingestion
// catches up. A merge failure degrades to the projected entries alone.
func (s *TrackingService) mergeRecentWrites(ctx context.Context, entries []domain.PipelineEntry, now time.Time) []domain.PipelineEntry {
	recent, err := s.repo.FindUpdatedSince(ctx, now.Add(-s.recentWindow))
	if err != nil {
		s.logger.WithError(err).Warn("Recent-writes lookup failed, pipeline view may lag")
		return entries
	}
	if len(recent) == 0 {
		return entries
	}

	byFile := make(map[string]int, len(entries))
	for i, entry := range entries {
		byFile[entry.FileID] = i
	}

	for _, tracking := range recent {
		fresh := entryFromTracking(tracking)
		if i, ok := byFile[fresh.FileID]; ok {
			if fresh.EventTime.After(entries[i].EventTime) {
				entries[i] = fresh
			}
			continue
		}
		byFile[fresh.FileID] = len(entries)
		entries = append(entries, fresh)
	}

	return entries
}

// entryFromTracking reduces one aggregate to its pipeline row
func entryFromTracking(tracking *domain.FileTracking) domain.PipelineEntry {
	entry := domain.PipelineEntry{
		FileID:    tracking.FileID,
		Stage:     tracking.CurrentStage,
		EventTime: tracking.UpdatedAt,
	}

	visit := tracking.CurrentVisit()
	if visit != nil && visit.Status.IsOpen() {
		// Anchor elapsed-in-stage on the visit's work start, not the last
		// save: a non-stage write such as an escalation mark must not reset
		// the apparent time in stage
		entry.EventTime = visit.WorkStart()
	}
	if visit != nil && visit.Assignment != nil {
		entry.EmployeeCode = visit.Assignment.EmployeeCode
		entry.EmployeeName = visit.Assignment.EmployeeName
	}

	switch {
	case visit == nil:
		entry.EventType = domain.PipelineEventFileCreated
	case visit.Status == domain.VisitStatusEscalated:
		entry.EventType = domain.PipelineEventSLABreach
	case visit.Status == domain.VisitStatusCompleted:
		entry.EventType = domain.PipelineEventStageCompleted
	case visit.Status == domain.VisitStatusInProgress:
		entry.EventType = domain.PipelineEventStageStarted
	case visit.Assignment != nil:
		entry.EventType = domain.PipelineEventStageAssigned
	default:
		entry.EventType = domain.PipelineEventStageTransitioned
	}

	return entry
}

// toPipelineEntryDTO attaches elapsed-in-stage and SLA classification to a
// projected entry
func (s *TrackingService) toPipelineEntryDTO(entry domain.PipelineEntry, now time.Time) PipelineEntryDTO {
	elapsed := domain.ElapsedMinutes(entry.EventTime, now)

	slaStatus := domain.SLANotStarted
	if _, ok := s.catalog.Config(entry.Stage); ok && !entry.Stage.IsTerminal() {
		slaStatus = s.catalog.Classify(entry.Stage, elapsed)
	}

	return PipelineEntryDTO{
		FileID:         entry.FileID,
		Stage:          string(entry.Stage),
		EventType:      entry.EventType,
		EmployeeCode:   entry.EmployeeCode,
		EmployeeName:   entry.EmployeeName,
		EventTime:      entry.EventTime,
		ElapsedMinutes: elapsed,
		SLAStatus:      string(slaStatus),
	}
}
