package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/fileflow-platform/tracking-service/internal/domain"
)

// decodeResult carries a decoded aggregate plus how much repair it needed
type decodeResult struct {
	tracking *domain.FileTracking
	degraded bool
	reason   string
}

// decodeTracking reconstructs a FileTracking from a stored document.
// Contract: strict decode first; on gaps, backfill the timestamps later
// schema versions introduced and retry; if the document is beyond repair,
// build a minimal valid record so reads never fail on schema drift.
func decodeTracking(raw bson.Raw, now time.Time) decodeResult {
	var tracking domain.FileTracking
	if err := bson.Unmarshal(raw, &tracking); err != nil {
		return minimalRecord(raw, now)
	}

	if trackingValid(&tracking) {
		return decodeResult{tracking: &tracking}
	}

	backfillTracking(&tracking, now)
	if trackingValid(&tracking) {
		return decodeResult{tracking: &tracking, degraded: true, reason: "backfilled_timestamps"}
	}

	return minimalRecord(raw, now)
}

// trackingValid checks the invariants a well-formed document satisfies
func trackingValid(tracking *domain.FileTracking) bool {
	if tracking.FileID == "" || !tracking.CurrentStage.IsValid() || tracking.CreatedAt.IsZero() {
		return false
	}
	if len(tracking.StageHistory) > 0 &&
		tracking.StageHistory[len(tracking.StageHistory)-1].Stage != tracking.CurrentStage {
		return false
	}
	for i := range tracking.StageHistory {
		visit := &tracking.StageHistory[i]
		if visit.EnteredAt.IsZero() {
			return false
		}
		if visit.Assignment != nil && visit.Assignment.AssignedAt.IsZero() {
			return false
		}
	}
	return true
}

// backfillTracking repairs the gaps historical documents are known to have:
// visits written before entered_at existed and assignments written before
// assigned_at existed
func backfillTracking(tracking *domain.FileTracking, now time.Time) {
	if tracking.CreatedAt.IsZero() {
		if !tracking.StartedAt.IsZero() {
			tracking.CreatedAt = tracking.StartedAt
		} else {
			tracking.CreatedAt = now
		}
	}
	if tracking.StartedAt.IsZero() {
		tracking.StartedAt = tracking.CreatedAt
	}
	if tracking.UpdatedAt.IsZero() {
		tracking.UpdatedAt = tracking.CreatedAt
	}
	if tracking.CurrentStatus == "" {
		tracking.CurrentStatus = domain.FileStatusInProgress
	}

	for i := range tracking.StageHistory {
		visit := &tracking.StageHistory[i]
		if visit.EnteredAt.IsZero() {
			if !tracking.CreatedAt.IsZero() {
				visit.EnteredAt = tracking.CreatedAt
			} else {
				visit.EnteredAt = now
			}
		}
		if visit.Status == "" {
			visit.Status = domain.VisitStatusPending
		}
		if visit.Assignment != nil && visit.Assignment.AssignedAt.IsZero() {
			if visit.Assignment.StartedAt != nil {
				visit.Assignment.AssignedAt = *visit.Assignment.StartedAt
			} else {
				visit.Assignment.AssignedAt = now
			}
		}
	}

	// A history that lost its tail cannot satisfy the current-stage
	// invariant; close the gap with a synthetic arrival visit
	if len(tracking.StageHistory) > 0 &&
		tracking.StageHistory[len(tracking.StageHistory)-1].Stage != tracking.CurrentStage &&
		tracking.CurrentStage.IsValid() {
		tracking.StageHistory = append(tracking.StageHistory, domain.StageVisit{
			Stage:     tracking.CurrentStage,
			Status:    domain.VisitStatusPending,
			EnteredAt: tracking.UpdatedAt,
		})
	}
}

// minimalRecord salvages current stage and status from a document that
// cannot be repaired, with an empty history
func minimalRecord(raw bson.Raw, now time.Time) decodeResult {
	var loose struct {
		FileID        string `bson:"fileId"`
		CurrentStage  string `bson:"currentStage"`
		CurrentStatus string `bson:"currentStatus"`
	}
	_ = bson.Unmarshal(raw, &loose)

	stage := domain.Stage(loose.CurrentStage)
	if !stage.IsValid() {
		stage = domain.StagePrelims
	}
	status := domain.FileStatus(loose.CurrentStatus)
	if status != domain.FileStatusInProgress &&
		status != domain.FileStatusCompleted &&
		status != domain.FileStatusDelivered {
		status = domain.FileStatusInProgress
	}

	return decodeResult{
		tracking: &domain.FileTracking{
			FileID:        loose.FileID,
			CurrentStage:  stage,
			CurrentStatus: status,
			StageHistory:  []domain.StageVisit{},
			CreatedAt:     now,
			StartedAt:     now,
			UpdatedAt:     now,
		},
		degraded: true,
		reason:   "minimal_record",
	}
}
