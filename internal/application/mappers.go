package application

import "github.com/fileflow-platform/tracking-service/internal/domain"

// ToFileTrackingDTO converts a domain FileTracking to FileTrackingDTO
func ToFileTrackingDTO(tracking *domain.FileTracking) *FileTrackingDTO {
	if tracking == nil {
		return nil
	}

	history := make([]StageVisitDTO, 0, len(tracking.StageHistory))
	for i := range tracking.StageHistory {
		history = append(history, ToStageVisitDTO(&tracking.StageHistory[i]))
	}

	return &FileTrackingDTO{
		FileID:               tracking.FileID,
		CurrentStage:         string(tracking.CurrentStage),
		CurrentStatus:        string(tracking.CurrentStatus),
		StageHistory:         history,
		CurrentAssignment:    ToAssignmentDTO(tracking.CurrentAssignment),
		CreatedAt:            tracking.CreatedAt,
		StartedAt:            tracking.StartedAt,
		CompletedAt:          tracking.CompletedAt,
		TotalDurationMinutes: tracking.TotalDurationMinutes,
		TotalPenaltyPoints:   tracking.TotalPenaltyPoints,
		EscalationsTriggered: tracking.EscalationsTriggered,
		UpdatedAt:            tracking.UpdatedAt,
	}
}

// ToStageVisitDTO converts a domain StageVisit to StageVisitDTO
func ToStageVisitDTO(visit *domain.StageVisit) StageVisitDTO {
	return StageVisitDTO{
		Stage:                string(visit.Stage),
		Status:               string(visit.Status),
		EnteredAt:            visit.EnteredAt,
		CompletedAt:          visit.CompletedAt,
		TotalDurationMinutes: visit.TotalDurationMinutes,
		SLABreached:          visit.SLABreached,
		EscalationSent:       visit.EscalationSent,
		ForcedTransition:     visit.ForcedTransition,
		Assignment:           ToAssignmentDTO(visit.Assignment),
	}
}

// ToAssignmentDTO converts a domain Assignment to AssignmentDTO
func ToAssignmentDTO(assignment *domain.Assignment) *AssignmentDTO {
	if assignment == nil {
		return nil
	}

	return &AssignmentDTO{
		EmployeeCode:    assignment.EmployeeCode,
		EmployeeName:    assignment.EmployeeName,
		AssignedAt:      assignment.AssignedAt,
		StartedAt:       assignment.StartedAt,
		CompletedAt:     assignment.CompletedAt,
		DurationMinutes: assignment.DurationMinutes,
		SLAStatus:       string(assignment.SLAStatus),
		PenaltyPoints:   assignment.PenaltyPoints,
		Notes:           assignment.Notes,
	}
}

// ToBreachDTO converts a domain Breach to BreachDTO
func ToBreachDTO(breach domain.Breach) BreachDTO {
	return BreachDTO{
		FileID:            breach.FileID,
		Stage:             string(breach.Stage),
		EmployeeCode:      breach.EmployeeCode,
		ElapsedMinutes:    breach.ElapsedMinutes,
		EscalationMinutes: breach.EscalationMinutes,
		FirstTrigger:      breach.FirstTrigger,
		DetectedAt:        breach.DetectedAt,
	}
}
