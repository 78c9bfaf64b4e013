package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Assignment represents one person's work on one stage visit. It is owned
// exclusively by its visit and never shared.
type Assignment struct {
	EmployeeCode    string     `bson:"employeeCode" json:"employeeCode"`
	EmployeeName    string     `bson:"employeeName,omitempty" json:"employeeName,omitempty"`
	AssignedAt      time.Time  `bson:"assignedAt" json:"assignedAt"`
	StartedAt       *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt     *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	DurationMinutes *float64   `bson:"durationMinutes,omitempty" json:"durationMinutes,omitempty"`
	SLAStatus       SLAStatus  `bson:"slaStatus,omitempty" json:"slaStatus,omitempty"`
	PenaltyPoints   float64    `bson:"penaltyPoints" json:"penaltyPoints"`
	Notes           string     `bson:"notes,omitempty" json:"notes,omitempty"`
}

// StageVisit is one entry in a file's history. The history is an ordered,
// append-only sequence; the last element is always the visit for the file's
// current stage.
type StageVisit struct {
	Stage                Stage       `bson:"stage" json:"stage"`
	Status               VisitStatus `bson:"status" json:"status"`
	EnteredAt            time.Time   `bson:"enteredAt" json:"enteredAt"`
	CompletedAt          *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	TotalDurationMinutes *float64    `bson:"totalDurationMinutes,omitempty" json:"totalDurationMinutes,omitempty"`
	SLABreached          bool        `bson:"slaBreached" json:"slaBreached"`
	EscalationSent       bool        `bson:"escalationSent" json:"escalationSent"`
	ForcedTransition     bool        `bson:"forcedTransition,omitempty" json:"forcedTransition,omitempty"`
	Assignment           *Assignment `bson:"assignment,omitempty" json:"assignment,omitempty"`
}

// WorkStart returns the instant SLA time is measured from: the assignment's
// started_at when work has begun, otherwise the visit's entered_at.
func (v *StageVisit) WorkStart() time.Time {
	if v.Assignment != nil && v.Assignment.StartedAt != nil {
		return *v.Assignment.StartedAt
	}
	return v.EnteredAt
}

// FileTracking is the aggregate root, one per tracked file
type FileTracking struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	FileID               string             `bson:"fileId" json:"fileId"`
	CurrentStage         Stage              `bson:"currentStage" json:"currentStage"`
	CurrentStatus        FileStatus         `bson:"currentStatus" json:"currentStatus"`
	StageHistory         []StageVisit       `bson:"stageHistory" json:"stageHistory"`
	CurrentAssignment    *Assignment        `bson:"currentAssignment,omitempty" json:"currentAssignment,omitempty"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	StartedAt            time.Time          `bson:"startedAt" json:"startedAt"`
	CompletedAt          *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	TotalDurationMinutes *float64           `bson:"totalDurationMinutes,omitempty" json:"totalDurationMinutes,omitempty"`
	TotalPenaltyPoints   float64            `bson:"totalPenaltyPoints" json:"totalPenaltyPoints"`
	EscalationsTriggered int                `bson:"escalationsTriggered" json:"escalationsTriggered"`
	UpdatedAt            time.Time          `bson:"updatedAt" json:"updatedAt"`
	DomainEvents         []DomainEvent      `bson:"-" json:"-"`
}

// NewFileTracking creates tracking for a file with one pending visit at the
// start stage. Starts at COMPLETED or DELIVERED take the same
// immediately-completed visit shape as arrivals there: no work happens in
// those stages.
func NewFileTracking(fileID string, startStage Stage, now time.Time) (*FileTracking, error) {
	if !startStage.IsValid() {
		return nil, ErrInvalidStage
	}

	visit := StageVisit{
		Stage:     startStage,
		Status:    VisitStatusPending,
		EnteredAt: now,
	}
	status := FileStatusInProgress

	if startStage == StageCompleted || startStage == StageDelivered {
		completed := now
		zero := float64(0)
		visit.Status = VisitStatusCompleted
		visit.CompletedAt = &completed
		visit.TotalDurationMinutes = &zero
		if startStage == StageCompleted {
			status = FileStatusCompleted
		} else {
			status = FileStatusDelivered
		}
	}

	tracking := &FileTracking{
		ID:            primitive.NewObjectID(),
		FileID:        fileID,
		CurrentStage:  startStage,
		CurrentStatus: status,
		StageHistory:  []StageVisit{visit},
		CreatedAt:     now,
		StartedAt:     now,
		UpdatedAt:     now,
		DomainEvents:  make([]DomainEvent, 0),
	}

	if startStage == StageDelivered {
		completed := now
		zero := float64(0)
		tracking.CompletedAt = &completed
		tracking.TotalDurationMinutes = &zero
	}

	tracking.addDomainEvent(&FileCreatedEvent{
		FileID:     fileID,
		StartStage: startStage,
		CreatedAt:  now,
	})

	return tracking, nil
}

// CurrentVisit returns the visit for the file's current stage
func (f *FileTracking) CurrentVisit() *StageVisit {
	if len(f.StageHistory) == 0 {
		return nil
	}
	return &f.StageHistory[len(f.StageHistory)-1]
}

// Assign assigns an employee to the open visit and mirrors the assignment
// onto the aggregate
func (f *FileTracking) Assign(employeeCode, employeeName, notes string, now time.Time) error {
	if f.CurrentStatus != FileStatusInProgress {
		return ErrInvalidState
	}

	visit := f.CurrentVisit()
	if visit == nil || !visit.Status.IsOpen() {
		return ErrInvalidState
	}

	assignment := &Assignment{
		EmployeeCode: employeeCode,
		EmployeeName: employeeName,
		AssignedAt:   now,
		Notes:        notes,
	}

	visit.Assignment = assignment
	f.CurrentAssignment = assignment
	f.UpdatedAt = now

	f.addDomainEvent(&StageAssignedEvent{
		FileID:       f.FileID,
		Stage:        f.CurrentStage,
		EmployeeCode: employeeCode,
		EmployeeName: employeeName,
		Notes:        notes,
		AssignedAt:   now,
	})

	return nil
}

// StartWork records the assigned employee starting work. Idempotent: a
// second call for an already-started visit returns started=false with no
// mutation.
func (f *FileTracking) StartWork(employeeCode string, now time.Time) (bool, error) {
	if f.CurrentStatus != FileStatusInProgress {
		return false, ErrInvalidState
	}
	if f.CurrentAssignment == nil || f.CurrentAssignment.EmployeeCode != employeeCode {
		return false, ErrNotAssigned
	}

	if f.CurrentAssignment.StartedAt != nil {
		return false, nil
	}

	visit := f.CurrentVisit()
	started := now
	f.CurrentAssignment.StartedAt = &started
	visit.Status = VisitStatusInProgress
	f.UpdatedAt = now

	f.addDomainEvent(&StageStartedEvent{
		FileID:       f.FileID,
		Stage:        f.CurrentStage,
		EmployeeCode: employeeCode,
		StartedAt:    now,
	})

	return true, nil
}

// CompleteStage completes the open visit for the matching employee, computes
// duration, SLA status and penalty, and auto-advances the file when the
// completed stage allows it (PRODUCTION to COMPLETED, QC to DELIVERED).
func (f *FileTracking) CompleteStage(employeeCode, notes string, catalog *StageCatalog, now time.Time) error {
	if f.CurrentStatus != FileStatusInProgress {
		return ErrInvalidState
	}
	if f.CurrentAssignment == nil || f.CurrentAssignment.EmployeeCode != employeeCode {
		return ErrNotAssigned
	}

	visit := f.CurrentVisit()
	if visit == nil || !visit.Status.IsOpen() {
		return ErrInvalidState
	}

	f.closeVisit(visit, notes, catalog, now)
	f.autoAdvance(visit, now)
	f.UpdatedAt = now

	return nil
}

// closeVisit completes the open visit and its assignment, accruing penalty
// points into the aggregate total
func (f *FileTracking) closeVisit(visit *StageVisit, notes string, catalog *StageCatalog, now time.Time) {
	assignment := visit.Assignment

	var employeeCode, employeeName string
	duration := DurationMinutes(visit.WorkStart(), now)
	slaStatus := catalog.Classify(visit.Stage, duration)
	overBy := catalog.OverBy(visit.Stage, duration)
	penalty := Penalty(slaStatus, overBy, visit.EscalationSent)

	if assignment != nil {
		employeeCode = assignment.EmployeeCode
		employeeName = assignment.EmployeeName
		completed := now
		assignment.CompletedAt = &completed
		assignment.DurationMinutes = &duration
		assignment.SLAStatus = slaStatus
		assignment.PenaltyPoints = penalty
		if notes != "" {
			assignment.Notes = notes
		}
	}

	completed := now
	total := DurationMinutes(visit.EnteredAt, now)
	visit.Status = VisitStatusCompleted
	visit.CompletedAt = &completed
	visit.TotalDurationMinutes = &total
	if slaStatus.IsBreach() {
		visit.SLABreached = true
	}

	f.TotalPenaltyPoints += penalty
	f.CurrentAssignment = nil

	f.addDomainEvent(&StageCompletedEvent{
		FileID:          f.FileID,
		Stage:           visit.Stage,
		EmployeeCode:    employeeCode,
		EmployeeName:    employeeName,
		DurationMinutes: duration,
		SLAStatus:       slaStatus,
		PenaltyPoints:   penalty,
		CompletedAt:     now,
	})
}

// autoAdvance applies the automatic edges of the pipeline after a stage
// completes. COMPLETED to QC is deliberately excluded: that edge requires an
// explicit manager transition. The completing employee is recorded as the
// transition actor.
func (f *FileTracking) autoAdvance(completed *StageVisit, now time.Time) {
	var employeeCode string
	if completed.Assignment != nil {
		employeeCode = completed.Assignment.EmployeeCode
	}

	switch completed.Stage {
	case StageProduction:
		f.advanceTo(StageCompleted, employeeCode, false, now)
	case StageQC:
		f.advanceTo(StageDelivered, employeeCode, false, now)
	}
}

// advanceTo appends a visit for the target stage and updates file-level
// state. Arrivals at COMPLETED and DELIVERED are immediately-completed
// visits: there is no work to do in those stages.
func (f *FileTracking) advanceTo(target Stage, employeeCode string, forced bool, now time.Time) {
	previous := f.CurrentStage

	visit := StageVisit{
		Stage:            target,
		Status:           VisitStatusPending,
		EnteredAt:        now,
		ForcedTransition: forced,
	}

	if target == StageCompleted || target == StageDelivered {
		completed := now
		zero := float64(0)
		visit.Status = VisitStatusCompleted
		visit.CompletedAt = &completed
		visit.TotalDurationMinutes = &zero
	}

	f.StageHistory = append(f.StageHistory, visit)
	f.CurrentStage = target
	f.CurrentAssignment = nil
	f.UpdatedAt = now

	switch target {
	case StageCompleted:
		f.CurrentStatus = FileStatusCompleted
	case StageDelivered:
		f.CurrentStatus = FileStatusDelivered
		completed := now
		total := DurationMinutes(f.StartedAt, now)
		f.CompletedAt = &completed
		f.TotalDurationMinutes = &total
	default:
		f.CurrentStatus = FileStatusInProgress
	}

	f.addDomainEvent(&StageTransitionedEvent{
		FileID:         f.FileID,
		PreviousStage:  previous,
		NextStage:      target,
		EmployeeCode:   employeeCode,
		Forced:         forced,
		TransitionedAt: now,
	})

	if target == StageDelivered {
		f.addDomainEvent(&FileDeliveredEvent{
			FileID:               f.FileID,
			DeliveredAt:          now,
			TotalDurationMinutes: *f.TotalDurationMinutes,
			TotalPenaltyPoints:   f.TotalPenaltyPoints,
		})
	}
}

// TransitionTo moves the file to a target stage on behalf of the acting
// employee. Non-forced transitions require the current stage to be a legal
// predecessor of the target and the current visit to be completed. A forced
// transition is an administrative override that force-completes any open
// visit and records the override on the new visit.
func (f *FileTracking) TransitionTo(target Stage, employeeCode string, catalog *StageCatalog, force bool, now time.Time) error {
	if !target.IsValid() {
		return ErrInvalidStage
	}
	if f.CurrentStatus == FileStatusDelivered {
		return ErrInvalidState
	}

	visit := f.CurrentVisit()

	if !force {
		if !catalog.CanTransition(f.CurrentStage, target) {
			return ErrIllegalTransition
		}
		if visit == nil || visit.Status != VisitStatusCompleted {
			return ErrInvalidState
		}
	} else if visit != nil && visit.Status.IsOpen() {
		f.closeVisit(visit, "", catalog, now)
	}

	f.advanceTo(target, employeeCode, force, now)
	f.UpdatedAt = now

	return nil
}

// MarkEscalated records an SLA breach on the open visit. Only the first
// trigger flips escalation_sent, switches the visit to ESCALATED and counts
// toward escalations_triggered; later calls for the same ongoing breach
// return first=false so notification re-sends never double-count.
func (f *FileTracking) MarkEscalated(elapsedMinutes, escalationMinutes float64, now time.Time) bool {
	visit := f.CurrentVisit()
	if visit == nil || !visit.Status.IsOpen() {
		return false
	}

	visit.SLABreached = true
	first := !visit.EscalationSent
	if first {
		visit.EscalationSent = true
		visit.Status = VisitStatusEscalated
		f.EscalationsTriggered++
	}
	f.UpdatedAt = now

	var employeeCode string
	if visit.Assignment != nil {
		employeeCode = visit.Assignment.EmployeeCode
	}
	f.addDomainEvent(&SLABreachEvent{
		FileID:            f.FileID,
		Stage:             visit.Stage,
		EmployeeCode:      employeeCode,
		ElapsedMinutes:    elapsedMinutes,
		EscalationMinutes: escalationMinutes,
		FirstTrigger:      first,
		DetectedAt:        now,
	})

	return first
}

// ReconcileAdvance performs catch-up auto-progression when an external signal
// reports no outstanding work for the current stage. It never fails for
// "nothing to do": files that are not eligible simply return advanced=false.
func (f *FileTracking) ReconcileAdvance(catalog *StageCatalog, now time.Time) bool {
	if f.CurrentStatus != FileStatusInProgress {
		return false
	}
	if f.CurrentStage != StageProduction && f.CurrentStage != StageQC {
		return false
	}

	visit := f.CurrentVisit()
	if visit == nil || !visit.Status.IsOpen() {
		return false
	}

	f.closeVisit(visit, "", catalog, now)
	f.autoAdvance(visit, now)
	f.UpdatedAt = now

	return true
}

// ElapsedInStage returns fractional minutes since work on the current visit
// began
func (f *FileTracking) ElapsedInStage(now time.Time) float64 {
	visit := f.CurrentVisit()
	if visit == nil {
		return 0
	}
	return ElapsedMinutes(visit.WorkStart(), now)
}

// addDomainEvent adds a domain event
func (f *FileTracking) addDomainEvent(event DomainEvent) {
	f.DomainEvents = append(f.DomainEvents, event)
}

// GetDomainEvents returns all domain events
func (f *FileTracking) GetDomainEvents() []DomainEvent {
	return f.DomainEvents
}

// ClearDomainEvents clears all domain events
func (f *FileTracking) ClearDomainEvents() {
	f.DomainEvents = make([]DomainEvent, 0)
}
