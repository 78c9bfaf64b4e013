package application

// InitializeTrackingCommand creates tracking for a file. Repeated calls for
// the same file are idempotent.
type InitializeTrackingCommand struct {
	FileID     string `json:"fileId" binding:"required,file_id"`
	StartStage string `json:"startStage,omitempty" binding:"omitempty,stage"`
}

// AssignStageCommand assigns an employee to the file's current stage
type AssignStageCommand struct {
	FileID       string `json:"-"`
	EmployeeCode string `json:"employeeCode" binding:"required,employee_code"`
	EmployeeName string `json:"employeeName,omitempty" binding:"omitempty,safe_string"`
	Notes        string `json:"notes,omitempty" binding:"omitempty,safe_string"`
}

// StartWorkCommand records the assigned employee starting work
type StartWorkCommand struct {
	FileID       string `json:"-"`
	EmployeeCode string `json:"employeeCode" binding:"required,employee_code"`
}

// CompleteStageCommand completes the current stage for the assigned employee
type CompleteStageCommand struct {
	FileID       string `json:"-"`
	EmployeeCode string `json:"employeeCode" binding:"required,employee_code"`
	Notes        string `json:"notes,omitempty" binding:"omitempty,safe_string"`
}

// TransitionCommand moves a file to a target stage on behalf of the acting
// employee
type TransitionCommand struct {
	FileID       string `json:"-"`
	EmployeeCode string `json:"employeeCode" binding:"required,employee_code"`
	TargetStage  string `json:"targetStage" binding:"required,stage"`
	Force        bool   `json:"force,omitempty"`
}

// CompleteAndTransitionCommand completes the current stage and transitions to
// a target stage as one logical unit, optionally assigning the next employee
type CompleteAndTransitionCommand struct {
	FileID           string `json:"-"`
	EmployeeCode     string `json:"employeeCode" binding:"required,employee_code"`
	TargetStage      string `json:"targetStage" binding:"required,stage"`
	Notes            string `json:"notes,omitempty" binding:"omitempty,safe_string"`
	NextEmployeeCode string `json:"nextEmployeeCode,omitempty" binding:"omitempty,employee_code"`
}

// ReconcileCommand triggers catch-up progression from an external work-item
// signal
type ReconcileCommand struct {
	FileID string `json:"-"`
}

// GetFileTrackingQuery retrieves tracking for a file
type GetFileTrackingQuery struct {
	FileID string
}

// PipelineViewQuery retrieves the per-stage pipeline view. An empty stage
// returns all stages.
type PipelineViewQuery struct {
	Stage string `form:"stage" binding:"omitempty,stage"`
}
