package models

import (
	"fmt"
	"math"
	"sort"
)

// Enrollment status constants
const (
	EnrollmentStatusPending    = "pending"
	EnrollmentStatusInProgress = "in_progress"
	EnrollmentStatusCompleted  = "completed"
	EnrollmentStatusCancelled  = "cancelled"
)

// TotalSteps is the number of steps in the parent enrollment wizard
const TotalSteps = 6

// Enrollment is the parent-facing aggregate stored in the enrollments table
type Enrollment struct {
	EnrollmentID     string                            `json:"enrollment_id" dynamodbav:"enrollment_id"`
	InvitationToken  string                            `json:"invitation_token" dynamodbav:"invitation_token"`
	ParentEmail      string                            `json:"parent_email" dynamodbav:"parent_email"`
	ParentCognitoID  string                            `json:"parent_cognito_id,omitempty" dynamodbav:"parent_cognito_id,omitempty"`
	CoachID          string                            `json:"coach_id,omitempty" dynamodbav:"coach_id,omitempty"`
	CoachName        string                            `json:"coach_name" dynamodbav:"coach_name"`
	SchoolName       string                            `json:"school_name" dynamodbav:"school_name"`
	StudentFirstName string                            `json:"student_first_name" dynamodbav:"student_first_name"`
	StudentLastName  string                            `json:"student_last_name" dynamodbav:"student_last_name"`
	GradeLevel       string                            `json:"grade_level" dynamodbav:"grade_level"`
	SportInterest    string                            `json:"sport_interest" dynamodbav:"sport_interest"`
	Status           string                            `json:"status" dynamodbav:"status"`
	CompletedSteps   []int                             `json:"completed_steps" dynamodbav:"completed_steps,numberset,omitempty"`
	EnrollmentData   map[string]map[string]interface{} `json:"enrollment_data" dynamodbav:"enrollment_data"`
	StudentRecords   *StudentRecords                   `json:"student_records,omitempty" dynamodbav:"student_records,omitempty"`
	Documents        map[string]DocumentRecord         `json:"documents" dynamodbav:"documents"`
	Schedules        map[string]string                 `json:"schedules" dynamodbav:"schedules"`
	AuditLog         []AuditEvent                      `json:"audit_log,omitempty" dynamodbav:"audit_log,omitempty"`
	CreatedAt        string                            `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt        string                            `json:"updated_at" dynamodbav:"updated_at"`
	CompletedAt      string                            `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
}

// StudentRecords links an enrollment to the compliance database records created at step 4
type StudentRecords struct {
	StudentUniqueID          string `json:"student_unique_id" dynamodbav:"student_unique_id"`
	StudentUSI               int64  `json:"student_usi" dynamodbav:"student_usi"`
	EdfiCompliant            bool   `json:"edfi_compliant" dynamodbav:"edfi_compliant"`
	OneRosterCompliant       bool   `json:"oneroster_compliant" dynamodbav:"oneroster_compliant"`
	SchoolAssociationCreated bool   `json:"school_association_created" dynamodbav:"school_association_created"`
	TSAExtensionCreated      bool   `json:"tsa_extension_created" dynamodbav:"tsa_extension_created"`
	EnrollmentCompleted      bool   `json:"enrollment_completed" dynamodbav:"enrollment_completed"`
	CreatedAt                string `json:"created_at" dynamodbav:"created_at"`
	CompletedAt              string `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
}

// AuditEvent is one entry of the enrollment's append-only audit log
type AuditEvent struct {
	Event      string `json:"event" dynamodbav:"event"`
	StepNumber int    `json:"step_number,omitempty" dynamodbav:"step_number,omitempty"`
	Message    string `json:"message,omitempty" dynamodbav:"message,omitempty"`
	Timestamp  string `json:"timestamp" dynamodbav:"timestamp"`
}

// Audit event names
const (
	AuditEnrollmentInitialized = "enrollment_initialized"
	AuditStudentCreated        = "student_created"
	AuditStudentCreationFailed = "student_creation_failed"
	AuditEnrollmentCompleted   = "enrollment_completed"
	AuditStatusUpdateFailed    = "enrollment_status_update_failed"
	AuditDocumentUploaded      = "document_uploaded"
	AuditScheduleRequested     = "schedule_requested"
)

// StepCompletedEvent returns the audit event name for a processed step
func StepCompletedEvent(stepNumber int) string {
	return fmt.Sprintf("step_%d_completed", stepNumber)
}

// StepKey returns the enrollment_data key for a step
func StepKey(stepNumber int) string {
	return fmt.Sprintf("step_%d", stepNumber)
}

// Progress summarizes how far an enrollment is through the wizard
type Progress struct {
	CompletedSteps int     `json:"completed_steps"`
	TotalSteps     int     `json:"total_steps"`
	Percentage     float64 `json:"percentage"`
	CurrentStep    int     `json:"current_step"`
}

// CalculateProgress computes progress from the completed step numbers.
// CurrentStep is the lowest unfinished step, or TotalSteps+1 when all are done.
func CalculateProgress(completedSteps []int) Progress {
	done := make(map[int]bool, len(completedSteps))
	for _, step := range completedSteps {
		if step >= 1 && step <= TotalSteps {
			done[step] = true
		}
	}

	current := TotalSteps + 1
	for step := 1; step <= TotalSteps; step++ {
		if !done[step] {
			current = step
			break
		}
	}

	percentage := 100 * float64(len(done)) / float64(TotalSteps)

	return Progress{
		CompletedSteps: len(done),
		TotalSteps:     TotalSteps,
		Percentage:     math.Round(percentage*100) / 100,
		CurrentStep:    current,
	}
}

// HasCompletedStep reports whether the step number is in CompletedSteps
func (e *Enrollment) HasCompletedStep(stepNumber int) bool {
	for _, step := range e.CompletedSteps {
		if step == stepNumber {
			return true
		}
	}
	return false
}

// Normalize fills nil collections and sorts completed steps so the record
// serializes the same way regardless of how the store returned it
func (e *Enrollment) Normalize() {
	if e.CompletedSteps == nil {
		e.CompletedSteps = []int{}
	}
	sort.Ints(e.CompletedSteps)
	if e.EnrollmentData == nil {
		e.EnrollmentData = map[string]map[string]interface{}{}
	}
	if e.Documents == nil {
		e.Documents = map[string]DocumentRecord{}
	}
	if e.Schedules == nil {
		e.Schedules = map[string]string{}
	}
}

// EnrollmentResponse is the enrollment representation returned by initialize and step
type EnrollmentResponse struct {
	*Enrollment
	Progress Progress `json:"progress"`
}

// NewEnrollmentResponse wraps an enrollment with its computed progress
func NewEnrollmentResponse(enrollment *Enrollment) EnrollmentResponse {
	enrollment.Normalize()
	return EnrollmentResponse{
		Enrollment: enrollment,
		Progress:   CalculateProgress(enrollment.CompletedSteps),
	}
}
