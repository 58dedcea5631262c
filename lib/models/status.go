package models

import "strings"

// StudentSummary is the student block of the status response
type StudentSummary struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	GradeLevel    string `json:"grade_level"`
	SportInterest string `json:"sport_interest"`
}

// CoachSummary is the coach block of the status response
type CoachSummary struct {
	CoachID    string `json:"coach_id,omitempty"`
	CoachName  string `json:"coach_name"`
	SchoolName string `json:"school_name"`
}

// EnrollmentStatusResponse is returned by GET /enrollment/status
type EnrollmentStatusResponse struct {
	EnrollmentID    string            `json:"enrollment_id"`
	Status          string            `json:"status"`
	StudentInfo     StudentSummary    `json:"student_info"`
	CoachInfo       CoachSummary      `json:"coach_info"`
	Progress        Progress          `json:"progress"`
	NextSteps       []string          `json:"next_steps"`
	DocumentsStatus map[string]string `json:"documents_status"`
	StudentRecords  *StudentRecords   `json:"student_records,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	CompletedAt     string            `json:"completed_at,omitempty"`
}

// NewEnrollmentStatusResponse builds the parent-facing status view
func NewEnrollmentStatusResponse(enrollment *Enrollment) EnrollmentStatusResponse {
	enrollment.Normalize()
	return EnrollmentStatusResponse{
		EnrollmentID: enrollment.EnrollmentID,
		Status:       enrollment.Status,
		StudentInfo: StudentSummary{
			FirstName:     enrollment.StudentFirstName,
			LastName:      enrollment.StudentLastName,
			GradeLevel:    enrollment.GradeLevel,
			SportInterest: enrollment.SportInterest,
		},
		CoachInfo: CoachSummary{
			CoachID:    enrollment.CoachID,
			CoachName:  enrollment.CoachName,
			SchoolName: enrollment.SchoolName,
		},
		Progress:        CalculateProgress(enrollment.CompletedSteps),
		NextSteps:       NextSteps(enrollment),
		DocumentsStatus: DocumentsStatus(enrollment),
		StudentRecords:  enrollment.StudentRecords,
		CreatedAt:       enrollment.CreatedAt,
		UpdatedAt:       enrollment.UpdatedAt,
		CompletedAt:     enrollment.CompletedAt,
	}
}

// NextSteps lists unfinished wizard steps in order, then missing required documents
func NextSteps(enrollment *Enrollment) []string {
	steps := []string{}
	for step := 1; step <= TotalSteps; step++ {
		if !enrollment.HasCompletedStep(step) {
			steps = append(steps, StepTitles[step])
		}
	}
	for _, documentType := range RequiredDocumentTypes {
		if _, ok := enrollment.Documents[documentType]; !ok {
			steps = append(steps, "Upload "+strings.ReplaceAll(documentType, "_", " "))
		}
	}
	return steps
}

// DocumentsStatus reports every required document type plus any other uploaded type
func DocumentsStatus(enrollment *Enrollment) map[string]string {
	status := make(map[string]string, len(RequiredDocumentTypes))
	for _, documentType := range RequiredDocumentTypes {
		status[documentType] = DocumentStatusPending
	}
	for documentType, document := range enrollment.Documents {
		if document.Status == "" {
			status[documentType] = DocumentStatusUploaded
			continue
		}
		status[documentType] = document.Status
	}
	return status
}
