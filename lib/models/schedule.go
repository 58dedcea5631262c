package models

// Schedule type constants
const (
	ScheduleTypeConsultation = "consultation"
	ScheduleTypeShadowDay    = "shadow_day"
)

// ValidScheduleType reports whether t names a schedule the school accepts
func ValidScheduleType(t string) bool {
	switch t {
	case ScheduleTypeConsultation, ScheduleTypeShadowDay:
		return true
	}
	return false
}

// ScheduleStatusPendingConfirmation is the status of every new schedule request
const ScheduleStatusPendingConfirmation = "pending_confirmation"

// ScheduleRequest is a consultation or shadow-day request stored in the events table
type ScheduleRequest struct {
	ScheduleID    string `json:"schedule_id" dynamodbav:"schedule_id"`
	EnrollmentID  string `json:"enrollment_id" dynamodbav:"enrollment_id"`
	ScheduleType  string `json:"schedule_type" dynamodbav:"schedule_type"`
	PreferredDate string `json:"preferred_date" dynamodbav:"preferred_date"`
	PreferredTime string `json:"preferred_time" dynamodbav:"preferred_time"`
	Notes         string `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	Status        string `json:"status" dynamodbav:"status"`
	ParentEmail   string `json:"parent_email" dynamodbav:"parent_email"`
	CoachName     string `json:"coach_name" dynamodbav:"coach_name"`
	CreatedAt     string `json:"created_at" dynamodbav:"created_at"`
}

// CreateScheduleRequest is the body of POST /enrollment/schedule
type CreateScheduleRequest struct {
	EnrollmentID  string `json:"enrollment_id" validate:"required,notblank"`
	ScheduleType  string `json:"schedule_type" validate:"required,notblank,schedule_type"`
	PreferredDate string `json:"preferred_date" validate:"required,notblank,datetime=2006-01-02"`
	PreferredTime string `json:"preferred_time" validate:"required,notblank"`
	Notes         string `json:"notes" validate:"omitempty,max=1000"`
}

// CreateScheduleResponse is returned after a schedule request is stored
type CreateScheduleResponse struct {
	ScheduleID string `json:"schedule_id"`
	Status     string `json:"status"`
}
