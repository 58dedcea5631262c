package models

// Notification event types published to the enrollment topic
const (
	NotificationEnrollmentInitialized = "enrollment_initialized"
	NotificationStudentCreated        = "student_created"
	NotificationEnrollmentCompleted   = "enrollment_completed"
	NotificationScheduleRequested     = "schedule_requested"
)

// EnrollmentNotification is the JSON message published on enrollment lifecycle events
type EnrollmentNotification struct {
	EventType       string            `json:"event_type"`
	EnrollmentID    string            `json:"enrollment_id"`
	ParentEmail     string            `json:"parent_email,omitempty"`
	CoachID         string            `json:"coach_id,omitempty"`
	CoachName       string            `json:"coach_name,omitempty"`
	StudentName     string            `json:"student_name,omitempty"`
	StudentUniqueID string            `json:"student_unique_id,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	OccurredAt      string            `json:"occurred_at"`
}
