package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"
	"tsa/lib/data"
	"tsa/lib/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager owns reads and writes of the enrollment aggregate
type Manager struct {
	Enrollments data.EnrollmentRepository
	Invitations data.InvitationRepository
	Logger      *logrus.Logger
	Now         func() time.Time
}

// NewManager creates a Manager using the wall clock
func NewManager(enrollments data.EnrollmentRepository, invitations data.InvitationRepository, logger *logrus.Logger) *Manager {
	return &Manager{
		Enrollments: enrollments,
		Invitations: invitations,
		Logger:      logger,
		Now:         time.Now,
	}
}

func (m *Manager) timestamp() string {
	return m.Now().UTC().Format(time.RFC3339)
}

// Create returns the enrollment for the invitation, creating it when none exists.
// created is false when an existing enrollment is returned.
func (m *Manager) Create(ctx context.Context, invitation *models.Invitation, parentEmail, parentCognitoID string) (*models.Enrollment, bool, error) {
	existing, err := m.existingForInvitation(ctx, invitation)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := m.timestamp()
	enrollment := &models.Enrollment{
		EnrollmentID:     uuid.New().String(),
		InvitationToken:  invitation.InvitationToken,
		ParentEmail:      parentEmail,
		ParentCognitoID:  parentCognitoID,
		CoachID:          invitation.CoachID,
		CoachName:        invitation.CoachName,
		SchoolName:       invitation.SchoolName,
		StudentFirstName: invitation.StudentFirstName,
		StudentLastName:  invitation.StudentLastName,
		GradeLevel:       invitation.GradeLevel,
		SportInterest:    invitation.SportInterest,
		Status:           models.EnrollmentStatusPending,
		AuditLog: []models.AuditEvent{
			{Event: models.AuditEnrollmentInitialized, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	enrollment.Normalize()

	err = m.Enrollments.CreateEnrollment(ctx, enrollment)
	if errors.Is(err, data.ErrConflict) {
		// lost the race for the invitation link; return the winner
		latest, getErr := m.Invitations.GetInvitation(ctx, invitation.InvitationToken)
		if getErr != nil {
			return nil, false, getErr
		}
		winner, findErr := m.existingForInvitation(ctx, latest)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("invitation %s linked to a missing enrollment: %w", invitation.InvitationToken, err)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	m.Logger.WithFields(logrus.Fields{
		"operation":     "CreateEnrollment",
		"enrollment_id": enrollment.EnrollmentID,
	}).Info("Enrollment initialized")

	return enrollment, true, nil
}

// existingForInvitation checks the invitation link first, then the token index
func (m *Manager) existingForInvitation(ctx context.Context, invitation *models.Invitation) (*models.Enrollment, error) {
	if invitation.EnrollmentID != "" {
		enrollment, err := m.Enrollments.GetEnrollment(ctx, invitation.EnrollmentID)
		if err == nil && enrollment.Status != models.EnrollmentStatusCancelled {
			return enrollment, nil
		}
		if err != nil && !errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
	}

	enrollment, err := m.Enrollments.FindByInvitationToken(ctx, invitation.InvitationToken)
	if errors.Is(err, data.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Get returns the enrollment or an error wrapping data.ErrNotFound
func (m *Manager) Get(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return m.Enrollments.GetEnrollment(ctx, enrollmentID)
}

// UpdateStep overwrites the step payload and records the step as completed.
// A pending enrollment moves to in_progress; a completed one stays completed.
func (m *Manager) UpdateStep(ctx context.Context, enrollment *models.Enrollment, stepNumber int, stepData map[string]interface{}) (*models.Enrollment, error) {
	status := enrollment.Status
	if status == "" || status == models.EnrollmentStatusPending {
		status = models.EnrollmentStatusInProgress
	}
	if stepData == nil {
		stepData = map[string]interface{}{}
	}
	return m.Enrollments.SaveStep(ctx, enrollment.EnrollmentID, stepNumber, stepData, status, m.timestamp())
}

// Progress computes wizard progress from completed step numbers
func (m *Manager) Progress(completedSteps []int) models.Progress {
	return models.CalculateProgress(completedSteps)
}

// RecordStudent stores the compliance linkage on the enrollment
func (m *Manager) RecordStudent(ctx context.Context, enrollmentID string, records *models.StudentRecords) (*models.Enrollment, error) {
	return m.Enrollments.SetStudentRecords(ctx, enrollmentID, records, m.timestamp())
}

// MarkStudentEnrolled flags the linked student records as fully enrolled
func (m *Manager) MarkStudentEnrolled(ctx context.Context, enrollment *models.Enrollment, completedAt time.Time) (*models.Enrollment, error) {
	if enrollment.StudentRecords == nil {
		return enrollment, nil
	}
	records := *enrollment.StudentRecords
	records.EnrollmentCompleted = true
	if records.CompletedAt == "" {
		records.CompletedAt = completedAt.UTC().Format(time.RFC3339)
	}
	return m.RecordStudent(ctx, enrollment.EnrollmentID, &records)
}

// MarkCompleted sets status completed, keeping the first completed_at
func (m *Manager) MarkCompleted(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return m.Enrollments.MarkCompleted(ctx, enrollmentID, m.timestamp())
}

// AppendAudit adds an event to the enrollment audit log
func (m *Manager) AppendAudit(ctx context.Context, enrollmentID, event string, stepNumber int, message string) (*models.Enrollment, error) {
	return m.Enrollments.AppendAuditEvent(ctx, enrollmentID, models.AuditEvent{
		Event:      event,
		StepNumber: stepNumber,
		Message:    message,
		Timestamp:  m.timestamp(),
	})
}

// AddDocument records uploaded document metadata under its type
func (m *Manager) AddDocument(ctx context.Context, enrollmentID string, document models.DocumentRecord) (*models.Enrollment, error) {
	return m.Enrollments.PutDocument(ctx, enrollmentID, document, m.timestamp())
}

// LinkSchedule records a schedule request id under its type
func (m *Manager) LinkSchedule(ctx context.Context, enrollmentID, scheduleType, scheduleID string) (*models.Enrollment, error) {
	return m.Enrollments.LinkSchedule(ctx, enrollmentID, scheduleType, scheduleID, m.timestamp())
}
