package enrollment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
	"tsa/lib/data"
	"tsa/lib/models"
)

// memoryStore is an in-memory stand-in for the enrollments, invitations and events tables
type memoryStore struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
	invitations map[string]*models.Invitation
	schedules   map[string]*models.ScheduleRequest

	// hideTokenIndex simulates an index that has not caught up yet
	hideTokenIndex bool
	auditErr       error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		enrollments: map[string]*models.Enrollment{},
		invitations: map[string]*models.Invitation{},
		schedules:   map[string]*models.ScheduleRequest{},
	}
}

func clone(enrollment *models.Enrollment) *models.Enrollment {
	raw, err := json.Marshal(enrollment)
	if err != nil {
		panic(err)
	}
	var copied models.Enrollment
	if err := json.Unmarshal(raw, &copied); err != nil {
		panic(err)
	}
	copied.Normalize()
	return &copied
}

func (s *memoryStore) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.enrollments[enrollment.EnrollmentID]; exists {
		return data.ErrConflict
	}
	invitation, ok := s.invitations[enrollment.InvitationToken]
	if !ok || invitation.EnrollmentID != "" {
		return fmt.Errorf("invitation linked: %w", data.ErrConflict)
	}
	invitation.EnrollmentID = enrollment.EnrollmentID
	invitation.Status = models.InvitationStatusAccepted
	invitation.AcceptedAt = enrollment.CreatedAt
	s.enrollments[enrollment.EnrollmentID] = clone(enrollment)
	return nil
}

func (s *memoryStore) GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, data.ErrNotFound)
	}
	return clone(enrollment), nil
}

func (s *memoryStore) FindByInvitationToken(ctx context.Context, invitationToken string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideTokenIndex {
		return nil, data.ErrNotFound
	}
	var matches []*models.Enrollment
	for _, enrollment := range s.enrollments {
		if enrollment.InvitationToken == invitationToken && enrollment.Status != models.EnrollmentStatusCancelled {
			matches = append(matches, enrollment)
		}
	}
	if len(matches) == 0 {
		return nil, data.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt < matches[j].CreatedAt })
	return clone(matches[0]), nil
}

func (s *memoryStore) mutate(enrollmentID string, fn func(*models.Enrollment)) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, data.ErrNotFound)
	}
	fn(enrollment)
	enrollment.Normalize()
	return clone(enrollment), nil
}

func (s *memoryStore) SaveStep(ctx context.Context, enrollmentID string, stepNumber int, stepData map[string]interface{}, status, updatedAt string) (*models.Enrollment, error) {
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		if e.EnrollmentData == nil {
			e.EnrollmentData = map[string]map[string]interface{}{}
		}
		e.EnrollmentData[models.StepKey(stepNumber)] = stepData
		if !e.HasCompletedStep(stepNumber) {
			e.CompletedSteps = append(e.CompletedSteps, stepNumber)
		}
		e.Status = status
		e.UpdatedAt = updatedAt
	})
}

func (s *memoryStore) SetStudentRecords(ctx context.Context, enrollmentID string, records *models.StudentRecords, updatedAt string) (*models.Enrollment, error) {
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		copied := *records
		e.StudentRecords = &copied
		e.UpdatedAt = updatedAt
	})
}

func (s *memoryStore) MarkCompleted(ctx context.Context, enrollmentID, completedAt string) (*models.Enrollment, error) {
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		e.Status = models.EnrollmentStatusCompleted
		if e.CompletedAt == "" {
			e.CompletedAt = completedAt
		}
		e.UpdatedAt = completedAt
	})
}

func (s *memoryStore) AppendAuditEvent(ctx context.Context, enrollmentID string, event models.AuditEvent) (*models.Enrollment, error) {
	if s.auditErr != nil {
		return nil, s.auditErr
	}
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		e.AuditLog = append(e.AuditLog, event)
		e.UpdatedAt = event.Timestamp
	})
}

func (s *memoryStore) PutDocument(ctx context.Context, enrollmentID string, document models.DocumentRecord, updatedAt string) (*models.Enrollment, error) {
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		e.Documents[document.DocumentType] = document
		e.UpdatedAt = updatedAt
	})
}

func (s *memoryStore) LinkSchedule(ctx context.Context, enrollmentID, scheduleType, scheduleID, updatedAt string) (*models.Enrollment, error) {
	return s.mutate(enrollmentID, func(e *models.Enrollment) {
		e.Schedules[scheduleType] = scheduleID
		e.UpdatedAt = updatedAt
	})
}

func (s *memoryStore) GetInvitation(ctx context.Context, invitationToken string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitation, ok := s.invitations[invitationToken]
	if !ok {
		return nil, data.ErrNotFound
	}
	copied := *invitation
	return &copied, nil
}

func (s *memoryStore) CreateSchedule(ctx context.Context, schedule *models.ScheduleRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[schedule.ScheduleID]; exists {
		return data.ErrConflict
	}
	copied := *schedule
	s.schedules[schedule.ScheduleID] = &copied
	return nil
}

func (s *memoryStore) auditEvents(enrollmentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []string
	for _, event := range s.enrollments[enrollmentID].AuditLog {
		events = append(events, event.Event)
	}
	return events
}

// fakeCompliance records materialized students per enrollment. Like the real
// lookup, an existing student reports a user record only when a OneRoster user
// carries its student_unique_id as identifier.
type fakeCompliance struct {
	students    map[string]*models.MaterializedStudent
	users       map[string]bool
	completedAt map[string]time.Time
	bundles     []*models.StudentBundle
	createErr   error
	findErr     error
	markErr     error
}

func newFakeCompliance() *fakeCompliance {
	return &fakeCompliance{
		students:    map[string]*models.MaterializedStudent{},
		users:       map[string]bool{},
		completedAt: map[string]time.Time{},
	}
}

func (f *fakeCompliance) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.MaterializedStudent, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	student, ok := f.students[enrollmentID]
	if !ok {
		return nil, data.ErrNotFound
	}
	copied := *student
	copied.AlreadyExisted = true
	copied.TSAExtensionCreated = true
	copied.UserRecordCreated = f.users[student.StudentUniqueID]
	return &copied, nil
}

func (f *fakeCompliance) CreateStudent(ctx context.Context, bundle *models.StudentBundle) (*models.MaterializedStudent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.bundles = append(f.bundles, bundle)
	f.users[bundle.User.Identifier] = true
	student := &models.MaterializedStudent{
		StudentUniqueID:          bundle.Student.StudentUniqueID,
		StudentUSI:               int64(1000 + len(f.bundles)),
		SchoolAssociationCreated: true,
		TSAExtensionCreated:      true,
		UserRecordCreated:        true,
		EnrollmentStatus:         bundle.Extension.EnrollmentStatus,
	}
	f.students[bundle.Extension.SourceEnrollmentID] = student
	copied := *student
	return &copied, nil
}

func (f *fakeCompliance) MarkEnrolled(ctx context.Context, studentUniqueID string, completedAt time.Time) (time.Time, error) {
	if f.markErr != nil {
		return time.Time{}, f.markErr
	}
	for _, student := range f.students {
		if student.StudentUniqueID == studentUniqueID {
			student.EnrollmentStatus = models.ExtensionStatusEnrolled
			if _, ok := f.completedAt[studentUniqueID]; !ok {
				f.completedAt[studentUniqueID] = completedAt
			}
			return f.completedAt[studentUniqueID], nil
		}
	}
	return time.Time{}, data.ErrNotFound
}

type fakeNotifications struct {
	published []*models.EnrollmentNotification
	err       error
}

func (f *fakeNotifications) Publish(ctx context.Context, notification *models.EnrollmentNotification) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, notification)
	return nil
}

func (f *fakeNotifications) eventTypes() []string {
	var types []string
	for _, notification := range f.published {
		types = append(types, notification.EventType)
	}
	return types
}

type fakeIdentities struct {
	ids map[string]string
}

func (f *fakeIdentities) FindParentIDByEmail(ctx context.Context, email string) (string, error) {
	if id, ok := f.ids[email]; ok {
		return id, nil
	}
	return "", data.ErrNotFound
}

type uploadedDocument struct {
	key         string
	body        []byte
	contentType string
	metadata    map[string]string
}

type fakeDocumentStore struct {
	uploads []uploadedDocument
	err     error
}

func (f *fakeDocumentStore) UploadDocument(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, uploadedDocument{key: key, body: body, contentType: contentType, metadata: metadata})
	return nil
}
