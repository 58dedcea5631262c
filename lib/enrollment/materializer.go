package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"tsa/lib/data"
	"tsa/lib/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	gradeLevelDescriptorPrefix = "uri://ed-fi.org/GradeLevelDescriptor#"
	sexDescriptorPrefix        = "uri://ed-fi.org/SexDescriptor#"
	raceDescriptorPrefix       = "uri://ed-fi.org/RaceDescriptor#"
	oneRosterStudentRole       = "student"
)

var gradeLevelDescriptors = map[string]string{
	"PK": "Preschool/Prekindergarten",
	"K":  "Kindergarten",
	"1":  "First grade",
	"2":  "Second grade",
	"3":  "Third grade",
	"4":  "Fourth grade",
	"5":  "Fifth grade",
	"6":  "Sixth grade",
	"7":  "Seventh grade",
	"8":  "Eighth grade",
	"9":  "Ninth grade",
	"10": "Tenth grade",
	"11": "Eleventh grade",
	"12": "Twelfth grade",
}

// MaterializationResult reports the outcome of creating compliance records for an enrollment.
// Failures are carried in Error and never returned as Go errors.
type MaterializationResult struct {
	Success                  bool
	StudentUniqueID          string
	StudentUSI               int64
	SchoolAssociationCreated bool
	TSAExtensionCreated      bool
	UserRecordCreated        bool
	AlreadyExisted           bool
	Error                    string
}

// CompletionResult reports the outcome of marking a student enrolled
type CompletionResult struct {
	Success         bool
	StudentUniqueID string
	CompletedAt     time.Time
	Error           string
}

// Materializer turns step 4 data into EdFi / OneRoster records
type Materializer struct {
	Compliance data.ComplianceRepository
	Logger     *logrus.Logger
	SchoolID   int64
	Now        func() time.Time
}

// NewMaterializer creates a Materializer for the configured school
func NewMaterializer(compliance data.ComplianceRepository, schoolID int64, logger *logrus.Logger) *Materializer {
	return &Materializer{
		Compliance: compliance,
		Logger:     logger,
		SchoolID:   schoolID,
		Now:        time.Now,
	}
}

// Materialize creates the student, school association, extension and OneRoster
// user for the enrollment. It is idempotent per enrollment.
func (m *Materializer) Materialize(ctx context.Context, enrollment *models.Enrollment) MaterializationResult {
	bundle, err := m.buildBundle(enrollment)
	if err != nil {
		return m.fail("Materialize", enrollment.EnrollmentID, err)
	}

	existing, err := m.Compliance.FindByEnrollmentID(ctx, enrollment.EnrollmentID)
	if err == nil {
		m.Logger.WithFields(logrus.Fields{
			"operation":         "Materialize",
			"enrollment_id":     enrollment.EnrollmentID,
			"student_unique_id": existing.StudentUniqueID,
		}).Info("Student already exists for enrollment")
		return resultFrom(existing)
	}
	if !errors.Is(err, data.ErrNotFound) {
		return m.fail("Materialize", enrollment.EnrollmentID, err)
	}

	student, err := m.Compliance.CreateStudent(ctx, bundle)
	if err != nil {
		return m.fail("Materialize", enrollment.EnrollmentID, err)
	}

	return resultFrom(student)
}

// CompleteEnrollment marks the materialized student as enrolled. Repeated
// calls keep the first completion time.
func (m *Materializer) CompleteEnrollment(ctx context.Context, studentUniqueID string) CompletionResult {
	if studentUniqueID == "" {
		return CompletionResult{Error: "enrollment has no materialized student"}
	}

	completedAt, err := m.Compliance.MarkEnrolled(ctx, studentUniqueID, m.Now().UTC())
	if err != nil {
		m.Logger.WithFields(logrus.Fields{
			"operation":         "CompleteEnrollment",
			"student_unique_id": studentUniqueID,
			"error":             err.Error(),
		}).Error("Failed to mark student enrolled")
		return CompletionResult{StudentUniqueID: studentUniqueID, Error: err.Error()}
	}

	return CompletionResult{Success: true, StudentUniqueID: studentUniqueID, CompletedAt: completedAt}
}

func (m *Materializer) fail(operation, enrollmentID string, err error) MaterializationResult {
	m.Logger.WithFields(logrus.Fields{
		"operation":     operation,
		"enrollment_id": enrollmentID,
		"error":         err.Error(),
	}).Error("Student materialization failed")
	return MaterializationResult{Error: err.Error()}
}

func resultFrom(student *models.MaterializedStudent) MaterializationResult {
	return MaterializationResult{
		Success:                  true,
		StudentUniqueID:          student.StudentUniqueID,
		StudentUSI:               student.StudentUSI,
		SchoolAssociationCreated: student.SchoolAssociationCreated,
		TSAExtensionCreated:      student.TSAExtensionCreated,
		UserRecordCreated:        student.UserRecordCreated,
		AlreadyExisted:           student.AlreadyExisted,
	}
}

// buildBundle assembles every row of the compliance transaction. It fails
// before any write when required EdFi fields are missing.
func (m *Materializer) buildBundle(enrollment *models.Enrollment) (*models.StudentBundle, error) {
	info, err := studentInfo(enrollment)
	if err != nil {
		return nil, err
	}

	uniqueID := StudentUniqueID(enrollment.EnrollmentID)
	var missing []string
	if uniqueID == "" {
		missing = append(missing, "student_unique_id")
	}
	if info.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if info.LastName == "" {
		missing = append(missing, "last_name")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required student fields: %s", strings.Join(missing, ", "))
	}

	now := m.Now().UTC()
	grade := NormalizeGradeLevel(info.GradeLevel)

	sportInterests := info.SportInterests
	if len(sportInterests) == 0 && enrollment.SportInterest != "" {
		sportInterests = []string{enrollment.SportInterest}
	}

	var birthDate *time.Time
	if parsed, err := time.Parse("2006-01-02", info.BirthDate); err == nil {
		birthDate = &parsed
	}

	consents := stepConsents(enrollment)
	photoRelease := consents.PhotoReleaseConsent != nil && *consents.PhotoReleaseConsent

	customData := map[string]interface{}{
		"source_enrollment_id": enrollment.EnrollmentID,
		"wizard_step":          4,
		"invitation_token":     enrollment.InvitationToken,
		"parent_email":         enrollment.ParentEmail,
		"coach_name":           enrollment.CoachName,
		"school_name":          enrollment.SchoolName,
		"sport_interest":       enrollment.SportInterest,
	}
	if info.PreviousSchool != "" {
		customData["previous_school"] = info.PreviousSchool
	}

	var grades []string
	if code := oneRosterGrade(grade); code != "" {
		grades = []string{code}
	}

	return &models.StudentBundle{
		Student: models.Student{
			StudentUniqueID:         uniqueID,
			FirstName:               info.FirstName,
			MiddleName:              info.MiddleName,
			LastSurname:             info.LastName,
			BirthDate:               birthDate,
			BirthSexDescriptor:      sexDescriptor(info.BirthSex),
			HispanicLatinoEthnicity: info.HispanicLatinoEthnicity,
			Races:                   raceDescriptors(info.Races),
		},
		Association: models.StudentSchoolAssociation{
			SchoolID:                  m.SchoolID,
			EntryDate:                 time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
			EntryGradeLevelDescriptor: gradeLevelDescriptor(grade),
			SchoolYear:                SchoolYear(now),
		},
		Extension: models.TSAExtension{
			SourceEnrollmentID:      enrollment.EnrollmentID,
			SportInterests:          sportInterests,
			EnrollmentStatus:        models.ExtensionStatusRegistered,
			PhotoReleaseConsent:     photoRelease,
			LiabilityWaiverAccepted: consents.LiabilityWaiverAccepted,
			CustomData:              customData,
		},
		User: models.OneRosterUser{
			SourcedID:  uuid.New().String(),
			Role:       oneRosterStudentRole,
			GivenName:  info.FirstName,
			FamilyName: info.LastName,
			MiddleName: info.MiddleName,
			Identifier: uniqueID,
			Grades:     grades,
		},
	}, nil
}

// studentInfo reads step 4 student_info, filling blanks from the invitation fields
func studentInfo(enrollment *models.Enrollment) (models.StudentInfo, error) {
	var payload models.StudentInformation
	if stepData, ok := enrollment.EnrollmentData[models.StepKey(payload.StepNumber())]; ok {
		if err := models.DecodeStepData(stepData, &payload); err != nil {
			return models.StudentInfo{}, err
		}
	}

	var info models.StudentInfo
	if payload.StudentInfo != nil {
		info = *payload.StudentInfo
	}
	info.FirstName = firstNonBlank(info.FirstName, enrollment.StudentFirstName)
	info.LastName = firstNonBlank(info.LastName, enrollment.StudentLastName)
	info.GradeLevel = firstNonBlank(info.GradeLevel, enrollment.GradeLevel)
	return info, nil
}

// stepConsents reads step 5 when present; undecodable data counts as no consent
func stepConsents(enrollment *models.Enrollment) models.Consents {
	var consents models.Consents
	if stepData, ok := enrollment.EnrollmentData[models.StepKey(consents.StepNumber())]; ok {
		if err := models.DecodeStepData(stepData, &consents); err != nil {
			return models.Consents{}
		}
	}
	return consents
}

// StudentUniqueID derives TSA-STU-XXXXXXXX from the first eight alphanumerics of
// the enrollment id, falling back to a random suffix for short ids
func StudentUniqueID(enrollmentID string) string {
	if suffix := alphanumericPrefix(enrollmentID, 8); suffix != "" {
		return models.StudentUniqueIDPrefix + suffix
	}
	return models.StudentUniqueIDPrefix + alphanumericPrefix(uuid.New().String(), 8)
}

func alphanumericPrefix(value string, length int) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == length {
				return b.String()
			}
		}
	}
	return ""
}

// SchoolYear is the EdFi school year, which rolls over in August
func SchoolYear(now time.Time) int {
	if now.Month() >= time.August {
		return now.Year() + 1
	}
	return now.Year()
}

func gradeLevelDescriptor(grade string) string {
	if name, ok := gradeLevelDescriptors[grade]; ok {
		return gradeLevelDescriptorPrefix + name
	}
	return ""
}

func oneRosterGrade(grade string) string {
	switch grade {
	case "":
		return ""
	case "PK":
		return "PK"
	case "K":
		return "KG"
	}
	if len(grade) == 1 {
		return "0" + grade
	}
	return grade
}

func sexDescriptor(sex string) string {
	switch strings.ToLower(strings.TrimSpace(sex)) {
	case "m", "male":
		return sexDescriptorPrefix + "Male"
	case "f", "female":
		return sexDescriptorPrefix + "Female"
	case "not selected", "prefer not to say":
		return sexDescriptorPrefix + "Not Selected"
	default:
		return ""
	}
}

func raceDescriptors(races []string) []string {
	descriptors := make([]string, 0, len(races))
	for _, race := range races {
		race = strings.TrimSpace(race)
		if race == "" {
			continue
		}
		if strings.HasPrefix(race, "uri://") {
			descriptors = append(descriptors, race)
			continue
		}
		descriptors = append(descriptors, raceDescriptorPrefix+race)
	}
	return descriptors
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
