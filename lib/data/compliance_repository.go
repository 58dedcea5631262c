package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"tsa/lib/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

// ComplianceRepository writes the EdFi / OneRoster student records
type ComplianceRepository interface {
	// FindByEnrollmentID returns the student materialized from an enrollment, ErrNotFound when none
	FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.MaterializedStudent, error)

	// CreateStudent inserts student, school association, extension and OneRoster user in one transaction
	CreateStudent(ctx context.Context, bundle *models.StudentBundle) (*models.MaterializedStudent, error)

	// MarkEnrolled sets the extension to enrolled and returns the first completion time
	MarkEnrolled(ctx context.Context, studentUniqueID string, completedAt time.Time) (time.Time, error)
}

// ComplianceDao implements ComplianceRepository using PostgreSQL
type ComplianceDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// FindByEnrollmentID looks up the extension row keyed by the source enrollment
func (dao *ComplianceDao) FindByEnrollmentID(ctx context.Context, enrollmentID string) (*models.MaterializedStudent, error) {
	query := `
		SELECT e.student_unique_id, e.student_usi, e.enrollment_status,
			EXISTS (SELECT 1 FROM edfi.student_school_association ssa WHERE ssa.student_usi = e.student_usi) AS has_association,
			EXISTS (SELECT 1 FROM oneroster.users u WHERE u.identifier = e.student_unique_id) AS has_user
		FROM tsa.student_extension e
		WHERE e.source_enrollment_id = $1
	`

	student := &models.MaterializedStudent{TSAExtensionCreated: true, AlreadyExisted: true}
	err := dao.DB.QueryRowContext(ctx, query, enrollmentID).Scan(
		&student.StudentUniqueID,
		&student.StudentUSI,
		&student.EnrollmentStatus,
		&student.SchoolAssociationCreated,
		&student.UserRecordCreated,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("student for enrollment %s: %w", enrollmentID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "FindByEnrollmentID",
			"enrollment_id": enrollmentID,
			"error":         err.Error(),
		}).Error("Failed to look up student by enrollment")
		return nil, fmt.Errorf("failed to look up student: %w", err)
	}

	return student, nil
}

// CreateStudent runs the compliance transaction. The OneRoster user is written
// inside a savepoint so its failure does not undo the EdFi records.
func (dao *ComplianceDao) CreateStudent(ctx context.Context, bundle *models.StudentBundle) (*models.MaterializedStudent, error) {
	enrollmentID := bundle.Extension.SourceEnrollmentID

	customData, err := json.Marshal(bundle.Extension.CustomData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom data: %w", err)
	}

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var studentUSI int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO edfi.student (
			student_unique_id, first_name, middle_name, last_surname, birth_date,
			birth_sex_descriptor, hispanic_latino_ethnicity, races, create_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING student_usi
	`,
		bundle.Student.StudentUniqueID,
		bundle.Student.FirstName,
		nullString(bundle.Student.MiddleName),
		bundle.Student.LastSurname,
		bundle.Student.BirthDate,
		nullString(bundle.Student.BirthSexDescriptor),
		bundle.Student.HispanicLatinoEthnicity,
		pq.Array(nonNilStrings(bundle.Student.Races)),
	).Scan(&studentUSI)
	if err != nil {
		return dao.handleInsertError(ctx, tx, enrollmentID, "edfi.student", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edfi.student_school_association (
			student_usi, school_id, entry_date, entry_grade_level_descriptor, school_year, create_date
		)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`,
		studentUSI,
		bundle.Association.SchoolID,
		bundle.Association.EntryDate,
		bundle.Association.EntryGradeLevelDescriptor,
		bundle.Association.SchoolYear,
	)
	if err != nil {
		return dao.handleInsertError(ctx, tx, enrollmentID, "edfi.student_school_association", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tsa.student_extension (
			student_usi, student_unique_id, source_enrollment_id, sport_interests,
			enrollment_status, photo_release_consent, liability_waiver_accepted,
			custom_data, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NOW(), NOW())
	`,
		studentUSI,
		bundle.Student.StudentUniqueID,
		enrollmentID,
		pq.Array(nonNilStrings(bundle.Extension.SportInterests)),
		bundle.Extension.EnrollmentStatus,
		bundle.Extension.PhotoReleaseConsent,
		bundle.Extension.LiabilityWaiverAccepted,
		string(customData),
	)
	if err != nil {
		return dao.handleInsertError(ctx, tx, enrollmentID, "tsa.student_extension", err)
	}

	userCreated, err := dao.insertOneRosterUser(ctx, tx, &bundle.User)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "CreateStudent",
			"enrollment_id": enrollmentID,
			"error":         err.Error(),
		}).Error("Failed to commit compliance transaction")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"operation":         "CreateStudent",
		"enrollment_id":     enrollmentID,
		"student_unique_id": bundle.Student.StudentUniqueID,
		"student_usi":       studentUSI,
		"user_created":      userCreated,
	}).Info("Student records created")

	return &models.MaterializedStudent{
		StudentUniqueID:          bundle.Student.StudentUniqueID,
		StudentUSI:               studentUSI,
		SchoolAssociationCreated: true,
		TSAExtensionCreated:      true,
		UserRecordCreated:        userCreated,
		EnrollmentStatus:         bundle.Extension.EnrollmentStatus,
	}, nil
}

func (dao *ComplianceDao) insertOneRosterUser(ctx context.Context, tx *sql.Tx, user *models.OneRosterUser) (bool, error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT oneroster_user"); err != nil {
		return false, fmt.Errorf("failed to create savepoint: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO oneroster.users (
			sourced_id, status, enabled_user, role, given_name, family_name,
			middle_name, identifier, grades, date_last_modified
		)
		VALUES ($1, 'active', TRUE, $2, $3, $4, $5, $6, $7, NOW())
	`,
		user.SourcedID,
		user.Role,
		user.GivenName,
		user.FamilyName,
		nullString(user.MiddleName),
		user.Identifier,
		pq.Array(nonNilStrings(user.Grades)),
	)
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":  "CreateStudent",
			"sourced_id": user.SourcedID,
			"error":      err.Error(),
		}).Warn("Failed to create OneRoster user, continuing without it")
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT oneroster_user"); rbErr != nil {
			return false, fmt.Errorf("failed to roll back to savepoint: %w", rbErr)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT oneroster_user"); err != nil {
		return false, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return true, nil
}

// handleInsertError maps a unique violation to the already materialized student
func (dao *ComplianceDao) handleInsertError(ctx context.Context, tx *sql.Tx, enrollmentID, table string, err error) (*models.MaterializedStudent, error) {
	if isUniqueViolation(err) {
		tx.Rollback()
		existing, findErr := dao.FindByEnrollmentID(ctx, enrollmentID)
		if findErr == nil {
			dao.Logger.WithFields(logrus.Fields{
				"operation":         "CreateStudent",
				"enrollment_id":     enrollmentID,
				"student_unique_id": existing.StudentUniqueID,
			}).Info("Student already materialized for enrollment")
			return existing, nil
		}
		if errors.Is(findErr, ErrNotFound) {
			return nil, fmt.Errorf("duplicate %s record for enrollment %s: %w", table, enrollmentID, ErrConflict)
		}
		return nil, findErr
	}

	dao.Logger.WithFields(logrus.Fields{
		"operation":     "CreateStudent",
		"enrollment_id": enrollmentID,
		"table":         table,
		"error":         err.Error(),
	}).Error("Failed to insert compliance record")
	return nil, fmt.Errorf("failed to insert %s: %w", table, err)
}

// MarkEnrolled is idempotent: enrollment_completed_at keeps its first value
func (dao *ComplianceDao) MarkEnrolled(ctx context.Context, studentUniqueID string, completedAt time.Time) (time.Time, error) {
	query := `
		UPDATE tsa.student_extension
		SET enrollment_status = $1,
			enrollment_completed_at = COALESCE(enrollment_completed_at, $2),
			updated_at = NOW()
		WHERE student_unique_id = $3
		RETURNING enrollment_completed_at
	`

	var stored time.Time
	err := dao.DB.QueryRowContext(ctx, query, models.ExtensionStatusEnrolled, completedAt, studentUniqueID).Scan(&stored)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("student %s: %w", studentUniqueID, ErrNotFound)
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":         "MarkEnrolled",
			"student_unique_id": studentUniqueID,
			"error":             err.Error(),
		}).Error("Failed to mark student enrolled")
		return time.Time{}, fmt.Errorf("failed to mark student enrolled: %w", err)
	}

	return stored, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
