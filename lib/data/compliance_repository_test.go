package data

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"
	"tsa/lib/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComplianceDao(t *testing.T) (*ComplianceDao, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ComplianceDao{DB: db, Logger: logrus.New()}, mock
}

func testBundle() *models.StudentBundle {
	return &models.StudentBundle{
		Student: models.Student{
			StudentUniqueID: "TSA-STU-ABCDEF12",
			FirstName:       "Maya",
			LastSurname:     "Lopez",
			Races:           []string{"uri://ed-fi.org/RaceDescriptor#White"},
		},
		Association: models.StudentSchoolAssociation{
			SchoolID:                  255901001,
			EntryDate:                 time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
			EntryGradeLevelDescriptor: "uri://ed-fi.org/GradeLevelDescriptor#Ninth grade",
			SchoolYear:                2027,
		},
		Extension: models.TSAExtension{
			SourceEnrollmentID: "abcdef12-3456-7890-abcd-ef1234567890",
			SportInterests:     []string{"soccer"},
			EnrollmentStatus:   models.ExtensionStatusRegistered,
			CustomData:         map[string]interface{}{"wizard_step": 4},
		},
		User: models.OneRosterUser{
			SourcedID:  "user-1",
			Role:       "student",
			GivenName:  "Maya",
			FamilyName: "Lopez",
			Identifier: "TSA-STU-ABCDEF12",
			Grades:     []string{"09"},
		},
	}
}

func expectEdFiInserts(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO edfi.student (")).
		WithArgs("TSA-STU-ABCDEF12", "Maya", sqlmock.AnyArg(), "Lopez", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_usi"}).AddRow(int64(101)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edfi.student_school_association")).
		WithArgs(int64(101), int64(255901001), sqlmock.AnyArg(), sqlmock.AnyArg(), 2027).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tsa.student_extension")).
		WithArgs(int64(101), "TSA-STU-ABCDEF12", "abcdef12-3456-7890-abcd-ef1234567890", sqlmock.AnyArg(),
			models.ExtensionStatusRegistered, false, false, `{"wizard_step":4}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func Test_CreateStudent_Success(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	expectEdFiInserts(mock)
	mock.ExpectExec("^SAVEPOINT oneroster_user$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO oneroster.users")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("^RELEASE SAVEPOINT oneroster_user$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	//Act
	actual, err := dao.CreateStudent(context.Background(), testBundle())

	//Assert
	require.NoError(t, err)
	assert.Equal(t, int64(101), actual.StudentUSI)
	assert.Equal(t, "TSA-STU-ABCDEF12", actual.StudentUniqueID)
	assert.True(t, actual.SchoolAssociationCreated)
	assert.True(t, actual.TSAExtensionCreated)
	assert.True(t, actual.UserRecordCreated)
	assert.False(t, actual.AlreadyExisted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateStudent_OneRosterFailureRollsBackToSavepoint(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	expectEdFiInserts(mock)
	mock.ExpectExec("^SAVEPOINT oneroster_user$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO oneroster.users")).WillReturnError(errors.New("relation oneroster.users does not exist"))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT oneroster_user$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	//Act
	actual, err := dao.CreateStudent(context.Background(), testBundle())

	//Assert
	require.NoError(t, err)
	assert.Equal(t, int64(101), actual.StudentUSI)
	assert.True(t, actual.TSAExtensionCreated)
	assert.False(t, actual.UserRecordCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateStudent_UniqueViolationReturnsExisting(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO edfi.student (")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "student_student_unique_id_key"})
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tsa.student_extension e")).
		WithArgs("abcdef12-3456-7890-abcd-ef1234567890").
		WillReturnRows(sqlmock.NewRows([]string{"student_unique_id", "student_usi", "enrollment_status", "has_association", "has_user"}).
			AddRow("TSA-STU-ABCDEF12", int64(77), models.ExtensionStatusRegistered, true, false))

	//Act
	actual, err := dao.CreateStudent(context.Background(), testBundle())

	//Assert
	require.NoError(t, err)
	assert.True(t, actual.AlreadyExisted)
	assert.Equal(t, int64(77), actual.StudentUSI)
	assert.True(t, actual.SchoolAssociationCreated)
	assert.False(t, actual.UserRecordCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateStudent_UniqueViolationWithoutExtensionIsConflict(t *testing.T) {
	dao, mock := newComplianceDao(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO edfi.student (")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tsa.student_extension e")).WillReturnError(sql.ErrNoRows)

	_, err := dao.CreateStudent(context.Background(), testBundle())

	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateStudent_AssociationFailureRollsBack(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO edfi.student (")).
		WillReturnRows(sqlmock.NewRows([]string{"student_usi"}).AddRow(int64(101)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edfi.student_school_association")).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	//Act
	actual, err := dao.CreateStudent(context.Background(), testBundle())

	//Assert
	assert.Nil(t, actual)
	assert.ErrorContains(t, err, "failed to insert edfi.student_school_association")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_MarkEnrolled(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	first := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tsa.student_extension")).
		WithArgs(models.ExtensionStatusEnrolled, now, "TSA-STU-ABCDEF12").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_completed_at"}).AddRow(first))

	//Act
	stored, err := dao.MarkEnrolled(context.Background(), "TSA-STU-ABCDEF12", now)

	//Assert
	require.NoError(t, err)
	assert.Equal(t, first, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_MarkEnrolled_UnknownStudent(t *testing.T) {
	dao, mock := newComplianceDao(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tsa.student_extension")).
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_completed_at"}))

	_, err := dao.MarkEnrolled(context.Background(), "TSA-STU-MISSING", time.Now())

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_FindByEnrollmentID_NotFound(t *testing.T) {
	dao, mock := newComplianceDao(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tsa.student_extension e")).
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows([]string{"student_unique_id", "student_usi", "enrollment_status", "has_association", "has_user"}))

	_, err := dao.FindByEnrollmentID(context.Background(), "E1")

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_FindByEnrollmentID_MatchesUserByIdentifier(t *testing.T) {
	//Arrange
	dao, mock := newComplianceDao(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.identifier = e.student_unique_id) AS has_user")).
		WithArgs("abcdef12-3456-7890-abcd-ef1234567890").
		WillReturnRows(sqlmock.NewRows([]string{"student_unique_id", "student_usi", "enrollment_status", "has_association", "has_user"}).
			AddRow("TSA-STU-ABCDEF12", int64(101), models.ExtensionStatusRegistered, true, true))

	//Act
	actual, err := dao.FindByEnrollmentID(context.Background(), "abcdef12-3456-7890-abcd-ef1234567890")

	//Assert
	require.NoError(t, err)
	assert.True(t, actual.AlreadyExisted)
	assert.True(t, actual.TSAExtensionCreated)
	assert.True(t, actual.SchoolAssociationCreated)
	assert.True(t, actual.UserRecordCreated)
	assert.Equal(t, int64(101), actual.StudentUSI)
	assert.NoError(t, mock.ExpectationsWereMet())
}
