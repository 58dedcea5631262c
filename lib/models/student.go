package models

import "time"

// Extension enrollment status constants
const (
	ExtensionStatusRegistered = "registered"
	ExtensionStatusEnrolled   = "enrolled"
)

// StudentUniqueIDPrefix prefixes every student_unique_id issued by the platform
const StudentUniqueIDPrefix = "TSA-STU-"

// Student is the edfi.student row
type Student struct {
	StudentUSI              int64
	StudentUniqueID         string
	FirstName               string
	MiddleName              string
	LastSurname             string
	BirthDate               *time.Time
	BirthSexDescriptor      string
	HispanicLatinoEthnicity *bool
	Races                   []string
}

// StudentSchoolAssociation is the edfi.student_school_association row
type StudentSchoolAssociation struct {
	SchoolID                  int64
	EntryDate                 time.Time
	EntryGradeLevelDescriptor string
	SchoolYear                int
}

// TSAExtension is the tsa.student_extension row holding program-specific fields
type TSAExtension struct {
	SourceEnrollmentID      string
	SportInterests          []string
	EnrollmentStatus        string
	PhotoReleaseConsent     bool
	LiabilityWaiverAccepted bool
	CustomData              map[string]interface{}
}

// OneRosterUser is the oneroster.users row linked to the student
type OneRosterUser struct {
	SourcedID  string
	Role       string
	GivenName  string
	FamilyName string
	MiddleName string
	Identifier string
	Grades     []string
}

// StudentBundle is everything written in the single compliance transaction
type StudentBundle struct {
	Student     Student
	Association StudentSchoolAssociation
	Extension   TSAExtension
	User        OneRosterUser
}

// MaterializedStudent reports what the compliance transaction produced
type MaterializedStudent struct {
	StudentUniqueID          string
	StudentUSI               int64
	SchoolAssociationCreated bool
	TSAExtensionCreated      bool
	UserRecordCreated        bool
	AlreadyExisted           bool
	EnrollmentStatus         string
}
