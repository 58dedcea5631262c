package models

import (
	"encoding/json"
	"fmt"
)

// StepPayload is implemented by exactly one struct per wizard step. Required
// fields are declared with validator tags on each variant.
type StepPayload interface {
	StepNumber() int
}

// ProgramSelection is step 1
type ProgramSelection struct {
	SportInterest      string `json:"sport_interest" validate:"required,notblank"`
	ProgramType        string `json:"program_type" validate:"required,notblank"`
	PreferredStartDate string `json:"preferred_start_date" validate:"omitempty,datetime=2006-01-02"`
	HowDidYouHear      string `json:"how_did_you_hear,omitempty"`
}

// ParentInformation is step 2
type ParentInformation struct {
	ParentFirstName string   `json:"parent_first_name" validate:"required,notblank"`
	ParentLastName  string   `json:"parent_last_name" validate:"required,notblank"`
	ParentPhone     string   `json:"parent_phone" validate:"required,notblank,min=7,max=20"`
	ParentEmail     string   `json:"parent_email" validate:"omitempty,email"`
	Relationship    string   `json:"relationship" validate:"required,notblank"`
	Address         *Address `json:"address,omitempty"`
}

// Address is the optional home address captured with the parent information
type Address struct {
	Street     string `json:"street" validate:"required,notblank"`
	City       string `json:"city" validate:"required,notblank"`
	State      string `json:"state" validate:"required,notblank,len=2"`
	PostalCode string `json:"postal_code" validate:"required,notblank"`
}

// EmergencyMedical is step 3
type EmergencyMedical struct {
	EmergencyContactName         string `json:"emergency_contact_name" validate:"required,notblank"`
	EmergencyContactPhone        string `json:"emergency_contact_phone" validate:"required,notblank,min=7,max=20"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship" validate:"required,notblank"`
	MedicalConditions            string `json:"medical_conditions,omitempty"`
	Allergies                    string `json:"allergies,omitempty"`
	Medications                  string `json:"medications,omitempty"`
	PhysicianName                string `json:"physician_name,omitempty"`
	PhysicianPhone               string `json:"physician_phone,omitempty"`
}

// StudentInformation is step 4, the step that materializes compliance records
type StudentInformation struct {
	StudentInfo *StudentInfo `json:"student_info" validate:"required"`
}

// StudentInfo holds the demographic fields the compliance schema needs
type StudentInfo struct {
	FirstName               string   `json:"first_name" validate:"required,notblank"`
	LastName                string   `json:"last_name" validate:"required,notblank"`
	MiddleName              string   `json:"middle_name,omitempty"`
	GradeLevel              string   `json:"grade_level" validate:"required,notblank,grade_level"`
	BirthDate               string   `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	BirthSex                string   `json:"birth_sex,omitempty"`
	HispanicLatinoEthnicity *bool    `json:"hispanic_latino_ethnicity,omitempty"`
	Races                   []string `json:"races,omitempty"`
	SportInterests          []string `json:"sport_interests,omitempty"`
	PreviousSchool          string   `json:"previous_school,omitempty"`
}

// Consents is step 5
type Consents struct {
	LiabilityWaiverAccepted bool   `json:"liability_waiver_accepted" validate:"required"`
	TermsAccepted           bool   `json:"terms_accepted" validate:"required"`
	PhotoReleaseConsent     *bool  `json:"photo_release_consent,omitempty"`
	ParentSignature         string `json:"parent_signature" validate:"required,notblank"`
}

// Payment is step 6
type Payment struct {
	PaymentCompleted bool    `json:"payment_completed" validate:"required"`
	PaymentMethod    string  `json:"payment_method,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	AmountPaid       float64 `json:"amount_paid" validate:"gte=0"`
}

func (ProgramSelection) StepNumber() int   { return 1 }
func (ParentInformation) StepNumber() int  { return 2 }
func (EmergencyMedical) StepNumber() int   { return 3 }
func (StudentInformation) StepNumber() int { return 4 }
func (Consents) StepNumber() int           { return 5 }
func (Payment) StepNumber() int            { return 6 }

// NewStepPayload returns an empty payload variant for the step number
func NewStepPayload(stepNumber int) (StepPayload, error) {
	switch stepNumber {
	case 1:
		return &ProgramSelection{}, nil
	case 2:
		return &ParentInformation{}, nil
	case 3:
		return &EmergencyMedical{}, nil
	case 4:
		return &StudentInformation{}, nil
	case 5:
		return &Consents{}, nil
	case 6:
		return &Payment{}, nil
	default:
		return nil, fmt.Errorf("invalid step number %d: must be between 1 and %d", stepNumber, TotalSteps)
	}
}

// StepTitles are shown in next_steps for the steps a parent has not finished
var StepTitles = map[int]string{
	1: "Select a program",
	2: "Provide parent information",
	3: "Add emergency and medical details",
	4: "Enter student information",
	5: "Review and sign consents",
	6: "Complete payment",
}

// DecodeStepData re-reads stored step data into a typed payload
func DecodeStepData(data map[string]interface{}, target StepPayload) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode step data: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode step %d data: %w", target.StepNumber(), err)
	}
	return nil
}

// StepSubmissionRequest is the body of POST /enrollment/step
type StepSubmissionRequest struct {
	EnrollmentID string          `json:"enrollment_id"`
	StepNumber   int             `json:"step_number"`
	StepData     json.RawMessage `json:"step_data"`
}
