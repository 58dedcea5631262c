package models

import (
	"strings"
	"time"
)

// Invitation status constants
const (
	InvitationStatusPending   = "pending"
	InvitationStatusAccepted  = "accepted"
	InvitationStatusCancelled = "cancelled"
)

// Invitation is the coach-issued invitation a parent redeems to start enrolling
type Invitation struct {
	InvitationToken  string `json:"invitation_token" dynamodbav:"invitation_token"`
	Status           string `json:"status" dynamodbav:"status"`
	ExpiresAt        string `json:"expires_at" dynamodbav:"expires_at"`
	ParentEmail      string `json:"parent_email" dynamodbav:"parent_email"`
	CoachID          string `json:"coach_id" dynamodbav:"coach_id"`
	CoachName        string `json:"coach_name" dynamodbav:"coach_name"`
	SchoolName       string `json:"school_name" dynamodbav:"school_name"`
	StudentFirstName string `json:"student_first_name" dynamodbav:"student_first_name"`
	StudentLastName  string `json:"student_last_name" dynamodbav:"student_last_name"`
	GradeLevel       string `json:"grade_level" dynamodbav:"grade_level"`
	SportInterest    string `json:"sport_interest" dynamodbav:"sport_interest"`
	EnrollmentID     string `json:"enrollment_id,omitempty" dynamodbav:"enrollment_id,omitempty"`
	AcceptedAt       string `json:"accepted_at,omitempty" dynamodbav:"accepted_at,omitempty"`
}

// IsExpired reports whether the invitation expired before now. A missing or
// unparseable expiry is treated as expired.
func (i *Invitation) IsExpired(now time.Time) bool {
	expiresAt, err := time.Parse(time.RFC3339, i.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(expiresAt)
}

// MatchesParentEmail compares emails case-insensitively; invitations without an email match anyone
func (i *Invitation) MatchesParentEmail(email string) bool {
	if i.ParentEmail == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(i.ParentEmail), strings.TrimSpace(email))
}

// InitializeEnrollmentRequest is the body of POST /enrollment/initialize
type InitializeEnrollmentRequest struct {
	InvitationToken string `json:"invitation_token" validate:"required,notblank"`
	ParentEmail     string `json:"parent_email" validate:"required,notblank,email"`
}
