package enrollment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"tsa/lib/api"
	"tsa/lib/apperrors"
	"tsa/lib/auth"
	"tsa/lib/data"
	"tsa/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// initializeEnrollment handles POST /enrollment/initialize
func (h *Handler) initializeEnrollment(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var initRequest models.InitializeEnrollmentRequest
	if err := api.ParseJSONBody(request.Body, &initRequest); err != nil {
		return api.FromError(invalidBody(err), h.Logger), nil
	}
	if err := h.Validator.ValidateRequest(&initRequest); err != nil {
		return api.FromError(err, h.Logger), nil
	}

	invitation, err := h.Invitations.GetInvitation(ctx, initRequest.InvitationToken)
	if errors.Is(err, data.ErrNotFound) {
		return api.ErrorResponse(http.StatusNotFound, "Invitation not found", h.Logger), nil
	}
	if err != nil {
		return api.FromError(apperrors.Internal(err), h.Logger), nil
	}

	if err := h.checkInvitation(invitation, initRequest.ParentEmail); err != nil {
		h.Logger.WithFields(logrus.Fields{
			"operation":         "InitializeEnrollment",
			"invitation_status": invitation.Status,
			"reason":            err.Error(),
		}).Warn("Invitation rejected")
		return api.FromError(err, h.Logger), nil
	}

	parentCognitoID := h.parentCognitoID(ctx, request, initRequest.ParentEmail)

	enrollment, created, err := h.Manager.Create(ctx, invitation, strings.TrimSpace(initRequest.ParentEmail), parentCognitoID)
	if err != nil {
		return api.FromError(apperrors.Internal(err), h.Logger), nil
	}

	if !created {
		h.Logger.WithFields(logrus.Fields{
			"operation":     "InitializeEnrollment",
			"enrollment_id": enrollment.EnrollmentID,
		}).Info("Returning existing enrollment for invitation")
		return api.SuccessResponse(http.StatusOK, models.NewEnrollmentResponse(enrollment), h.Logger), nil
	}

	h.notify(ctx, models.NotificationEnrollmentInitialized, enrollment, nil)
	return api.SuccessResponse(http.StatusCreated, models.NewEnrollmentResponse(enrollment), h.Logger), nil
}

// checkInvitation rejects cancelled, expired and mismatched invitations. An
// invitation that already has an enrollment is re-entrant after it expires.
func (h *Handler) checkInvitation(invitation *models.Invitation, parentEmail string) error {
	if invitation.Status == models.InvitationStatusCancelled {
		return apperrors.Validation("Invitation has been cancelled", "invitation_token")
	}
	if invitation.EnrollmentID == "" && invitation.IsExpired(h.timestamp()) {
		return apperrors.Validation("Invitation has expired", "invitation_token")
	}
	if !invitation.MatchesParentEmail(parentEmail) {
		return apperrors.Validation("Parent email does not match the invitation", "parent_email")
	}
	return nil
}

// parentCognitoID prefers the authorizer identity and falls back to a user pool lookup
func (h *Handler) parentCognitoID(ctx context.Context, request events.APIGatewayProxyRequest, parentEmail string) string {
	if identity, err := auth.ExtractParentIdentity(request); err == nil && (identity.Email == "" || identity.MatchesEmail(parentEmail)) {
		return identity.CognitoID
	}
	if h.Identities == nil {
		return ""
	}

	cognitoID, err := h.Identities.FindParentIDByEmail(ctx, parentEmail)
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			h.Logger.WithFields(logrus.Fields{
				"operation": "InitializeEnrollment",
				"error":     err.Error(),
			}).Warn("Parent account lookup failed, continuing without it")
		}
		return ""
	}
	return cognitoID
}

// submitStep handles POST /enrollment/step
func (h *Handler) submitStep(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var stepRequest models.StepSubmissionRequest
	if err := api.ParseJSONBody(request.Body, &stepRequest); err != nil {
		return api.FromError(invalidBody(err), h.Logger), nil
	}
	if strings.TrimSpace(stepRequest.EnrollmentID) == "" {
		return api.ValidationErrorResponse("enrollment_id is required", []string{"enrollment_id"}, h.Logger), nil
	}

	enrollment, err := h.loadEnrollment(ctx, stepRequest.EnrollmentID)
	if err != nil {
		return api.FromError(err, h.Logger), nil
	}

	result := h.Validator.Validate(stepRequest.StepNumber, stepRequest.StepData)
	if !result.Valid {
		h.Logger.WithFields(logrus.Fields{
			"operation":     "SubmitStep",
			"enrollment_id": enrollment.EnrollmentID,
			"step_number":   stepRequest.StepNumber,
			"fields":        result.Fields,
		}).Info("Step data failed validation")
		return api.ValidationErrorResponse(result.Error, result.Fields, h.Logger), nil
	}

	current, err := h.Manager.UpdateStep(ctx, enrollment, stepRequest.StepNumber, result.Data)
	if err != nil {
		return api.FromError(storeError(err), h.Logger), nil
	}

	h.Logger.WithFields(logrus.Fields{
		"operation":        "SubmitStep",
		"enrollment_id":    current.EnrollmentID,
		"step_number":      stepRequest.StepNumber,
		"completed_fields": result.CompletedFields,
	}).Info("Step saved")

	current = h.audit(ctx, current, models.StepCompletedEvent(stepRequest.StepNumber), stepRequest.StepNumber, "")

	switch result.Payload.(type) {
	case *models.StudentInformation:
		current = h.materializeStudent(ctx, current)
	case *models.Payment:
		current = h.completeEnrollment(ctx, current)
	}

	return api.SuccessResponse(http.StatusOK, models.NewEnrollmentResponse(current), h.Logger), nil
}

// materializeStudent creates the compliance records. Failures are recorded on
// the enrollment and never fail the step.
func (h *Handler) materializeStudent(ctx context.Context, current *models.Enrollment) *models.Enrollment {
	result := h.Materializer.Materialize(ctx, current)
	if !result.Success {
		return h.audit(ctx, current, models.AuditStudentCreationFailed, 4, "Student records could not be created")
	}

	records := &models.StudentRecords{
		StudentUniqueID:          result.StudentUniqueID,
		StudentUSI:               result.StudentUSI,
		EdfiCompliant:            result.SchoolAssociationCreated && result.TSAExtensionCreated,
		OneRosterCompliant:       result.UserRecordCreated,
		SchoolAssociationCreated: result.SchoolAssociationCreated,
		TSAExtensionCreated:      result.TSAExtensionCreated,
		CreatedAt:                h.timestamp().Format(time.RFC3339),
	}
	if current.StudentRecords != nil && current.StudentRecords.StudentUniqueID == result.StudentUniqueID {
		records.CreatedAt = current.StudentRecords.CreatedAt
		records.EnrollmentCompleted = current.StudentRecords.EnrollmentCompleted
		records.CompletedAt = current.StudentRecords.CompletedAt
	}

	updated, err := h.Manager.RecordStudent(ctx, current.EnrollmentID, records)
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"operation":         "MaterializeStudent",
			"enrollment_id":     current.EnrollmentID,
			"student_unique_id": result.StudentUniqueID,
			"error":             err.Error(),
		}).Error("Failed to record student linkage on enrollment")
		return h.audit(ctx, current, models.AuditStudentCreationFailed, 4, "Student records were created but could not be linked")
	}

	updated = h.audit(ctx, updated, models.AuditStudentCreated, 4, result.StudentUniqueID)
	if !result.AlreadyExisted {
		h.notify(ctx, models.NotificationStudentCreated, updated, map[string]string{
			"student_unique_id": result.StudentUniqueID,
		})
	}
	return updated
}

// completeEnrollment marks the student enrolled and the enrollment completed.
// A student missing because step 4 failed earlier is materialized first.
func (h *Handler) completeEnrollment(ctx context.Context, current *models.Enrollment) *models.Enrollment {
	if current.StudentRecords == nil && current.HasCompletedStep(4) {
		current = h.materializeStudent(ctx, current)
	}

	if current.StudentRecords == nil {
		current = h.audit(ctx, current, models.AuditStatusUpdateFailed, 6, "No student records to mark enrolled")
	} else {
		result := h.Materializer.CompleteEnrollment(ctx, current.StudentRecords.StudentUniqueID)
		if result.Success {
			if updated, err := h.Manager.MarkStudentEnrolled(ctx, current, result.CompletedAt); err == nil {
				current = updated
			} else {
				h.Logger.WithFields(logrus.Fields{
					"operation":     "CompleteEnrollment",
					"enrollment_id": current.EnrollmentID,
					"error":         err.Error(),
				}).Warn("Failed to flag student records as enrolled")
			}
		} else {
			current = h.audit(ctx, current, models.AuditStatusUpdateFailed, 6, "Student enrollment status could not be updated")
		}
	}

	wasCompleted := current.Status == models.EnrollmentStatusCompleted
	updated, err := h.Manager.MarkCompleted(ctx, current.EnrollmentID)
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"operation":     "CompleteEnrollment",
			"enrollment_id": current.EnrollmentID,
			"error":         err.Error(),
		}).Error("Failed to mark enrollment completed")
		return h.audit(ctx, current, models.AuditStatusUpdateFailed, 6, "Enrollment could not be marked completed")
	}

	updated = h.audit(ctx, updated, models.AuditEnrollmentCompleted, 6, "")
	if !wasCompleted {
		h.notify(ctx, models.NotificationEnrollmentCompleted, updated, nil)
	}
	return updated
}

// getStatus handles GET /enrollment/status/{enrollment_id} and GET /enrollment/status?enrollment_id=
func (h *Handler) getStatus(ctx context.Context, request events.APIGatewayProxyRequest, route string) (events.APIGatewayProxyResponse, error) {
	enrollmentID := request.PathParameters["enrollment_id"]
	if enrollmentID == "" {
		// a route taken from the resource template still holds the placeholder
		segment := strings.TrimPrefix(strings.TrimPrefix(route, "/status"), "/")
		if !strings.HasPrefix(segment, "{") {
			enrollmentID = segment
		}
	}
	if enrollmentID == "" {
		enrollmentID = request.QueryStringParameters["enrollment_id"]
	}
	if enrollmentID == "" {
		return api.ValidationErrorResponse("enrollment_id is required", []string{"enrollment_id"}, h.Logger), nil
	}

	enrollment, err := h.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return api.FromError(err, h.Logger), nil
	}

	return api.SuccessResponse(http.StatusOK, models.NewEnrollmentStatusResponse(enrollment), h.Logger), nil
}
