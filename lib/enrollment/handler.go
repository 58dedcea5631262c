package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"tsa/lib/api"
	"tsa/lib/apperrors"
	"tsa/lib/clients"
	"tsa/lib/data"
	"tsa/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

const routePrefix = "/enrollment"

// Handler contains all dependencies of the parent enrollment Lambda
type Handler struct {
	Manager              *Manager
	Materializer         *Materializer
	Validator            *StepValidator
	Invitations          data.InvitationRepository
	Schedules            data.ScheduleRepository
	Identities           data.IdentityRepository
	Notifications        data.NotificationRepository
	Documents            clients.S3ClientInterface
	Logger               *logrus.Logger
	MaxDocumentSizeBytes int
	Now                  func() time.Time
}

// Handle routes an API Gateway request. It never returns a Go error; panics
// become a generic 500.
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (response events.APIGatewayProxyResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.Logger.WithFields(logrus.Fields{
				"operation": "Handle",
				"panic":     fmt.Sprint(r),
				"stack":     string(debug.Stack()),
			}).Error("Recovered from panic while handling request")
			response = api.ErrorResponse(http.StatusInternalServerError, "Internal server error", h.Logger)
			err = nil
		}
	}()

	h.Logger.WithFields(logrus.Fields{
		"operation": "Handle",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("Enrollment request received")

	route := routePath(request)
	method := request.HTTPMethod

	switch {
	case method == http.MethodPost && route == "/initialize":
		return h.initializeEnrollment(ctx, request)
	case method == http.MethodPost && route == "/step":
		return h.submitStep(ctx, request)
	case method == http.MethodGet && (route == "/status" || strings.HasPrefix(route, "/status/")):
		return h.getStatus(ctx, request, route)
	case method == http.MethodPost && route == "/documents":
		return h.uploadDocument(ctx, request)
	case method == http.MethodPost && route == "/schedule":
		return h.createSchedule(ctx, request)
	default:
		return api.ErrorResponse(http.StatusNotFound, "Route not found", h.Logger), nil
	}
}

// routePath returns the path below /enrollment, ignoring any stage prefix and trailing slash
func routePath(request events.APIGatewayProxyRequest) string {
	path := request.Path
	if path == "" {
		path = request.Resource
	}
	path = strings.TrimSuffix(path, "/")

	idx := strings.Index(path, routePrefix+"/")
	if idx < 0 {
		return ""
	}
	return path[idx+len(routePrefix):]
}

func (h *Handler) timestamp() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

// loadEnrollment fetches the enrollment, translating a missing record into a 404
func (h *Handler) loadEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := h.Manager.Get(ctx, enrollmentID)
	if err != nil {
		return nil, storeError(err)
	}
	return enrollment, nil
}

// storeError maps repository sentinels onto API errors
func storeError(err error) error {
	if errors.Is(err, data.ErrNotFound) {
		return apperrors.NotFound("Enrollment not found")
	}
	return apperrors.Internal(err)
}

func invalidBody(err error) error {
	return apperrors.Validation("Invalid request body: " + err.Error())
}

// audit appends to the audit log without failing the request
func (h *Handler) audit(ctx context.Context, current *models.Enrollment, event string, stepNumber int, message string) *models.Enrollment {
	updated, err := h.Manager.AppendAudit(ctx, current.EnrollmentID, event, stepNumber, message)
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"operation":     "AppendAudit",
			"enrollment_id": current.EnrollmentID,
			"event":         event,
			"error":         err.Error(),
		}).Warn("Failed to append audit event")
		return current
	}
	return updated
}

// notify publishes a lifecycle event without failing the request
func (h *Handler) notify(ctx context.Context, eventType string, enrollment *models.Enrollment, details map[string]string) {
	if h.Notifications == nil {
		return
	}
	notification := &models.EnrollmentNotification{
		EventType:    eventType,
		EnrollmentID: enrollment.EnrollmentID,
		ParentEmail:  enrollment.ParentEmail,
		CoachID:      enrollment.CoachID,
		CoachName:    enrollment.CoachName,
		StudentName:  strings.TrimSpace(enrollment.StudentFirstName + " " + enrollment.StudentLastName),
		Details:      details,
		OccurredAt:   h.timestamp().Format(time.RFC3339),
	}
	if enrollment.StudentRecords != nil {
		notification.StudentUniqueID = enrollment.StudentRecords.StudentUniqueID
	}
	if err := h.Notifications.Publish(ctx, notification); err != nil {
		h.Logger.WithFields(logrus.Fields{
			"operation":     "Notify",
			"event_type":    eventType,
			"enrollment_id": enrollment.EnrollmentID,
			"error":         err.Error(),
		}).Warn("Failed to publish enrollment notification")
	}
}
