package enrollment

import (
	"context"
	"net/http"
	"strings"
	"time"
	"tsa/lib/api"
	"tsa/lib/apperrors"
	"tsa/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// createSchedule handles POST /enrollment/schedule
func (h *Handler) createSchedule(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var scheduleRequest models.CreateScheduleRequest
	if err := api.ParseJSONBody(request.Body, &scheduleRequest); err != nil {
		return api.FromError(invalidBody(err), h.Logger), nil
	}
	if err := h.Validator.ValidateRequest(&scheduleRequest); err != nil {
		return api.FromError(err, h.Logger), nil
	}

	enrollment, err := h.loadEnrollment(ctx, scheduleRequest.EnrollmentID)
	if err != nil {
		return api.FromError(err, h.Logger), nil
	}

	schedule := &models.ScheduleRequest{
		ScheduleID:    uuid.New().String(),
		EnrollmentID:  enrollment.EnrollmentID,
		ScheduleType:  scheduleRequest.ScheduleType,
		PreferredDate: scheduleRequest.PreferredDate,
		PreferredTime: strings.TrimSpace(scheduleRequest.PreferredTime),
		Notes:         strings.TrimSpace(scheduleRequest.Notes),
		Status:        models.ScheduleStatusPendingConfirmation,
		ParentEmail:   enrollment.ParentEmail,
		CoachName:     enrollment.CoachName,
		CreatedAt:     h.timestamp().Format(time.RFC3339),
	}

	if err := h.Schedules.CreateSchedule(ctx, schedule); err != nil {
		return api.FromError(apperrors.Internal(err), h.Logger), nil
	}

	updated, err := h.Manager.LinkSchedule(ctx, enrollment.EnrollmentID, schedule.ScheduleType, schedule.ScheduleID)
	if err != nil {
		return api.FromError(storeError(err), h.Logger), nil
	}

	h.Logger.WithFields(logrus.Fields{
		"operation":     "CreateSchedule",
		"enrollment_id": enrollment.EnrollmentID,
		"schedule_id":   schedule.ScheduleID,
		"schedule_type": schedule.ScheduleType,
	}).Info("Schedule request created")

	updated = h.audit(ctx, updated, models.AuditScheduleRequested, 0, schedule.ScheduleType)
	h.notify(ctx, models.NotificationScheduleRequested, updated, map[string]string{
		"schedule_id":    schedule.ScheduleID,
		"schedule_type":  schedule.ScheduleType,
		"preferred_date": schedule.PreferredDate,
		"preferred_time": schedule.PreferredTime,
	})

	return api.SuccessResponse(http.StatusOK, models.CreateScheduleResponse{
		ScheduleID: schedule.ScheduleID,
		Status:     schedule.Status,
	}, h.Logger), nil
}
