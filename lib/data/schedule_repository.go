package data

import (
	"context"
	"fmt"
	"tsa/lib/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"
)

// ScheduleRepository stores consultation and shadow-day requests
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *models.ScheduleRequest) error
}

// ScheduleDao implements ScheduleRepository on the events table
type ScheduleDao struct {
	Client      DynamoDBClientInterface
	Logger      *logrus.Logger
	EventsTable string
}

func (dao *ScheduleDao) CreateSchedule(ctx context.Context, schedule *models.ScheduleRequest) error {
	item, err := attributevalue.MarshalMap(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule request: %w", err)
	}

	_, err = dao.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dao.EventsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(schedule_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("schedule %s: %w", schedule.ScheduleID, ErrConflict)
		}
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "CreateSchedule",
			"enrollment_id": schedule.EnrollmentID,
			"schedule_type": schedule.ScheduleType,
			"error":         err.Error(),
		}).Error("Failed to create schedule request")
		return fmt.Errorf("failed to create schedule request: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"operation":     "CreateSchedule",
		"schedule_id":   schedule.ScheduleID,
		"enrollment_id": schedule.EnrollmentID,
	}).Info("Schedule request created")

	return nil
}
