package data

import (
	"context"
	"encoding/json"
	"fmt"
	"tsa/lib/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/sirupsen/logrus"
)

// SNSClientInterface is the subset of the SNS API used to publish enrollment events
type SNSClientInterface interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NotificationRepository publishes enrollment lifecycle events
type NotificationRepository interface {
	Publish(ctx context.Context, notification *models.EnrollmentNotification) error
}

// NotificationDao implements NotificationRepository on an SNS topic. An empty
// TopicARN turns publishing into a no-op.
type NotificationDao struct {
	Client   SNSClientInterface
	Logger   *logrus.Logger
	TopicARN string
}

func (dao *NotificationDao) Publish(ctx context.Context, notification *models.EnrollmentNotification) error {
	if dao.TopicARN == "" {
		dao.Logger.WithFields(logrus.Fields{
			"operation":  "PublishNotification",
			"event_type": notification.EventType,
		}).Debug("No enrollment topic configured, skipping notification")
		return nil
	}

	message, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	output, err := dao.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(dao.TopicARN),
		Message:  aws.String(string(message)),
		Subject:  aws.String("TSA enrollment " + notification.EventType),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notification.EventType),
			},
		},
	})
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "PublishNotification",
			"event_type":    notification.EventType,
			"enrollment_id": notification.EnrollmentID,
			"error":         err.Error(),
		}).Error("Failed to publish enrollment notification")
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"operation":     "PublishNotification",
		"event_type":    notification.EventType,
		"enrollment_id": notification.EnrollmentID,
		"message_id":    aws.ToString(output.MessageId),
	}).Info("Enrollment notification published")

	return nil
}
