package data

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"tsa/lib/constants"
	"tsa/lib/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// EnrollmentRepository defines the document store operations on the enrollment aggregate
type EnrollmentRepository interface {
	// CreateEnrollment stores a new enrollment and links it onto its invitation in one transaction.
	// Returns ErrConflict when the invitation is already linked to an enrollment.
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error

	// GetEnrollment retrieves an enrollment by ID, ErrNotFound when missing
	GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error)

	// FindByInvitationToken returns the oldest non-cancelled enrollment for a token
	FindByInvitationToken(ctx context.Context, invitationToken string) (*models.Enrollment, error)

	// SaveStep overwrites the step payload and adds the step to completed_steps
	SaveStep(ctx context.Context, enrollmentID string, stepNumber int, stepData map[string]interface{}, status, updatedAt string) (*models.Enrollment, error)

	SetStudentRecords(ctx context.Context, enrollmentID string, records *models.StudentRecords, updatedAt string) (*models.Enrollment, error)
	MarkCompleted(ctx context.Context, enrollmentID, completedAt string) (*models.Enrollment, error)
	AppendAuditEvent(ctx context.Context, enrollmentID string, event models.AuditEvent) (*models.Enrollment, error)
	PutDocument(ctx context.Context, enrollmentID string, document models.DocumentRecord, updatedAt string) (*models.Enrollment, error)
	LinkSchedule(ctx context.Context, enrollmentID, scheduleType, scheduleID, updatedAt string) (*models.Enrollment, error)
}

// EnrollmentDao implements EnrollmentRepository on DynamoDB
type EnrollmentDao struct {
	Client           DynamoDBClientInterface
	Logger           *logrus.Logger
	EnrollmentsTable string
	InvitationsTable string
}

// CreateEnrollment writes the enrollment and claims the invitation atomically
func (dao *EnrollmentDao) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.Normalize()
	// an empty number set is not storable; completed_steps is created by the first ADD
	record := *enrollment
	record.CompletedSteps = nil
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment: %w", err)
	}

	_, err = dao.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(dao.EnrollmentsTable),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(enrollment_id)"),
				},
			},
			{
				Update: &types.Update{
					TableName:           aws.String(dao.InvitationsTable),
					Key:                 stringKey("invitation_token", enrollment.InvitationToken),
					UpdateExpression:    aws.String("SET enrollment_id = :eid, #status = :accepted, accepted_at = :now"),
					ConditionExpression: aws.String("attribute_exists(invitation_token) AND attribute_not_exists(enrollment_id)"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":eid":      &types.AttributeValueMemberS{Value: enrollment.EnrollmentID},
						":accepted": &types.AttributeValueMemberS{Value: models.InvitationStatusAccepted},
						":now":      &types.AttributeValueMemberS{Value: enrollment.CreatedAt},
					},
				},
			},
		},
	})
	if err != nil {
		if isTransactionCanceled(err) {
			dao.Logger.WithFields(logrus.Fields{
				"operation":        "CreateEnrollment",
				"enrollment_id":    enrollment.EnrollmentID,
				"invitation_token": enrollment.InvitationToken,
			}).Warn("Invitation already linked to an enrollment")
			return fmt.Errorf("invitation %s already has an enrollment: %w", enrollment.InvitationToken, ErrConflict)
		}
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "CreateEnrollment",
			"enrollment_id": enrollment.EnrollmentID,
			"error":         err.Error(),
		}).Error("Failed to create enrollment")
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	dao.Logger.WithFields(logrus.Fields{
		"operation":     "CreateEnrollment",
		"enrollment_id": enrollment.EnrollmentID,
	}).Info("Enrollment created")

	return nil
}

// GetEnrollment retrieves an enrollment with a strongly consistent read
func (dao *EnrollmentDao) GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	output, err := dao.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dao.EnrollmentsTable),
		Key:            stringKey("enrollment_id", enrollmentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation":     "GetEnrollment",
			"enrollment_id": enrollmentID,
			"error":         err.Error(),
		}).Error("Failed to get enrollment")
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if output.Item == nil {
		return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotFound)
	}

	return unmarshalEnrollment(output.Item)
}

// FindByInvitationToken queries the invitation_token GSI, skipping cancelled enrollments
func (dao *EnrollmentDao) FindByInvitationToken(ctx context.Context, invitationToken string) (*models.Enrollment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(dao.EnrollmentsTable),
		IndexName:              aws.String(constants.INVITATION_TOKEN_INDEX),
		KeyConditionExpression: aws.String("invitation_token = :token"),
		FilterExpression:       aws.String("#status <> :cancelled"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token":     &types.AttributeValueMemberS{Value: invitationToken},
			":cancelled": &types.AttributeValueMemberS{Value: models.EnrollmentStatusCancelled},
		},
	}

	var matches []*models.Enrollment
	for {
		output, err := dao.Client.Query(ctx, input)
		if err != nil {
			dao.Logger.WithFields(logrus.Fields{
				"operation": "FindByInvitationToken",
				"error":     err.Error(),
			}).Error("Failed to query enrollments by invitation token")
			return nil, fmt.Errorf("failed to query enrollments: %w", err)
		}

		for _, item := range output.Items {
			enrollment, err := unmarshalEnrollment(item)
			if err != nil {
				return nil, err
			}
			matches = append(matches, enrollment)
		}

		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("enrollment for invitation: %w", ErrNotFound)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt < matches[j].CreatedAt
	})
	return matches[0], nil
}

// SaveStep overwrites enrollment_data.step_N and adds N to the completed_steps number set
func (dao *EnrollmentDao) SaveStep(ctx context.Context, enrollmentID string, stepNumber int, stepData map[string]interface{}, status, updatedAt string) (*models.Enrollment, error) {
	data, err := attributevalue.Marshal(stepData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step data: %w", err)
	}

	return dao.update(ctx, "SaveStep", enrollmentID,
		"SET enrollment_data.#step = :data, #status = :status, updated_at = :now ADD completed_steps :steps",
		map[string]string{
			"#step":   models.StepKey(stepNumber),
			"#status": "status",
		},
		map[string]types.AttributeValue{
			":data":   data,
			":status": &types.AttributeValueMemberS{Value: status},
			":now":    &types.AttributeValueMemberS{Value: updatedAt},
			":steps":  &types.AttributeValueMemberNS{Value: []string{strconv.Itoa(stepNumber)}},
		},
	)
}

// SetStudentRecords stores the compliance linkage produced by materialization
func (dao *EnrollmentDao) SetStudentRecords(ctx context.Context, enrollmentID string, records *models.StudentRecords, updatedAt string) (*models.Enrollment, error) {
	value, err := attributevalue.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal student records: %w", err)
	}

	return dao.update(ctx, "SetStudentRecords", enrollmentID,
		"SET student_records = :records, updated_at = :now",
		nil,
		map[string]types.AttributeValue{
			":records": value,
			":now":     &types.AttributeValueMemberS{Value: updatedAt},
		},
	)
}

// MarkCompleted moves the enrollment to completed, keeping the first completion time
func (dao *EnrollmentDao) MarkCompleted(ctx context.Context, enrollmentID, completedAt string) (*models.Enrollment, error) {
	return dao.update(ctx, "MarkCompleted", enrollmentID,
		"SET #status = :completed, completed_at = if_not_exists(completed_at, :now), updated_at = :now",
		map[string]string{
			"#status": "status",
		},
		map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: models.EnrollmentStatusCompleted},
			":now":       &types.AttributeValueMemberS{Value: completedAt},
		},
	)
}

// AppendAuditEvent appends to the audit_log list, creating it on first use
func (dao *EnrollmentDao) AppendAuditEvent(ctx context.Context, enrollmentID string, event models.AuditEvent) (*models.Enrollment, error) {
	value, err := attributevalue.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit event: %w", err)
	}

	return dao.update(ctx, "AppendAuditEvent", enrollmentID,
		"SET audit_log = list_append(if_not_exists(audit_log, :empty), :event), updated_at = :now",
		nil,
		map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":event": &types.AttributeValueMemberL{Value: []types.AttributeValue{value}},
			":now":   &types.AttributeValueMemberS{Value: event.Timestamp},
		},
	)
}

// PutDocument records document metadata under documents.<document_type>
func (dao *EnrollmentDao) PutDocument(ctx context.Context, enrollmentID string, document models.DocumentRecord, updatedAt string) (*models.Enrollment, error) {
	value, err := attributevalue.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document record: %w", err)
	}

	return dao.update(ctx, "PutDocument", enrollmentID,
		"SET documents.#type = :document, updated_at = :now",
		map[string]string{
			"#type": document.DocumentType,
		},
		map[string]types.AttributeValue{
			":document": value,
			":now":      &types.AttributeValueMemberS{Value: updatedAt},
		},
	)
}

// LinkSchedule records the schedule id under schedules.<schedule_type>
func (dao *EnrollmentDao) LinkSchedule(ctx context.Context, enrollmentID, scheduleType, scheduleID, updatedAt string) (*models.Enrollment, error) {
	return dao.update(ctx, "LinkSchedule", enrollmentID,
		"SET schedules.#type = :id, updated_at = :now",
		map[string]string{
			"#type": scheduleType,
		},
		map[string]types.AttributeValue{
			":id":  &types.AttributeValueMemberS{Value: scheduleID},
			":now": &types.AttributeValueMemberS{Value: updatedAt},
		},
	)
}

// update runs an UpdateItem guarded by the enrollment's existence and returns the new image
func (dao *EnrollmentDao) update(ctx context.Context, operation, enrollmentID, expression string, names map[string]string, values map[string]types.AttributeValue) (*models.Enrollment, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(dao.EnrollmentsTable),
		Key:                       stringKey("enrollment_id", enrollmentID),
		UpdateExpression:          aws.String(expression),
		ConditionExpression:       aws.String("attribute_exists(enrollment_id)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	output, err := dao.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, ErrNotFound)
		}
		dao.Logger.WithFields(logrus.Fields{
			"operation":     operation,
			"enrollment_id": enrollmentID,
			"error":         err.Error(),
		}).Error("Failed to update enrollment")
		return nil, fmt.Errorf("failed to update enrollment: %w", err)
	}

	return unmarshalEnrollment(output.Attributes)
}

func unmarshalEnrollment(item map[string]types.AttributeValue) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := attributevalue.UnmarshalMap(item, &enrollment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enrollment: %w", err)
	}
	enrollment.Normalize()
	return &enrollment, nil
}
