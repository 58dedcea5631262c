package data

import (
	"context"
	"errors"
	"testing"
	"tsa/lib/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDynamoDBClient records the last input of each call and returns canned outputs
type MockDynamoDBClient struct {
	GetItemInput  *dynamodb.GetItemInput
	GetItemOutput *dynamodb.GetItemOutput

	PutItemInput *dynamodb.PutItemInput

	UpdateItemInput  *dynamodb.UpdateItemInput
	UpdateItemOutput *dynamodb.UpdateItemOutput

	QueryInputs  []dynamodb.QueryInput
	QueryOutputs []*dynamodb.QueryOutput

	TransactInput *dynamodb.TransactWriteItemsInput

	Err error
}

func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.GetItemInput = params
	if m.Err != nil {
		return nil, m.Err
	}
	if m.GetItemOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.GetItemOutput, nil
}

func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.PutItemInput = params
	if m.Err != nil {
		return nil, m.Err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MockDynamoDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.UpdateItemInput = params
	if m.Err != nil {
		return nil, m.Err
	}
	return m.UpdateItemOutput, nil
}

func (m *MockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.QueryInputs = append(m.QueryInputs, *params)
	if m.Err != nil {
		return nil, m.Err
	}
	output := m.QueryOutputs[0]
	m.QueryOutputs = m.QueryOutputs[1:]
	return output, nil
}

func (m *MockDynamoDBClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.TransactInput = params
	if m.Err != nil {
		return nil, m.Err
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func newEnrollmentDao(mock *MockDynamoDBClient) *EnrollmentDao {
	return &EnrollmentDao{
		Client:           mock,
		Logger:           logrus.New(),
		EnrollmentsTable: "tsa-enrollments",
		InvitationsTable: "tsa-invitations",
	}
}

func enrollmentItem(t *testing.T, enrollment *models.Enrollment) map[string]types.AttributeValue {
	item, err := attributevalue.MarshalMap(enrollment)
	require.NoError(t, err)
	return item
}

func Test_CreateEnrollment_Success(t *testing.T) {
	//Arrange
	mock := &MockDynamoDBClient{}
	dao := newEnrollmentDao(mock)
	enrollment := &models.Enrollment{
		EnrollmentID:    "E1",
		InvitationToken: "tok-123",
		Status:          models.EnrollmentStatusPending,
		CreatedAt:       "2026-10-18T12:00:00Z",
	}

	//Act
	err := dao.CreateEnrollment(context.Background(), enrollment)

	//Assert
	require.NoError(t, err)
	require.Len(t, mock.TransactInput.TransactItems, 2)

	put := mock.TransactInput.TransactItems[0].Put
	assert.Equal(t, "tsa-enrollments", *put.TableName)
	assert.Equal(t, "attribute_not_exists(enrollment_id)", *put.ConditionExpression)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "E1"}, put.Item["enrollment_id"])
	assert.NotContains(t, put.Item, "completed_steps")
	assert.IsType(t, &types.AttributeValueMemberM{}, put.Item["enrollment_data"])

	update := mock.TransactInput.TransactItems[1].Update
	assert.Equal(t, "tsa-invitations", *update.TableName)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "tok-123"}, update.Key["invitation_token"])
	assert.Contains(t, *update.ConditionExpression, "attribute_not_exists(enrollment_id)")
}

func Test_CreateEnrollment_InvitationAlreadyLinked(t *testing.T) {
	mock := &MockDynamoDBClient{Err: &types.TransactionCanceledException{Message: stringPtr("ConditionalCheckFailed")}}
	dao := newEnrollmentDao(mock)

	err := dao.CreateEnrollment(context.Background(), &models.Enrollment{EnrollmentID: "E2", InvitationToken: "tok-123"})

	assert.ErrorIs(t, err, ErrConflict)
}

func Test_GetEnrollment_Success(t *testing.T) {
	//Arrange
	mock := &MockDynamoDBClient{
		GetItemOutput: &dynamodb.GetItemOutput{
			Item: enrollmentItem(t, &models.Enrollment{
				EnrollmentID:   "E1",
				Status:         models.EnrollmentStatusInProgress,
				CompletedSteps: []int{3, 1},
			}),
		},
	}
	dao := newEnrollmentDao(mock)

	//Act
	actual, err := dao.GetEnrollment(context.Background(), "E1")

	//Assert
	require.NoError(t, err)
	assert.True(t, *mock.GetItemInput.ConsistentRead)
	assert.Equal(t, "E1", actual.EnrollmentID)
	assert.Equal(t, []int{1, 3}, actual.CompletedSteps)
}

func Test_GetEnrollment_NotFound(t *testing.T) {
	dao := newEnrollmentDao(&MockDynamoDBClient{})

	_, err := dao.GetEnrollment(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_FindByInvitationToken_PaginatesAndPicksOldest(t *testing.T) {
	//Arrange
	mock := &MockDynamoDBClient{
		QueryOutputs: []*dynamodb.QueryOutput{
			{
				Items:            []map[string]types.AttributeValue{enrollmentItem(t, &models.Enrollment{EnrollmentID: "E2", CreatedAt: "2026-10-18T10:00:00Z"})},
				LastEvaluatedKey: stringKey("enrollment_id", "E2"),
			},
			{
				Items: []map[string]types.AttributeValue{enrollmentItem(t, &models.Enrollment{EnrollmentID: "E1", CreatedAt: "2026-10-17T10:00:00Z"})},
			},
		},
	}
	dao := newEnrollmentDao(mock)

	//Act
	actual, err := dao.FindByInvitationToken(context.Background(), "tok-123")

	//Assert
	require.NoError(t, err)
	assert.Equal(t, "E1", actual.EnrollmentID)
	require.Len(t, mock.QueryInputs, 2)
	assert.Equal(t, "invitation_token-index", *mock.QueryInputs[0].IndexName)
	assert.Nil(t, mock.QueryInputs[0].ExclusiveStartKey)
	assert.Equal(t, stringKey("enrollment_id", "E2"), mock.QueryInputs[1].ExclusiveStartKey)
}

func Test_FindByInvitationToken_NotFound(t *testing.T) {
	dao := newEnrollmentDao(&MockDynamoDBClient{QueryOutputs: []*dynamodb.QueryOutput{{}}})

	_, err := dao.FindByInvitationToken(context.Background(), "tok-404")

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_SaveStep_BuildsSetAndAddExpression(t *testing.T) {
	//Arrange
	mock := &MockDynamoDBClient{
		UpdateItemOutput: &dynamodb.UpdateItemOutput{
			Attributes: enrollmentItem(t, &models.Enrollment{EnrollmentID: "E1", CompletedSteps: []int{1}}),
		},
	}
	dao := newEnrollmentDao(mock)

	//Act
	actual, err := dao.SaveStep(context.Background(), "E1", 1, map[string]interface{}{"sport_interest": "soccer"}, models.EnrollmentStatusInProgress, "2026-10-18T12:00:00Z")

	//Assert
	require.NoError(t, err)
	assert.Equal(t, []int{1}, actual.CompletedSteps)

	input := mock.UpdateItemInput
	assert.Equal(t, "SET enrollment_data.#step = :data, #status = :status, updated_at = :now ADD completed_steps :steps", *input.UpdateExpression)
	assert.Equal(t, "attribute_exists(enrollment_id)", *input.ConditionExpression)
	assert.Equal(t, "step_1", input.ExpressionAttributeNames["#step"])
	assert.Equal(t, &types.AttributeValueMemberNS{Value: []string{"1"}}, input.ExpressionAttributeValues[":steps"])
	assert.Equal(t, types.ReturnValueAllNew, input.ReturnValues)
}

func Test_Update_MissingEnrollment(t *testing.T) {
	mock := &MockDynamoDBClient{Err: &types.ConditionalCheckFailedException{}}
	dao := newEnrollmentDao(mock)

	_, err := dao.LinkSchedule(context.Background(), "missing", models.ScheduleTypeConsultation, "S1", "2026-10-18T12:00:00Z")

	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_Update_StoreFailure(t *testing.T) {
	mock := &MockDynamoDBClient{Err: errors.New("ProvisionedThroughputExceededException")}
	dao := newEnrollmentDao(mock)

	_, err := dao.MarkCompleted(context.Background(), "E1", "2026-10-18T12:00:00Z")

	assert.ErrorContains(t, err, "failed to update enrollment")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func Test_AppendAuditEvent_UsesListAppend(t *testing.T) {
	mock := &MockDynamoDBClient{
		UpdateItemOutput: &dynamodb.UpdateItemOutput{Attributes: enrollmentItem(t, &models.Enrollment{EnrollmentID: "E1"})},
	}
	dao := newEnrollmentDao(mock)

	_, err := dao.AppendAuditEvent(context.Background(), "E1", models.AuditEvent{Event: models.AuditStudentCreationFailed, StepNumber: 4, Timestamp: "2026-10-18T12:00:00Z"})

	require.NoError(t, err)
	assert.Contains(t, *mock.UpdateItemInput.UpdateExpression, "list_append(if_not_exists(audit_log, :empty), :event)")
	assert.Nil(t, mock.UpdateItemInput.ExpressionAttributeNames)
	event := mock.UpdateItemInput.ExpressionAttributeValues[":event"].(*types.AttributeValueMemberL)
	require.Len(t, event.Value, 1)
}

func Test_PutDocument_UsesDocumentTypeAsMapKey(t *testing.T) {
	mock := &MockDynamoDBClient{
		UpdateItemOutput: &dynamodb.UpdateItemOutput{Attributes: enrollmentItem(t, &models.Enrollment{EnrollmentID: "E1"})},
	}
	dao := newEnrollmentDao(mock)

	_, err := dao.PutDocument(context.Background(), "E1", models.DocumentRecord{DocumentID: "D1", DocumentType: models.DocumentTypeBirthCertificate}, "2026-10-18T12:00:00Z")

	require.NoError(t, err)
	assert.Equal(t, "SET documents.#type = :document, updated_at = :now", *mock.UpdateItemInput.UpdateExpression)
	assert.Equal(t, "birth_certificate", mock.UpdateItemInput.ExpressionAttributeNames["#type"])
}

func Test_GetInvitation(t *testing.T) {
	item, err := attributevalue.MarshalMap(&models.Invitation{InvitationToken: "tok-123", CoachName: "Coach Rivera", Status: models.InvitationStatusPending})
	require.NoError(t, err)
	dao := &InvitationDao{Client: &MockDynamoDBClient{GetItemOutput: &dynamodb.GetItemOutput{Item: item}}, Logger: logrus.New(), InvitationsTable: "tsa-invitations"}

	actual, err := dao.GetInvitation(context.Background(), "tok-123")

	require.NoError(t, err)
	assert.Equal(t, "Coach Rivera", actual.CoachName)

	dao.Client = &MockDynamoDBClient{}
	_, err = dao.GetInvitation(context.Background(), "tok-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_CreateSchedule(t *testing.T) {
	mock := &MockDynamoDBClient{}
	dao := &ScheduleDao{Client: mock, Logger: logrus.New(), EventsTable: "tsa-events"}

	err := dao.CreateSchedule(context.Background(), &models.ScheduleRequest{ScheduleID: "S1", EnrollmentID: "E1", ScheduleType: models.ScheduleTypeShadowDay})

	require.NoError(t, err)
	assert.Equal(t, "tsa-events", *mock.PutItemInput.TableName)
	assert.Equal(t, "attribute_not_exists(schedule_id)", *mock.PutItemInput.ConditionExpression)

	mock.Err = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, dao.CreateSchedule(context.Background(), &models.ScheduleRequest{ScheduleID: "S1"}), ErrConflict)
}

func stringPtr(v string) *string {
	return &v
}
