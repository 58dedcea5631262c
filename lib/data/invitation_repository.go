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

// InvitationRepository reads coach-issued invitations
type InvitationRepository interface {
	GetInvitation(ctx context.Context, invitationToken string) (*models.Invitation, error)
}

// InvitationDao implements InvitationRepository on DynamoDB
type InvitationDao struct {
	Client           DynamoDBClientInterface
	Logger           *logrus.Logger
	InvitationsTable string
}

// GetInvitation retrieves an invitation by token, ErrNotFound when missing
func (dao *InvitationDao) GetInvitation(ctx context.Context, invitationToken string) (*models.Invitation, error) {
	output, err := dao.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dao.InvitationsTable),
		Key:            stringKey("invitation_token", invitationToken),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation": "GetInvitation",
			"error":     err.Error(),
		}).Error("Failed to get invitation")
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	if output.Item == nil {
		return nil, fmt.Errorf("invitation: %w", ErrNotFound)
	}

	var invitation models.Invitation
	if err := attributevalue.UnmarshalMap(output.Item, &invitation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invitation: %w", err)
	}
	return &invitation, nil
}
