package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/sirupsen/logrus"
)

// CognitoClientInterface is the subset of the Cognito user pool API used for parent lookups
type CognitoClientInterface interface {
	ListUsers(ctx context.Context, params *cognitoidentityprovider.ListUsersInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ListUsersOutput, error)
}

// IdentityRepository resolves parent accounts in the parent user pool
type IdentityRepository interface {
	// FindParentIDByEmail returns the parent's Cognito sub, ErrNotFound when no account exists
	FindParentIDByEmail(ctx context.Context, email string) (string, error)
}

// IdentityDao implements IdentityRepository on a Cognito user pool
type IdentityDao struct {
	Client     CognitoClientInterface
	Logger     *logrus.Logger
	UserPoolID string
}

func (dao *IdentityDao) FindParentIDByEmail(ctx context.Context, email string) (string, error) {
	if dao.UserPoolID == "" {
		return "", fmt.Errorf("parent user pool not configured: %w", ErrNotFound)
	}

	// Cognito filter values are double-quoted, so quotes in the input are dropped
	filterValue := strings.ReplaceAll(strings.TrimSpace(email), `"`, "")

	output, err := dao.Client.ListUsers(ctx, &cognitoidentityprovider.ListUsersInput{
		UserPoolId:      aws.String(dao.UserPoolID),
		Filter:          aws.String(fmt.Sprintf(`email = "%s"`, filterValue)),
		Limit:           aws.Int32(1),
		AttributesToGet: []string{"sub"},
	})
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"operation": "FindParentIDByEmail",
			"error":     err.Error(),
		}).Error("Failed to list users in parent user pool")
		return "", fmt.Errorf("failed to look up parent account: %w", err)
	}

	for _, user := range output.Users {
		for _, attribute := range user.Attributes {
			if aws.ToString(attribute.Name) == "sub" && aws.ToString(attribute.Value) != "" {
				return aws.ToString(attribute.Value), nil
			}
		}
		if user.Username != nil {
			return aws.ToString(user.Username), nil
		}
	}

	return "", fmt.Errorf("parent account: %w", ErrNotFound)
}
