package data

import (
	"context"
	"tsa/lib/constants"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"
)

type SSMRepository interface {
	GetParameters(ctx context.Context) (map[string]string, error)
}

type SSMClientInterface interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMDao reads every parameter below the /tsa prefix that config.New keys off,
// decrypting secure strings
type SSMDao struct {
	SSM    SSMClientInterface
	Logger *logrus.Logger
}

func (client *SSMDao) GetParameters(ctx context.Context) (map[string]string, error) {
	path := constants.SSM_PARAMETER_PATH

	params := map[string]string{}
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	pages := 0
	for {
		output, err := client.SSM.GetParametersByPath(ctx, input)
		if err != nil {
			client.Logger.WithFields(logrus.Fields{
				"operation": "GetParameters",
				"path":      path,
				"error":     err.Error(),
			}).Error("Failed to read SSM parameters")
			return nil, err
		}
		pages++

		for _, param := range output.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			params[*param.Name] = *param.Value
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	client.Logger.WithFields(logrus.Fields{
		"operation":    "GetParameters",
		"path":         path,
		"pages":        pages,
		"params_count": len(params),
	}).Debug("Loaded SSM parameters")

	return params, nil
}
