package clients

import (
	"context"
	"fmt"
	"tsa/lib/constants"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS configuration for the region, pointing
// every service at LocalStack when running locally.
func LoadAWSConfig(ctx context.Context, isLocal bool, region string) (aws.Config, error) {
	if region == "" {
		region = constants.DEFAULT_REGION
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	if isLocal {
		cfg.BaseEndpoint = aws.String(constants.LOCALSTACK_ENDPOINT)
	}

	return cfg, nil
}
