package clients

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ClientInterface defines the enrollment document operations on S3
type S3ClientInterface interface {
	UploadDocument(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
}

// S3API is the subset of the SDK client the document store needs
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client wraps the AWS S3 client for a single documents bucket
type S3Client struct {
	svc    S3API
	bucket string
}

// NewS3Client creates a new S3 client instance
func NewS3Client(cfg aws.Config, isLocal bool, bucket string) S3ClientInterface {
	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = isLocal
	})

	return &S3Client{
		svc:    svc,
		bucket: bucket,
	}
}

// NewS3ClientWithAPI builds the client around an existing SDK implementation
func NewS3ClientWithAPI(svc S3API, bucket string) *S3Client {
	return &S3Client{svc: svc, bucket: bucket}
}

// UploadDocument stores the decoded document bytes with server-side encryption
func (client *S3Client) UploadDocument(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	_, err := client.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(client.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(int64(len(body))),
		Metadata:             metadata,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", key, err)
	}

	return nil
}
