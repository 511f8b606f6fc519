package storage

import (
	"bytes"
	"context"
	"fmt"

	"capitolbrief/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archive stores accepted bill texts in an S3-compatible bucket.
type Archive struct {
	client *s3.Client
	cfg    *config.Config
}

// NewArchive creates the S3 client for the configured endpoint.
func NewArchive(cfg *config.Config) (*Archive, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}
	return &Archive{client: s3.NewFromConfig(awsCfg), cfg: cfg}, nil
}

// Archive uploads the data under the given key and returns the object link.
func (a *Archive) Archive(ctx context.Context, key string, data []byte) (string, error) {
	bucket := a.cfg.S3Bucket
	contentType := "text/plain; charset=utf-8"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", a.cfg.S3URL, bucket, key), nil
}
