package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignedURLExpiration = 24 * time.Hour

// maxObjectSize caps gallery downloads.
const maxObjectSize = 25 << 20

type AWSServiceProvider interface {
	LatestObject(ctx context.Context, bucketName, prefix string) (string, error)
	GetObject(ctx context.Context, bucketName, key string) ([]byte, string, error)
	PutObject(ctx context.Context, bucketName, key string, content []byte, contentType string) error
	GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error)
}

type AWSService struct {
	S3Client        *s3.Client
	S3PresignClient *s3.PresignClient
}

// InitClient points the S3 client at the Cloudflare R2 account.
func (awsService *AWSService) InitClient(ctx context.Context, accountId, accessKeyId, accessKeySecret string) error {
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountId),
		}, nil
	})
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyId, accessKeySecret, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	awsService.S3Client = s3.NewFromConfig(cfg)
	awsService.S3PresignClient = s3.NewPresignClient(awsService.S3Client)
	return nil
}

// LatestObject returns the key of the most recently modified object under
// prefix.
func (awsService *AWSService) LatestObject(ctx context.Context, bucketName, prefix string) (string, error) {
	paginator := s3.NewListObjectsV2Paginator(awsService.S3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
		Prefix: aws.String(prefix),
	})
	var latestKey string
	var latestTime time.Time
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, object := range page.Contents {
			if object.Key == nil || strings.HasSuffix(*object.Key, "/") {
				continue
			}
			modified := aws.ToTime(object.LastModified)
			if latestKey == "" || modified.After(latestTime) {
				latestKey = *object.Key
				latestTime = modified
			}
		}
	}
	return latestKey, nil
}

func (awsService *AWSService) GetObject(ctx context.Context, bucketName, key string) ([]byte, string, error) {
	output, err := awsService.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer output.Body.Close()

	content, err := io.ReadAll(io.LimitReader(output.Body, maxObjectSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(content) > maxObjectSize {
		return nil, "", fmt.Errorf("object %s is larger than %d bytes", key, maxObjectSize)
	}
	contentType := aws.ToString(output.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	return content, contentType, nil
}

func (awsService *AWSService) PutObject(ctx context.Context, bucketName, key string, content []byte, contentType string) error {
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	_, err := awsService.S3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (awsService *AWSService) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	presignedGetRequest, err := awsService.S3PresignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileKey),
	}, s3.WithPresignExpires(presignedURLExpiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %v", err)
	}
	return presignedGetRequest.URL, nil
}
