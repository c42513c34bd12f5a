// Package s3 checks that backup archives reached the bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 client configuration.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Custom endpoint for S3-compatible stores (empty = AWS)
	PathStyle       bool
}

// LoadConfigFromEnv loads S3 configuration from environment variables.
func LoadConfigFromEnv() Config {
	endpoint := config.GetEnv("S3_ENDPOINT", "")
	return Config{
		Region:          config.GetEnv("AWS_DEFAULT_REGION", "eu-central-1"),
		AccessKeyID:     config.GetEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: config.GetSecretEnv("AWS_SECRET_ACCESS_KEY"),
		Endpoint:        endpoint,
		PathStyle:       config.GetBoolEnv("S3_FORCE_PATH_STYLE", endpoint != ""),
	}
}

// Object is an uploaded archive.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// API is the subset of the S3 client the verifier calls.
type API interface {
	awss3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Verifier looks up uploaded objects.
type Verifier struct {
	api API
}

// NewVerifier creates a verifier with an S3 client built from cfg. Static
// credentials are used when set, otherwise the default AWS chain applies.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewVerifierFromAPI(client), nil
}

// NewVerifierFromAPI wraps an existing client.
func NewVerifierFromAPI(api API) *Verifier {
	return &Verifier{api: api}
}

// Verify returns the newest object under prefix in bucket that was modified
// at or after since. S3 timestamps have second precision, so since is
// truncated to the second. Returns ErrNotFound when no such object exists.
func (v *Verifier) Verify(ctx context.Context, bucket, prefix string, since time.Time) (*Object, error) {
	since = since.Truncate(time.Second)

	paginator := awss3.NewListObjectsV2Paginator(v.api, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var newest *Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("s3.listObjects", bucket, err)
		}
		for _, obj := range page.Contents {
			modified := aws.ToTime(obj.LastModified)
			if modified.Before(since) {
				continue
			}
			if newest == nil || modified.After(newest.LastModified) {
				newest = &Object{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: modified,
				}
			}
		}
	}

	if newest == nil {
		return nil, apperrors.NotFound("object", bucket+"/"+prefix)
	}
	return newest, nil
}

// Ping checks that bucket exists and is reachable with the configured
// credentials.
func (v *Verifier) Ping(ctx context.Context, bucket string) error {
	_, err := v.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return classify("s3.headBucket", bucket, err)
	}
	return nil
}

func classify(op, bucket string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return apperrors.NotFound("bucket", bucket)
	}
	return apperrors.Internal(op, err)
}
