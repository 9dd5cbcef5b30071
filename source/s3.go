package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrObjectNotFound is returned when an s3:// location does not exist.
var ErrObjectNotFound = errors.New("object not found in s3 bucket")

// S3Params configures access to s3:// locations. Empty credentials fall back
// to the default AWS credential chain.
type S3Params struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	NumFullRetries  int
}

// ParseS3Location splits an s3://bucket/key location.
func ParseS3Location(location string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	if trimmed == location {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	split := strings.SplitN(trimmed, "/", 2)
	if len(split) != 2 || split[0] == "" || split[1] == "" {
		return "", "", fmt.Errorf("s3 location must be s3://bucket/key: %s", location)
	}
	return split[0], split[1], nil
}

func (o *Opener) downloadS3(ctx context.Context, location string) (string, func(), error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return "", nil, err
	}

	cfg, err := loadAWSConfig(ctx, o.s3, o.logger)
	if err != nil {
		return "", nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(*cfg)

	dest, cleanup, err := tempPath(key)
	if err != nil {
		return "", nil, err
	}

	err = retry.Times(uint(o.s3.NumFullRetries)).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			o.logger.Debugf("Retrying download of %s (attempt %d)", location, attempt)
		}
		if err := headObject(ctx, client, bucket, key); err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return err, true
			}
			return err, false
		}
		if err := getObject(ctx, client, bucket, key, dest); err != nil {
			return fmt.Errorf("download object: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%s: %w", location, err)
	}

	return dest, cleanup, nil
}

func headObject(ctx context.Context, client *s3.Client, bucket, key string) error {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound:
				return ErrObjectNotFound
			default:
				return fmt.Errorf("aws api error: %w", err)
			}
		}
		return fmt.Errorf("generic aws error: %w", err)
	}
	return nil
}

func getObject(ctx context.Context, client *s3.Client, bucket, key, dest string) error {
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return err
	}
	return nil
}

func loadAWSConfig(ctx context.Context, params S3Params, logger log.Logger) (*aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if params.Region != "" {
		opts = append(opts, config.WithRegion(params.Region))
	}
	if params.AccessKeyID != "" && params.SecretAccessKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}
	return &cfg, nil
}
