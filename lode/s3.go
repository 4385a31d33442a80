package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates report storage in an S3 bucket. The same settings
// serve the lode artifact registry when it shares report storage.
type S3Config struct {
	Bucket string
	// Prefix scopes every key. Optional.
	Prefix string
	// Region overrides the AWS default chain.
	Region string
	// Endpoint targets an S3-compatible provider instead of AWS.
	Endpoint string
	// UsePathStyle is needed by most S3-compatible providers.
	UsePathStyle bool
}

// Validate rejects a config without a bucket.
func (c *S3Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix/..." at the first slash. Surrounding
// slashes are ignored.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.Trim(path, "/"), "/")
	return bucket, prefix
}

// NewS3Factory returns a store factory over one S3 client. Credentials
// come from the AWS default chain.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("load AWS config: %w", err), s3cfg.Bucket)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix})
	}, nil
}
