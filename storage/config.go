package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
)

// DefaultMaxObjectMB caps S3 downloads when Config.MaxObjectMB is zero.
const DefaultMaxObjectMB = 100

// Config selects and configures a Source.
type Config struct {
	// FromS3Bucket routes every path to S3. Paths are "s3://bucket/key" or
	// "bucket/key".
	FromS3Bucket bool `yaml:"from_s3_bucket"`

	// Root is the base directory for relative paths received by the HTTP and
	// MCP surfaces. Local only.
	Root string `yaml:"root"`

	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"` // optional, e.g. a MinIO URL

	// MaxObjectMB caps a single S3 download. Not read from YAML: callers
	// derive it from their document size limit.
	MaxObjectMB int `yaml:"-"`
}

// New builds the Source described by cfg. Credentials for S3 come from the
// default AWS chain (environment, shared files, instance role).
func New(ctx context.Context, cfg Config) (Source, error) {
	if !cfg.FromS3Bucket {
		return NewLocal(afero.NewOsFs()), nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	maxMB := cfg.MaxObjectMB
	if maxMB <= 0 {
		maxMB = DefaultMaxObjectMB
	}
	return NewS3(client, int64(maxMB)<<20), nil
}
