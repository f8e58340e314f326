package aws

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/model/catalog"
)

// sessionName identifies catalog reads in cloudtrail
const sessionName = "embodied-flows-catalog"

type SourceOption func(*S3Source)

func WithAWSConfig(cfg aws.Config) SourceOption {
	return func(s *S3Source) {
		s.awscfg = &cfg
	}
}

func WithDefaultRegion(region string) SourceOption {
	return func(s *S3Source) {
		if region != "" {
			s.defaultRegion = region
		}
	}
}

// WithRoleArn assumes role before reading the bucket.
func WithRoleArn(role string) SourceOption {
	return func(s *S3Source) {
		s.roleArn = role
	}
}

// WithEndpoint targets an S3 compatible storage such as minio.
func WithEndpoint(endpoint string) SourceOption {
	return func(s *S3Source) {
		s.endpoint = endpoint
	}
}

// WithStaticCredentials bypasses the default credentials chain.
func WithStaticCredentials(accessKey, secretKey string) SourceOption {
	return func(s *S3Source) {
		s.accessKey = accessKey
		s.secretKey = secretKey
	}
}

// S3Source loads catalog files from S3. A key ending with a slash loads and
// merges every .csv object under that prefix.
type S3Source struct {
	client        *s3.Client
	awscfg        *aws.Config
	defaultRegion string
	roleArn       string
	endpoint      string
	accessKey     string
	secretKey     string
	bucket        string
	key           string
}

func NewS3Source(ctx context.Context, location string, opts ...SourceOption) (source *S3Source, err error) {
	source = &S3Source{
		defaultRegion: "us-east-1",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(source)
		}
	}

	source.bucket, source.key, err = ParseLocation(location)
	if err != nil {
		return nil, err
	}

	if source.awscfg == nil {
		loadOptions := []func(*config.LoadOptions) error{config.WithRegion(source.defaultRegion)}
		if source.accessKey != "" {
			loadOptions = append(loadOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(source.accessKey, source.secretKey, ""),
			))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		source.awscfg = &cfg
	}

	if source.roleArn != "" {
		role, err := ParseRoleARN(source.roleArn)
		if err != nil {
			return nil, err
		}

		source.awscfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(
				*source.awscfg,
				func(o *sts.Options) { o.Region = source.defaultRegion },
			), role.String(), func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = sessionName
			}),
		)
		slog.Info("assuming aws role for catalog reads", "role", role.Name, "account", role.AccountID)
	}

	source.client = s3.NewFromConfig(*source.awscfg, func(o *s3.Options) {
		if source.endpoint != "" {
			o.BaseEndpoint = aws.String(source.endpoint)
			o.UsePathStyle = true
		}
	})

	return source, nil
}

// ParseLocation splits s3://bucket/key.
func ParseLocation(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 location %q: %w", location, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: expected s3://bucket/key", location)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (source *S3Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	keys := []string{source.key}
	if source.key == "" || strings.HasSuffix(source.key, "/") {
		var err error
		keys, err = source.list(ctx)
		if err != nil {
			return nil, err
		}
	}

	records := make([]embodiedflows.Record, 0)
	for _, key := range keys {
		c, err := source.read(ctx, key)
		if err != nil {
			return nil, err
		}
		records = append(records, c.Records()...)
	}

	slog.Info("catalog loaded from s3", "bucket", source.bucket, "objects", len(keys), "materials", len(records))

	return catalog.New(records), nil
}

func (source *S3Source) list(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(source.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(source.bucket),
		Prefix: aws.String(source.key),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", source.bucket, source.key, err)
		}
		for _, object := range page.Contents {
			if key := aws.ToString(object.Key); strings.HasSuffix(key, ".csv") {
				keys = append(keys, key)
			}
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no catalog file found in s3://%s/%s", source.bucket, source.key)
	}
	return keys, nil
}

func (source *S3Source) read(ctx context.Context, key string) (*catalog.Catalog, error) {
	out, err := source.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(source.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", source.bucket, key, err)
	}
	defer out.Body.Close()

	c, err := catalog.Parse(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s3://%s/%s: %w", source.bucket, key, err)
	}
	return c, nil
}

func (source *S3Source) String() string {
	return "s3://" + source.bucket + "/" + source.key
}
