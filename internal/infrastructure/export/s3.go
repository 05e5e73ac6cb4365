package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

// PutObjectAPI is the slice of the S3 client the exporter needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options selects the destination bucket.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
}

// S3Exporter uploads the JSON and Markdown renditions of each run.
type S3Exporter struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ ports.Exporter = (*S3Exporter)(nil)

// NewS3Exporter loads the default AWS credential chain.
func NewS3Exporter(ctx context.Context, opts S3Options) (*S3Exporter, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 export: bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3ExporterWithClient(s3.NewFromConfig(cfg), opts.Bucket, opts.Prefix), nil
}

// NewS3ExporterWithClient uses an existing client.
func NewS3ExporterWithClient(client PutObjectAPI, bucket, prefix string) *S3Exporter {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Exporter{client: client, bucket: bucket, prefix: prefix}
}

// Export uploads <prefix><base>.json and <prefix><base>.md.
func (e *S3Exporter) Export(ctx context.Context, report domain.RunReport) error {
	data, err := RenderJSON(report)
	if err != nil {
		return err
	}
	key := e.prefix + BaseName(report)
	if err := e.put(ctx, key+".json", "application/json", data); err != nil {
		return err
	}
	return e.put(ctx, key+".md", "text/markdown; charset=utf-8", RenderMarkdown(report))
}

func (e *S3Exporter) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}
