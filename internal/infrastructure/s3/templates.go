package s3infra

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxTemplateSize caps how much of an object is read as a template.
const maxTemplateSize = 256 << 10

// API is the subset of the S3 client the template store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewClient creates an S3 client. A non-empty endpoint (LocalStack)
// overrides the service endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpoint string) *s3.Client {
	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...)
}

// TemplateStore reads email templates stored under a bucket prefix.
type TemplateStore struct {
	client API
	bucket string
	prefix string
}

func NewTemplateStore(client API, bucket, prefix string) *TemplateStore {
	return &TemplateStore{client: client, bucket: bucket, prefix: prefix}
}

// Load returns the template object named name.
func (s *TemplateStore) Load(ctx context.Context, name string) (string, error) {
	key := path.Join(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 get object %s: %w", key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxTemplateSize+1))
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", key, err)
	}
	if len(b) > maxTemplateSize {
		return "", fmt.Errorf("template %s exceeds %d bytes", key, maxTemplateSize)
	}
	return string(b), nil
}
