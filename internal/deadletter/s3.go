package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"finetunedb/internal/utils"
)

// ObjectPutter is the part of the S3 client the archive needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes every Add call as one JSON Lines object
type S3Archive struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	podName string
	now     func() time.Time
	logger  *utils.Logger
}

// NewS3Archive creates an archive backed by the default AWS credential chain
func NewS3Archive(ctx context.Context, bucket, region, prefix, podName string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3ArchiveWithClient(s3.NewFromConfig(cfg), bucket, prefix, podName), nil
}

// NewS3ArchiveWithClient creates an archive on top of an existing client
func NewS3ArchiveWithClient(client ObjectPutter, bucket, prefix, podName string) *S3Archive {
	return &S3Archive{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		now:     time.Now,
		logger:  utils.NewLogger("deadletter-s3"),
	}
}

// Key returns the object key used for a batch written at t.
// Format: deadletters/2025/11/30/finetunedb-0-20251130-143022-123456789.jsonl
func (a *S3Archive) Key(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		a.prefix,
		t.Year(),
		t.Month(),
		t.Day(),
		a.podName,
		t.Format("20060102-150405"),
		t.Nanosecond(),
	)
}

// Add uploads items as a single JSON Lines object
func (a *S3Archive) Add(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			a.logger.Error("Failed to encode dead letter item", "id", item.ID, "error", err)
			continue
		}
	}

	key := a.Key(a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	a.logger.Info("Archived dead letters", "key", key, "count", len(items), "bytes", buf.Len())
	return nil
}

// Close is a no-op; the S3 client holds no resources to release
func (a *S3Archive) Close() error {
	return nil
}
