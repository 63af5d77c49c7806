// Package archive keeps a copy of every allocation result in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// Record is the archived document for one run
type Record struct {
	RunID     string                   `json:"run_id"`
	CreatedAt time.Time                `json:"created_at"`
	Roles     []models.Role            `json:"roles"`
	Result    *models.AllocationResult `json:"result"`
}

// Archiver stores allocation records
type Archiver interface {
	Archive(ctx context.Context, rec *Record) (string, error)
}

// Nop archives nothing
type Nop struct{}

func (Nop) Archive(context.Context, *Record) (string, error) { return "", nil }

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes records to S3 paths like:
//
//	s3://<bucket>/<prefix>/allocations/YYYY/MM/DD/<runID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver creates an S3Archiver using the default AWS credential chain
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ObjectKey returns where a record is stored
func ObjectKey(prefix, runID string, ts time.Time) string {
	year, month, day := ts.UTC().Date()
	return path.Join(prefix, "allocations",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		runID+".json",
	)
}

// Archive uploads rec as JSON and returns its object key
func (s *S3Archiver) Archive(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("nil record")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	key := ObjectKey(s.prefix, rec.RunID, ts)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
