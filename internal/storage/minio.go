package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/presence/internal/config"
)

// CaptureStore archives the raw capture frames behind every outcome, so a
// reviewer can see exactly what the camera saw.
type CaptureStore struct {
	client *minio.Client
	bucket string
}

func NewCaptureStore(cfg config.MinIOConfig) (*CaptureStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &CaptureStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *CaptureStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutCapture stores a capture frame and returns its key. Keys are
// date-partitioned so retention jobs can prune whole days.
func (s *CaptureStore) PutCapture(ctx context.Context, capturedAt time.Time, data []byte) (string, error) {
	key := fmt.Sprintf("captures/%s/%s.jpg", capturedAt.UTC().Format("2006-01-02"), uuid.New())
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("put capture %s: %w", key, err)
	}
	return key, nil
}

// GetCapture retrieves an archived frame by key.
func (s *CaptureStore) GetCapture(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get capture %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", key, err)
	}
	return data, nil
}

// DeleteCapturesBefore prunes archived frames older than the cutoff day.
func (s *CaptureStore) DeleteCapturesBefore(ctx context.Context, day time.Time) error {
	cutoff := day.UTC().Format("2006-01-02")
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    "captures/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list captures: %w", obj.Err)
		}
		// Key layout: captures/<date>/<uuid>.jpg
		if len(obj.Key) < len("captures/")+len(cutoff) {
			continue
		}
		if obj.Key[len("captures/"):len("captures/")+len(cutoff)] < cutoff {
			if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("delete capture %s: %w", obj.Key, err)
			}
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *CaptureStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
