package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"benchline/internal/domain"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PresignTTL > 0 returns presigned download URLs instead of public ones.
	PresignTTL time.Duration
}

type Minio struct {
	client *minio.Client
	cfg    MinioConfig
	Now    func() time.Time
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (m *Minio) Upload(ctx context.Context, prefix, category string, up domain.Upload) (domain.Attachment, error) {
	if up.Body == nil {
		return domain.Attachment{}, errors.New("upload has no body")
	}
	size := up.Size
	if size <= 0 {
		size = -1
	}
	id, name := objectName(prefix, category, up.Filename)
	info, err := m.client.PutObject(ctx, m.cfg.Bucket, name, up.Body, size, minio.PutObjectOptions{
		ContentType: up.ContentType,
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to upload file: %w", err)
	}
	url := m.PublicURL(name)
	if m.cfg.PresignTTL > 0 {
		signed, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, name, m.cfg.PresignTTL, nil)
		if err != nil {
			return domain.Attachment{}, fmt.Errorf("failed to generate presigned URL: %w", err)
		}
		url = signed.String()
	}
	return domain.Attachment{
		ID:          id,
		Category:    category,
		URL:         url,
		Filename:    up.Filename,
		ContentType: up.ContentType,
		SizeBytes:   info.Size,
		UploadedAt:  stamp(m.Now),
	}, nil
}

func (m *Minio) Delete(ctx context.Context, att domain.Attachment) error {
	name, err := objectFromURL(m.bucketURL(), att.URL)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.cfg.Bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PublicURL returns the object URL for buckets with a public read policy.
func (m *Minio) PublicURL(objectName string) string {
	return joinURL(m.bucketURL(), objectName)
}

func (m *Minio) bucketURL() string {
	protocol := "http"
	if m.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s", protocol, m.cfg.Endpoint, m.cfg.Bucket)
}
