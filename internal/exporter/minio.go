package exporter

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures a MinioUploader.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioUploader uploads exports to an S3-compatible bucket.
type MinioUploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioUploader creates the client. No request is made until the first
// upload.
func NewMinioUploader(cfg MinioConfig) (*MinioUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("exporter: upload bucket is empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("exporter: creating minio client: %w", err)
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (u *MinioUploader) key(name string) string {
	return path.Join(u.prefix, name)
}

// Upload streams r into the bucket and returns an s3:// URL.
func (u *MinioUploader) Upload(ctx context.Context, r io.Reader, size int64, objectName string) (string, error) {
	key := u.key(objectName)
	_, err := u.client.PutObject(ctx, u.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("putting %s/%s: %w", u.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
