// Package publish uploads committed result files to S3-compatible storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ContentType is the media type stored with uploaded results
const ContentType = "text/csv"

// ErrDisabled is returned by New when no endpoint or bucket is configured
var ErrDisabled = errors.New("publishing disabled: no endpoint or bucket configured")

// Config holds the S3 connection settings
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Enabled reports whether enough settings are present to publish
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Key returns the object key for a local file
func (c Config) Key(filePath string) string {
	return path.Join(c.Prefix, filepath.Base(filePath))
}

// Uploader publishes files to a bucket
type Uploader struct {
	cfg    Config
	client *minio.Client
}

// New creates an Uploader. It does not contact the server.
func New(cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Uploader{cfg: cfg, client: client}, nil
}

// Publish uploads the file at filePath and returns its object location as
// s3://bucket/key.
func (u *Uploader) Publish(ctx context.Context, filePath string) (string, error) {
	key := u.cfg.Key(filePath)

	_, err := u.client.FPutObject(ctx, u.cfg.Bucket, key, filePath, minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", filePath, err)
	}

	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key), nil
}
