package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GCSUploader copies the archives produced by another Exporter to a Cloud
// Storage bucket and removes the local copy.
type GCSUploader struct {
	next   Exporter
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
	logger *zap.Logger
}

// NewGCSUploader connects to Cloud Storage. credentialsFile may be empty to
// use the ambient credentials.
func NewGCSUploader(ctx context.Context, next Exporter, bucket, prefix, credentialsFile string, logger *zap.Logger) (*GCSUploader, error) {
	if bucket == "" {
		return nil, errors.New("gcs backup: bucket not set")
	}
	opts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs backup: create client: %w", err)
	}
	return newGCSUploader(next, client, bucket, prefix, logger), nil
}

func newGCSUploader(next Exporter, client *storage.Client, bucket, prefix string, logger *zap.Logger) *GCSUploader {
	return &GCSUploader{
		next:   next,
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: prefix,
		logger: logger,
	}
}

// Export implements Exporter. It returns the gs:// URL of the archive.
func (u *GCSUploader) Export(ctx context.Context, courseID int64) (string, error) {
	local, err := u.next.Export(ctx, courseID)
	if err != nil {
		return "", err
	}

	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("gcs backup: %w", err)
	}
	defer f.Close()

	object := path.Join(u.prefix, filepath.Base(local))
	w := u.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/vnd.moodle.backup"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs backup: upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs backup: upload %s: %w", object, err)
	}

	if err := os.Remove(local); err != nil {
		u.logger.Warn("local archive not removed", zap.String("archive", local), zap.Error(err))
	}
	url := fmt.Sprintf("gs://%s/%s", u.name, object)
	u.logger.Info("course archive uploaded", zap.Int64("course_id", courseID), zap.String("url", url))
	return url, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
