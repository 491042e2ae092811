package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes objects to Cloud Storage buckets.
type Uploader struct {
	client *gcs.Client
}

// NewUploader constructs an Uploader backed by the provided Cloud Storage client.
func NewUploader(client *gcs.Client) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	return &Uploader{client: client}, nil
}

// UploadObject writes data to the given bucket/object, replacing any existing content.
func (u *Uploader) UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if u == nil || u.client == nil {
		return errors.New("storage uploader: client is not initialised")
	}

	bucketName := strings.TrimSpace(bucket)
	objectName := strings.TrimSpace(object)
	if bucketName == "" || objectName == "" {
		return errors.New("storage uploader: bucket and object must be provided")
	}

	writer := u.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		writer.ContentType = ct
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage uploader: write %s/%s: %w", bucketName, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage uploader: finalize %s/%s: %w", bucketName, objectName, err)
	}
	return nil
}
