package export

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
)

// MinIOUploader stores bundles in a single exports bucket.
type MinIOUploader struct {
	client *minio.Client
	bucket string
}

func NewMinIOUploader(client *minio.Client, bucket string) *MinIOUploader {
	return &MinIOUploader{client: client, bucket: bucket}
}

func (u *MinIOUploader) Upload(ctx context.Context, key, contentType string, payload []byte) error {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
