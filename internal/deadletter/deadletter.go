// Package deadletter archives the body of a permanently-failed queue
// message to an S3-compatible bucket: a FIFO batch entry cut off by an
// earlier failure, or a standard-queue message that has exhausted its
// retry budget (spec.md leaves what happens to such a message
// unspecified; this is not excluded by any Non-goal).
package deadletter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
)

// Archive writes failed message bodies to a bucket, one object per
// message keyed by queue name and message ID.
type Archive struct {
	Client *minio.Client
	Bucket string
}

// NewArchive wraps an already-connected client.
func NewArchive(client *minio.Client, bucket string) *Archive {
	return &Archive{Client: client, Bucket: bucket}
}

// EnsureBucket creates the bucket if it does not already exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.Client.BucketExists(ctx, a.Bucket)
	if err != nil {
		return fmt.Errorf("deadletter: checking bucket %s: %w", a.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.Client.MakeBucket(ctx, a.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("deadletter: creating bucket %s: %w", a.Bucket, err)
	}
	return nil
}

// Put archives body under "<queueName>/<messageID>", annotating it with
// the failure reason and the time it was archived.
func (a *Archive) Put(ctx context.Context, queueName, messageID string, body []byte, reason error) error {
	key := objectKey(queueName, messageID)
	meta := map[string]string{
		"X-Amz-Meta-Reason":      reason.Error(),
		"X-Amz-Meta-Archived-At": time.Now().UTC().Format(time.RFC3339),
	}
	_, err := a.Client.PutObject(ctx, a.Bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("deadletter: archiving %s: %w", key, err)
	}
	return nil
}

// Get retrieves a previously archived message body, for manual replay
// tooling.
func (a *Archive) Get(ctx context.Context, queueName, messageID string) ([]byte, error) {
	key := objectKey(queueName, messageID)
	obj, err := a.Client.GetObject(ctx, a.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("deadletter: fetching %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("deadletter: reading %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func objectKey(queueName, messageID string) string {
	return queueName + "/" + messageID
}
