package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

var errNoBucket = errors.New("storage: bucket is required")

// objectWriter opens a writer for a new object. Implementations must refuse to overwrite.
type objectWriter interface {
	NewWriter(ctx context.Context, object string, metadata map[string]string) io.WriteCloser
}

type bucketWriter struct {
	bucket *storage.BucketHandle
}

func (b bucketWriter) NewWriter(ctx context.Context, object string, metadata map[string]string) io.WriteCloser {
	w := b.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = metadata
	return w
}

// CallbackArchive writes rejected or unmatched gateway callbacks to Cloud Storage.
type CallbackArchive struct {
	writer objectWriter
	now    func() time.Time
	newID  func() string
}

// ArchiveOption customises a CallbackArchive.
type ArchiveOption func(*CallbackArchive)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ArchiveOption {
	return func(a *CallbackArchive) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithIDGenerator overrides the object id source (defaults to ULIDs).
func WithIDGenerator(gen func() string) ArchiveOption {
	return func(a *CallbackArchive) {
		if gen != nil {
			a.newID = gen
		}
	}
}

// NewCallbackArchive archives into bucket using client.
func NewCallbackArchive(client *storage.Client, bucket string, opts ...ArchiveOption) (*CallbackArchive, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errNoBucket
	}
	return newCallbackArchive(bucketWriter{bucket: client.Bucket(bucket)}, opts...), nil
}

func newCallbackArchive(writer objectWriter, opts ...ArchiveOption) *CallbackArchive {
	archive := &CallbackArchive{
		writer: writer,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archive)
		}
	}
	return archive
}

// Archive stores body verbatim and returns the object name.
func (a *CallbackArchive) Archive(ctx context.Context, reason string, body []byte) (string, error) {
	receivedAt := a.now().UTC()
	object, err := BuildCallbackPath(CallbackPathParams{ReceivedAt: receivedAt, Reason: reason, ID: a.newID()})
	if err != nil {
		return "", err
	}

	w := a.writer.NewWriter(ctx, object, map[string]string{
		"reason":     strings.ToLower(strings.TrimSpace(reason)),
		"receivedAt": receivedAt.Format(time.RFC3339Nano),
	})
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return object, nil
}
