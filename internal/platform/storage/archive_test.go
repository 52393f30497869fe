package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type memoryObject struct {
	bytes.Buffer
	name     string
	metadata map[string]string
	closeErr error
	closed   bool
}

func (o *memoryObject) Close() error {
	o.closed = true
	return o.closeErr
}

type memoryWriter struct {
	objects  []*memoryObject
	closeErr error
}

func (m *memoryWriter) NewWriter(_ context.Context, object string, metadata map[string]string) io.WriteCloser {
	obj := &memoryObject{name: object, metadata: metadata, closeErr: m.closeErr}
	m.objects = append(m.objects, obj)
	return obj
}

func TestCallbackArchiveWritesBody(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 35, 0, 0, time.UTC)
	writer := &memoryWriter{}
	archive := newCallbackArchive(writer,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "01JTEST" }),
	)

	body := []byte(`{"response":"eyJ9"}`)
	object, err := archive.Archive(context.Background(), "unmatched", body)
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if object != "payment-callbacks/2025/03/01/unmatched/01JTEST.json" {
		t.Fatalf("unexpected object name %s", object)
	}
	if len(writer.objects) != 1 || !writer.objects[0].closed {
		t.Fatalf("expected one finalized object")
	}
	if got := writer.objects[0].String(); got != string(body) {
		t.Fatalf("expected body stored verbatim, got %s", got)
	}
	want := map[string]string{"reason": "unmatched", "receivedAt": "2025-03-01T09:35:00Z"}
	if diff := cmp.Diff(want, writer.objects[0].metadata); diff != "" {
		t.Fatalf("unexpected metadata (-want +got):\n%s", diff)
	}
}

func TestCallbackArchiveSurfacesFinalizeError(t *testing.T) {
	boom := errors.New("precondition failed")
	archive := newCallbackArchive(&memoryWriter{closeErr: boom})

	if _, err := archive.Archive(context.Background(), "rejected", []byte("{}")); !errors.Is(err, boom) {
		t.Fatalf("expected finalize error, got %v", err)
	}
}

func TestNewCallbackArchiveValidates(t *testing.T) {
	if _, err := NewCallbackArchive(nil, "bucket"); err == nil {
		t.Fatalf("expected error without client")
	}
}
