package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/AndyChoi4495/fragments/internal/retry"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.endpoint, tt.ssl); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.endpoint, tt.ssl, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	if err := classify(ctx, &types.NoSuchKey{}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("NoSuchKey: %v", err)
	}
	if err := classify(ctx, &types.NotFound{}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("NotFound: %v", err)
	}

	clientErr := &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}
	if retry.IsRetryable(classify(ctx, clientErr)) {
		t.Error("client faults must not be retried")
	}
	serverErr := &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}
	if !retry.IsRetryable(classify(ctx, serverErr)) {
		t.Error("server faults should be retried")
	}
	if !retry.IsRetryable(classify(ctx, errors.New("connection reset"))) {
		t.Error("transport errors should be retried")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if retry.IsRetryable(classify(cancelled, errors.New("connection reset"))) {
		t.Error("errors after cancellation must not be retried")
	}
}

// TestS3RoundTrip runs against a real S3-compatible endpoint such as MinIO.
func TestS3RoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}

	ctx := context.Background()
	b, err := New(ctx, Config{
		Endpoint:  endpoint,
		Bucket:    "fragments-test",
		AccessKey: os.Getenv("TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_S3_SECRET_KEY"),
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := "owner/round-trip"
	payload := []byte("hello from s3")
	if err := b.PutObject(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	rc, size, err := b.GetObject(ctx, key)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, payload) || size != int64(len(payload)) {
		t.Errorf("got %q (size %d)", got, size)
	}

	if err := b.DeleteObject(ctx, key); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if ok, err := b.ObjectExists(ctx, key); err != nil || ok {
		t.Errorf("ObjectExists after delete = %v, %v", ok, err)
	}
	if _, _, err := b.GetObject(ctx, key); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("GetObject after delete: %v", err)
	}
}
