package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretClient struct {
	values map[string]string
	err    error
	calls  int
}

func (s *stubSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretClient) Close() error { return nil }

func newTestFetcher(t *testing.T, client secretManagerClient, fallback string) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(context.Background(),
		WithClient(client),
		WithProject("demo-project"),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return fetcher
}

func TestResolveFromSecretManager(t *testing.T) {
	t.Parallel()

	client := &stubSecretClient{values: map[string]string{
		"projects/demo-project/secrets/payment-webhook/versions/latest": "hunter2",
	}}
	fetcher := newTestFetcher(t, client, "")

	value, err := fetcher.Resolve(context.Background(), "secret://payment-webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "hunter2" {
		t.Fatalf("unexpected value %q", value)
	}

	// Second resolve must hit the cache.
	if _, err := fetcher.Resolve(context.Background(), "secret://payment-webhook"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls)
	}
}

func TestResolveVersionAndProjectOverrides(t *testing.T) {
	t.Parallel()

	client := &stubSecretClient{values: map[string]string{
		"projects/other/secrets/signing-key/versions/3": "v3-value",
	}}
	fetcher := newTestFetcher(t, client, "")

	value, err := fetcher.Resolve(context.Background(), "secret://signing-key?version=3&project=other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v3-value" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveFallsBackOnPermissionDenied(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("# local secrets\npayment-webhook=local-value\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := &stubSecretClient{err: status.Error(codes.PermissionDenied, "denied")}
	fetcher := newTestFetcher(t, client, path)

	value, err := fetcher.Resolve(context.Background(), "secret://payment-webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "local-value" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestResolveRejectsBadReferences(t *testing.T) {
	t.Parallel()

	fetcher := newTestFetcher(t, &stubSecretClient{}, "")

	for _, ref := range []string{"", "http://nope", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func TestResolveSurfacesHardErrors(t *testing.T) {
	t.Parallel()

	client := &stubSecretClient{err: status.Error(codes.InvalidArgument, "bad request")}
	fetcher := newTestFetcher(t, client, "")

	_, err := fetcher.Resolve(context.Background(), "secret://payment-webhook")
	if err == nil || !strings.Contains(err.Error(), "fetch payment-webhook") {
		t.Fatalf("expected fetch error, got %v", err)
	}
}
