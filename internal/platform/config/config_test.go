package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIRESTORE_PROJECT_ID", "demo-project")

	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != DefaultHTTPPort {
		t.Fatalf("expected default port %d, got %d", DefaultHTTPPort, cfg.Server.Port)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr())
	}
	if cfg.Checkout.CommitTimeout != DefaultCommitTimeout {
		t.Fatalf("expected default commit timeout, got %s", cfg.Checkout.CommitTimeout)
	}
	if cfg.Firestore.ProjectID != "demo-project" {
		t.Fatalf("unexpected firestore project %q", cfg.Firestore.ProjectID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIRESTORE_PROJECT_ID", "demo-project")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CHECKOUT_COMMIT_TIMEOUT", "3s")
	t.Setenv("PUBSUB_ORDER_EVENTS_TOPIC", "order-events")

	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Checkout.CommitTimeout != 3*time.Second {
		t.Fatalf("expected 3s commit timeout, got %s", cfg.Checkout.CommitTimeout)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" {
		t.Fatalf("unexpected topic %q", cfg.PubSub.OrderEventsTopic)
	}
}

func TestLoadReportsAllInvalidFields(t *testing.T) {
	t.Setenv("FIRESTORE_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("HTTP_PORT", "-1")

	_, err := Load(context.Background(), nil)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Fields) < 2 {
		t.Fatalf("expected multiple invalid fields, got %v", verr.Fields)
	}
}

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, ref string) (string, error) {
	value, ok := r[ref]
	if !ok {
		return "", errors.New("unknown secret")
	}
	return value, nil
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	t.Setenv("FIRESTORE_PROJECT_ID", "demo-project")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "secret://payment-webhook")

	cfg, err := Load(context.Background(), staticResolver{"secret://payment-webhook": "hunter2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Webhook.PaymentSecret != "hunter2" {
		t.Fatalf("expected resolved secret, got %q", cfg.Webhook.PaymentSecret)
	}
}

func TestLoadKeepsLiteralSecretWithoutResolver(t *testing.T) {
	t.Setenv("FIRESTORE_PROJECT_ID", "demo-project")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "literal-value")

	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Webhook.PaymentSecret != "literal-value" {
		t.Fatalf("unexpected secret %q", cfg.Webhook.PaymentSecret)
	}
}
