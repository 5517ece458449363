package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.ChangeTopic != "tripboard_changes" {
		t.Fatalf("unexpected topic %q", cfg.ChangeTopic)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("unexpected poll interval %v", cfg.OutboxPollInterval)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("OUTBOX_BATCH_SIZE", "50")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("JWT_ISSUER", "test.identity")

	cfg := Load()

	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:9092" || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("unexpected batch size %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxPollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", cfg.OutboxPollInterval)
	}
	if cfg.JWTIssuer != "test.identity" {
		t.Fatalf("unexpected issuer %q", cfg.JWTIssuer)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")

	cfg := Load()

	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("expected fallback batch size, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected fallback poll interval, got %v", cfg.OutboxPollInterval)
	}
}
