package di

import (
	"testing"

	"NKDash/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
environment: test
telemetry:
  websocket_url: ws://127.0.0.1:1/ws
metrics:
  enabled: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func TestOptionalSinksDisabled(t *testing.T) {
	cfg := testConfig(t)

	producer, err := ProvideKafkaProducer(cfg)
	if err != nil || producer != nil {
		t.Fatalf("expected no producer, got %v %v", producer, err)
	}
	mirror, err := ProvideSnapshotMirror(cfg)
	if err != nil || mirror != nil {
		t.Fatalf("expected no mirror, got %v %v", mirror, err)
	}
	if pub := ProvideEventPublisher(nil, cfg); pub != nil {
		t.Fatalf("expected no publisher")
	}

	l, err := ProvideLogger(cfg, nil)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	pipe := ProvideEventPipeline(cfg, nil, nil, nil, l)
	if pipe.Enabled() {
		t.Fatalf("pipeline enabled without sinks")
	}
}

func TestConnectionManagerStartsDisconnected(t *testing.T) {
	cfg := testConfig(t)
	l, err := ProvideLogger(cfg, nil)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	mgr := ProvideConnectionManager(cfg, ProvideDialer(cfg), ProvideEventLog(cfg), nil, l)
	if got := mgr.CurrentStatus(); got != "DISCONNECTED" {
		t.Fatalf("initial status %s", got)
	}
	if mgr.LatestSnapshot() != nil {
		t.Fatalf("snapshot present before any frame")
	}
}
