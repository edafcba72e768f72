package config

import (
	"strings"
	"testing"
	"time"
)

const minimal = `
environment: dev
telemetry:
  websocket_url: ws://localhost:8000/ws
`

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Telemetry.ReconnectDelay != 3*time.Second {
		t.Fatalf("expected 3s reconnect delay, got %v", c.Telemetry.ReconnectDelay)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", c.Server.Port)
	}
	if c.EventLog.TimeFormat == "" {
		t.Fatalf("expected event log time format default")
	}
	if c.Redis.Enabled || c.Kafka.Enabled {
		t.Fatalf("sinks must be disabled by default")
	}
}

func TestParseRejectsHTTPURL(t *testing.T) {
	_, err := Parse([]byte("environment: dev\ntelemetry:\n  websocket_url: http://localhost:8000/ws\n"))
	if err == nil || !strings.Contains(err.Error(), "ws://") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}

func TestParseRequiresEnvironment(t *testing.T) {
	_, err := Parse([]byte("telemetry:\n  websocket_url: ws://x/ws\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"NKDASH_WS_URL":          "wss://core.example/ws",
		"NKDASH_RECONNECT_DELAY": "500ms",
		"NKDASH_KAFKA_BROKERS":   "a:9092,b:9092",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Telemetry.WebSocketURL != "wss://core.example/ws" {
		t.Fatalf("url not overridden: %s", c.Telemetry.WebSocketURL)
	}
	if c.Telemetry.ReconnectDelay != 500*time.Millisecond {
		t.Fatalf("delay not overridden: %v", c.Telemetry.ReconnectDelay)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka not enabled from env: %+v", c.Kafka.Brokers)
	}
}

func TestApplyEnvBadDuration(t *testing.T) {
	c, _ := Parse([]byte(minimal))
	err := c.applyEnv(func(k string) string {
		if k == "NKDASH_RECONNECT_DELAY" {
			return "soon"
		}
		return ""
	})
	if err == nil {
		t.Fatalf("expected duration error")
	}
}
