package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/config"
	"github.com/friendsincode/verdandi/internal/events"
)

func TestNewSelectsMemoryBackend(t *testing.T) {
	cfg := &config.Config{EventBus: config.EventBusMemory}

	bus, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer bus.Close()

	if _, ok := bus.(*MemoryBus); !ok {
		t.Fatalf("New() returned %T, want *MemoryBus", bus)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{EventBus: config.EventBusBackend("kafka")}

	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("New() with unknown backend, want error")
	}
}

func TestMemoryBusRoundTrip(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	sub := bus.Subscribe(events.EventPresetCreated)
	bus.Publish(events.EventPresetCreated, events.Payload{"id": "p1"})

	select {
	case event := <-sub:
		if event.Payload["id"] != "p1" {
			t.Errorf("payload id = %v, want p1", event.Payload["id"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// Both distributed backends must keep delivering locally when their server
// is unreachable.
func TestRedisBusFallsBackWithoutServer(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"

	bus, err := NewRedisBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisBus() error = %v, want graceful fallback", err)
	}
	defer bus.Close()

	sub := bus.Subscribe(events.EventExportCompleted)
	bus.Publish(events.EventExportCompleted, events.Payload{"job_id": "j1"})

	select {
	case event := <-sub:
		if event.Payload["job_id"] != "j1" {
			t.Errorf("payload job_id = %v, want j1", event.Payload["job_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("fallback bus did not deliver locally")
	}

	bus.Unsubscribe(events.EventExportCompleted, sub)
	if _, open := <-sub; open {
		t.Error("subscriber channel still open after Unsubscribe")
	}
}

func TestNATSBusFallsBackWithoutServer(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxReconnects = 0

	bus, err := NewNATSBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewNATSBus() error = %v, want graceful fallback", err)
	}
	defer bus.Close()

	sub := bus.Subscribe(events.EventExportFailed)
	bus.Publish(events.EventExportFailed, events.Payload{"job_id": "j2"})

	select {
	case event := <-sub:
		if event.Payload["job_id"] != "j2" {
			t.Errorf("payload job_id = %v, want j2", event.Payload["job_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("fallback bus did not deliver locally")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := marshalEnvelope(events.EventPresetUpdated, events.Payload{"id": "p9"}, "node-b")
	if err != nil {
		t.Fatalf("marshalEnvelope: %v", err)
	}

	env, err := unmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshalEnvelope: %v", err)
	}

	if env.EventType != events.EventPresetUpdated {
		t.Errorf("event type = %q, want %q", env.EventType, events.EventPresetUpdated)
	}
	if env.NodeID != "node-b" {
		t.Errorf("node id = %q, want node-b", env.NodeID)
	}
	if env.Payload["id"] != "p9" {
		t.Errorf("payload id = %v, want p9", env.Payload["id"])
	}
	if env.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestChannelAndSubjectNames(t *testing.T) {
	if got := channelFor(events.EventPresetCreated); got != "verdandi:events:preset.created" {
		t.Errorf("channelFor = %q", got)
	}
	if got := subjectFor(events.EventPresetCreated); got != "verdandi.events.preset.created" {
		t.Errorf("subjectFor = %q", got)
	}
}
