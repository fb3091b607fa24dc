package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleTick() TickEvent {
	return TickEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		RunID:     "run-1",
		Owner:     "alice",
		Wrote:     true,
		Sides: []SideEvent{
			{Role: "primary", Side: "right", Stage: "initial", Command: "level=30", Reason: "in bed"},
			{Role: "partner", Side: "left", Command: "unchanged", Reason: "holding off"},
		},
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(sampleTick())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Tick.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Tick.Timestamp)
	}
	if parsed.Tick.RunID != "run-1" {
		t.Errorf("unexpected run id: %s", parsed.Tick.RunID)
	}
	if parsed.Tick.Owner != "alice" {
		t.Errorf("unexpected owner: %s", parsed.Tick.Owner)
	}
	if !parsed.Tick.Wrote || parsed.Tick.DryRun {
		t.Errorf("unexpected flags: wrote=%v dry_run=%v", parsed.Tick.Wrote, parsed.Tick.DryRun)
	}
	if len(parsed.Tick.Sides) != 2 {
		t.Fatalf("expected 2 sides, got %d", len(parsed.Tick.Sides))
	}
	if parsed.Tick.Sides[0].Command != "level=30" || parsed.Tick.Sides[0].Stage != "initial" {
		t.Errorf("unexpected primary side: %+v", parsed.Tick.Sides[0])
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := TickEvent{
		Timestamp: time.Date(2026, 2, 2, 21, 5, 0, 0, time.UTC),
		RunID:     "r",
		Owner:     "bob",
		DryRun:    true,
		Sides:     []SideEvent{{Role: "primary", Side: "right", Stage: "pre-heating", Command: "level=30", Heating: true, Level: 20}},
	}
	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"tick":{"timestamp":"2026-02-02T21:05:00Z","run_id":"r","owner":"bob","dry_run":true,"wrote":false,` +
		`"sides":[{"role":"primary","side":"right","stage":"pre-heating","command":"level=30","heating":true,"level":20}]}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadFailure(t *testing.T) {
	payload, err := FormatPayload(TickEvent{Timestamp: time.Unix(0, 0), Owner: "carol", Error: "device set sides: status 502"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Tick.Error != "device set sides: status 502" {
		t.Errorf("unexpected error field: %q", parsed.Tick.Error)
	}
	if parsed.Tick.Sides == nil {
		t.Error("sides should encode as an empty array, not null")
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	event := sampleTick()
	event.Timestamp = time.Date(2026, 2, 2, 17, 18, 12, 0, loc)

	payload, _ := FormatPayload(event)
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Tick.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Tick.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "home/bed/scheduler/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "home/bed/scheduler/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Unix(0, 0), Event: "RECONNECTED"})
	expected := `{"system":{"timestamp":"1970-01-01T00:00:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()
	if err := pub.Publish(sampleTick()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pub.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.Events) != 1 || pub.Events[0].Owner != "alice" {
		t.Errorf("unexpected events: %+v", pub.Events)
	}
	if len(pub.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(pub.Payloads))
	}
	if len(pub.SystemEvents) != 1 || !pub.SystemEvents[0].Retained {
		t.Errorf("unexpected system events: %+v", pub.SystemEvents)
	}
	if got := pub.EventsSnapshot(); len(got) != 1 {
		t.Errorf("snapshot: expected 1 event, got %d", len(got))
	}
}

func TestFakePublisherErrors(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	pub.PublishSystemError = errors.New("broker down")

	if err := pub.Publish(sampleTick()); err == nil {
		t.Error("expected publish error")
	}
	if err := pub.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected publish system error")
	}
	if len(pub.Events) != 0 || len(pub.SystemEvents) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true
	_ = pub.Publish(sampleTick())
	_ = pub.Close()
	if !pub.Closed {
		t.Error("expected Closed after Close()")
	}
	if !pub.IsConnected() {
		t.Error("expected IsConnected to follow Connected")
	}

	pub.Reset()
	if pub.Closed || pub.Connected || len(pub.Events) != 0 || len(pub.Payloads) != 0 {
		t.Errorf("reset did not clear state: %+v", pub)
	}
}
