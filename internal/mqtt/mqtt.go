// Package mqtt publishes scheduler events with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic carries one event per profile per run.
const Topic = "home/bed/scheduler/events"

// TopicSystem carries lifecycle events.
const TopicSystem = "home/bed/scheduler/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a profile tick event. Failures must not stop a run.
	Publish(event TickEvent) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SideEvent is the decision taken for one side of the bed.
type SideEvent struct {
	Role    string `json:"role"`
	Side    string `json:"side"`
	Stage   string `json:"stage,omitempty"`
	Command string `json:"command"`
	Reason  string `json:"reason,omitempty"`
	Heating bool   `json:"heating"`
	Level   int    `json:"level"`
}

// TickEvent is the outcome of one profile in one run.
type TickEvent struct {
	Timestamp time.Time
	RunID     string
	Owner     string
	DryRun    bool
	Wrote     bool
	Sides     []SideEvent
	Error     string
}

// Payload is the JSON envelope for a tick event.
type Payload struct {
	Tick TickPayload `json:"tick"`
}

// TickPayload contains the tick event details.
type TickPayload struct {
	Timestamp string      `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Owner     string      `json:"owner"`
	DryRun    bool        `json:"dry_run"`
	Wrote     bool        `json:"wrote"`
	Sides     []SideEvent `json:"sides"`
	Error     string      `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a tick event.
func FormatPayload(event TickEvent) ([]byte, error) {
	sides := event.Sides
	if sides == nil {
		sides = []SideEvent{}
	}
	return json.Marshal(Payload{
		Tick: TickPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			RunID:     event.RunID,
			Owner:     event.Owner,
			DryRun:    event.DryRun,
			Wrote:     event.Wrote,
			Sides:     sides,
			Error:     event.Error,
		},
	})
}

// SystemEvent is a lifecycle event (STARTUP, SHUTDOWN, RECONNECTED).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name, shutdown only
	RawPayload []byte // if set, FormatSystemPayload returns it directly
	Retained   bool
}

// SystemPayload is the JSON envelope for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
