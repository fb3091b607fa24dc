package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastRun       *LastRunJSON  `json:"last_run,omitempty"`
	Profiles      []ProfileJSON `json:"profiles"`
	Counts        CountsJSON    `json:"counts"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// LastRunJSON is the JSON representation of the most recent run.
type LastRunJSON struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	DryRun     bool   `json:"dry_run"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// SideJSON is the JSON representation of one side decision.
type SideJSON struct {
	Role    string `json:"role"`
	Side    string `json:"side"`
	Stage   string `json:"stage,omitempty"`
	Command string `json:"command"`
	Reason  string `json:"reason,omitempty"`
}

// ProfileJSON is the JSON representation of a profile's last outcome.
type ProfileJSON struct {
	Owner     string     `json:"owner"`
	RunID     string     `json:"run_id"`
	Timestamp string     `json:"timestamp"`
	DryRun    bool       `json:"dry_run"`
	Wrote     bool       `json:"wrote"`
	Sides     []SideJSON `json:"sides"`
	Error     string     `json:"error,omitempty"`
}

// CountsJSON is the JSON representation of cumulative counters.
type CountsJSON struct {
	Runs        int `json:"runs"`
	AbortedRuns int `json:"aborted_runs"`
	Writes      int `json:"writes"`
	Failures    int `json:"failures"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickIntervalMs int64  `json:"tick_interval_ms"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
	StoreBackend   string `json:"store_backend"`
	Workers        int    `json:"workers"`
}

// ProfilesJSON converts profile states for JSON output.
func ProfilesJSON(states []ProfileState) []ProfileJSON {
	out := make([]ProfileJSON, 0, len(states))
	for _, p := range states {
		pj := ProfileJSON{
			Owner:     p.Owner,
			RunID:     p.RunID,
			Timestamp: p.At.UTC().Format(time.RFC3339),
			DryRun:    p.DryRun,
			Wrote:     p.Wrote,
			Sides:     make([]SideJSON, 0, len(p.Sides)),
			Error:     p.Error,
		}
		for _, s := range p.Sides {
			pj.Sides = append(pj.Sides, SideJSON(s))
		}
		out = append(out, pj)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Profiles:      ProfilesJSON(snap.Profiles),
		Counts: CountsJSON{
			Runs:        snap.Counts.Runs,
			AbortedRuns: snap.Counts.AbortedRuns,
			Writes:      snap.Counts.Writes,
			Failures:    snap.Counts.Failures,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickIntervalMs: snap.Config.TickInterval.Milliseconds(),
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			StoreBackend:   snap.Config.StoreBackend,
			Workers:        snap.Config.Workers,
		},
	}
	if snap.LastRun != nil {
		inner.LastRun = &LastRunJSON{
			ID:         snap.LastRun.ID,
			Timestamp:  snap.LastRun.At.UTC().Format(time.RFC3339),
			DryRun:     snap.LastRun.DryRun,
			DurationMs: snap.LastRun.Duration.Milliseconds(),
			Error:      snap.LastRun.Error,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
