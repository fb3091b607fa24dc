// Package status provides a thread-safe status tracker for the bed-scheduler daemon.
// It is read by HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/bed-scheduler/internal/runner"
)

// Config contains daemon configuration for display.
type Config struct {
	TickInterval time.Duration
	Broker       string
	HTTPAddr     string
	StoreBackend string
	Workers      int
}

// Side is the last decision taken for one side of a profile.
type Side struct {
	Role    string
	Side    string
	Stage   string
	Command string
	Reason  string
}

// ProfileState is the last known outcome for one profile.
type ProfileState struct {
	Owner  string
	RunID  string
	At     time.Time
	DryRun bool
	Wrote  bool
	Sides  []Side
	Error  string
}

// Counts are cumulative since start.
type Counts struct {
	Runs        int
	AbortedRuns int
	Writes      int
	Failures    int
}

// LastRun describes the most recent run.
type LastRun struct {
	ID       string
	At       time.Time
	DryRun   bool
	Duration time.Duration
	Error    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	LastRun       *LastRun
	Profiles      []ProfileState
	Counts        Counts
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	profiles map[string]ProfileState
	now      func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		profiles: make(map[string]ProfileState),
		now:      time.Now,
	}
}

// RecordRun folds a run report into the tracker. err is the run-level
// error, if any.
func (t *Tracker) RecordRun(rep runner.Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := &LastRun{ID: rep.RunID, At: rep.Now, DryRun: rep.DryRun, Duration: rep.Duration}
	t.snap.LastRun = last
	t.snap.Counts.Runs++
	if err != nil {
		last.Error = err.Error()
		t.snap.Counts.AbortedRuns++
		return
	}

	t.snap.Counts.Writes += rep.Writes()
	t.snap.Counts.Failures += rep.Failures()
	for _, ps := range ReportStates(rep) {
		t.profiles[ps.Owner] = ps
	}
}

// ReportStates converts the results of a run into profile states.
func ReportStates(rep runner.Report) []ProfileState {
	out := make([]ProfileState, 0, len(rep.Results))
	for _, res := range rep.Results {
		ps := ProfileState{
			Owner:  res.Owner,
			RunID:  rep.RunID,
			At:     rep.Now,
			DryRun: rep.DryRun,
			Wrote:  res.Wrote,
		}
		for _, s := range res.Sides {
			ps.Sides = append(ps.Sides, Side{
				Role:    string(s.Role),
				Side:    string(s.Side),
				Stage:   string(s.Stage),
				Command: s.Command.String(),
				Reason:  s.Reason,
			})
		}
		if res.Err != nil {
			ps.Error = res.Err.Error()
		}
		out = append(out, ps)
	}
	return out
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state. Profiles are
// sorted by owner. The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastRun != nil {
		last := *s.LastRun
		s.LastRun = &last
	}
	s.Profiles = make([]ProfileState, 0, len(t.profiles))
	for _, p := range t.profiles {
		p.Sides = append([]Side(nil), p.Sides...)
		s.Profiles = append(s.Profiles, p)
	}
	t.mu.RUnlock()

	sort.Slice(s.Profiles, func(i, j int) bool { return s.Profiles[i].Owner < s.Profiles[j].Owner })
	s.Now = t.now()
	return s
}
