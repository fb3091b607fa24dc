package logic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage boundary offsets.
const (
	// PreHeatLead is how long before bed time the pad starts preparing.
	PreHeatLead = time.Hour
	// MidStageOffset is the time after bed time at which the mid stage begins.
	// Earlier schedules used two hours; one hour is canonical.
	MidStageOffset = time.Hour
	// FinalStageLead is how long before wake time the final stage begins.
	FinalStageLead = 2 * time.Hour
	// MinSleepDuration is the shortest schedule accepted. It keeps the mid and
	// final boundaries strictly between bed and wake.
	MinSleepDuration = 4 * time.Hour
	// AnchorHorizon bounds how far ahead of now an anchored boundary may sit.
	AnchorHorizon = 12 * time.Hour
)

// Level bounds on the device scale.
const (
	MinLevel = -100
	MaxLevel = 100
)

// ValidationError reports a schedule that cannot be evaluated.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant on ref's calendar day, in ref's location, at c.
func (c Clock) On(ref time.Time) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, ref.Location())
}

// ParseClock parses "HH:MM", "HH:MM:SS" or "HH:MM:SS.ffffff".
// Seconds and fractions are accepted but ignored.
func ParseClock(field, s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, &ValidationError{Field: field, Value: s, Msg: "want HH:MM"}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, &ValidationError{Field: field, Value: s, Msg: "hour out of range"}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, &ValidationError{Field: field, Value: s, Msg: "minute out of range"}
	}
	if len(parts) == 3 {
		sec, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || sec < 0 || sec >= 60 {
			return Clock{}, &ValidationError{Field: field, Value: s, Msg: "second out of range"}
		}
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ValidateLevels checks every stage level is on the device scale.
func ValidateLevels(l Levels) error {
	for _, f := range []struct {
		name string
		v    int
	}{{"initial level", l.Initial}, {"mid level", l.Mid}, {"final level", l.Final}} {
		if f.v < MinLevel || f.v > MaxLevel {
			return &ValidationError{
				Field: f.name,
				Value: strconv.Itoa(f.v),
				Msg:   fmt.Sprintf("must be within [%d, %d]", MinLevel, MaxLevel),
			}
		}
	}
	return nil
}

// SleepDuration returns the time between bed and wake, wrapping past midnight.
func SleepDuration(bed, wake Clock) time.Duration {
	b := time.Duration(bed.Hour)*time.Hour + time.Duration(bed.Minute)*time.Minute
	w := time.Duration(wake.Hour)*time.Hour + time.Duration(wake.Minute)*time.Minute
	if w <= b {
		w += 24 * time.Hour
	}
	return w - b
}

// ValidateSchedule parses both clock strings and rejects schedules shorter
// than MinSleepDuration.
func ValidateSchedule(bedTime, wakeTime string) (Clock, Clock, error) {
	bed, err := ParseClock("bed time", bedTime)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	wake, err := ParseClock("wake time", wakeTime)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	if d := SleepDuration(bed, wake); d < MinSleepDuration {
		return Clock{}, Clock{}, &ValidationError{
			Field: "schedule",
			Value: bed.String() + "-" + wake.String(),
			Msg:   fmt.Sprintf("sleep duration %v is shorter than %v", d, MinSleepDuration),
		}
	}
	return bed, wake, nil
}

// BuildCycle computes the five stage boundaries for the schedule on ref's
// calendar day. Wake is moved to the next day when it does not follow bed.
func BuildCycle(bedTime, wakeTime string, ref time.Time) (Cycle, error) {
	bedClock, wakeClock, err := ValidateSchedule(bedTime, wakeTime)
	if err != nil {
		return Cycle{}, err
	}

	bed := bedClock.On(ref)
	wake := wakeClock.On(ref)
	if !wake.After(bed) {
		wake = wake.AddDate(0, 0, 1)
	}

	return Cycle{
		PreHeat: bed.Add(-PreHeatLead),
		Bed:     bed,
		Mid:     bed.Add(MidStageOffset),
		Final:   wake.Add(-FinalStageLead),
		Wake:    wake,
	}, nil
}

// AnchorToNow moves instant onto the cycle that contains now. An instant
// before cycleStart belongs to the next calendar day; an instant more than
// AnchorHorizon ahead of now belongs to the previous one. Applying it to an
// already anchored instant returns the instant unchanged.
func AnchorToNow(cycleStart, now, instant time.Time) time.Time {
	t := instant
	if t.Before(cycleStart) {
		t = t.AddDate(0, 0, 1)
	}
	for t.Sub(now) > AnchorHorizon {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// Anchor applies AnchorToNow to every boundary, using PreHeat as the cycle start.
func (c Cycle) Anchor(now time.Time) Cycle {
	start := c.PreHeat
	return Cycle{
		PreHeat: AnchorToNow(start, now, c.PreHeat),
		Bed:     AnchorToNow(start, now, c.Bed),
		Mid:     AnchorToNow(start, now, c.Mid),
		Final:   AnchorToNow(start, now, c.Final),
		Wake:    AnchorToNow(start, now, c.Wake),
	}
}
