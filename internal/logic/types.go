// Package logic contains the pure scheduling logic for the bed heating pad.
// This package has NO external dependencies (no HTTP, database, MQTT, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Stage names a segment of the sleep schedule.
type Stage string

const (
	StageNone       Stage = ""
	StagePreHeating Stage = "pre-heating"
	StageInitial    Stage = "initial"
	StageMid        Stage = "mid"
	StageFinal      Stage = "final"
)

// CommandKind is the action requested for one side of the bed.
// The zero value is KindLeaveUnchanged.
type CommandKind int

const (
	KindLeaveUnchanged CommandKind = iota
	KindSetLevel
	KindTurnOff
)

func (k CommandKind) String() string {
	switch k {
	case KindSetLevel:
		return "set_level"
	case KindTurnOff:
		return "turn_off"
	default:
		return "leave_unchanged"
	}
}

// Command is the target for a single side. Level is meaningful only when
// Kind is KindSetLevel.
type Command struct {
	Kind  CommandKind
	Level int
}

// SetLevel returns a command that heats or cools a side to level.
func SetLevel(level int) Command { return Command{Kind: KindSetLevel, Level: level} }

// TurnOff returns a command that stops heating on a side.
func TurnOff() Command { return Command{Kind: KindTurnOff} }

// LeaveUnchanged returns a command that leaves a side as it is.
func LeaveUnchanged() Command { return Command{} }

// IsUnchanged reports whether the command is a no-op.
func (c Command) IsUnchanged() bool { return c.Kind == KindLeaveUnchanged }

func (c Command) String() string {
	switch c.Kind {
	case KindSetLevel:
		return fmt.Sprintf("level=%d", c.Level)
	case KindTurnOff:
		return "off"
	default:
		return "unchanged"
	}
}

// HeatingStatus is the live heating state of one physical side.
type HeatingStatus struct {
	IsHeating bool
	Level     int
}

// DefaultStatus is used whenever the live status cannot be obtained.
var DefaultStatus = HeatingStatus{IsHeating: false, Level: 0}

// Levels holds the configured level for each stage.
type Levels struct {
	Initial int
	Mid     int
	Final   int
}

// Cycle holds the five ordered stage boundaries of one night.
type Cycle struct {
	PreHeat time.Time
	Bed     time.Time
	Mid     time.Time
	Final   time.Time
	Wake    time.Time
}

// Decision is the output of Decide for one side.
type Decision struct {
	Command Command
	Stage   Stage
	// Reason is a short human-readable explanation for logs.
	Reason string
}
