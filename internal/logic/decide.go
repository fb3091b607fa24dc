package logic

import (
	"fmt"
	"time"
)

// Tolerance is the half-width of the window around each boundary inside
// which now counts as coincident with it.
const Tolerance = 15 * time.Minute

func near(now, boundary time.Time) bool {
	d := now.Sub(boundary)
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}

// Decide returns the command for one side given an anchored cycle, the side's
// configured levels, its live status, and now. Level changes are only emitted
// inside the windows around a boundary; between windows the side is left as is,
// except that a heating side is turned off once wake time has passed.
//
// The first matching rule wins, so overlapping windows resolve to the earlier stage.
func Decide(c Cycle, levels Levels, status HeatingStatus, now time.Time) Decision {
	nearPre := near(now, c.PreHeat)
	nearBed := near(now, c.Bed)
	nearMid := near(now, c.Mid)
	nearFinal := near(now, c.Final)
	nearWake := near(now, c.Wake)

	switch {
	case nearPre || (nearBed && now.Before(c.Bed)):
		return Decision{Command: SetLevel(levels.Initial), Stage: StagePreHeating, Reason: "approaching bed time"}
	case nearBed || (nearMid && now.Before(c.Mid)):
		return Decision{Command: SetLevel(levels.Initial), Stage: StageInitial, Reason: "in bed"}
	case nearMid || (nearFinal && now.Before(c.Final)):
		return Decision{Command: SetLevel(levels.Mid), Stage: StageMid, Reason: "mid stage"}
	case nearFinal || nearWake:
		return Decision{Command: SetLevel(levels.Final), Stage: StageFinal, Reason: "final stage"}
	case status.IsHeating && now.After(c.Wake) && !nearWake:
		return Decision{Command: TurnOff(), Reason: "past wake time"}
	}

	if status.IsHeating {
		return Decision{Command: LeaveUnchanged(), Reason: fmt.Sprintf("holding level %d", status.Level)}
	}
	return Decision{Command: LeaveUnchanged(), Reason: "holding off"}
}

// Evaluate builds the cycle for the schedule on now's calendar day, anchors it
// to now and decides. now must already be in the schedule's time zone.
func Evaluate(bedTime, wakeTime string, levels Levels, status HeatingStatus, now time.Time) (Cycle, Decision, error) {
	if err := ValidateLevels(levels); err != nil {
		return Cycle{}, Decision{}, err
	}
	cycle, err := BuildCycle(bedTime, wakeTime, now)
	if err != nil {
		return Cycle{}, Decision{}, err
	}
	anchored := cycle.Anchor(now)
	return anchored, Decide(anchored, levels, status, now), nil
}
