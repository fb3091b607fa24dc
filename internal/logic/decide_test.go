package logic

import (
	"testing"
	"time"
)

var testLevels = Levels{Initial: 30, Mid: 10, Final: -20}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 1, day, hour, minute, 0, 0, time.UTC)
}

func evaluate(t *testing.T, now time.Time, status HeatingStatus) Decision {
	t.Helper()
	_, d, err := Evaluate("22:00", "06:00", testLevels, status, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return d
}

func TestDecidePreHeatingScenario(t *testing.T) {
	d := evaluate(t, at(1, 21, 5), DefaultStatus)
	if d.Stage != StagePreHeating {
		t.Errorf("stage: got %q, want %q", d.Stage, StagePreHeating)
	}
	if d.Command != SetLevel(testLevels.Initial) {
		t.Errorf("command: got %v, want level=%d", d.Command, testLevels.Initial)
	}
}

func TestDecideTurnOffAfterWake(t *testing.T) {
	d := evaluate(t, at(2, 6, 20), HeatingStatus{IsHeating: true, Level: -20})
	if d.Command != TurnOff() {
		t.Errorf("command: got %v, want off", d.Command)
	}
	if d.Stage != StageNone {
		t.Errorf("stage: got %q, want none", d.Stage)
	}
}

func TestDecideAfterWakeNotHeatingLeavesUnchanged(t *testing.T) {
	d := evaluate(t, at(2, 6, 20), DefaultStatus)
	if !d.Command.IsUnchanged() {
		t.Errorf("command: got %v, want unchanged", d.Command)
	}
}

func TestDecideMidStageAfterBoundary(t *testing.T) {
	d := evaluate(t, at(1, 23, 5), DefaultStatus)
	if d.Stage != StageMid {
		t.Errorf("stage: got %q, want %q", d.Stage, StageMid)
	}
	if d.Command != SetLevel(testLevels.Mid) {
		t.Errorf("command: got %v, want level=%d", d.Command, testLevels.Mid)
	}
}

// Approaching a boundary still belongs to the stage before it. 55 minutes after
// bed time is inside both the bed and the mid window; the first rule wins, so
// this pins initial rather than mid.
func TestDecideApproachingMidHoldsInitial(t *testing.T) {
	d := evaluate(t, at(1, 22, 55), DefaultStatus)
	if d.Stage != StageInitial {
		t.Errorf("stage: got %q, want %q", d.Stage, StageInitial)
	}
	if d.Command != SetLevel(testLevels.Initial) {
		t.Errorf("command: got %v, want level=%d", d.Command, testLevels.Initial)
	}
}

func TestDecideTable(t *testing.T) {
	heating := HeatingStatus{IsHeating: true, Level: 10}
	tests := []struct {
		name      string
		now       time.Time
		status    HeatingStatus
		wantStage Stage
		wantCmd   Command
	}{
		{"window opens before pre-heat", at(1, 20, 45), DefaultStatus, StagePreHeating, SetLevel(30)},
		{"just before pre-heat window", at(1, 20, 44), DefaultStatus, StageNone, LeaveUnchanged()},
		{"approaching bed", at(1, 21, 50), DefaultStatus, StagePreHeating, SetLevel(30)},
		{"exactly bed time", at(1, 22, 0), DefaultStatus, StageInitial, SetLevel(30)},
		{"after bed", at(1, 22, 15), DefaultStatus, StageInitial, SetLevel(30)},
		{"between bed and mid windows", at(1, 22, 30), heating, StageNone, LeaveUnchanged()},
		{"middle of the night heating", at(2, 1, 0), heating, StageNone, LeaveUnchanged()},
		{"middle of the night off", at(2, 1, 0), DefaultStatus, StageNone, LeaveUnchanged()},
		{"approaching final", at(2, 3, 50), DefaultStatus, StageMid, SetLevel(10)},
		{"after final", at(2, 4, 5), DefaultStatus, StageFinal, SetLevel(-20)},
		{"approaching wake", at(2, 5, 50), DefaultStatus, StageFinal, SetLevel(-20)},
		{"wake window closes", at(2, 6, 15), heating, StageFinal, SetLevel(-20)},
		{"just past wake window heating", at(2, 6, 16), heating, StageNone, TurnOff()},
		{"midday heating", at(2, 12, 0), heating, StageNone, TurnOff()},
		{"midday off", at(2, 12, 0), DefaultStatus, StageNone, LeaveUnchanged()},
		{"evening before pre-heat heating", at(1, 19, 0), heating, StageNone, LeaveUnchanged()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := evaluate(t, tt.now, tt.status)
			if d.Stage != tt.wantStage {
				t.Errorf("stage: got %q, want %q", d.Stage, tt.wantStage)
			}
			if d.Command != tt.wantCmd {
				t.Errorf("command: got %v, want %v", d.Command, tt.wantCmd)
			}
		})
	}
}

func TestDecideOverlappingWindowsPreferEarlierStage(t *testing.T) {
	c := Cycle{
		PreHeat: at(1, 21, 0),
		Bed:     at(1, 22, 0),
		Mid:     at(1, 22, 20),
		Final:   at(2, 4, 0),
		Wake:    at(2, 6, 0),
	}
	d := Decide(c, testLevels, DefaultStatus, at(1, 22, 10))
	if d.Stage != StageInitial {
		t.Errorf("stage: got %q, want %q", d.Stage, StageInitial)
	}

	d = Decide(c, testLevels, DefaultStatus, at(1, 22, 15))
	if d.Stage != StageInitial {
		t.Errorf("bed window still open: got %q, want %q", d.Stage, StageInitial)
	}

	d = Decide(c, testLevels, DefaultStatus, at(1, 22, 35))
	if d.Stage != StageMid {
		t.Errorf("stage: got %q, want %q", d.Stage, StageMid)
	}
}

func TestDecideDeterministic(t *testing.T) {
	c, err := BuildCycle("22:00", "06:00", at(1, 12, 0))
	if err != nil {
		t.Fatal(err)
	}
	status := HeatingStatus{IsHeating: true, Level: 5}
	for step := 0; step < 48*4; step++ {
		now := at(1, 0, 0).Add(time.Duration(step) * 15 * time.Minute)
		anchored := c.Anchor(now)
		first := Decide(anchored, testLevels, status, now)
		second := Decide(anchored, testLevels, status, now)
		if first != second {
			t.Fatalf("now=%v: %+v != %+v", now, first, second)
		}
	}
}

func TestEvaluateRejectsBadLevels(t *testing.T) {
	_, _, err := Evaluate("22:00", "06:00", Levels{Initial: 500}, DefaultStatus, at(1, 21, 0))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{SetLevel(5), "level=5"},
		{SetLevel(-40), "level=-40"},
		{TurnOff(), "off"},
		{LeaveUnchanged(), "unchanged"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
