package flow

import (
	"testing"
	"time"
)

func TestCycleAct(t *testing.T) {
	t.Parallel()

	state := NewState("@me")

	state.CycleAct("kissing")
	if state.Acts["kissing"] != ActYes {
		t.Fatalf("first cycle = %q, want %q", state.Acts["kissing"], ActYes)
	}
	state.CycleAct("kissing")
	if state.Acts["kissing"] != ActNo {
		t.Fatalf("second cycle = %q, want %q", state.Acts["kissing"], ActNo)
	}
	state.CycleAct("kissing")
	if _, ok := state.Acts["kissing"]; ok {
		t.Fatal("third cycle should return the act to unselected")
	}
}

func TestJurisdictionKindsAreMutuallyExclusive(t *testing.T) {
	t.Parallel()

	state := NewState("@me")
	state.SetUniversity("u1", "Example University")
	state.SetStateJurisdiction("CA", "California")

	if state.Jurisdiction.UniversityID != "" {
		t.Fatalf("university survived a state choice: %q", state.Jurisdiction.UniversityID)
	}
	if state.Jurisdiction.StateCode != "CA" {
		t.Fatalf("StateCode = %q, want CA", state.Jurisdiction.StateCode)
	}
}

func TestSetSelectionModeKeepsValues(t *testing.T) {
	t.Parallel()

	state := NewState("@me")
	state.SetUniversity("u1", "Example University")
	state.SetSelectionMode(SelectionModeState)

	if state.Jurisdiction.Mode != SelectionModeState {
		t.Fatalf("Mode = %q, want %q", state.Jurisdiction.Mode, SelectionModeState)
	}
	if state.Jurisdiction.UniversityID != "u1" {
		t.Fatal("mode toggle must not clear the recorded university")
	}
}

func TestEndTimeDerivedFromSchedule(t *testing.T) {
	t.Parallel()

	state := NewState("@me")
	if state.EndTime() != nil {
		t.Fatal("end time must be nil without a schedule")
	}

	start := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	state.StartTime = &start
	state.DurationMinutes = 90

	end := state.EndTime()
	if end == nil {
		t.Fatal("end time is nil with a full schedule")
	}
	want := start.Add(90 * time.Minute)
	if !end.Equal(want) {
		t.Fatalf("EndTime() = %v, want %v", end, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	state := NewState("@me")
	state.Parties = []string{"@me", "@alice"}
	state.Acts = map[string]ActChoice{"kissing": ActYes}
	state.StartTime = &start
	state.MethodPayload = map[string]string{"photo_url": "u"}

	clone := state.Clone()
	clone.Parties[1] = "@bob"
	clone.Acts["kissing"] = ActNo
	*clone.StartTime = start.Add(time.Hour)
	clone.MethodPayload["photo_url"] = "v"

	if state.Parties[1] != "@alice" {
		t.Fatal("clone shares the parties slice")
	}
	if state.Acts["kissing"] != ActYes {
		t.Fatal("clone shares the acts map")
	}
	if !state.StartTime.Equal(start) {
		t.Fatal("clone shares the start time pointer")
	}
	if state.MethodPayload["photo_url"] != "u" {
		t.Fatal("clone shares the method payload map")
	}
}
