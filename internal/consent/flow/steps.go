package flow

// Step names one wizard step. Ordinals are not fixed per step: they depend on
// the plan computed from the current encounter type, so progress indicators
// must always resolve ordinals through the current plan.
type Step int

const (
	// StepUnspecified represents an invalid step value.
	StepUnspecified Step = iota
	// StepEncounterType collects the encounter type.
	StepEncounterType
	// StepJurisdiction collects the jurisdiction; present only when the
	// encounter type requires one.
	StepJurisdiction
	// StepParties collects the participant identifiers.
	StepParties
	// StepIntimateActs collects per-act yes/no decisions.
	StepIntimateActs
	// StepDuration collects the contract start time and duration.
	StepDuration
	// StepRecordingMethod collects the finalization method.
	StepRecordingMethod
)

// Label returns the string label for a step.
func (s Step) Label() string {
	switch s {
	case StepEncounterType:
		return "encounter-type"
	case StepJurisdiction:
		return "jurisdiction"
	case StepParties:
		return "parties"
	case StepIntimateActs:
		return "intimate-acts"
	case StepDuration:
		return "duration"
	case StepRecordingMethod:
		return "recording-method"
	default:
		return "unspecified"
	}
}

// Plan is the ordered step set for one encounter type. Ordinals are
// contiguous starting at 1; omitting the jurisdiction step shifts every
// subsequent ordinal down by one.
type Plan struct {
	steps []Step
}

// ComputePlan builds the step plan for an encounter type.
func ComputePlan(requiresJurisdiction bool) Plan {
	if requiresJurisdiction {
		return Plan{steps: []Step{
			StepEncounterType,
			StepJurisdiction,
			StepParties,
			StepIntimateActs,
			StepDuration,
			StepRecordingMethod,
		}}
	}
	return Plan{steps: []Step{
		StepEncounterType,
		StepParties,
		StepIntimateActs,
		StepDuration,
		StepRecordingMethod,
	}}
}

// Total returns the number of steps in the plan.
func (p Plan) Total() int {
	return len(p.steps)
}

// Steps returns the ordered steps of the plan.
func (p Plan) Steps() []Step {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	return steps
}

// Ordinal returns the 1-based ordinal of a step within the plan.
func (p Plan) Ordinal(step Step) (int, bool) {
	for i, s := range p.steps {
		if s == step {
			return i + 1, true
		}
	}
	return 0, false
}

// StepAt returns the step at a 1-based ordinal.
func (p Plan) StepAt(ordinal int) (Step, bool) {
	if ordinal < 1 || ordinal > len(p.steps) {
		return StepUnspecified, false
	}
	return p.steps[ordinal-1], true
}

// Contains reports whether the plan includes the step.
func (p Plan) Contains(step Step) bool {
	_, ok := p.Ordinal(step)
	return ok
}

// Clamp maps a step that may no longer exist in the plan to the nearest
// valid step, so a stale pointer never leaves the wizard without a step to
// render. A missing jurisdiction step resolves to parties; anything else
// unknown resolves to the first step.
func (p Plan) Clamp(step Step) Step {
	if p.Contains(step) {
		return step
	}
	if step == StepJurisdiction && p.Contains(StepParties) {
		return StepParties
	}
	if len(p.steps) > 0 {
		return p.steps[0]
	}
	return StepEncounterType
}

// Next returns the step after the given one, or the same step when it is the
// last in the plan.
func (p Plan) Next(step Step) Step {
	ordinal, ok := p.Ordinal(step)
	if !ok {
		return p.Clamp(step)
	}
	if next, ok := p.StepAt(ordinal + 1); ok {
		return next
	}
	return step
}

// Prev returns the step before the given one, or the same step when it is
// the first in the plan.
func (p Plan) Prev(step Step) Step {
	ordinal, ok := p.Ordinal(step)
	if !ok {
		return p.Clamp(step)
	}
	if prev, ok := p.StepAt(ordinal - 1); ok {
		return prev
	}
	return step
}

// DeriveResumeStep infers the step an interrupted flow resumes on by walking
// the state from most-complete backward. A completed step always resumes at
// the next step, never at itself, so relaunching the app never replays a
// just-finished step.
func DeriveResumeStep(state State, plan Plan) Step {
	switch {
	case state.Method != MethodNone:
		return StepRecordingMethod
	case state.ScheduleSet():
		// Duration already completed; resume at the step after it.
		return StepRecordingMethod
	case state.HasRecordedAct():
		return StepDuration
	case state.HasAdditionalParty():
		return StepIntimateActs
	case state.Jurisdiction.Chosen():
		return StepParties
	case state.EncounterType != "":
		if plan.Contains(StepJurisdiction) {
			return StepJurisdiction
		}
		return StepParties
	default:
		return StepEncounterType
	}
}
