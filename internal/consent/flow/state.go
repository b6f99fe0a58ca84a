// Package flow implements the consent wizard engine: the in-progress flow
// state, the step plan derived from the encounter type, and the controller
// that sequences steps, persists drafts, and gates advancement.
package flow

import (
	"strings"
	"time"
)

// Method identifies how a finalized contract is recorded.
type Method string

const (
	// MethodNone indicates no recording method has been chosen yet.
	MethodNone Method = ""
	// MethodSignature records consent with a drawn signature.
	MethodSignature Method = "signature"
	// MethodVoice records consent with a voice recording.
	MethodVoice Method = "voice"
	// MethodPhoto records consent with a photo.
	MethodPhoto Method = "photo"
	// MethodBiometric records consent with a biometric artifact.
	MethodBiometric Method = "biometric"
)

// IsValidMethod reports whether the method is a known recording method.
func IsValidMethod(m Method) bool {
	switch m {
	case MethodSignature, MethodVoice, MethodPhoto, MethodBiometric:
		return true
	default:
		return false
	}
}

// ActChoice records an explicit yes/no decision for an act. Absence of an
// act key in the state means the act is unselected.
type ActChoice string

const (
	// ActYes marks an act as consented to.
	ActYes ActChoice = "yes"
	// ActNo marks an act as explicitly declined.
	ActNo ActChoice = "no"
)

// SelectionMode discriminates which jurisdiction kind the user picked. It is
// persisted independently of the value pairs so a prior choice survives even
// if its value is later cleared.
type SelectionMode string

const (
	// SelectionModeUnset indicates no jurisdiction choice has been made.
	SelectionModeUnset SelectionMode = ""
	// SelectionModeUniversity indicates a university jurisdiction.
	SelectionModeUniversity SelectionMode = "university"
	// SelectionModeState indicates a state jurisdiction.
	SelectionModeState SelectionMode = "state"
	// SelectionModeNotApplicable indicates the user opted out explicitly.
	SelectionModeNotApplicable SelectionMode = "not-applicable"
)

// Jurisdiction captures the wizard's jurisdiction choice.
type Jurisdiction struct {
	Mode           SelectionMode `json:"mode"`
	UniversityID   string        `json:"university_id,omitempty"`
	UniversityName string        `json:"university_name,omitempty"`
	StateCode      string        `json:"state_code,omitempty"`
	StateName      string        `json:"state_name,omitempty"`
}

// Chosen reports whether the jurisdiction step is complete: a university or
// state value is present, or the user explicitly opted out.
func (j Jurisdiction) Chosen() bool {
	return j.Mode == SelectionModeNotApplicable || j.UniversityID != "" || j.StateCode != ""
}

// Label returns a short human-readable jurisdiction description.
func (j Jurisdiction) Label() string {
	switch {
	case j.UniversityID != "":
		if j.UniversityName != "" {
			return j.UniversityName
		}
		return j.UniversityID
	case j.StateCode != "":
		if j.StateName != "" {
			return j.StateName
		}
		return j.StateCode
	case j.Mode == SelectionModeNotApplicable:
		return "not applicable"
	default:
		return ""
	}
}

// State is the in-progress wizard snapshot. Index 0 of Parties is reserved
// for the acting user's own identifier.
type State struct {
	EncounterType   string               `json:"encounter_type"`
	Jurisdiction    Jurisdiction         `json:"jurisdiction"`
	Parties         []string             `json:"parties"`
	Acts            map[string]ActChoice `json:"acts,omitempty"`
	StartTime       *time.Time           `json:"start_time,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Method          Method               `json:"method,omitempty"`
	DraftID         string               `json:"draft_id,omitempty"`
	IsCollaborative bool                 `json:"is_collaborative,omitempty"`
	LastEditedAt    time.Time            `json:"last_edited_at"`
	// MethodPayload carries method-specific artifacts (signature strokes,
	// photo URL, credential material) opaquely; the engine only persists
	// and forwards them.
	MethodPayload map[string]string `json:"method_payload,omitempty"`
}

// NewState creates a fresh flow state with the owner occupying slot 0 and
// one empty participant slot.
func NewState(ownerIdentifier string) State {
	return State{
		Parties: []string{strings.TrimSpace(ownerIdentifier), ""},
		Acts:    map[string]ActChoice{},
	}
}

// EndTime derives the contract end from start plus duration, or nil when the
// schedule is not fully set.
func (s State) EndTime() *time.Time {
	if !s.ScheduleSet() {
		return nil
	}
	end := s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
	return &end
}

// ScheduleSet reports whether start time and duration are both present.
// The two fields are set together or not at all.
func (s State) ScheduleSet() bool {
	return s.StartTime != nil && s.DurationMinutes > 0
}

// HasRecordedAct reports whether any act carries an explicit decision.
func (s State) HasRecordedAct() bool {
	return len(s.Acts) > 0
}

// HasAdditionalParty reports whether any slot beyond the reserved owner slot
// holds a non-empty participant.
func (s State) HasAdditionalParty() bool {
	for i, p := range s.Parties {
		if i == 0 {
			continue
		}
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// NonEmptyParties returns all non-empty party identifiers in order.
func (s State) NonEmptyParties() []string {
	parties := make([]string, 0, len(s.Parties))
	for _, p := range s.Parties {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parties = append(parties, trimmed)
		}
	}
	return parties
}

// CycleAct advances an act through the unselected -> yes -> no -> unselected
// cycle, the only allowed transition path for act choices.
func (s *State) CycleAct(act string) {
	act = strings.TrimSpace(act)
	if act == "" {
		return
	}
	if s.Acts == nil {
		s.Acts = map[string]ActChoice{}
	}
	switch s.Acts[act] {
	case ActYes:
		s.Acts[act] = ActNo
	case ActNo:
		delete(s.Acts, act)
	default:
		s.Acts[act] = ActYes
	}
}

// SetUniversity records a university jurisdiction, displacing any state
// choice so exactly one jurisdiction kind is active.
func (s *State) SetUniversity(universityID, universityName string) {
	s.Jurisdiction = Jurisdiction{
		Mode:           SelectionModeUniversity,
		UniversityID:   strings.TrimSpace(universityID),
		UniversityName: strings.TrimSpace(universityName),
	}
}

// SetStateJurisdiction records a state jurisdiction, displacing any
// university choice.
func (s *State) SetStateJurisdiction(stateCode, stateName string) {
	s.Jurisdiction = Jurisdiction{
		Mode:      SelectionModeState,
		StateCode: strings.TrimSpace(stateCode),
		StateName: strings.TrimSpace(stateName),
	}
}

// SetJurisdictionNotApplicable records an explicit opt-out, clearing both
// value pairs.
func (s *State) SetJurisdictionNotApplicable() {
	s.Jurisdiction = Jurisdiction{Mode: SelectionModeNotApplicable}
}

// SetSelectionMode switches the jurisdiction selection mode without touching
// the recorded value pairs, so a prior choice survives the toggle.
func (s *State) SetSelectionMode(mode SelectionMode) {
	s.Jurisdiction.Mode = mode
}

// ClearJurisdiction resets the jurisdiction choice entirely.
func (s *State) ClearJurisdiction() {
	s.Jurisdiction = Jurisdiction{}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	clone := s
	clone.Parties = make([]string, len(s.Parties))
	copy(clone.Parties, s.Parties)
	if s.Acts != nil {
		clone.Acts = make(map[string]ActChoice, len(s.Acts))
		for k, v := range s.Acts {
			clone.Acts[k] = v
		}
	}
	if s.StartTime != nil {
		start := *s.StartTime
		clone.StartTime = &start
	}
	if s.MethodPayload != nil {
		clone.MethodPayload = make(map[string]string, len(s.MethodPayload))
		for k, v := range s.MethodPayload {
			clone.MethodPayload[k] = v
		}
	}
	return clone
}
