package flow

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/pmyapp/accord/internal/consent/catalog"
	"github.com/pmyapp/accord/internal/consent/party"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

// StaleAfter is the inactivity threshold after which an untouched flow with
// no active work is discarded instead of resumed.
const StaleAfter = 5 * time.Minute

// DraftStore persists the serialized flow state across process restarts.
type DraftStore interface {
	// Load returns the persisted snapshot; ok is false when none exists.
	Load(ctx context.Context) (state State, ok bool, err error)
	Save(ctx context.Context, state State) error
	Clear(ctx context.Context) error
}

// Preferences seeds flow defaults for a user. Values are applied only to
// fields the persisted snapshot leaves unset; they never overwrite an
// existing draft.
type Preferences struct {
	DefaultEncounterType   string
	DefaultJurisdiction    Jurisdiction
	DefaultDurationMinutes int
}

// PreferencesClient fetches flow defaults for a user from the backend.
type PreferencesClient interface {
	Preferences(ctx context.Context, userID string) (Preferences, error)
}

// IsStale reports whether an in-progress flow should be discarded. A flow is
// stale when its last edit is absent or older than StaleAfter and there is
// no active work: a draft ID or an encounter type signals active intent and
// keeps the flow alive past the time threshold.
func IsStale(state State, now time.Time) bool {
	if state.DraftID != "" || state.EncounterType != "" {
		return false
	}
	if state.LastEditedAt.IsZero() {
		return true
	}
	return now.Sub(state.LastEditedAt) > StaleAfter
}

// Config wires a Controller's collaborators.
type Config struct {
	Catalog         *catalog.Catalog
	Store           DraftStore
	Preferences     PreferencesClient
	OwnerUserID     string
	OwnerIdentifier string
	Clock           func() time.Time
}

// Controller owns one user's wizard flow: it hydrates persisted state,
// applies mutations, gates step advancement, and emits draft payloads.
// Storage is a side-effect boundary injected at construction; the controller
// is single-threaded from the caller's perspective.
type Controller struct {
	catalog         *catalog.Catalog
	store           DraftStore
	prefs           PreferencesClient
	clock           func() time.Time
	ownerUserID     string
	ownerIdentifier string

	state       State
	step        Step
	partyErrors party.ErrorMap
	defaults    Preferences
	hydrated    bool
}

// NewController creates a wizard controller for one user.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("draft store is required")
	}
	if strings.TrimSpace(cfg.OwnerUserID) == "" {
		return nil, errors.New("owner user id is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Controller{
		catalog:         cfg.Catalog,
		store:           cfg.Store,
		prefs:           cfg.Preferences,
		clock:           clock,
		ownerUserID:     strings.TrimSpace(cfg.OwnerUserID),
		ownerIdentifier: strings.TrimSpace(cfg.OwnerIdentifier),
		state:           NewState(cfg.OwnerIdentifier),
		step:            StepEncounterType,
		partyErrors:     party.ErrorMap{},
	}, nil
}

// Hydrate restores persisted state. Preference fetch and snapshot read must
// both resolve (success or error) before the first reconciled state is
// computed; reconciling earlier silently drops saved progress.
func (c *Controller) Hydrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var defaults Preferences
	if c.prefs != nil {
		fetched, err := c.prefs.Preferences(ctx, c.ownerUserID)
		if err != nil {
			log.Printf("fetch flow preferences: %v", err)
		} else {
			defaults = fetched
		}
	}

	loaded, ok, err := c.store.Load(ctx)
	if err != nil {
		log.Printf("load flow snapshot: %v", err)
		ok = false
	}
	if !ok {
		loaded = NewState(c.ownerIdentifier)
	}

	c.defaults = defaults
	c.state = c.sanitize(loaded, defaults)
	c.partyErrors = party.Validate(c.state.Parties, false)
	c.step = c.Plan().Clamp(DeriveResumeStep(c.state, c.Plan()))
	c.hydrated = true
	return nil
}

// sanitize validates each persisted field independently, falling back to a
// preference-seeded default instead of aborting the whole restore.
func (c *Controller) sanitize(state State, defaults Preferences) State {
	state = state.Clone()

	if state.EncounterType != "" && !c.catalog.Has(state.EncounterType) {
		state.EncounterType = ""
	}
	if state.EncounterType == "" && state.DraftID == "" && c.catalog.Has(defaults.DefaultEncounterType) {
		state.EncounterType = strings.ToLower(strings.TrimSpace(defaults.DefaultEncounterType))
	}

	switch state.Jurisdiction.Mode {
	case SelectionModeUnset, SelectionModeUniversity, SelectionModeState, SelectionModeNotApplicable:
	default:
		state.Jurisdiction = Jurisdiction{}
	}
	if state.Jurisdiction.Mode == SelectionModeUnset && !state.Jurisdiction.Chosen() && defaults.DefaultJurisdiction.Chosen() {
		state.Jurisdiction = defaults.DefaultJurisdiction
	}

	if len(state.Parties) == 0 {
		state.Parties = []string{c.ownerIdentifier, ""}
	}
	if strings.TrimSpace(state.Parties[0]) == "" {
		state.Parties[0] = c.ownerIdentifier
	}

	for act, choice := range state.Acts {
		if choice != ActYes && choice != ActNo {
			delete(state.Acts, act)
		}
	}
	if state.Acts == nil {
		state.Acts = map[string]ActChoice{}
	}

	if state.DurationMinutes < 0 {
		state.DurationMinutes = 0
	}
	if state.StartTime != nil && state.DurationMinutes == 0 && defaults.DefaultDurationMinutes > 0 {
		state.DurationMinutes = defaults.DefaultDurationMinutes
	}
	if state.StartTime == nil || state.DurationMinutes == 0 {
		// The schedule fields are set together or not at all.
		state.StartTime = nil
		state.DurationMinutes = 0
	}

	if state.Method != MethodNone && !IsValidMethod(state.Method) {
		state.Method = MethodNone
	}

	return state
}

// Hydrated reports whether persisted state has been reconciled.
func (c *Controller) Hydrated() bool {
	return c.hydrated
}

// Defaults returns the preference defaults resolved during hydration.
func (c *Controller) Defaults() Preferences {
	return c.defaults
}

// State returns a copy of the current flow state.
func (c *Controller) State() State {
	return c.state.Clone()
}

// Plan returns the step plan for the current encounter type.
func (c *Controller) Plan() Plan {
	return ComputePlan(c.catalog.RequiresJurisdiction(c.state.EncounterType))
}

// CurrentStep returns the step the wizard is on, self-corrected to the
// nearest valid step when the plan no longer contains the pointer.
func (c *Controller) CurrentStep() Step {
	c.step = c.Plan().Clamp(c.step)
	return c.step
}

// PartyErrors returns a copy of the per-index party validation errors.
func (c *Controller) PartyErrors() party.ErrorMap {
	errs := party.ErrorMap{}
	for i, err := range c.partyErrors {
		errs[i] = err
	}
	return errs
}

// HasRequiredData reports whether the flow carries active work worth keeping.
func (c *Controller) HasRequiredData() bool {
	return c.state.EncounterType != "" || c.state.DraftID != ""
}

// ResetIfStale discards the flow when the staleness policy says so and
// reports whether a reset happened. Genuinely in-progress work is left
// untouched even past the time threshold.
func (c *Controller) ResetIfStale(ctx context.Context) (bool, error) {
	if !IsStale(c.state, c.clock()) {
		return false, nil
	}
	return true, c.Reset(ctx)
}

// Reset discards the flow and clears the persisted snapshot.
func (c *Controller) Reset(ctx context.Context) error {
	c.state = c.sanitize(NewState(c.ownerIdentifier), c.defaults)
	c.partyErrors = party.ErrorMap{}
	c.step = StepEncounterType
	if err := c.store.Clear(ctx); err != nil {
		log.Printf("clear flow snapshot: %v", err)
	}
	return nil
}

// SetEncounterType records the encounter type. Changing it mid-flow clears
// the jurisdiction, parties, and act decisions, which are all
// encounter-type-specific, and re-points the wizard at the first step of the
// new plan after the encounter type.
func (c *Controller) SetEncounterType(ctx context.Context, encounterType string) error {
	encounterType = strings.ToLower(strings.TrimSpace(encounterType))
	if encounterType == "" {
		return apperrors.New(apperrors.CodeFlowEncounterTypeEmpty, "encounter type is required")
	}
	if !c.catalog.Has(encounterType) {
		return apperrors.WithMetadata(apperrors.CodeFlowEncounterTypeUnknown, "unknown encounter type", map[string]string{"encounter_type": encounterType})
	}

	previous := c.state.EncounterType
	c.state.EncounterType = encounterType
	if previous != "" && previous != encounterType {
		c.state.ClearJurisdiction()
		c.state.Parties = []string{c.ownerIdentifier, ""}
		c.state.Acts = map[string]ActChoice{}
		c.partyErrors = party.ErrorMap{}
		plan := c.Plan()
		if plan.Contains(StepJurisdiction) {
			c.step = StepJurisdiction
		} else {
			c.step = StepParties
		}
	}
	c.persist(ctx)
	return nil
}

// SetUniversity records a university jurisdiction.
func (c *Controller) SetUniversity(ctx context.Context, universityID, universityName string) {
	c.state.SetUniversity(universityID, universityName)
	c.persist(ctx)
}

// SetStateJurisdiction records a state jurisdiction.
func (c *Controller) SetStateJurisdiction(ctx context.Context, stateCode, stateName string) {
	c.state.SetStateJurisdiction(stateCode, stateName)
	c.persist(ctx)
}

// SetJurisdictionNotApplicable records an explicit jurisdiction opt-out.
func (c *Controller) SetJurisdictionNotApplicable(ctx context.Context) {
	c.state.SetJurisdictionNotApplicable()
	c.persist(ctx)
}

// SetSelectionMode toggles the jurisdiction picker mode. This does not reset
// any flow state: only an encounter type change does.
func (c *Controller) SetSelectionMode(ctx context.Context, mode SelectionMode) {
	c.state.SetSelectionMode(mode)
	c.persist(ctx)
}

// SetParty records one participant slot. Validation failures are surfaced
// inline through PartyErrors, never returned as a failure of the edit.
func (c *Controller) SetParty(ctx context.Context, index int, raw string) error {
	if index < 0 || index >= len(c.state.Parties) {
		return apperrors.New(apperrors.CodePartyIndexOutOfRange, "party index is out of range")
	}

	canonical, err := party.Canonicalize(raw)
	if err != nil {
		c.state.Parties[index] = strings.TrimSpace(raw)
		c.partyErrors[index] = err
	} else {
		c.state.Parties[index] = canonical
		delete(c.partyErrors, index)
	}
	c.refreshDuplicateErrors()
	c.persist(ctx)
	return nil
}

// AddParty appends an empty participant slot.
func (c *Controller) AddParty(ctx context.Context) {
	c.state.Parties = append(c.state.Parties, "")
	c.persist(ctx)
}

// RemoveParty removes the participant at index. Slot 0 is reserved for the
// acting user and cannot be removed; removing the last additional slot
// leaves one empty slot in its place. Errors recorded for higher indexes are
// re-keyed down so they never point at a stale, shifted index.
func (c *Controller) RemoveParty(ctx context.Context, index int) error {
	if index == 0 {
		return apperrors.New(apperrors.CodePartyIndexReserved, "the owner slot cannot be removed")
	}
	if index < 0 || index >= len(c.state.Parties) {
		return apperrors.New(apperrors.CodePartyIndexOutOfRange, "party index is out of range")
	}

	c.state.Parties = append(c.state.Parties[:index], c.state.Parties[index+1:]...)
	if len(c.state.Parties) < 2 {
		c.state.Parties = append(c.state.Parties, "")
	}
	c.partyErrors.RemoveIndex(index)
	c.refreshDuplicateErrors()
	c.persist(ctx)
	return nil
}

// CycleAct advances one act decision through unselected -> yes -> no ->
// unselected.
func (c *Controller) CycleAct(ctx context.Context, act string) {
	c.state.CycleAct(act)
	c.persist(ctx)
}

// SetSchedule records the contract start time and duration together.
func (c *Controller) SetSchedule(ctx context.Context, start time.Time, durationMinutes int) {
	if durationMinutes <= 0 {
		c.ClearSchedule(ctx)
		return
	}
	startUTC := start.UTC()
	c.state.StartTime = &startUTC
	c.state.DurationMinutes = durationMinutes
	c.persist(ctx)
}

// ClearSchedule clears the start time and duration together.
func (c *Controller) ClearSchedule(ctx context.Context) {
	c.state.StartTime = nil
	c.state.DurationMinutes = 0
	c.persist(ctx)
}

// SetMethod records the recording method.
func (c *Controller) SetMethod(ctx context.Context, method Method) error {
	if method != MethodNone && !IsValidMethod(method) {
		return apperrors.New(apperrors.CodeFlowMethodMissing, "unknown recording method")
	}
	c.state.Method = method
	c.persist(ctx)
	return nil
}

// SetMethodPayload stores one opaque method-specific artifact.
func (c *Controller) SetMethodPayload(ctx context.Context, key, value string) {
	if c.state.MethodPayload == nil {
		c.state.MethodPayload = map[string]string{}
	}
	c.state.MethodPayload[key] = value
	c.persist(ctx)
}

// AttachDraft records the persisted draft backing this flow.
func (c *Controller) AttachDraft(ctx context.Context, draftID string) {
	c.state.DraftID = strings.TrimSpace(draftID)
	c.persist(ctx)
}

// MarkShared flags the flow's draft as collaborative. From here on the draft
// can be re-shared but not edited directly.
func (c *Controller) MarkShared(ctx context.Context) {
	c.state.IsCollaborative = true
	c.persist(ctx)
}

// CanProceed reports whether the given step's gating requirements are met.
// A nil return means the wizard may advance.
func (c *Controller) CanProceed(step Step) error {
	switch step {
	case StepEncounterType:
		if c.state.EncounterType == "" {
			return apperrors.New(apperrors.CodeFlowEncounterTypeEmpty, "encounter type is required")
		}
	case StepJurisdiction:
		if !c.Plan().Contains(StepJurisdiction) {
			return nil
		}
		if !c.state.Jurisdiction.Chosen() {
			return apperrors.New(apperrors.CodeFlowJurisdictionMissing, "choose a university, a state, or not applicable")
		}
	case StepParties:
		if len(c.state.NonEmptyParties()) == 0 {
			return apperrors.New(apperrors.CodeFlowPartyRequired, "at least one participant is required")
		}
		if c.partyErrors.HasErrors() {
			return c.firstPartyError()
		}
	case StepIntimateActs:
		// Acts are optional; no gating.
	case StepDuration:
		if !c.state.ScheduleSet() {
			// An unset duration is allowed; only a set-but-expired one blocks.
			return nil
		}
		end := c.state.EndTime()
		if end != nil && !end.After(c.clock()) {
			return apperrors.New(apperrors.CodeFlowEndTimeInPast, "the contract end time is in the past")
		}
	case StepRecordingMethod:
		if !IsValidMethod(c.state.Method) {
			return apperrors.New(apperrors.CodeFlowMethodMissing, "choose a recording method")
		}
	default:
		return apperrors.New(apperrors.CodeFlowStepOutOfRange, "unknown wizard step")
	}
	return nil
}

// Navigation describes where the wizard goes after Next.
type Navigation struct {
	Step     Step
	Ordinal  int
	Finalize bool
	Method   Method
	// Handoff carries the accumulated state into the method-specific
	// finalize flow. It is a one-way boundary: the finalize screens return
	// control only by creating a contract.
	Handoff State
}

// Next advances the wizard one step after gating the current one. On the
// final step it does not advance; it hands off to the finalize flow for the
// chosen method.
func (c *Controller) Next(ctx context.Context) (Navigation, error) {
	step := c.CurrentStep()
	if err := c.CanProceed(step); err != nil {
		return Navigation{}, err
	}

	plan := c.Plan()
	if step == StepRecordingMethod {
		return Navigation{
			Step:     step,
			Ordinal:  ordinalOf(plan, step),
			Finalize: true,
			Method:   c.state.Method,
			Handoff:  c.state.Clone(),
		}, nil
	}

	c.step = plan.Next(step)
	return Navigation{Step: c.step, Ordinal: ordinalOf(plan, c.step)}, nil
}

// Back moves the wizard one step back, stopping at the first step.
func (c *Controller) Back() Navigation {
	plan := c.Plan()
	c.step = plan.Prev(c.CurrentStep())
	return Navigation{Step: c.step, Ordinal: ordinalOf(plan, c.step)}
}

// ResumeStep derives the step the flow resumes on from the persisted data.
func (c *Controller) ResumeStep() Step {
	return c.Plan().Clamp(DeriveResumeStep(c.state, c.Plan()))
}

func (c *Controller) firstPartyError() error {
	indexes := make([]int, 0, len(c.partyErrors))
	for i := range c.partyErrors {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return c.partyErrors[indexes[0]]
}

func (c *Controller) refreshDuplicateErrors() {
	for i, err := range c.partyErrors {
		if errors.Is(err, party.ErrDuplicate) {
			delete(c.partyErrors, i)
		}
	}
	for i, err := range party.Validate(c.state.Parties, false) {
		if errors.Is(err, party.ErrDuplicate) {
			if _, taken := c.partyErrors[i]; !taken {
				c.partyErrors[i] = err
			}
		}
	}
}

// persist saves the current state. Saves always reflect the latest in-memory
// state at the time they fire; a failed write degrades durability only and
// is retried implicitly by the next mutation.
func (c *Controller) persist(ctx context.Context) {
	c.state.LastEditedAt = c.clock().UTC()
	if err := c.store.Save(ctx, c.state.Clone()); err != nil {
		log.Printf("save flow snapshot: %v", err)
	}
}

func ordinalOf(plan Plan, step Step) int {
	ordinal, _ := plan.Ordinal(step)
	return ordinal
}
