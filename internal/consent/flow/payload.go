package flow

import (
	"time"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

// DraftPayload is the flow's hand-off to the draft persistence service. The
// engine assembles it; transport and storage are someone else's concern.
type DraftPayload struct {
	DraftID         string               `json:"draft_id,omitempty"`
	OwnerUserID     string               `json:"owner_user_id"`
	EncounterType   string               `json:"encounter_type"`
	Jurisdiction    Jurisdiction         `json:"jurisdiction"`
	Parties         []string             `json:"parties"`
	Acts            map[string]ActChoice `json:"acts,omitempty"`
	StartTime       *time.Time           `json:"start_time,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Method          Method               `json:"method,omitempty"`
	Summary         string               `json:"summary"`
	Share           bool                 `json:"share"`
}

// BuildDraftPayload assembles a save-draft payload from the current state.
// It fails when no encounter type is set, and when the flow's draft is
// already collaborative: shared drafts take edits only through the amendment
// workflow.
func (c *Controller) BuildDraftPayload() (DraftPayload, error) {
	if c.state.DraftID != "" && c.state.IsCollaborative {
		return DraftPayload{}, apperrors.New(apperrors.CodeDraftCollaborative, "a shared draft can only change through amendments")
	}
	return c.buildPayload(false)
}

// BuildSharePayload assembles a share payload from the current state.
// Sharing an already collaborative draft is allowed; it adds an invitee
// rather than editing content.
func (c *Controller) BuildSharePayload() (DraftPayload, error) {
	return c.buildPayload(true)
}

func (c *Controller) buildPayload(share bool) (DraftPayload, error) {
	if c.state.EncounterType == "" {
		return DraftPayload{}, apperrors.New(apperrors.CodeFlowEncounterTypeEmpty, "encounter type is required")
	}
	state := c.state.Clone()
	return DraftPayload{
		DraftID:         state.DraftID,
		OwnerUserID:     c.ownerUserID,
		EncounterType:   state.EncounterType,
		Jurisdiction:    state.Jurisdiction,
		Parties:         state.NonEmptyParties(),
		Acts:            state.Acts,
		StartTime:       state.StartTime,
		DurationMinutes: state.DurationMinutes,
		Method:          state.Method,
		Summary:         RenderSummary(state),
		Share:           share,
	}, nil
}
