// Package contract implements the collaborative consent contract lifecycle:
// the contract record and its status machine, collaborator review states,
// e-mail invitations, and the dual-party amendment workflow.
package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/id"
)

// Status describes where a contract is in its lifecycle.
type Status string

const (
	// StatusDraft is a contract still editable by its owner.
	StatusDraft Status = "draft"
	// StatusPendingApproval is a shared contract awaiting collaborator review.
	StatusPendingApproval Status = "pending_approval"
	// StatusActive is a contract all parties have approved.
	StatusActive Status = "active"
	// StatusPaused is an active contract temporarily suspended.
	StatusPaused Status = "paused"
	// StatusCompleted is a terminal contract, by natural end or revocation.
	StatusCompleted Status = "completed"
)

// ParseStatus maps a stored status label to a Status.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusPendingApproval:
		return StatusPendingApproval, true
	case StatusActive:
		return StatusActive, true
	case StatusPaused:
		return StatusPaused, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// isStatusTransitionAllowed enforces valid contract lifecycle transitions.
func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPendingApproval || to == StatusActive
	case StatusPendingApproval:
		return to == StatusActive || to == StatusDraft
	case StatusActive:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted
	default:
		return false
	}
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
func IsStatusTransitionAllowed(from, to Status) bool {
	return isStatusTransitionAllowed(from, to)
}

var (
	// ErrEmptyOwnerID indicates a contract without an owner.
	ErrEmptyOwnerID = apperrors.New(apperrors.CodeContractEmptyOwnerID, "contract owner is required")
	// ErrEmptyEncounterType indicates a contract without an encounter type.
	ErrEmptyEncounterType = apperrors.New(apperrors.CodeFlowEncounterTypeEmpty, "encounter type is required")
)

// Contract is a finalized or in-review consent record. Acts, schedule, and
// parties mirror the flow state the contract was created from; after sharing
// they change only through approved amendments.
type Contract struct {
	ID              string
	OwnerUserID     string
	EncounterType   string
	Jurisdiction    flow.Jurisdiction
	Parties         []string
	Acts            map[string]flow.ActChoice
	StartTime       *time.Time
	DurationMinutes int
	Method          flow.Method
	Summary         string
	Status          Status
	IsCollaborative bool
	RevokedBy       string
	RevokedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndTime derives the contract end from start plus duration, or nil when no
// schedule is set.
func (c Contract) EndTime() *time.Time {
	if c.StartTime == nil || c.DurationMinutes <= 0 {
		return nil
	}
	end := c.StartTime.Add(time.Duration(c.DurationMinutes) * time.Minute)
	return &end
}

// CreateContractInput describes the data needed to create a contract.
type CreateContractInput struct {
	OwnerUserID     string
	EncounterType   string
	Jurisdiction    flow.Jurisdiction
	Parties         []string
	Acts            map[string]flow.ActChoice
	StartTime       *time.Time
	DurationMinutes int
	Method          flow.Method
	Summary         string
}

// CreateContract creates a new draft contract with a generated ID and
// timestamps.
func CreateContract(input CreateContractInput, now func() time.Time, idGenerator func() (string, error)) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateContractInput(input)
	if err != nil {
		return Contract{}, err
	}

	contractID, err := idGenerator()
	if err != nil {
		return Contract{}, fmt.Errorf("generate contract id: %w", err)
	}

	acts := make(map[string]flow.ActChoice, len(normalized.Acts))
	for act, choice := range normalized.Acts {
		acts[act] = choice
	}

	createdAt := now().UTC()
	return Contract{
		ID:              contractID,
		OwnerUserID:     normalized.OwnerUserID,
		EncounterType:   normalized.EncounterType,
		Jurisdiction:    normalized.Jurisdiction,
		Parties:         append([]string(nil), normalized.Parties...),
		Acts:            acts,
		StartTime:       normalized.StartTime,
		DurationMinutes: normalized.DurationMinutes,
		Method:          normalized.Method,
		Summary:         normalized.Summary,
		Status:          StatusDraft,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// NormalizeCreateContractInput trims and validates contract input data.
func NormalizeCreateContractInput(input CreateContractInput) (CreateContractInput, error) {
	input.OwnerUserID = strings.TrimSpace(input.OwnerUserID)
	if input.OwnerUserID == "" {
		return CreateContractInput{}, ErrEmptyOwnerID
	}
	input.EncounterType = strings.ToLower(strings.TrimSpace(input.EncounterType))
	if input.EncounterType == "" {
		return CreateContractInput{}, ErrEmptyEncounterType
	}
	input.Summary = strings.TrimSpace(input.Summary)
	if input.DurationMinutes < 0 {
		input.DurationMinutes = 0
	}
	if input.StartTime == nil || input.DurationMinutes == 0 {
		input.StartTime = nil
		input.DurationMinutes = 0
	}
	return input, nil
}

// TransitionStatus applies a status transition and updates timestamps.
func TransitionStatus(c Contract, target Status, now func() time.Time) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	if !isStatusTransitionAllowed(c.Status, target) {
		return Contract{}, apperrors.WithMetadata(
			apperrors.CodeContractInvalidStatusTransition,
			fmt.Sprintf("contract status transition not allowed: %s -> %s", c.Status, target),
			map[string]string{"FromStatus": string(c.Status), "ToStatus": string(target)},
		)
	}

	updated := c
	updated.Status = target
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// MarkCollaborative flags the contract as shared. A completed contract
// cannot gain collaborators.
func MarkCollaborative(c Contract, now func() time.Time) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	if c.Status == StatusCompleted {
		return Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "a completed contract cannot be shared")
	}
	updated := c
	updated.IsCollaborative = true
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// Revoke withdraws consent, moving the contract to completed and recording
// who revoked and when. Only active and paused contracts can be revoked.
func Revoke(c Contract, revokedBy string, now func() time.Time) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	revokedBy = strings.TrimSpace(revokedBy)
	if c.Status != StatusActive && c.Status != StatusPaused {
		return Contract{}, apperrors.WithMetadata(
			apperrors.CodeContractStatusDisallowsOp,
			fmt.Sprintf("a %s contract cannot be revoked", c.Status),
			map[string]string{"Status": string(c.Status)},
		)
	}

	updated, err := TransitionStatus(c, StatusCompleted, now)
	if err != nil {
		return Contract{}, err
	}
	revokedAt := now().UTC()
	updated.RevokedBy = revokedBy
	updated.RevokedAt = &revokedAt
	return updated, nil
}

// ApplyActChanges applies an approved act amendment to an active contract.
// Added acts are recorded as consented; removed acts are dropped entirely.
func ApplyActChanges(c Contract, added, removed []string, now func() time.Time) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	if c.Status != StatusActive {
		return Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "acts can only change on an active contract")
	}

	updated := c
	updated.Acts = make(map[string]flow.ActChoice, len(c.Acts)+len(added))
	for act, choice := range c.Acts {
		updated.Acts[act] = choice
	}
	for _, act := range added {
		act = strings.TrimSpace(act)
		if act != "" {
			updated.Acts[act] = flow.ActYes
		}
	}
	for _, act := range removed {
		delete(updated.Acts, strings.TrimSpace(act))
	}
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// ApplyEndTime applies an approved duration amendment, recomputing the
// duration so the derived end lands on newEnd.
func ApplyEndTime(c Contract, newEnd time.Time, now func() time.Time) (Contract, error) {
	if now == nil {
		now = time.Now
	}
	if c.Status != StatusActive {
		return Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "the schedule can only change on an active contract")
	}
	if c.StartTime == nil {
		return Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "the contract has no schedule to change")
	}
	minutes := int(newEnd.Sub(*c.StartTime) / time.Minute)
	if minutes <= 0 {
		return Contract{}, apperrors.New(apperrors.CodeAmendmentMalformedChanges, "the new end time is not after the contract start")
	}

	updated := c
	updated.DurationMinutes = minutes
	updated.UpdatedAt = now().UTC()
	return updated, nil
}
