package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/id"
)

// AmendmentType names what an amendment changes on an active contract.
type AmendmentType string

const (
	// AmendmentAddActs adds newly agreed acts.
	AmendmentAddActs AmendmentType = "add_acts"
	// AmendmentRemoveActs withdraws previously agreed acts.
	AmendmentRemoveActs AmendmentType = "remove_acts"
	// AmendmentExtendDuration moves the contract end later.
	AmendmentExtendDuration AmendmentType = "extend_duration"
	// AmendmentShortenDuration moves the contract end earlier.
	AmendmentShortenDuration AmendmentType = "shorten_duration"
)

// ParseAmendmentType maps a stored label to an AmendmentType.
func ParseAmendmentType(raw string) (AmendmentType, bool) {
	switch AmendmentType(strings.ToLower(strings.TrimSpace(raw))) {
	case AmendmentAddActs:
		return AmendmentAddActs, true
	case AmendmentRemoveActs:
		return AmendmentRemoveActs, true
	case AmendmentExtendDuration:
		return AmendmentExtendDuration, true
	case AmendmentShortenDuration:
		return AmendmentShortenDuration, true
	default:
		return "", false
	}
}

// AmendmentStatus describes where an amendment is in its approval flow.
type AmendmentStatus string

const (
	// AmendmentPending awaits approval from the non-requesting parties.
	AmendmentPending AmendmentStatus = "pending"
	// AmendmentApproved reached quorum and was applied.
	AmendmentApproved AmendmentStatus = "approved"
	// AmendmentRejected was declined by a non-requesting party.
	AmendmentRejected AmendmentStatus = "rejected"
)

var (
	// ErrInvalidAmendmentType indicates an unknown amendment type.
	ErrInvalidAmendmentType = apperrors.New(apperrors.CodeAmendmentInvalidType, "amendment type is invalid")
	// ErrMalformedChanges indicates a changes payload that does not match the
	// amendment type. The condition is permanent; retrying cannot fix it.
	ErrMalformedChanges = apperrors.New(apperrors.CodeAmendmentMalformedChanges, "amendment changes do not match the amendment type")
	// ErrAmendmentTerminal indicates a vote on a resolved amendment.
	ErrAmendmentTerminal = apperrors.New(apperrors.CodeAmendmentTerminalStatus, "amendment is already resolved")
	// ErrRequesterCannotVote indicates the requester voting on their own amendment.
	ErrRequesterCannotVote = apperrors.New(apperrors.CodeAmendmentRequesterCannotVote, "the requester cannot vote on their own amendment")
)

// Changes is the typed payload of an amendment. Which fields must be present
// depends on the amendment type.
type Changes struct {
	AddedActs   []string   `json:"added_acts,omitempty"`
	RemovedActs []string   `json:"removed_acts,omitempty"`
	NewEndTime  *time.Time `json:"new_end_time,omitempty"`
}

// ParseChanges decodes a stored changes payload. A payload that does not
// decode is malformed, permanently.
func ParseChanges(raw []byte) (Changes, error) {
	var changes Changes
	if err := json.Unmarshal(raw, &changes); err != nil {
		return Changes{}, apperrors.Wrap(apperrors.CodeAmendmentMalformedChanges, "decode amendment changes", err)
	}
	return changes, nil
}

// Validate checks the changes payload against the amendment type. An act
// amendment needs acts; a duration amendment needs a new end time.
func (ch Changes) Validate(amendmentType AmendmentType) error {
	switch amendmentType {
	case AmendmentAddActs:
		if len(ch.AddedActs) == 0 {
			return ErrMalformedChanges
		}
	case AmendmentRemoveActs:
		if len(ch.RemovedActs) == 0 {
			return ErrMalformedChanges
		}
	case AmendmentExtendDuration, AmendmentShortenDuration:
		if ch.NewEndTime == nil {
			return ErrMalformedChanges
		}
	default:
		return ErrInvalidAmendmentType
	}
	return nil
}

// Amendment is a proposed change to an active contract. It applies only
// after every non-requesting party approves.
type Amendment struct {
	ID              string
	ContractID      string
	RequesterUserID string
	Type            AmendmentType
	Changes         Changes
	// Reason is the requester's explanation for proposing the change.
	Reason          string
	Status          AmendmentStatus
	Approvers       []string
	RejectedBy      string
	RejectionReason string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProposeAmendmentInput describes the data needed to propose an amendment.
type ProposeAmendmentInput struct {
	ContractID      string
	RequesterUserID string
	Type            AmendmentType
	Changes         Changes
	Reason          string
}

// ProposeAmendment creates a pending amendment with a generated ID. The
// changes payload is validated against the type up front; a malformed
// proposal never enters the approval flow.
func ProposeAmendment(input ProposeAmendmentInput, now func() time.Time, idGenerator func() (string, error)) (Amendment, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.ContractID = strings.TrimSpace(input.ContractID)
	input.RequesterUserID = strings.TrimSpace(input.RequesterUserID)
	if err := input.Changes.Validate(input.Type); err != nil {
		return Amendment{}, err
	}

	amendmentID, err := idGenerator()
	if err != nil {
		return Amendment{}, fmt.Errorf("generate amendment id: %w", err)
	}

	createdAt := now().UTC()
	return Amendment{
		ID:              amendmentID,
		ContractID:      input.ContractID,
		RequesterUserID: input.RequesterUserID,
		Type:            input.Type,
		Changes:         input.Changes,
		Reason:          strings.TrimSpace(input.Reason),
		Status:          AmendmentPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// ApproveAmendment records one party's approval. requiredParties is the full
// set of contract parties; the requester is excluded from the quorum
// automatically. Approving twice is a no-op, not an error, so a retried
// request cannot fail; a rejected amendment refuses every further vote. The
// returned bool reports whether this approval reached quorum and the
// amendment should now be applied.
func ApproveAmendment(a Amendment, approverUserID string, requiredParties []string, now func() time.Time) (Amendment, bool, error) {
	if now == nil {
		now = time.Now
	}
	approverUserID = strings.TrimSpace(approverUserID)

	// Malformed changes are checked before any approval action so a broken
	// amendment can never be voted into effect.
	if err := a.Changes.Validate(a.Type); err != nil {
		return Amendment{}, false, err
	}
	if approverUserID == a.RequesterUserID {
		return Amendment{}, false, ErrRequesterCannotVote
	}
	if a.Status == AmendmentRejected {
		return Amendment{}, false, ErrAmendmentTerminal
	}
	if hasApprover(a.Approvers, approverUserID) {
		return a, a.Status == AmendmentApproved, nil
	}
	if a.Status != AmendmentPending {
		return Amendment{}, false, ErrAmendmentTerminal
	}

	updated := a
	updated.Approvers = append(append([]string(nil), a.Approvers...), approverUserID)
	updated.UpdatedAt = now().UTC()

	if quorumReached(updated.Approvers, requiredParties, a.RequesterUserID) {
		resolvedAt := updated.UpdatedAt
		updated.Status = AmendmentApproved
		updated.ResolvedAt = &resolvedAt
		return updated, true, nil
	}
	return updated, false, nil
}

// RejectAmendment declines a pending amendment. Any single non-requesting
// party can reject; the amendment resolves immediately.
func RejectAmendment(a Amendment, rejecterUserID, reason string, now func() time.Time) (Amendment, error) {
	if now == nil {
		now = time.Now
	}
	rejecterUserID = strings.TrimSpace(rejecterUserID)

	if err := a.Changes.Validate(a.Type); err != nil {
		return Amendment{}, err
	}
	if rejecterUserID == a.RequesterUserID {
		return Amendment{}, ErrRequesterCannotVote
	}
	if a.Status != AmendmentPending {
		return Amendment{}, ErrAmendmentTerminal
	}

	resolvedAt := now().UTC()
	updated := a
	updated.Status = AmendmentRejected
	updated.RejectedBy = rejecterUserID
	updated.RejectionReason = strings.TrimSpace(reason)
	updated.ResolvedAt = &resolvedAt
	updated.UpdatedAt = resolvedAt
	return updated, nil
}

// ValidateEndTimeDirection checks a duration amendment against the current
// contract end: an extension must move the end later and a shortening must
// move it earlier.
func ValidateEndTimeDirection(c Contract, amendmentType AmendmentType, newEnd time.Time) error {
	end := c.EndTime()
	if end == nil {
		return apperrors.New(apperrors.CodeContractStatusDisallowsOp, "the contract has no schedule to change")
	}
	switch amendmentType {
	case AmendmentExtendDuration:
		if !newEnd.After(*end) {
			return apperrors.New(apperrors.CodeAmendmentEndTimeNotExtended, "the new end time does not extend the contract")
		}
	case AmendmentShortenDuration:
		if !newEnd.Before(*end) {
			return apperrors.New(apperrors.CodeAmendmentEndTimeNotShortened, "the new end time does not shorten the contract")
		}
	default:
		return ErrInvalidAmendmentType
	}
	return nil
}

func hasApprover(approvers []string, userID string) bool {
	for _, approver := range approvers {
		if approver == userID {
			return true
		}
	}
	return false
}

// quorumReached reports whether every required party other than the
// requester has approved.
func quorumReached(approvers, requiredParties []string, requesterUserID string) bool {
	for _, required := range requiredParties {
		if required == requesterUserID {
			continue
		}
		if !hasApprover(approvers, required) {
			return false
		}
	}
	return true
}
