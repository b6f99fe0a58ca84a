package contract

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/id"
)

// ParticipantType distinguishes platform users from e-mail invitees.
type ParticipantType string

const (
	// ParticipantUser is a registered platform user.
	ParticipantUser ParticipantType = "pmy_user"
	// ParticipantExternal is an invitee known only by e-mail address.
	ParticipantExternal ParticipantType = "external"
)

// CollaboratorRole describes what an invited party is on the contract.
type CollaboratorRole string

const (
	// RoleParticipant is a party to the agreement itself.
	RoleParticipant CollaboratorRole = "participant"
	// RoleWitness countersigns the agreement without being a party to it.
	RoleWitness CollaboratorRole = "witness"
)

// ParseCollaboratorRole maps a stored role label to a CollaboratorRole.
func ParseCollaboratorRole(raw string) (CollaboratorRole, bool) {
	switch CollaboratorRole(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleParticipant:
		return RoleParticipant, true
	case RoleWitness:
		return RoleWitness, true
	default:
		return "", false
	}
}

// CollaboratorStatus describes a collaborator's review state. Rejected and
// confirmed are terminal; a rejected collaborator stays on record and is
// never deleted.
type CollaboratorStatus string

const (
	// CollaboratorPending means the collaborator has not opened the contract.
	CollaboratorPending CollaboratorStatus = "pending"
	// CollaboratorReviewing means the collaborator is reading the contract.
	CollaboratorReviewing CollaboratorStatus = "reviewing"
	// CollaboratorApproved means the collaborator accepted the terms.
	CollaboratorApproved CollaboratorStatus = "approved"
	// CollaboratorRejected means the collaborator declined the terms.
	CollaboratorRejected CollaboratorStatus = "rejected"
	// CollaboratorConfirmed means the approval was countersigned at activation.
	CollaboratorConfirmed CollaboratorStatus = "confirmed"
)

// isCollaboratorStatusTransitionAllowed enforces the review state machine.
func isCollaboratorStatusTransitionAllowed(from, to CollaboratorStatus) bool {
	switch from {
	case CollaboratorPending:
		return to == CollaboratorReviewing || to == CollaboratorApproved || to == CollaboratorRejected
	case CollaboratorReviewing:
		return to == CollaboratorApproved || to == CollaboratorRejected
	case CollaboratorApproved:
		return to == CollaboratorConfirmed
	default:
		return false
	}
}

// IsCollaboratorStatusTransitionAllowed reports whether a review state
// transition is permitted.
func IsCollaboratorStatusTransitionAllowed(from, to CollaboratorStatus) bool {
	return isCollaboratorStatusTransitionAllowed(from, to)
}

var (
	// ErrInvalidParticipantType indicates an unknown participant type.
	ErrInvalidParticipantType = apperrors.New(apperrors.CodeCollaboratorInvalidStatus, "participant type is invalid")
	// ErrEmptyIdentity indicates a collaborator with no user ID or e-mail.
	ErrEmptyIdentity = apperrors.New(apperrors.CodeCollaboratorEmptyIdentity, "collaborator identity is required")
	// ErrInvalidRole indicates an unknown collaborator role.
	ErrInvalidRole = apperrors.New(apperrors.CodeCollaboratorInvalidRole, "collaborator role is invalid")
)

// Collaborator is one invited party's standing on a shared contract.
type Collaborator struct {
	ID              string
	ContractID      string
	ParticipantType ParticipantType
	Role            CollaboratorRole
	UserID          string
	Email           string
	DisplayName     string
	Status          CollaboratorStatus
	RejectionReason string
	RespondedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity returns the collaborator's identifying value for its type.
func (c Collaborator) Identity() string {
	if c.ParticipantType == ParticipantExternal {
		return c.Email
	}
	return c.UserID
}

// CreateCollaboratorInput describes the data needed to add a collaborator.
type CreateCollaboratorInput struct {
	ContractID      string
	ParticipantType ParticipantType
	Role            CollaboratorRole
	UserID          string
	Email           string
	DisplayName     string
}

// CreateCollaborator creates a pending collaborator with a generated ID.
func CreateCollaborator(input CreateCollaboratorInput, now func() time.Time, idGenerator func() (string, error)) (Collaborator, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateCollaboratorInput(input)
	if err != nil {
		return Collaborator{}, err
	}

	collaboratorID, err := idGenerator()
	if err != nil {
		return Collaborator{}, fmt.Errorf("generate collaborator id: %w", err)
	}

	createdAt := now().UTC()
	return Collaborator{
		ID:              collaboratorID,
		ContractID:      normalized.ContractID,
		ParticipantType: normalized.ParticipantType,
		Role:            normalized.Role,
		UserID:          normalized.UserID,
		Email:           normalized.Email,
		DisplayName:     normalized.DisplayName,
		Status:          CollaboratorPending,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// NormalizeCreateCollaboratorInput trims and validates collaborator input.
// An unset role defaults to participant.
func NormalizeCreateCollaboratorInput(input CreateCollaboratorInput) (CreateCollaboratorInput, error) {
	input.ContractID = strings.TrimSpace(input.ContractID)
	input.UserID = strings.TrimSpace(input.UserID)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.DisplayName = strings.TrimSpace(input.DisplayName)

	if strings.TrimSpace(string(input.Role)) == "" {
		input.Role = RoleParticipant
	} else {
		role, ok := ParseCollaboratorRole(string(input.Role))
		if !ok {
			return CreateCollaboratorInput{}, ErrInvalidRole
		}
		input.Role = role
	}

	switch input.ParticipantType {
	case ParticipantUser:
		if input.UserID == "" {
			return CreateCollaboratorInput{}, ErrEmptyIdentity
		}
	case ParticipantExternal:
		if input.Email == "" {
			return CreateCollaboratorInput{}, ErrEmptyIdentity
		}
	default:
		return CreateCollaboratorInput{}, ErrInvalidParticipantType
	}
	return input, nil
}

// MarkReviewing records that the collaborator opened the contract.
func MarkReviewing(c Collaborator, now func() time.Time) (Collaborator, error) {
	return transitionCollaborator(c, CollaboratorReviewing, "", now)
}

// ApproveCollaborator records the collaborator's acceptance. Approval is only
// valid from pending or reviewing; a terminal collaborator yields an error
// rather than a silent overwrite.
func ApproveCollaborator(c Collaborator, now func() time.Time) (Collaborator, error) {
	return transitionCollaborator(c, CollaboratorApproved, "", now)
}

// RejectCollaborator records the collaborator's refusal with an optional
// reason. The record is kept; rejection never deletes a collaborator.
func RejectCollaborator(c Collaborator, reason string, now func() time.Time) (Collaborator, error) {
	return transitionCollaborator(c, CollaboratorRejected, strings.TrimSpace(reason), now)
}

// ConfirmCollaborator countersigns an approved collaborator at activation.
func ConfirmCollaborator(c Collaborator, now func() time.Time) (Collaborator, error) {
	return transitionCollaborator(c, CollaboratorConfirmed, "", now)
}

func transitionCollaborator(c Collaborator, target CollaboratorStatus, reason string, now func() time.Time) (Collaborator, error) {
	if now == nil {
		now = time.Now
	}
	if !isCollaboratorStatusTransitionAllowed(c.Status, target) {
		if c.Status == CollaboratorRejected || c.Status == CollaboratorConfirmed {
			return Collaborator{}, apperrors.WithMetadata(
				apperrors.CodeCollaboratorTerminalStatus,
				fmt.Sprintf("collaborator is already %s", c.Status),
				map[string]string{"Status": string(c.Status)},
			)
		}
		return Collaborator{}, apperrors.WithMetadata(
			apperrors.CodeCollaboratorInvalidStatus,
			fmt.Sprintf("collaborator status transition not allowed: %s -> %s", c.Status, target),
			map[string]string{"FromStatus": string(c.Status), "ToStatus": string(target)},
		)
	}

	updated := c
	updated.Status = target
	updated.UpdatedAt = now().UTC()
	if target == CollaboratorApproved || target == CollaboratorRejected {
		respondedAt := updated.UpdatedAt
		updated.RespondedAt = &respondedAt
	}
	if target == CollaboratorRejected {
		updated.RejectionReason = reason
	}
	return updated, nil
}
