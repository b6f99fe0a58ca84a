package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/id"
)

// InvitationTTL is how long an e-mail invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// InvitationStatus describes an invitation's state. Expiry is derived from
// ExpiresAt at read time, not stored as a status.
type InvitationStatus string

const (
	// InvitationPending means the invitation has not been accepted.
	InvitationPending InvitationStatus = "pending"
	// InvitationAccepted means the invitee claimed the invitation.
	InvitationAccepted InvitationStatus = "accepted"
)

var (
	// ErrEmptyEmail indicates an invitation without a recipient address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeInvitationEmptyEmail, "invitation e-mail is required")
	// ErrInvitationExpired indicates an invitation past its acceptance window.
	ErrInvitationExpired = apperrors.New(apperrors.CodeInvitationExpired, "invitation has expired")
	// ErrInvitationAlreadyAccepted indicates a second acceptance attempt.
	ErrInvitationAlreadyAccepted = apperrors.New(apperrors.CodeInvitationAlreadyAccepted, "invitation was already accepted")
)

// Invitation invites a non-user to join a shared contract by e-mail. The
// code is the opaque token embedded in the invitation link.
type Invitation struct {
	ID            string
	ContractID    string
	InviterUserID string
	Email         string
	Code          string
	Status        InvitationStatus
	ExpiresAt     time.Time
	AcceptedBy    string
	AcceptedAt    *time.Time
	CreatedAt     time.Time
}

// Expired reports whether the acceptance window has closed.
func (i Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// CreateInvitationInput describes the data needed to create an invitation.
type CreateInvitationInput struct {
	ContractID    string
	InviterUserID string
	Email         string
}

// CreateInvitation creates a pending invitation with a generated ID, an
// opaque acceptance code, and a seven-day expiry.
func CreateInvitation(input CreateInvitationInput, now func() time.Time, idGenerator func() (string, error)) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.ContractID = strings.TrimSpace(input.ContractID)
	input.InviterUserID = strings.TrimSpace(input.InviterUserID)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" {
		return Invitation{}, ErrEmptyEmail
	}

	invitationID, err := idGenerator()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}

	createdAt := now().UTC()
	return Invitation{
		ID:            invitationID,
		ContractID:    input.ContractID,
		InviterUserID: input.InviterUserID,
		Email:         input.Email,
		Code:          uuid.NewString(),
		Status:        InvitationPending,
		ExpiresAt:     createdAt.Add(InvitationTTL),
		CreatedAt:     createdAt,
	}, nil
}

// AcceptInvitation claims an invitation for a registered user. Expiry is
// checked before anything else, so an expired invitation reports expiry even
// when it was already accepted. Acceptance is recorded once; a second
// attempt fails.
func AcceptInvitation(i Invitation, userID string, now func() time.Time) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if i.Expired(now().UTC()) {
		return Invitation{}, ErrInvitationExpired
	}
	if i.Status == InvitationAccepted {
		return Invitation{}, ErrInvitationAlreadyAccepted
	}

	acceptedAt := now().UTC()
	updated := i
	updated.Status = InvitationAccepted
	updated.AcceptedBy = strings.TrimSpace(userID)
	updated.AcceptedAt = &acceptedAt
	return updated, nil
}

// CollaboratorInput builds the collaborator record an accepted invitation
// turns into. The invitee joins as a platform user once they have an account.
func (i Invitation) CollaboratorInput() CreateCollaboratorInput {
	return CreateCollaboratorInput{
		ContractID:      i.ContractID,
		ParticipantType: ParticipantUser,
		UserID:          i.AcceptedBy,
		Email:           i.Email,
	}
}
