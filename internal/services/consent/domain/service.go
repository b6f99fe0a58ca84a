// Package domain orchestrates the consent service: draft persistence,
// sharing, invitation acceptance, collaborator review, amendments, and
// revocation, on top of the storage interfaces.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pmyapp/accord/internal/consent/contract"
	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/id"
	"github.com/pmyapp/accord/internal/services/consent/storage"
)

// Service implements the consent service operations.
type Service struct {
	store storage.Store
	now   func() time.Time
	newID func() (string, error)
}

// NewService creates a consent service over the given store.
func NewService(store storage.Store, now func() time.Time, idGenerator func() (string, error)) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Service{store: store, now: now, newID: idGenerator}, nil
}

// SaveDraft creates or updates a draft contract from a flow payload. An
// existing collaborative draft refuses direct edits; shared content changes
// only through amendments.
func (s *Service) SaveDraft(ctx context.Context, payload flow.DraftPayload) (contract.Contract, error) {
	if payload.DraftID != "" {
		existing, err := s.store.GetContract(ctx, payload.DraftID)
		if err != nil {
			return contract.Contract{}, err
		}
		if existing.IsCollaborative {
			return contract.Contract{}, apperrors.New(apperrors.CodeDraftCollaborative, "a shared draft can only change through amendments")
		}
		if existing.Status != contract.StatusDraft {
			return contract.Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "only a draft contract can be overwritten")
		}

		updated := existing
		updated.EncounterType = payload.EncounterType
		updated.Jurisdiction = payload.Jurisdiction
		updated.Parties = append([]string(nil), payload.Parties...)
		updated.Acts = payload.Acts
		updated.StartTime = payload.StartTime
		updated.DurationMinutes = payload.DurationMinutes
		updated.Method = payload.Method
		updated.Summary = payload.Summary
		updated.UpdatedAt = s.now().UTC()
		if err := s.store.PutContract(ctx, updated); err != nil {
			return contract.Contract{}, err
		}
		return updated, nil
	}

	created, err := contract.CreateContract(contract.CreateContractInput{
		OwnerUserID:     payload.OwnerUserID,
		EncounterType:   payload.EncounterType,
		Jurisdiction:    payload.Jurisdiction,
		Parties:         payload.Parties,
		Acts:            payload.Acts,
		StartTime:       payload.StartTime,
		DurationMinutes: payload.DurationMinutes,
		Method:          payload.Method,
		Summary:         payload.Summary,
	}, s.now, s.newID)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := s.store.PutContract(ctx, created); err != nil {
		return contract.Contract{}, err
	}
	return created, nil
}

// GetContract loads a contract with its collaborators.
func (s *Service) GetContract(ctx context.Context, contractID string) (contract.Contract, []contract.Collaborator, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, nil, err
	}
	collaborators, err := s.store.ListCollaboratorsByContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, nil, err
	}
	return c, collaborators, nil
}

// ListContracts loads every contract a user owns, newest first.
func (s *Service) ListContracts(ctx context.Context, ownerUserID string) ([]contract.Contract, error) {
	return s.store.ListContractsByOwner(ctx, ownerUserID)
}

// FinalizeDraft activates a solo draft contract directly. Shared contracts
// activate through collaborator approval instead.
func (s *Service) FinalizeDraft(ctx context.Context, contractID string) (contract.Contract, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, err
	}
	if c.IsCollaborative {
		return contract.Contract{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "a shared contract activates through collaborator approval")
	}
	activated, err := contract.TransitionStatus(c, contract.StatusActive, s.now)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := s.store.PutContract(ctx, activated); err != nil {
		return contract.Contract{}, err
	}
	return activated, nil
}

// ShareWithUser shares a contract with a registered user, flipping the
// contract collaborative and inserting the collaborator atomically. A draft
// moves to pending approval at first share. An empty role defaults to
// participant.
func (s *Service) ShareWithUser(ctx context.Context, contractID, userID, displayName string, role contract.CollaboratorRole) (contract.Collaborator, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	shared, err := s.prepareShare(c)
	if err != nil {
		return contract.Collaborator{}, err
	}

	collab, err := contract.CreateCollaborator(contract.CreateCollaboratorInput{
		ContractID:      contractID,
		ParticipantType: contract.ParticipantUser,
		Role:            role,
		UserID:          userID,
		DisplayName:     displayName,
	}, s.now, s.newID)
	if err != nil {
		return contract.Collaborator{}, err
	}

	if err := s.store.ShareWithCollaborator(ctx, shared, collab); err != nil {
		return contract.Collaborator{}, err
	}
	return collab, nil
}

// ShareWithEmail shares a contract with a non-user by e-mail invitation,
// flipping the contract collaborative and inserting the invitation
// atomically.
func (s *Service) ShareWithEmail(ctx context.Context, contractID, inviterUserID, email string) (contract.Invitation, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Invitation{}, err
	}
	shared, err := s.prepareShare(c)
	if err != nil {
		return contract.Invitation{}, err
	}

	inv, err := contract.CreateInvitation(contract.CreateInvitationInput{
		ContractID:    contractID,
		InviterUserID: inviterUserID,
		Email:         email,
	}, s.now, s.newID)
	if err != nil {
		return contract.Invitation{}, err
	}

	if err := s.store.ShareWithInvitation(ctx, shared, inv); err != nil {
		return contract.Invitation{}, err
	}
	return inv, nil
}

// prepareShare marks a contract collaborative and moves a draft to pending
// approval on first share.
func (s *Service) prepareShare(c contract.Contract) (contract.Contract, error) {
	shared, err := contract.MarkCollaborative(c, s.now)
	if err != nil {
		return contract.Contract{}, err
	}
	if shared.Status == contract.StatusDraft {
		shared, err = contract.TransitionStatus(shared, contract.StatusPendingApproval, s.now)
		if err != nil {
			return contract.Contract{}, err
		}
	}
	return shared, nil
}

// AcceptInvitation claims an invitation code for a registered user and adds
// them as a pending collaborator. An expired invitation reports expiry, not
// absence; an unknown code reports absence.
func (s *Service) AcceptInvitation(ctx context.Context, code, userID string) (contract.Collaborator, error) {
	inv, err := s.store.GetInvitationByCode(ctx, code)
	if err != nil {
		return contract.Collaborator{}, err
	}

	accepted, err := contract.AcceptInvitation(inv, userID, s.now)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if err := s.store.PutInvitation(ctx, accepted); err != nil {
		return contract.Collaborator{}, err
	}

	collab, err := contract.CreateCollaborator(accepted.CollaboratorInput(), s.now, s.newID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if err := s.store.PutCollaborator(ctx, collab); err != nil {
		return contract.Collaborator{}, err
	}
	return collab, nil
}

// MarkCollaboratorReviewing records that a collaborator opened the contract.
func (s *Service) MarkCollaboratorReviewing(ctx context.Context, collaboratorID string) (contract.Collaborator, error) {
	collab, err := s.store.GetCollaborator(ctx, collaboratorID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	updated, err := contract.MarkReviewing(collab, s.now)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if err := s.store.PutCollaborator(ctx, updated); err != nil {
		return contract.Collaborator{}, err
	}
	return updated, nil
}

// ApproveCollaborator records a collaborator's approval. When every
// collaborator on the contract has approved, the contract activates and the
// approvals are countersigned as confirmed.
func (s *Service) ApproveCollaborator(ctx context.Context, collaboratorID string) (contract.Collaborator, error) {
	collab, err := s.store.GetCollaborator(ctx, collaboratorID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	approved, err := contract.ApproveCollaborator(collab, s.now)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if err := s.store.PutCollaborator(ctx, approved); err != nil {
		return contract.Collaborator{}, err
	}

	if err := s.activateIfFullyApproved(ctx, approved.ContractID); err != nil {
		return contract.Collaborator{}, err
	}
	// Return the latest record; activation may have confirmed it.
	return s.store.GetCollaborator(ctx, collaboratorID)
}

// activateIfFullyApproved activates a pending contract once every
// collaborator has approved, confirming each approval.
func (s *Service) activateIfFullyApproved(ctx context.Context, contractID string) error {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if c.Status != contract.StatusPendingApproval {
		return nil
	}

	collaborators, err := s.store.ListCollaboratorsByContract(ctx, contractID)
	if err != nil {
		return err
	}
	for _, collab := range collaborators {
		if collab.Status != contract.CollaboratorApproved {
			return nil
		}
	}

	activated, err := contract.TransitionStatus(c, contract.StatusActive, s.now)
	if err != nil {
		return err
	}
	if err := s.store.PutContract(ctx, activated); err != nil {
		return err
	}
	for _, collab := range collaborators {
		confirmed, err := contract.ConfirmCollaborator(collab, s.now)
		if err != nil {
			return err
		}
		if err := s.store.PutCollaborator(ctx, confirmed); err != nil {
			return err
		}
	}
	return nil
}

// RejectCollaborator records a collaborator's refusal. The record is kept;
// a contract pending approval drops back to draft so the owner can revise.
func (s *Service) RejectCollaborator(ctx context.Context, collaboratorID, reason string) (contract.Collaborator, error) {
	collab, err := s.store.GetCollaborator(ctx, collaboratorID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	rejected, err := contract.RejectCollaborator(collab, reason, s.now)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if err := s.store.PutCollaborator(ctx, rejected); err != nil {
		return contract.Collaborator{}, err
	}

	c, err := s.store.GetContract(ctx, rejected.ContractID)
	if err != nil {
		return contract.Collaborator{}, err
	}
	if c.Status == contract.StatusPendingApproval {
		back, err := contract.TransitionStatus(c, contract.StatusDraft, s.now)
		if err != nil {
			return contract.Collaborator{}, err
		}
		if err := s.store.PutContract(ctx, back); err != nil {
			return contract.Collaborator{}, err
		}
	}
	return rejected, nil
}

// ProposeAmendment proposes a change to an active contract. Duration
// amendments are checked for direction against the current end time.
func (s *Service) ProposeAmendment(ctx context.Context, input contract.ProposeAmendmentInput) (contract.Amendment, error) {
	c, err := s.store.GetContract(ctx, input.ContractID)
	if err != nil {
		return contract.Amendment{}, err
	}
	if c.Status != contract.StatusActive {
		return contract.Amendment{}, apperrors.New(apperrors.CodeContractStatusDisallowsOp, "only an active contract can be amended")
	}
	if input.Type == contract.AmendmentExtendDuration || input.Type == contract.AmendmentShortenDuration {
		if err := input.Changes.Validate(input.Type); err != nil {
			return contract.Amendment{}, err
		}
		if err := contract.ValidateEndTimeDirection(c, input.Type, *input.Changes.NewEndTime); err != nil {
			return contract.Amendment{}, err
		}
	}

	a, err := contract.ProposeAmendment(input, s.now, s.newID)
	if err != nil {
		return contract.Amendment{}, err
	}
	if err := s.store.PutAmendment(ctx, a); err != nil {
		return contract.Amendment{}, err
	}
	return a, nil
}

// ApproveAmendment records one party's approval and applies the amendment to
// the contract once every non-requesting party has approved.
func (s *Service) ApproveAmendment(ctx context.Context, amendmentID, approverUserID string) (contract.Amendment, error) {
	a, err := s.store.GetAmendment(ctx, amendmentID)
	if err != nil {
		return contract.Amendment{}, err
	}
	c, err := s.store.GetContract(ctx, a.ContractID)
	if err != nil {
		return contract.Amendment{}, err
	}

	required, err := s.requiredParties(ctx, c)
	if err != nil {
		return contract.Amendment{}, err
	}

	updated, applied, err := contract.ApproveAmendment(a, approverUserID, required, s.now)
	if err != nil {
		return contract.Amendment{}, err
	}

	if applied && updated.ResolvedAt != nil && a.Status == contract.AmendmentPending {
		amended, err := s.applyAmendment(c, updated)
		if err != nil {
			return contract.Amendment{}, err
		}
		if err := s.store.PutContract(ctx, amended); err != nil {
			return contract.Amendment{}, err
		}
	}
	if err := s.store.PutAmendment(ctx, updated); err != nil {
		return contract.Amendment{}, err
	}
	return updated, nil
}

func (s *Service) applyAmendment(c contract.Contract, a contract.Amendment) (contract.Contract, error) {
	switch a.Type {
	case contract.AmendmentAddActs:
		return contract.ApplyActChanges(c, a.Changes.AddedActs, nil, s.now)
	case contract.AmendmentRemoveActs:
		return contract.ApplyActChanges(c, nil, a.Changes.RemovedActs, s.now)
	case contract.AmendmentExtendDuration, contract.AmendmentShortenDuration:
		return contract.ApplyEndTime(c, *a.Changes.NewEndTime, s.now)
	default:
		return contract.Contract{}, contract.ErrInvalidAmendmentType
	}
}

// requiredParties resolves the user IDs whose approval an amendment needs:
// the owner plus every non-rejected platform-user collaborator.
func (s *Service) requiredParties(ctx context.Context, c contract.Contract) ([]string, error) {
	collaborators, err := s.store.ListCollaboratorsByContract(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	required := []string{c.OwnerUserID}
	for _, collab := range collaborators {
		if collab.Status == contract.CollaboratorRejected {
			continue
		}
		if collab.UserID != "" {
			required = append(required, collab.UserID)
		}
	}
	return required, nil
}

// RejectAmendment declines a pending amendment on behalf of one party.
func (s *Service) RejectAmendment(ctx context.Context, amendmentID, rejecterUserID, reason string) (contract.Amendment, error) {
	a, err := s.store.GetAmendment(ctx, amendmentID)
	if err != nil {
		return contract.Amendment{}, err
	}
	rejected, err := contract.RejectAmendment(a, rejecterUserID, reason, s.now)
	if err != nil {
		return contract.Amendment{}, err
	}
	if err := s.store.PutAmendment(ctx, rejected); err != nil {
		return contract.Amendment{}, err
	}
	return rejected, nil
}

// ListAmendments loads every amendment on a contract, newest first.
func (s *Service) ListAmendments(ctx context.Context, contractID string) ([]contract.Amendment, error) {
	return s.store.ListAmendmentsByContract(ctx, contractID)
}

// RevokeContract withdraws consent on an active or paused contract.
func (s *Service) RevokeContract(ctx context.Context, contractID, revokedBy string) (contract.Contract, error) {
	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return contract.Contract{}, err
	}
	revoked, err := contract.Revoke(c, revokedBy, s.now)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := s.store.PutContract(ctx, revoked); err != nil {
		return contract.Contract{}, err
	}
	return revoked, nil
}

// Preferences loads a user's flow defaults. A user with no saved defaults
// gets the zero value, not an error.
func (s *Service) Preferences(ctx context.Context, userID string) (flow.Preferences, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return flow.Preferences{}, nil
		}
		return flow.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences stores a user's flow defaults.
func (s *Service) SavePreferences(ctx context.Context, userID string, prefs flow.Preferences) error {
	return s.store.PutPreferences(ctx, userID, prefs)
}
