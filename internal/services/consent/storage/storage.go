// Package storage defines the persistence interfaces for the consent
// service. Contracts, collaborators, invitations, and amendments live in the
// relational store; in-progress flow snapshots live in the draft store.
package storage

import (
	"context"

	"github.com/pmyapp/accord/internal/consent/contract"
	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ContractStore persists contracts. The share operations flip the contract
// collaborative and insert the first collaborator or invitation in one
// transaction, so a crash can never leave a shared contract without its
// counterpart record.
type ContractStore interface {
	PutContract(ctx context.Context, c contract.Contract) error
	GetContract(ctx context.Context, id string) (contract.Contract, error)
	ListContractsByOwner(ctx context.Context, ownerUserID string) ([]contract.Contract, error)
	ShareWithCollaborator(ctx context.Context, c contract.Contract, collab contract.Collaborator) error
	ShareWithInvitation(ctx context.Context, c contract.Contract, inv contract.Invitation) error
}

// CollaboratorStore persists collaborator review records. Records are only
// ever inserted or updated; rejection keeps the row.
type CollaboratorStore interface {
	PutCollaborator(ctx context.Context, collab contract.Collaborator) error
	GetCollaborator(ctx context.Context, id string) (contract.Collaborator, error)
	ListCollaboratorsByContract(ctx context.Context, contractID string) ([]contract.Collaborator, error)
}

// InvitationStore persists e-mail invitations. Lookup by code serves the
// invitation link; an expired invitation is still returned so callers can
// distinguish expiry from absence.
type InvitationStore interface {
	PutInvitation(ctx context.Context, inv contract.Invitation) error
	GetInvitation(ctx context.Context, id string) (contract.Invitation, error)
	GetInvitationByCode(ctx context.Context, code string) (contract.Invitation, error)
}

// AmendmentStore persists amendment proposals and their votes.
type AmendmentStore interface {
	PutAmendment(ctx context.Context, a contract.Amendment) error
	GetAmendment(ctx context.Context, id string) (contract.Amendment, error)
	ListAmendmentsByContract(ctx context.Context, contractID string) ([]contract.Amendment, error)
}

// PreferenceStore persists per-user flow defaults.
type PreferenceStore interface {
	PutPreferences(ctx context.Context, userID string, prefs flow.Preferences) error
	GetPreferences(ctx context.Context, userID string) (flow.Preferences, error)
}

// Store aggregates every relational storage concern of the consent service.
type Store interface {
	ContractStore
	CollaboratorStore
	InvitationStore
	AmendmentStore
	PreferenceStore
	Close() error
}

// DraftStateStore persists one in-progress flow snapshot per user.
type DraftStateStore interface {
	PutFlowState(ctx context.Context, userID string, state flow.State) error
	GetFlowState(ctx context.Context, userID string) (flow.State, error)
	DeleteFlowState(ctx context.Context, userID string) error
	Close() error
}
