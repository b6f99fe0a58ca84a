package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pmyapp/accord/internal/consent/contract"
	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/services/consent/storage"
)

type fakeStore struct {
	contracts     map[string]contract.Contract
	collaborators map[string]contract.Collaborator
	invitations   map[string]contract.Invitation
	amendments    map[string]contract.Amendment
	preferences   map[string]flow.Preferences
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contracts:     map[string]contract.Contract{},
		collaborators: map[string]contract.Collaborator{},
		invitations:   map[string]contract.Invitation{},
		amendments:    map[string]contract.Amendment{},
		preferences:   map[string]flow.Preferences{},
	}
}

func (f *fakeStore) PutContract(ctx context.Context, c contract.Contract) error {
	f.contracts[c.ID] = c
	return nil
}

func (f *fakeStore) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	c, ok := f.contracts[id]
	if !ok {
		return contract.Contract{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListContractsByOwner(ctx context.Context, ownerUserID string) ([]contract.Contract, error) {
	var contracts []contract.Contract
	for _, c := range f.contracts {
		if c.OwnerUserID == ownerUserID {
			contracts = append(contracts, c)
		}
	}
	return contracts, nil
}

func (f *fakeStore) ShareWithCollaborator(ctx context.Context, c contract.Contract, collab contract.Collaborator) error {
	f.contracts[c.ID] = c
	f.collaborators[collab.ID] = collab
	return nil
}

func (f *fakeStore) ShareWithInvitation(ctx context.Context, c contract.Contract, inv contract.Invitation) error {
	f.contracts[c.ID] = c
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) PutCollaborator(ctx context.Context, collab contract.Collaborator) error {
	f.collaborators[collab.ID] = collab
	return nil
}

func (f *fakeStore) GetCollaborator(ctx context.Context, id string) (contract.Collaborator, error) {
	collab, ok := f.collaborators[id]
	if !ok {
		return contract.Collaborator{}, storage.ErrNotFound
	}
	return collab, nil
}

func (f *fakeStore) ListCollaboratorsByContract(ctx context.Context, contractID string) ([]contract.Collaborator, error) {
	var collaborators []contract.Collaborator
	for _, collab := range f.collaborators {
		if collab.ContractID == contractID {
			collaborators = append(collaborators, collab)
		}
	}
	return collaborators, nil
}

func (f *fakeStore) PutInvitation(ctx context.Context, inv contract.Invitation) error {
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) GetInvitation(ctx context.Context, id string) (contract.Invitation, error) {
	inv, ok := f.invitations[id]
	if !ok {
		return contract.Invitation{}, storage.ErrNotFound
	}
	return inv, nil
}

func (f *fakeStore) GetInvitationByCode(ctx context.Context, code string) (contract.Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Code == code {
			return inv, nil
		}
	}
	return contract.Invitation{}, storage.ErrNotFound
}

func (f *fakeStore) PutAmendment(ctx context.Context, a contract.Amendment) error {
	f.amendments[a.ID] = a
	return nil
}

func (f *fakeStore) GetAmendment(ctx context.Context, id string) (contract.Amendment, error) {
	a, ok := f.amendments[id]
	if !ok {
		return contract.Amendment{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListAmendmentsByContract(ctx context.Context, contractID string) ([]contract.Amendment, error) {
	var amendments []contract.Amendment
	for _, a := range f.amendments {
		if a.ContractID == contractID {
			amendments = append(amendments, a)
		}
	}
	return amendments, nil
}

func (f *fakeStore) PutPreferences(ctx context.Context, userID string, prefs flow.Preferences) error {
	f.preferences[userID] = prefs
	return nil
}

func (f *fakeStore) GetPreferences(ctx context.Context, userID string) (flow.Preferences, error) {
	prefs, ok := f.preferences[userID]
	if !ok {
		return flow.Preferences{}, storage.ErrNotFound
	}
	return prefs, nil
}

func (f *fakeStore) Close() error { return nil }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator() func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("id-%d", next), nil
	}
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	svc, err := NewService(store, fixedClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)), sequentialIDGenerator())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func draftPayload() flow.DraftPayload {
	start := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	return flow.DraftPayload{
		OwnerUserID:     "user-1",
		EncounterType:   "date",
		Jurisdiction:    flow.Jurisdiction{Mode: flow.SelectionModeState, StateCode: "CA"},
		Parties:         []string{"@me", "@alice"},
		Acts:            map[string]flow.ActChoice{"kissing": flow.ActYes},
		StartTime:       &start,
		DurationMinutes: 120,
		Method:          flow.MethodSignature,
		Summary:         "date; with @me, @alice",
	}
}

func TestSaveDraftCreatesAndUpdates(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if created.Status != contract.StatusDraft {
		t.Fatalf("Status = %q, want %q", created.Status, contract.StatusDraft)
	}

	payload := draftPayload()
	payload.DraftID = created.ID
	payload.Summary = "updated summary"
	updated, err := svc.SaveDraft(ctx, payload)
	if err != nil {
		t.Fatalf("SaveDraft update: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("update created a new contract: %s vs %s", updated.ID, created.ID)
	}
	if updated.Summary != "updated summary" {
		t.Fatalf("Summary = %q", updated.Summary)
	}
}

func TestSaveDraftRejectsCollaborative(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	c := store.contracts[created.ID]
	c.IsCollaborative = true
	store.contracts[created.ID] = c

	payload := draftPayload()
	payload.DraftID = created.ID
	_, err = svc.SaveDraft(ctx, payload)
	if apperrors.CodeOf(err) != apperrors.CodeDraftCollaborative {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeDraftCollaborative)
	}
}

func TestFinalizeDraftActivatesSoloContract(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	activated, err := svc.FinalizeDraft(ctx, created.ID)
	if err != nil {
		t.Fatalf("FinalizeDraft: %v", err)
	}
	if activated.Status != contract.StatusActive {
		t.Fatalf("Status = %q, want %q", activated.Status, contract.StatusActive)
	}
}

func TestShareWithUserFlipsCollaborativeAtomically(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	collab, err := svc.ShareWithUser(ctx, created.ID, "user-2", "Alice", "")
	if err != nil {
		t.Fatalf("ShareWithUser: %v", err)
	}
	if collab.Status != contract.CollaboratorPending {
		t.Fatalf("collaborator status = %q", collab.Status)
	}
	if collab.Role != contract.RoleParticipant {
		t.Fatalf("Role = %q, want %q", collab.Role, contract.RoleParticipant)
	}

	c := store.contracts[created.ID]
	if !c.IsCollaborative {
		t.Fatal("contract must be collaborative after sharing")
	}
	if c.Status != contract.StatusPendingApproval {
		t.Fatalf("Status = %q, want %q", c.Status, contract.StatusPendingApproval)
	}
}

func TestShareWithEmailCreatesInvitation(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	inv, err := svc.ShareWithEmail(ctx, created.ID, "user-1", "Bob@Example.com")
	if err != nil {
		t.Fatalf("ShareWithEmail: %v", err)
	}
	if inv.Email != "bob@example.com" || inv.Code == "" {
		t.Fatalf("invitation = %+v", inv)
	}
	if !store.contracts[created.ID].IsCollaborative {
		t.Fatal("contract must be collaborative after sharing")
	}
}

func TestAcceptInvitationAddsCollaborator(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	inv, err := svc.ShareWithEmail(ctx, created.ID, "user-1", "bob@example.com")
	if err != nil {
		t.Fatalf("ShareWithEmail: %v", err)
	}

	collab, err := svc.AcceptInvitation(ctx, inv.Code, "user-3")
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if collab.UserID != "user-3" || collab.ContractID != created.ID {
		t.Fatalf("collaborator = %+v", collab)
	}
	if store.invitations[inv.ID].Status != contract.InvitationAccepted {
		t.Fatal("invitation must be recorded as accepted")
	}
}

func TestAcceptInvitationExpiredVersusUnknown(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	// The clock sits past the invitation's expiry window.
	svc, err := NewService(store, fixedClock(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)), sequentialIDGenerator())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	inv, err := contract.CreateInvitation(contract.CreateInvitationInput{
		ContractID: "contract-1",
		Email:      "bob@example.com",
	}, fixedClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)), nil)
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	store.invitations[inv.ID] = inv

	_, err = svc.AcceptInvitation(ctx, inv.Code, "user-3")
	if apperrors.CodeOf(err) != apperrors.CodeInvitationExpired {
		t.Fatalf("expired code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeInvitationExpired)
	}

	_, err = svc.AcceptInvitation(ctx, "unknown-code", "user-3")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown code error = %v, want %v", err, storage.ErrNotFound)
	}
}

func shareWithTwoUsers(t *testing.T, svc *Service) (contractID string, collabIDs []string) {
	t.Helper()
	ctx := context.Background()

	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	first, err := svc.ShareWithUser(ctx, created.ID, "user-2", "Alice", "")
	if err != nil {
		t.Fatalf("ShareWithUser: %v", err)
	}
	second, err := svc.ShareWithUser(ctx, created.ID, "user-3", "Bob", "")
	if err != nil {
		t.Fatalf("ShareWithUser: %v", err)
	}
	return created.ID, []string{first.ID, second.ID}
}

func TestApproveCollaboratorActivatesOnFullApproval(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID, collabIDs := shareWithTwoUsers(t, svc)

	if _, err := svc.ApproveCollaborator(ctx, collabIDs[0]); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if store.contracts[contractID].Status != contract.StatusPendingApproval {
		t.Fatal("contract activated before every collaborator approved")
	}

	if _, err := svc.ApproveCollaborator(ctx, collabIDs[1]); err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if store.contracts[contractID].Status != contract.StatusActive {
		t.Fatalf("Status = %q, want %q", store.contracts[contractID].Status, contract.StatusActive)
	}
	for _, id := range collabIDs {
		if store.collaborators[id].Status != contract.CollaboratorConfirmed {
			t.Fatalf("collaborator %s = %q, want confirmed", id, store.collaborators[id].Status)
		}
	}
}

func TestRejectCollaboratorReturnsContractToDraft(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID, collabIDs := shareWithTwoUsers(t, svc)

	rejected, err := svc.RejectCollaborator(ctx, collabIDs[0], "terms too broad")
	if err != nil {
		t.Fatalf("RejectCollaborator: %v", err)
	}
	if rejected.Status != contract.CollaboratorRejected {
		t.Fatalf("Status = %q", rejected.Status)
	}
	if store.contracts[contractID].Status != contract.StatusDraft {
		t.Fatalf("contract status = %q, want back to draft", store.contracts[contractID].Status)
	}
	// The rejected record is kept.
	if _, ok := store.collaborators[collabIDs[0]]; !ok {
		t.Fatal("rejected collaborator record was dropped")
	}
}

func activeSharedContract(t *testing.T, svc *Service, store *fakeStore) string {
	t.Helper()
	ctx := context.Background()
	contractID, collabIDs := shareWithTwoUsers(t, svc)
	for _, id := range collabIDs {
		if _, err := svc.ApproveCollaborator(ctx, id); err != nil {
			t.Fatalf("ApproveCollaborator: %v", err)
		}
	}
	if store.contracts[contractID].Status != contract.StatusActive {
		t.Fatalf("setup: contract status = %q", store.contracts[contractID].Status)
	}
	return contractID
}

func TestAmendmentLifecycle(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID := activeSharedContract(t, svc, store)

	a, err := svc.ProposeAmendment(ctx, contract.ProposeAmendmentInput{
		ContractID:      contractID,
		RequesterUserID: "user-1",
		Type:            contract.AmendmentAddActs,
		Changes:         contract.Changes{AddedActs: []string{"holding-hands"}},
	})
	if err != nil {
		t.Fatalf("ProposeAmendment: %v", err)
	}

	// First approval: quorum not reached, contract unchanged.
	a, err = svc.ApproveAmendment(ctx, a.ID, "user-2")
	if err != nil {
		t.Fatalf("first ApproveAmendment: %v", err)
	}
	if a.Status != contract.AmendmentPending {
		t.Fatalf("Status = %q, want pending", a.Status)
	}
	if _, ok := store.contracts[contractID].Acts["holding-hands"]; ok {
		t.Fatal("amendment applied before quorum")
	}

	// Second approval reaches quorum and applies the change.
	a, err = svc.ApproveAmendment(ctx, a.ID, "user-3")
	if err != nil {
		t.Fatalf("second ApproveAmendment: %v", err)
	}
	if a.Status != contract.AmendmentApproved {
		t.Fatalf("Status = %q, want approved", a.Status)
	}
	if store.contracts[contractID].Acts["holding-hands"] != flow.ActYes {
		t.Fatal("amendment was not applied to the contract")
	}
}

func TestApproveAmendmentIdempotentAfterResolution(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID := activeSharedContract(t, svc, store)

	a, err := svc.ProposeAmendment(ctx, contract.ProposeAmendmentInput{
		ContractID:      contractID,
		RequesterUserID: "user-1",
		Type:            contract.AmendmentAddActs,
		Changes:         contract.Changes{AddedActs: []string{"x"}},
	})
	if err != nil {
		t.Fatalf("ProposeAmendment: %v", err)
	}
	if _, err := svc.ApproveAmendment(ctx, a.ID, "user-2"); err != nil {
		t.Fatalf("ApproveAmendment: %v", err)
	}
	if _, err := svc.ApproveAmendment(ctx, a.ID, "user-3"); err != nil {
		t.Fatalf("ApproveAmendment: %v", err)
	}

	acts := len(store.contracts[contractID].Acts)
	// A retried approval must not re-apply the change.
	if _, err := svc.ApproveAmendment(ctx, a.ID, "user-2"); err != nil {
		t.Fatalf("retried ApproveAmendment: %v", err)
	}
	if len(store.contracts[contractID].Acts) != acts {
		t.Fatal("retried approval re-applied the amendment")
	}
}

func TestProposeAmendmentDirectionChecks(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID := activeSharedContract(t, svc, store)
	end := store.contracts[contractID].EndTime()

	earlier := end.Add(-time.Hour)
	_, err := svc.ProposeAmendment(ctx, contract.ProposeAmendmentInput{
		ContractID:      contractID,
		RequesterUserID: "user-1",
		Type:            contract.AmendmentExtendDuration,
		Changes:         contract.Changes{NewEndTime: &earlier},
	})
	if apperrors.CodeOf(err) != apperrors.CodeAmendmentEndTimeNotExtended {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeAmendmentEndTimeNotExtended)
	}

	later := end.Add(time.Hour)
	_, err = svc.ProposeAmendment(ctx, contract.ProposeAmendmentInput{
		ContractID:      contractID,
		RequesterUserID: "user-1",
		Type:            contract.AmendmentShortenDuration,
		Changes:         contract.Changes{NewEndTime: &later},
	})
	if apperrors.CodeOf(err) != apperrors.CodeAmendmentEndTimeNotShortened {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeAmendmentEndTimeNotShortened)
	}
}

func TestProposeAmendmentRequiresActiveContract(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.SaveDraft(ctx, draftPayload())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	_, err = svc.ProposeAmendment(ctx, contract.ProposeAmendmentInput{
		ContractID:      created.ID,
		RequesterUserID: "user-1",
		Type:            contract.AmendmentAddActs,
		Changes:         contract.Changes{AddedActs: []string{"x"}},
	})
	if apperrors.CodeOf(err) != apperrors.CodeContractStatusDisallowsOp {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeContractStatusDisallowsOp)
	}
}

func TestRevokeContract(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	contractID := activeSharedContract(t, svc, store)

	revoked, err := svc.RevokeContract(ctx, contractID, "user-2")
	if err != nil {
		t.Fatalf("RevokeContract: %v", err)
	}
	if revoked.Status != contract.StatusCompleted {
		t.Fatalf("Status = %q, want %q", revoked.Status, contract.StatusCompleted)
	}
	if revoked.RevokedBy != "user-2" || revoked.RevokedAt == nil {
		t.Fatalf("revocation record = %q/%v", revoked.RevokedBy, revoked.RevokedAt)
	}

	// Revoking a completed contract fails.
	if _, err := svc.RevokeContract(ctx, contractID, "user-1"); apperrors.CodeOf(err) != apperrors.CodeContractStatusDisallowsOp {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeContractStatusDisallowsOp)
	}
}

func TestPreferencesFallBackToZero(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	prefs, err := svc.Preferences(ctx, "user-1")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs != (flow.Preferences{}) {
		t.Fatalf("prefs = %+v, want zero value", prefs)
	}

	want := flow.Preferences{DefaultEncounterType: "date"}
	if err := svc.SavePreferences(ctx, "user-1", want); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	prefs, err = svc.Preferences(ctx, "user-1")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs != want {
		t.Fatalf("prefs = %+v, want %+v", prefs, want)
	}
}
