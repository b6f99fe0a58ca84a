package app

import (
	"context"
	"errors"

	"github.com/pmyapp/accord/internal/consent/flow"
	"github.com/pmyapp/accord/internal/services/consent/storage"
)

// userDraftStore scopes the shared draft-state store to one user so the flow
// controller sees a single snapshot slot.
type userDraftStore struct {
	states storage.DraftStateStore
	userID string
}

func (d userDraftStore) Load(ctx context.Context) (flow.State, bool, error) {
	state, err := d.states.GetFlowState(ctx, d.userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return flow.State{}, false, nil
		}
		return flow.State{}, false, err
	}
	return state, true, nil
}

func (d userDraftStore) Save(ctx context.Context, state flow.State) error {
	return d.states.PutFlowState(ctx, d.userID, state)
}

func (d userDraftStore) Clear(ctx context.Context) error {
	return d.states.DeleteFlowState(ctx, d.userID)
}

// NewFlowController builds a wizard controller for one user, backed by the
// server's draft store and preference defaults.
func (s *Server) NewFlowController(userID, identifier string) (*flow.Controller, error) {
	return flow.NewController(flow.Config{
		Catalog:         s.catalog,
		Store:           userDraftStore{states: s.drafts, userID: userID},
		Preferences:     s.service,
		OwnerUserID:     userID,
		OwnerIdentifier: identifier,
	})
}
