// Package bolt provides the bbolt-backed draft state store. Flow snapshots
// are stored as JSON blobs keyed by user.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/pmyapp/accord/internal/consent/flow"
	"github.com/pmyapp/accord/internal/services/consent/storage"
)

var flowStateBucket = []byte("flow_state")

// Store is a bbolt-backed draft state store.
type Store struct {
	db *bbolt.DB
}

var _ storage.DraftStateStore = (*Store)(nil)

// Open opens the draft store at the provided path, creating the bucket on
// first use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(flowStateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create flow state bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying bolt database. Close is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutFlowState persists a user's flow snapshot, replacing any prior one.
func (s *Store) PutFlowState(ctx context.Context, userID string, state flow.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode flow state: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(flowStateBucket).Put([]byte(userID), blob)
	})
	if err != nil {
		return fmt.Errorf("put flow state: %w", err)
	}
	return nil
}

// GetFlowState loads a user's flow snapshot, or ErrNotFound when none exists.
func (s *Store) GetFlowState(ctx context.Context, userID string) (flow.State, error) {
	if err := ctx.Err(); err != nil {
		return flow.State{}, err
	}
	var blob []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if value := tx.Bucket(flowStateBucket).Get([]byte(userID)); value != nil {
			blob = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return flow.State{}, fmt.Errorf("get flow state: %w", err)
	}
	if blob == nil {
		return flow.State{}, storage.ErrNotFound
	}

	var state flow.State
	if err := json.Unmarshal(blob, &state); err != nil {
		return flow.State{}, fmt.Errorf("decode flow state: %w", err)
	}
	return state, nil
}

// DeleteFlowState removes a user's flow snapshot. Deleting a missing
// snapshot is not an error.
func (s *Store) DeleteFlowState(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(flowStateBucket).Delete([]byte(userID))
	})
	if err != nil {
		return fmt.Errorf("delete flow state: %w", err)
	}
	return nil
}
