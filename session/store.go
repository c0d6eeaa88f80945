package session

import (
	"context"
	"errors"

	"github.com/finauthio/finauth/storage"
)

// Store persists the client [State] through the storage collaborator under
// a stable identity key.
type Store struct {
	backend storage.Interface
	key     string
}

// NewStore creates a Store writing under the given identity key.
func NewStore(backend storage.Interface, key string) *Store {
	return &Store{backend: backend, key: key}
}

// Load reads the persisted state. A missing key yields a fresh empty State,
// not an error; corruption and backend failures propagate.
func (s *Store) Load(ctx context.Context) (*State, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &State{}, nil
		}
		return nil, err
	}
	return Decode(data)
}

// Save writes the state.
func (s *Store) Save(ctx context.Context, state *State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, s.key, data)
}

// Clear removes the persisted state entirely.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Remove(ctx, s.key)
}
