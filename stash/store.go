// Package stash persists the login stash of a device. The whole tree is one
// JSON document stored under a fixed key on a Disk.
package stash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// DefaultKey is where the stash document lives on a Disk.
const DefaultKey = "logins/stash.json"

// ErrNotFound is returned by a Disk when a key holds no document.
var ErrNotFound = errors.New("stash: not found")

// Disk stores opaque documents by key.
type Disk interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Store loads and saves the stash tree on a Disk.
type Store struct {
	disk Disk
	key  string
}

var _ login.StashStore = (*Store)(nil)

// NewStore creates a store keeping the stash at key, or DefaultKey if empty.
func NewStore(disk Disk, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{disk: disk, key: key}
}

// Load returns the saved stash, or nil if none was saved.
func (s *Store) Load(ctx context.Context) (*login.LoginStash, error) {
	data, err := s.disk.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stash: %w", err)
	}

	var stash login.LoginStash
	if err := json.Unmarshal(data, &stash); err != nil {
		return nil, fmt.Errorf("failed to parse stash: %w", err)
	}
	return &stash, nil
}

// Save replaces the saved stash.
func (s *Store) Save(ctx context.Context, stash *login.LoginStash) error {
	data, err := json.MarshalIndent(stash, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stash: %w", err)
	}
	if err := s.disk.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write stash: %w", err)
	}
	log.Debug().Str("key", s.key).Int("bytes", len(data)).Msg("Stash saved")
	return nil
}

// Delete forgets the saved stash. Deleting an absent stash is not an error.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.disk.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete stash: %w", err)
	}
	return nil
}
