// Package metadata defines the contract shared by the fragment metadata
// stores. Payload bytes live in a storage.Backend, never here.
package metadata

import (
	"context"

	"github.com/AndyChoi4495/fragments/internal/fragment"
)

// Store persists fragment metadata rows keyed by (owner, id). Get and
// Delete return fragment.ErrNotFound when the row is absent.
type Store interface {
	Get(ctx context.Context, ownerID, id string) (*fragment.Fragment, error)
	// Put inserts or replaces the row for f.
	Put(ctx context.Context, f *fragment.Fragment) error
	// List returns the owner's rows ordered by creation time.
	List(ctx context.Context, ownerID string) ([]*fragment.Fragment, error)
	Delete(ctx context.Context, ownerID, id string) error
	Close() error
}
