// Package fragment defines the fragment entity, the Store contract it is
// persisted through, and the operations the HTTP layer performs on it.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

// now is replaced in tests. Millisecond precision survives every metadata
// store unchanged.
var now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// Fragment is one owner-scoped piece of content with a declared media type.
// The payload is optional: metadata views leave it unset.
type Fragment struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"ownerId"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Type    string    `json:"type"`
	Size    int64     `json:"size"`

	// ObjectKey names the stored payload object. The store assigns it and
	// clients never see it.
	ObjectKey string `json:"-"`

	data []byte
}

// Store is the persistence collaborator. Implementations must return
// ErrNotFound (possibly wrapped) when a fragment is absent, and must apply
// WriteFragment and Delete atomically per fragment.
type Store interface {
	ReadMetadata(ctx context.Context, ownerID, id string) (*Fragment, error)
	WriteMetadata(ctx context.Context, f *Fragment) error
	ReadPayload(ctx context.Context, ownerID, id string) ([]byte, error)
	WritePayload(ctx context.Context, ownerID, id string, payload []byte) error
	// ReadFragment loads metadata and payload as one consistent snapshot.
	ReadFragment(ctx context.Context, ownerID, id string) (*Fragment, []byte, error)
	// WriteFragment stores metadata and payload as one unit.
	WriteFragment(ctx context.Context, f *Fragment, payload []byte) error
	ListMetadata(ctx context.Context, ownerID string) ([]*Fragment, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// New builds a fragment with a fresh id and timestamps. A nil payload
// yields a metadata-only fragment of size zero.
func New(ownerID, contentType string, payload []byte) (*Fragment, error) {
	if ownerID == "" {
		return nil, validationError("create", "owner id is required")
	}
	if contentType == "" {
		return nil, validationError("create", "type is required")
	}
	if !mediatype.IsIngestible(contentType) {
		return nil, &Error{
			Kind:   KindValidation,
			Reason: ReasonUnsupportedType,
			Op:     "create",
			Err:    fmt.Errorf("unsupported type %q", contentType),
		}
	}

	ts := now()
	f := &Fragment{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Created: ts,
		Updated: ts,
		Type:    contentType,
	}
	if payload != nil {
		f.data = payload
		f.Size = int64(len(payload))
	}
	return f, nil
}

// Validate checks the entity invariants. Stores call it on everything they
// read back.
func (f *Fragment) Validate() error {
	switch {
	case f.ID == "":
		return errors.New("id is required")
	case f.OwnerID == "":
		return errors.New("owner id is required")
	case !mediatype.IsIngestible(f.Type):
		return fmt.Errorf("unsupported type %q", f.Type)
	case f.Size < 0:
		return fmt.Errorf("negative size %d", f.Size)
	case f.data != nil && int64(len(f.data)) != f.Size:
		return fmt.Errorf("size %d does not match payload length %d", f.Size, len(f.data))
	case f.Updated.Before(f.Created):
		return errors.New("updated precedes created")
	}
	return nil
}

// MimeType returns the type without parameters:
// "text/html; charset=utf-8" becomes "text/html".
func (f *Fragment) MimeType() string {
	mt, err := mediatype.BaseType(f.Type)
	if err != nil {
		return f.Type
	}
	return mt
}

// IsText reports whether the fragment holds one of the textual types.
func (f *Fragment) IsText() bool {
	return mediatype.IsText(f.Type)
}

// Formats lists the types this fragment can be served as.
func (f *Fragment) Formats() []string {
	return mediatype.Formats(f.Type)
}

// HasData reports whether the payload is loaded.
func (f *Fragment) HasData() bool {
	return f.data != nil
}

// Data returns the loaded payload, or nil for a metadata-only view.
func (f *Fragment) Data() []byte {
	return f.data
}

// Metadata returns a copy of f without its payload.
func (f *Fragment) Metadata() *Fragment {
	c := *f
	c.data = nil
	return &c
}

// setData replaces the payload and keeps size and updated in step with it.
func (f *Fragment) setData(payload []byte) {
	f.data = payload
	f.Size = int64(len(payload))
	f.touch()
}

func (f *Fragment) touch() {
	ts := now()
	if ts.Before(f.Created) {
		ts = f.Created
	}
	f.Updated = ts
}
