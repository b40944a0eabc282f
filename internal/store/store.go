// Package store implements fragment.Store by pairing a metadata.Store with a
// storage.Backend. Each payload version lives under its own object key,
// recorded in the metadata row, so a row always names bytes of its size.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metadata"
	"github.com/AndyChoi4495/fragments/internal/storage"
)

// Facade is the fragment.Store used by the service.
type Facade struct {
	meta    metadata.Store
	backend storage.Backend
	locks   keyedLocks
}

var _ fragment.Store = (*Facade)(nil)

// New joins a metadata store and a payload backend.
func New(meta metadata.Store, backend storage.Backend) *Facade {
	return &Facade{
		meta:    meta,
		backend: backend,
		locks:   keyedLocks{m: make(map[string]*keyedLock)},
	}
}

// PayloadKey is the backend key a payload written before its metadata row
// exists lands under. Rows with no recorded object key resolve to it.
func PayloadKey(ownerID, id string) string {
	return ownerID + "/" + id
}

// versionKey names a fresh object for one payload version. Every replace
// writes a new object, so the row being replaced keeps pointing at bytes
// that match its size until the new row is committed.
func versionKey(ownerID, id string) string {
	return PayloadKey(ownerID, id) + "." + uuid.NewString()
}

func objectKey(f *fragment.Fragment) string {
	if f.ObjectKey != "" {
		return f.ObjectKey
	}
	return PayloadKey(f.OwnerID, f.ID)
}

// ReadMetadata returns the metadata of one fragment.
func (s *Facade) ReadMetadata(ctx context.Context, ownerID, id string) (*fragment.Fragment, error) {
	unlock := s.locks.rlock(PayloadKey(ownerID, id))
	defer unlock()
	return s.meta.Get(ctx, ownerID, id)
}

// WriteMetadata stores a metadata-only update. A row without an object key
// keeps the one already recorded.
func (s *Facade) WriteMetadata(ctx context.Context, f *fragment.Fragment) error {
	unlock := s.locks.lock(PayloadKey(f.OwnerID, f.ID))
	defer unlock()

	if f.ObjectKey == "" {
		prev, err := s.meta.Get(ctx, f.OwnerID, f.ID)
		switch {
		case err == nil:
			f.ObjectKey = prev.ObjectKey
		case !errors.Is(err, fragment.ErrNotFound):
			return err
		}
	}
	return s.meta.Put(ctx, f)
}

// ReadPayload returns the payload bytes of one fragment.
func (s *Facade) ReadPayload(ctx context.Context, ownerID, id string) ([]byte, error) {
	_, data, err := s.ReadFragment(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadFragment loads metadata and the payload object it names under one
// read lock. Another process may swap the object between the two reads;
// a vanished object is retried once against the fresh row.
func (s *Facade) ReadFragment(ctx context.Context, ownerID, id string) (*fragment.Fragment, []byte, error) {
	unlock := s.locks.rlock(PayloadKey(ownerID, id))
	defer unlock()

	var missing string
	for attempt := 0; attempt < 2; attempt++ {
		f, err := s.meta.Get(ctx, ownerID, id)
		if err != nil {
			return nil, nil, err
		}
		key := objectKey(f)
		if key == missing {
			break
		}
		data, err := storage.ReadAll(ctx, s.backend, key)
		if errors.Is(err, storage.ErrNotExist) {
			missing = key
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return f, data, nil
	}
	return nil, nil, fmt.Errorf("payload %s missing for existing metadata: %w", missing, storage.ErrNotExist)
}

// WritePayload replaces only the payload bytes. With no metadata row yet
// the bytes are staged under PayloadKey for a later WriteMetadata;
// otherwise the row's size follows the new payload.
func (s *Facade) WritePayload(ctx context.Context, ownerID, id string, payload []byte) error {
	unlock := s.locks.lock(PayloadKey(ownerID, id))
	defer unlock()

	prev, err := s.meta.Get(ctx, ownerID, id)
	if errors.Is(err, fragment.ErrNotFound) {
		key := PayloadKey(ownerID, id)
		return s.backend.PutObject(ctx, key, bytes.NewReader(payload), int64(len(payload)))
	}
	if err != nil {
		return err
	}
	next := *prev
	next.Size = int64(len(payload))
	return s.swap(ctx, prev, &next, payload)
}

// WriteFragment stores payload and metadata as one unit. The payload goes
// to a new object, the row is pointed at it, and only then is the previous
// object removed. A failed metadata write leaves the previous version
// intact.
func (s *Facade) WriteFragment(ctx context.Context, f *fragment.Fragment, payload []byte) error {
	if int64(len(payload)) != f.Size {
		return fmt.Errorf("payload length %d does not match size %d", len(payload), f.Size)
	}
	unlock := s.locks.lock(PayloadKey(f.OwnerID, f.ID))
	defer unlock()

	prev, err := s.meta.Get(ctx, f.OwnerID, f.ID)
	if err != nil && !errors.Is(err, fragment.ErrNotFound) {
		return fmt.Errorf("read metadata: %w", err)
	}
	return s.swap(ctx, prev, f, payload)
}

// swap writes payload under a new version key, commits next to point at
// it, then drops prev's object. The caller holds the write lock.
func (s *Facade) swap(ctx context.Context, prev, next *fragment.Fragment, payload []byte) error {
	key := versionKey(next.OwnerID, next.ID)
	if err := s.backend.PutObject(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	committed := *next
	committed.ObjectKey = key
	if err := s.meta.Put(ctx, &committed); err != nil {
		s.dropObject(ctx, key, "discarded payload after failed metadata write")
		return fmt.Errorf("write metadata: %w", err)
	}
	next.ObjectKey = key

	if prev != nil {
		s.dropObject(ctx, objectKey(prev), "stale payload after replace")
	}
	return nil
}

// ListMetadata returns every fragment of an owner.
func (s *Facade) ListMetadata(ctx context.Context, ownerID string) ([]*fragment.Fragment, error) {
	return s.meta.List(ctx, ownerID)
}

// Delete removes metadata first, so the fragment disappears at once, then
// its payload. A payload left behind by a failed second step is logged and
// unreachable.
func (s *Facade) Delete(ctx context.Context, ownerID, id string) error {
	unlock := s.locks.lock(PayloadKey(ownerID, id))
	defer unlock()

	f, err := s.meta.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.dropObject(ctx, objectKey(f), "orphaned payload after delete")
	return nil
}

func (s *Facade) dropObject(ctx context.Context, key, msg string) {
	if err := s.backend.DeleteObject(ctx, key); err != nil {
		logging.WithContext(ctx).Warn(msg,
			logging.String("key", key),
			logging.String("backend", s.backend.Type()),
			logging.Err(err),
		)
	}
}

// Close closes both halves.
func (s *Facade) Close() error {
	return errors.Join(s.meta.Close(), s.backend.Close())
}

// keyedLocks hands out one RWMutex per fragment key and drops it once the
// last holder releases it.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*keyedLock
}

type keyedLock struct {
	sync.RWMutex
	refs int
}

func (k *keyedLocks) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.m[key]
	if !ok {
		l = &keyedLock{}
		k.m[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.m, key)
	}
}

func (k *keyedLocks) lock(key string) func() {
	l := k.acquire(key)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(key, l)
	}
}

func (k *keyedLocks) rlock(key string) func() {
	l := k.acquire(key)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(key, l)
	}
}
