// Package metadatatest holds the conformance suite every metadata.Store
// implementation runs in its own tests.
package metadatatest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/metadata"
)

func row(owner, id string, created time.Time) *fragment.Fragment {
	return &fragment.Fragment{
		ID:      id,
		OwnerID: owner,
		Created: created,
		Updated: created,
		Type:    "text/plain; charset=utf-8",
		Size:    5,

		ObjectKey: owner + "/" + id + "/v1",
	}
}

// Run exercises s. The store must start empty.
func Run(t *testing.T, s metadata.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get(ctx, "owner", "missing"); !errors.Is(err, fragment.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		want := row("owner", "a", base)
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, "owner", "a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != want.ID || got.OwnerID != want.OwnerID || got.Type != want.Type || got.Size != want.Size || got.ObjectKey != want.ObjectKey {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if !got.Created.Equal(want.Created) || !got.Updated.Equal(want.Updated) {
			t.Errorf("timestamps changed: got %v/%v", got.Created, got.Updated)
		}
		if got.HasData() {
			t.Error("metadata rows must not carry payload")
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		f := row("owner", "a", base)
		f.Type = "text/markdown"
		f.Size = 42
		f.ObjectKey = "owner/a/v2"
		f.Updated = base.Add(time.Hour)
		if err := s.Put(ctx, f); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, "owner", "a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Type != "text/markdown" || got.Size != 42 || got.ObjectKey != "owner/a/v2" || !got.Updated.Equal(f.Updated) {
			t.Errorf("row not replaced: %+v", got)
		}
		if !got.Created.Equal(base) {
			t.Errorf("created changed to %v", got.Created)
		}
	})

	t.Run("OwnerScoping", func(t *testing.T) {
		if _, err := s.Get(ctx, "intruder", "a"); !errors.Is(err, fragment.ErrNotFound) {
			t.Errorf("foreign owner read: %v", err)
		}
		if err := s.Delete(ctx, "intruder", "a"); !errors.Is(err, fragment.ErrNotFound) {
			t.Errorf("foreign owner delete: %v", err)
		}
	})

	t.Run("ListOrdered", func(t *testing.T) {
		for i, id := range []string{"c", "b"} {
			if err := s.Put(ctx, row("owner", id, base.Add(time.Duration(i+1)*time.Minute))); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.Put(ctx, row("other", "z", base)); err != nil {
			t.Fatal(err)
		}

		list, err := s.List(ctx, "owner")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		var ids []string
		for _, f := range list {
			ids = append(ids, f.ID)
		}
		if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
			t.Errorf("List ids = %v, want [a c b]", ids)
		}

		empty, err := s.List(ctx, "nobody")
		if err != nil || len(empty) != 0 {
			t.Errorf("List(nobody) = %v, %v", empty, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(ctx, "owner", "c"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "owner", "c"); !errors.Is(err, fragment.ErrNotFound) {
			t.Errorf("Get after delete: %v", err)
		}
		if err := s.Delete(ctx, "owner", "c"); !errors.Is(err, fragment.ErrNotFound) {
			t.Errorf("second delete: %v", err)
		}
	})
}
