package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AndyChoi4495/fragments/internal/fragment"
	metamemory "github.com/AndyChoi4495/fragments/internal/metadata/memory"
	"github.com/AndyChoi4495/fragments/internal/metadata/sqlite"
	"github.com/AndyChoi4495/fragments/internal/storage/local"
	"github.com/AndyChoi4495/fragments/internal/storage/memory"
)

func newFacade(t *testing.T) (*Facade, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	return New(metamemory.New(), backend), backend
}

func newFragment(t *testing.T, payload string) *fragment.Fragment {
	t.Helper()
	f, err := fragment.New("owner", "text/plain", []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestWriteAndReadFragment(t *testing.T) {
	s, backend := newFacade(t)
	ctx := context.Background()
	f := newFragment(t, "hello")

	if err := s.WriteFragment(ctx, f.Metadata(), f.Data()); err != nil {
		t.Fatalf("WriteFragment: %v", err)
	}
	if backend.Len() != 1 {
		t.Errorf("backend holds %d objects, want 1", backend.Len())
	}

	meta, data, err := s.ReadFragment(ctx, "owner", f.ID)
	if err != nil {
		t.Fatalf("ReadFragment: %v", err)
	}
	if meta.Size != 5 || string(data) != "hello" {
		t.Errorf("got size %d data %q", meta.Size, data)
	}

	payload, err := s.ReadPayload(ctx, "owner", f.ID)
	if err != nil || string(payload) != "hello" {
		t.Errorf("ReadPayload = %q, %v", payload, err)
	}
}

func TestWriteFragmentRejectsSizeMismatch(t *testing.T) {
	s, backend := newFacade(t)
	f := newFragment(t, "hello")
	if err := s.WriteFragment(context.Background(), f.Metadata(), []byte("hi")); err == nil {
		t.Fatal("expected error")
	}
	if backend.Len() != 0 {
		t.Error("payload written despite mismatch")
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newFacade(t)
	ctx := context.Background()

	if _, err := s.ReadMetadata(ctx, "owner", "nope"); !errors.Is(err, fragment.ErrNotFound) {
		t.Errorf("ReadMetadata: %v", err)
	}
	if _, err := s.ReadPayload(ctx, "owner", "nope"); !errors.Is(err, fragment.ErrNotFound) {
		t.Errorf("ReadPayload: %v", err)
	}
	if _, _, err := s.ReadFragment(ctx, "owner", "nope"); !errors.Is(err, fragment.ErrNotFound) {
		t.Errorf("ReadFragment: %v", err)
	}
	if err := s.Delete(ctx, "owner", "nope"); !errors.Is(err, fragment.ErrNotFound) {
		t.Errorf("Delete: %v", err)
	}
}

func TestDeleteRemovesBothHalves(t *testing.T) {
	s, backend := newFacade(t)
	ctx := context.Background()
	f := newFragment(t, "bye")
	if err := s.WriteFragment(ctx, f.Metadata(), f.Data()); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, "owner", f.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if backend.Len() != 0 {
		t.Error("payload survived delete")
	}
	if _, err := s.ReadMetadata(ctx, "owner", f.ID); !errors.Is(err, fragment.ErrNotFound) {
		t.Errorf("metadata survived delete: %v", err)
	}
}

func TestWriteMetadataAndPayloadSeparately(t *testing.T) {
	s, backend := newFacade(t)
	ctx := context.Background()
	f := newFragment(t, "abc")

	if err := s.WritePayload(ctx, f.OwnerID, f.ID, f.Data()); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteMetadata(ctx, f.Metadata()); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListMetadata(ctx, "owner")
	if err != nil || len(list) != 1 || list[0].ID != f.ID {
		t.Errorf("ListMetadata = %v, %v", list, err)
	}
	if payload, err := s.ReadPayload(ctx, "owner", f.ID); err != nil || string(payload) != "abc" {
		t.Errorf("ReadPayload = %q, %v", payload, err)
	}

	if err := s.WritePayload(ctx, f.OwnerID, f.ID, []byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	meta, data, err := s.ReadFragment(ctx, "owner", f.ID)
	if err != nil {
		t.Fatalf("ReadFragment: %v", err)
	}
	if meta.Size != 6 || string(data) != "abcdef" {
		t.Errorf("got size %d data %q", meta.Size, data)
	}
	if backend.Len() != 1 {
		t.Errorf("backend holds %d objects, want 1", backend.Len())
	}
}

// flakyMeta fails Put while failPut is set.
type flakyMeta struct {
	*metamemory.Store
	failPut bool
}

func (m *flakyMeta) Put(ctx context.Context, f *fragment.Fragment) error {
	if m.failPut {
		return errors.New("metadata unavailable")
	}
	return m.Store.Put(ctx, f)
}

func TestReplaceKeepsPreviousVersionWhenMetadataWriteFails(t *testing.T) {
	meta := &flakyMeta{Store: metamemory.New()}
	backend := memory.New()
	s := New(meta, backend)
	svc := fragment.NewService(s)
	ctx := context.Background()

	f, err := svc.Create(ctx, "owner", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	meta.failPut = true
	if _, err := svc.Update(ctx, "owner", f.ID, "text/plain", []byte("a much longer payload")); err == nil {
		t.Fatal("expected update to fail")
	}
	meta.failPut = false

	got, data, err := s.ReadFragment(ctx, "owner", f.ID)
	if err != nil {
		t.Fatalf("fragment unreadable after failed replace: %v", err)
	}
	if string(data) != "hello" || got.Size != 5 {
		t.Errorf("got %q size %d, want hello size 5", data, got.Size)
	}
	if backend.Len() != 1 {
		t.Errorf("backend holds %d objects, want 1", backend.Len())
	}

	if _, err := svc.Update(ctx, "owner", f.ID, "text/plain", []byte("bye")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if backend.Len() != 1 {
		t.Errorf("backend holds %d objects after replace, want 1", backend.Len())
	}
}

func TestReadFollowsReplacedObject(t *testing.T) {
	s, backend := newFacade(t)
	ctx := context.Background()
	f := newFragment(t, "one")
	if err := s.WriteFragment(ctx, f.Metadata(), f.Data()); err != nil {
		t.Fatal(err)
	}
	first, err := s.ReadMetadata(ctx, "owner", f.ID)
	if err != nil {
		t.Fatal(err)
	}

	next := first.Metadata()
	next.Size = 3
	if err := s.WriteFragment(ctx, next, []byte("two")); err != nil {
		t.Fatal(err)
	}
	if next.ObjectKey == first.ObjectKey {
		t.Fatalf("object key %q reused across versions", next.ObjectKey)
	}
	if ok, _ := backend.ObjectExists(ctx, first.ObjectKey); ok {
		t.Error("previous object survived replace")
	}
	if _, data, err := s.ReadFragment(ctx, "owner", f.ID); err != nil || string(data) != "two" {
		t.Errorf("ReadFragment = %q, %v", data, err)
	}
}

// TestConcurrentReplaceNeverTearsReads hammers one fragment with writers
// and readers; every read must see a payload that matches its size.
func TestConcurrentReplaceNeverTearsReads(t *testing.T) {
	s, _ := newFacade(t)
	svc := fragment.NewService(s)
	ctx := context.Background()

	f, err := svc.Create(ctx, "owner", "text/plain", []byte("seed"))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				body := bytes.Repeat([]byte{byte('a' + w)}, 1+(i*7+w)%40)
				if _, err := svc.Update(ctx, "owner", f.ID, "text/plain", body); err != nil {
					errs <- fmt.Errorf("update: %w", err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rep, err := svc.Read(ctx, "owner", f.ID)
				if err != nil {
					errs <- fmt.Errorf("read: %w", err)
					return
				}
				if int64(len(rep.Data)) != rep.Fragment.Size {
					errs <- fmt.Errorf("torn read: %d bytes, size %d", len(rep.Data), rep.Fragment.Size)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if len(s.locks.m) != 0 {
		t.Errorf("%d lock entries leaked", len(s.locks.m))
	}
}

func TestDurableBackends(t *testing.T) {
	dir := t.TempDir()
	meta, err := sqlite.Open(dir + "/meta.db")
	if err != nil {
		t.Fatal(err)
	}
	backend, err := local.New(local.Config{RootPath: dir + "/payloads", CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}
	s := New(meta, backend)
	defer s.Close()

	svc := fragment.NewService(s)
	ctx := context.Background()
	f, err := svc.Create(ctx, "owner", "application/json", []byte(`[{"a":"1"}]`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rep, err := svc.Read(ctx, "owner", f.ID+".csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(rep.Data) != "a\n1" {
		t.Errorf("csv = %q", rep.Data)
	}

	if _, err := svc.Update(ctx, "owner", f.ID, "application/json", []byte(`[{"a":"22"}]`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, data, err := s.ReadFragment(ctx, "owner", f.ID)
	if err != nil || string(data) != `[{"a":"22"}]` || got.Size != int64(len(data)) {
		t.Errorf("ReadFragment after update = %q, %v", data, err)
	}
	if rep.Fragment.Created.Sub(f.Created).Abs() > time.Millisecond {
		t.Errorf("created drifted: %v vs %v", rep.Fragment.Created, f.Created)
	}
}
