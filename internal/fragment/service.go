package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AndyChoi4495/fragments/internal/convert"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/mediatype"
	"github.com/AndyChoi4495/fragments/internal/metrics"
)

// Service implements the fragment operations on top of a Store.
type Service struct {
	store Store
}

// NewService creates a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create persists a new fragment and its payload in one step.
func (s *Service) Create(ctx context.Context, ownerID, contentType string, payload []byte) (*Fragment, error) {
	if payload == nil {
		payload = []byte{}
	}
	f, err := New(ownerID, contentType, payload)
	if err != nil {
		return nil, err
	}
	if err := s.store.WriteFragment(ctx, f.Metadata(), payload); err != nil {
		metrics.RecordFragmentWrite(f.Size, false)
		return nil, storeError("create", f.ID, err)
	}
	metrics.RecordFragmentWrite(f.Size, true)

	logging.WithContext(ctx).Debug("fragment created",
		logging.String("id", f.ID),
		logging.String("type", f.Type),
		logging.Int64("size", f.Size),
	)
	return f, nil
}

// ByID loads the metadata of one fragment. A missing fragment yields
// (nil, nil).
func (s *Service) ByID(ctx context.Context, ownerID, id string) (*Fragment, error) {
	if ownerID == "" {
		return nil, validationError("get", "owner id is required")
	}
	if id == "" {
		return nil, nil
	}
	f, err := s.store.ReadMetadata(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get", id, err)
	}
	if err := f.Validate(); err != nil {
		return nil, storeError("get", id, fmt.Errorf("stored metadata is invalid: %w", err))
	}
	return f, nil
}

// Listing is the result of ByOwner. It marshals as an array of ids, or as
// an array of metadata objects when expanded.
type Listing struct {
	Expanded  bool
	IDs       []string
	Fragments []*Fragment
}

// MarshalJSON implements json.Marshaler.
func (l *Listing) MarshalJSON() ([]byte, error) {
	if l.Expanded {
		if l.Fragments == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Fragments)
	}
	if l.IDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.IDs)
}

// ByOwner lists every fragment belonging to ownerID, oldest first.
func (s *Service) ByOwner(ctx context.Context, ownerID string, expand bool) (*Listing, error) {
	if ownerID == "" {
		return nil, validationError("list", "owner id is required")
	}
	list, err := s.store.ListMetadata(ctx, ownerID)
	if err != nil {
		return nil, storeError("list", "", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Created.Before(list[j].Created)
	})

	out := &Listing{Expanded: expand, IDs: make([]string, 0, len(list))}
	for _, f := range list {
		out.IDs = append(out.IDs, f.ID)
	}
	if expand {
		out.Fragments = make([]*Fragment, 0, len(list))
		for _, f := range list {
			out.Fragments = append(out.Fragments, f.Metadata())
		}
	}
	return out, nil
}

// Data returns the payload of f, loading it from the Store on first use.
// The loaded snapshot also refreshes f's metadata so size and payload
// always agree.
func (s *Service) Data(ctx context.Context, f *Fragment) ([]byte, error) {
	if f.HasData() {
		return f.data, nil
	}
	fresh, payload, err := s.store.ReadFragment(ctx, f.OwnerID, f.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("read", f.ID)
	}
	if err != nil {
		return nil, storeError("read", f.ID, err)
	}
	if int64(len(payload)) != fresh.Size {
		return nil, storeError("read", f.ID,
			fmt.Errorf("payload length %d does not match recorded size %d", len(payload), fresh.Size))
	}
	*f = *fresh.Metadata()
	f.data = payload
	return payload, nil
}

// Replace swaps the payload of f and persists metadata and payload together.
// A non-empty declaredType replaces the stored type. On failure f is left
// as it was.
func (s *Service) Replace(ctx context.Context, f *Fragment, payload []byte, declaredType string) error {
	if payload == nil {
		return validationError("replace", "payload is required")
	}
	if declaredType != "" && !mediatype.IsIngestible(declaredType) {
		return &Error{
			Kind:   KindValidation,
			Reason: ReasonUnsupportedType,
			Op:     "replace",
			ID:     f.ID,
			Err:    fmt.Errorf("unsupported type %q", declaredType),
		}
	}

	prev := *f
	if declaredType != "" {
		f.Type = declaredType
	}
	f.setData(payload)

	if err := s.store.WriteFragment(ctx, f.Metadata(), payload); err != nil {
		*f = prev
		metrics.RecordFragmentWrite(int64(len(payload)), false)
		return storeError("replace", f.ID, err)
	}
	metrics.RecordFragmentWrite(f.Size, true)
	return nil
}

// Update applies a PUT. A body of the fragment's own type replaces the
// payload. A different ingestible type with an empty body transcodes the
// stored payload to that type. A different type with a body is refused.
func (s *Service) Update(ctx context.Context, ownerID, id, contentType string, body []byte) (*Fragment, error) {
	target, err := mediatype.BaseType(contentType)
	if err != nil || !mediatype.IsIngestible(target) {
		return nil, &Error{
			Kind:   KindValidation,
			Reason: ReasonUnsupportedType,
			Op:     "update",
			ID:     id,
			Err:    fmt.Errorf("unsupported type %q", contentType),
		}
	}

	f, err := s.ByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, notFound("update", id)
	}

	if target == f.MimeType() {
		if body == nil {
			body = []byte{}
		}
		if err := s.Replace(ctx, f, body, contentType); err != nil {
			return nil, err
		}
		return f, nil
	}

	if len(body) > 0 {
		return nil, validationError("update",
			"content type %s does not match fragment type %s", target, f.MimeType())
	}
	if !mediatype.CanConvert(f.Type, target) {
		return nil, &Error{
			Kind:   KindUnsupportedConversion,
			Reason: ReasonNoRoute,
			Op:     "update",
			ID:     id,
			Err:    fmt.Errorf("%s cannot be converted to %s", f.MimeType(), target),
		}
	}

	data, err := s.Data(ctx, f)
	if err != nil {
		return nil, err
	}
	out, err := s.convert(ctx, f, data, target)
	if err != nil {
		return nil, err
	}
	if err := s.Replace(ctx, f, out, target); err != nil {
		return nil, err
	}
	return f, nil
}

// Representation is the result of Read: the bytes to send and the type to
// label them with.
type Representation struct {
	Fragment  *Fragment
	Type      string
	Data      []byte
	Converted bool
}

// SplitID separates a requested id from its extension at the last ".".
// ok is false when there is no separator at all.
func SplitID(raw string) (id, ext string, ok bool) {
	i := strings.LastIndexByte(raw, '.')
	if i < 0 {
		return raw, "", false
	}
	return raw[:i], raw[i+1:], true
}

// Read resolves a requested id (optionally with an extension) to the bytes
// that should be served.
func (s *Service) Read(ctx context.Context, ownerID, rawID string) (*Representation, error) {
	id, ext, hasExt := SplitID(rawID)

	f, err := s.ByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, notFound("read", id)
	}

	if !hasExt {
		data, err := s.Data(ctx, f)
		if err != nil {
			return nil, err
		}
		return &Representation{Fragment: f, Type: f.Type, Data: data}, nil
	}

	target, known := mediatype.ForExtension(ext)
	if !known {
		return nil, &Error{
			Kind:   KindUnsupportedConversion,
			Reason: ReasonUnknownExtension,
			Op:     "read",
			ID:     id,
			Err:    fmt.Errorf("unknown extension %q", ext),
		}
	}
	if !mediatype.CanConvert(f.Type, target) {
		return nil, &Error{
			Kind:   KindUnsupportedConversion,
			Reason: ReasonNoRoute,
			Op:     "read",
			ID:     id,
			Err:    fmt.Errorf("%s cannot be converted to %s", f.MimeType(), target),
		}
	}

	data, err := s.Data(ctx, f)
	if err != nil {
		return nil, err
	}
	if target == f.MimeType() {
		return &Representation{Fragment: f, Type: f.Type, Data: data}, nil
	}

	out, err := s.convert(ctx, f, data, target)
	if err != nil {
		return nil, err
	}
	return &Representation{Fragment: f, Type: target, Data: out, Converted: true}, nil
}

func (s *Service) convert(ctx context.Context, f *Fragment, data []byte, target string) ([]byte, error) {
	source := f.MimeType()
	start := time.Now()
	out, err := convert.Convert(f.Type, data, target)
	metrics.RecordConversion(source, target, time.Since(start), err == nil)

	if err != nil {
		logging.WithContext(ctx).Warn("conversion failed",
			logging.String("id", f.ID),
			logging.String("source", source),
			logging.String("target", target),
			logging.Err(err),
		)
		if errors.Is(err, convert.ErrUnsupported) {
			return nil, &Error{Kind: KindUnsupportedConversion, Reason: ReasonNoRoute, Op: "convert", ID: f.ID, Err: err}
		}
		return nil, &Error{Kind: KindConversion, Op: "convert", ID: f.ID, Err: err}
	}
	return out, nil
}

// Delete removes a fragment's metadata and payload.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return validationError("delete", "owner id is required")
	}
	err := s.store.Delete(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return notFound("delete", id)
	}
	if err != nil {
		return storeError("delete", id, err)
	}
	return nil
}
