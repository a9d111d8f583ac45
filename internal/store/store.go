// Package store persists the single enrolled reference descriptor.
//
// Every backend keeps exactly one reference. Save replaces it atomically: a
// concurrent Load observes either the previous or the new descriptor, never a
// mix of both. Concurrent Saves are serialized and the last one wins.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/metrics"
)

// ErrNotFound is returned by Load when nothing has been enrolled yet.
var ErrNotFound = errors.New("reference descriptor not found")

// Reference is the enrolled identity.
type Reference struct {
	Descriptor descriptor.Descriptor
	EnrolledAt time.Time
	// Crop is the face region of the enrollment image. Backends persist it
	// best-effort and never return it from Load.
	Crop image.Image
}

// Store holds the current reference descriptor.
type Store interface {
	Save(ctx context.Context, ref *Reference) error
	Load(ctx context.Context) (*Reference, error)
}

type record struct {
	Descriptor []float32 `json:"descriptor"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

func checkReference(ref *Reference) error {
	if ref == nil {
		return errors.New("reference is nil")
	}
	return ref.Descriptor.Validate(0)
}

func encodeRecord(ref *Reference) ([]byte, error) {
	return json.Marshal(record{Descriptor: ref.Descriptor, EnrolledAt: ref.EnrolledAt.UTC()})
}

func decodeRecord(data []byte) (*Reference, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode reference record: %w", err)
	}
	if len(rec.Descriptor) == 0 {
		return nil, fmt.Errorf("decode reference record: %w", descriptor.ErrEmpty)
	}
	return &Reference{Descriptor: rec.Descriptor, EnrolledAt: rec.EnrolledAt}, nil
}

type instrumented struct {
	next    Store
	backend string
}

// Instrument wraps s so every call is counted under the given backend label.
func Instrument(s Store, backend string) Store {
	return &instrumented{next: s, backend: backend}
}

func (s *instrumented) Save(ctx context.Context, ref *Reference) error {
	err := s.next.Save(ctx, ref)
	metrics.StoreOperationsTotal.WithLabelValues(s.backend, "save", metrics.Status(err)).Inc()
	return err
}

func (s *instrumented) Load(ctx context.Context) (*Reference, error) {
	ref, err := s.next.Load(ctx)
	status := metrics.Status(err)
	if errors.Is(err, ErrNotFound) {
		status = "not_found"
	}
	metrics.StoreOperationsTotal.WithLabelValues(s.backend, "load", status).Inc()
	return ref, err
}
