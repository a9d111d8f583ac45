// Package descriptor holds the face descriptor type and the helpers that keep
// descriptors comparable: dimension checks, finiteness checks and distance.
package descriptor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultDimension is the descriptor size produced by the face recognition model.
const DefaultDimension = 128

// DefaultThreshold is the Euclidean distance below which two descriptors are
// considered the same identity.
const DefaultThreshold = 0.6

// Descriptor is a face embedding.
type Descriptor []float32

var (
	// ErrEmpty is returned for a descriptor with no components.
	ErrEmpty = errors.New("descriptor is empty")
	// ErrNonFinite is returned when a component is NaN or infinite.
	ErrNonFinite = errors.New("descriptor contains a non-finite component")
)

// LengthMismatchError reports two descriptors, or a descriptor and the
// configured dimension, that cannot be compared.
type LengthMismatchError struct {
	Input     int
	Reference int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("descriptor length mismatch: input=%d reference=%d", e.Input, e.Reference)
}

// Clone returns an independent copy of d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Validate checks that d is non-empty, finite and, when dimension > 0, exactly
// dimension long.
func (d Descriptor) Validate(dimension int) error {
	if len(d) == 0 {
		return ErrEmpty
	}
	if dimension > 0 && len(d) != dimension {
		return &LengthMismatchError{Input: len(d), Reference: dimension}
	}
	for _, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// CheckComparable verifies that input and reference share a length and, when
// dimension > 0, that the shared length equals dimension.
func CheckComparable(input, reference Descriptor, dimension int) error {
	if len(input) != len(reference) {
		return &LengthMismatchError{Input: len(input), Reference: len(reference)}
	}
	if dimension > 0 && len(input) != dimension {
		return &LengthMismatchError{Input: len(input), Reference: len(reference)}
	}
	return nil
}

// EuclideanDistance returns the L2 distance between a and b. Callers must
// have checked the lengths with CheckComparable.
func EuclideanDistance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// FormatScore renders a distance or similarity with four decimal digits.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
