package descriptor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, v float32) Descriptor {
	d := make(Descriptor, n)
	for i := range d {
		d[i] = v
	}
	return d
}

func TestValidate(t *testing.T) {
	require.NoError(t, filled(DefaultDimension, 0.1).Validate(DefaultDimension))
	require.NoError(t, filled(3, 0.1).Validate(0))

	assert.ErrorIs(t, Descriptor{}.Validate(DefaultDimension), ErrEmpty)

	err := filled(64, 0.1).Validate(DefaultDimension)
	var mismatch *LengthMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 64, mismatch.Input)
	assert.Equal(t, DefaultDimension, mismatch.Reference)

	bad := filled(4, 0)
	bad[2] = float32(math.NaN())
	assert.ErrorIs(t, bad.Validate(4), ErrNonFinite)
	bad[2] = float32(math.Inf(1))
	assert.ErrorIs(t, bad.Validate(4), ErrNonFinite)
}

func TestCheckComparable(t *testing.T) {
	assert.NoError(t, CheckComparable(filled(128, 0), filled(128, 1), 128))

	var mismatch *LengthMismatchError
	err := CheckComparable(filled(128, 0), filled(512, 0), 128)
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 128, mismatch.Input)
	assert.Equal(t, 512, mismatch.Reference)

	// Same length but not the configured dimension is still rejected.
	err = CheckComparable(filled(64, 0), filled(64, 0), 128)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 64, mismatch.Input)
}

func TestEuclideanDistance(t *testing.T) {
	a := Descriptor{0, 0, 0}
	b := Descriptor{3, 4, 0}
	assert.InDelta(t, 5.0, EuclideanDistance(a, b), 1e-9)
	assert.Zero(t, EuclideanDistance(b, b))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.5500", FormatScore(1-0.45))
	assert.Equal(t, "0.2800", FormatScore(1-0.72))
	assert.Equal(t, "0.0000", FormatScore(0))
}

func TestCloneIsIndependent(t *testing.T) {
	d := Descriptor{1, 2, 3}
	c := d.Clone()
	c[0] = 9
	assert.Equal(t, float32(1), d[0])
	assert.Nil(t, Descriptor(nil).Clone())
}
