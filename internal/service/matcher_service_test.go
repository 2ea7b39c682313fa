package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

func TestMatcherCompareMatch(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	out, err := m.Compare([]float32{0.1, 0.2, 0.3}, []float32{0.1, 0.2, 0.35})

	require.NoError(t, err)
	assert.True(t, out.IsMatch)
	assert.InDelta(t, 0.05, out.Distance, 0.0001)
	assert.InDelta(t, 0.95, out.Confidence, 0.0001)
}

func TestMatcherCompareMismatch(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	out, err := m.Compare([]float32{0, 0, 0}, []float32{1, 0, 0})

	require.NoError(t, err)
	assert.False(t, out.IsMatch)
	assert.InDelta(t, 1.0, out.Distance, 0.0001)
	assert.Equal(t, 0.0, out.Confidence)
}

func TestMatcherDistanceAtThresholdIsNotMatch(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	out, err := m.Compare([]float32{0, 0, 0}, []float32{0.3, 0, 0})

	require.NoError(t, err)
	assert.False(t, out.IsMatch)
}

func TestMatcherCompareIsDeterministic(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())
	live := []float32{0.4, 0.1, 0.2}
	ref := []float32{0.35, 0.12, 0.22}

	first, err := m.Compare(live, ref)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := m.Compare(live, ref)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMatcherCompareEmptyLive(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	_, err := m.Compare(nil, []float32{0.1, 0.2, 0.3})

	assert.True(t, appErrors.Is(err, appErrors.ErrNoFaceDetected))
}

func TestMatcherCompareMissingReference(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	_, err := m.Compare([]float32{0.1, 0.2, 0.3}, nil)

	assert.True(t, appErrors.Is(err, appErrors.ErrNoReferenceData))
}

func TestMatcherCompareDimensionMismatch(t *testing.T) {
	m := NewMatcherService(0.3, 3, zap.NewNop())

	_, err := m.Compare([]float32{0.1, 0.2}, []float32{0.1, 0.2, 0.3})

	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
