package diagnostics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrecisionStatsExactMatch(t *testing.T) {
	want := []float64{1.0, 2.0, 3.0, 4.0}
	have := []float64{1.0, 2.0, 3.0, 4.0}

	s, err := PrecisionStats(want, have)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.MinDelta)
	require.Equal(t, 0.0, s.MaxDelta)
	require.InDelta(t, 52.0, s.MinPrecision, 1e-9)
	require.InDelta(t, 52.0, s.MaxPrecision, 1e-9)
}

func TestPrecisionStatsKnownDelta(t *testing.T) {
	want := []float64{1.0, 1.0}
	have := []float64{1.0 + math.Exp2(-10), 1.0 + math.Exp2(-20)}

	s, err := PrecisionStats(want, have)
	require.NoError(t, err)
	require.InDelta(t, 20.0, s.MaxPrecision, 1e-9)
	require.InDelta(t, 10.0, s.MinPrecision, 1e-9)
	require.Greater(t, s.MeanPrecision, 0.0)
	require.Greater(t, s.MedianPrecision, 0.0)
}

func TestPrecisionStatsShapeMismatch(t *testing.T) {
	_, err := PrecisionStats([]float64{1, 2}, []float64{1})
	require.Error(t, err)
}

func TestPrecisionStatsEmpty(t *testing.T) {
	_, err := PrecisionStats(nil, nil)
	require.Error(t, err)
}

func TestStatsString(t *testing.T) {
	s := Stats{MinPrecision: 1, MaxPrecision: 2, MeanPrecision: 1.5, MedianPrecision: 1.5}
	require.Contains(t, s.String(), "MIN Prec")
}
