// Package diagnostics computes precision/noise-budget summaries over
// a decrypted vector against the plaintext-evaluated reference it
// should match, mirroring the shape of the grounding library's
// ckks.PrecisionStats/GetPrecisionStats (§4.14) but built on
// github.com/montanaflynn/stats for the mean/median/percentile math
// instead of hand-rolled sorting and averaging.
package diagnostics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/fhegraph/hedag/errs"
)

// Stats summarizes the per-slot absolute error between a want vector
// and a have vector, in both raw and log2-precision ("bits correct")
// form, the way PrecisionStats reports min/max/mean/median precision.
type Stats struct {
	MinPrecision    float64
	MaxPrecision    float64
	MeanPrecision   float64
	MedianPrecision float64
	STD             float64

	MinDelta    float64
	MaxDelta    float64
	MeanDelta   float64
	MedianDelta float64
}

func (s Stats) String() string {
	return fmt.Sprintf("MIN Prec: %.2f  MAX Prec: %.2f  AVG Prec: %.2f  MED Prec: %.2f  STD: %.2f",
		s.MinPrecision, s.MaxPrecision, s.MeanPrecision, s.MedianPrecision, s.STD)
}

// PrecisionStats computes Stats over want/have, which must be the same
// length (one entry per slot), for any caller wanting a numeric
// confidence signal instead of a boolean pass/fail.
func PrecisionStats(want, have []float64) (Stats, error) {
	if len(want) != len(have) {
		return Stats{}, errs.E(errs.ShapeMismatch, "diagnostics: want has %d slots, have has %d", len(want), len(have))
	}
	if len(want) == 0 {
		return Stats{}, errs.E(errs.EmptyResult, "diagnostics: want/have are empty")
	}

	deltas := make([]float64, len(want))
	precisions := make([]float64, len(want))
	for i := range want {
		d := math.Abs(want[i] - have[i])
		deltas[i] = d
		// a perfect match carries infinite precision; cap the value used
		// for the log2 derivation at the float64 mantissa's bit width
		// rather than reporting +Inf, without disturbing the reported delta.
		p := d
		if p == 0 {
			p = math.Exp2(-52)
		}
		precisions[i] = math.Log2(1 / p)
	}

	meanDelta, err := stats.Mean(deltas)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: mean delta: %w", err)
	}
	medianDelta, err := stats.Median(deltas)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: median delta: %w", err)
	}
	minDelta, err := stats.Min(deltas)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: min delta: %w", err)
	}
	maxDelta, err := stats.Max(deltas)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: max delta: %w", err)
	}
	std, err := stats.StandardDeviation(deltas)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: stddev: %w", err)
	}
	meanPrec, err := stats.Mean(precisions)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: mean precision: %w", err)
	}
	medianPrec, err := stats.Median(precisions)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: median precision: %w", err)
	}
	minPrec, err := stats.Min(precisions)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: min precision: %w", err)
	}
	maxPrec, err := stats.Max(precisions)
	if err != nil {
		return Stats{}, errs.E(errs.ParseFailure, "diagnostics: max precision: %w", err)
	}

	return Stats{
		MinPrecision:    minPrec,
		MaxPrecision:    maxPrec,
		MeanPrecision:   meanPrec,
		MedianPrecision: medianPrec,
		STD:             std,
		MinDelta:        minDelta,
		MaxDelta:        maxDelta,
		MeanDelta:       meanDelta,
		MedianDelta:     medianDelta,
	}, nil
}
