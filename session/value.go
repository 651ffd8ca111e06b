package session

import "github.com/fhegraph/hedag/errs"

// ValueKind discriminates the five ValueVariant shapes of §6: f64, i64,
// u8, Vec<f64>, Vec<i64>.
type ValueKind uint8

const (
	KindF64 ValueKind = iota
	KindI64
	KindU8
	KindF64Vec
	KindI64Vec
)

// Value is one entry of a Valuation: a scalar or vector, tagged by
// Kind. Scalars are broadcast to the Dag's slot count on Encrypt;
// vectors must already equal it.
type Value struct {
	Kind   ValueKind
	F64    float64
	I64    int64
	U8     uint8
	F64Vec []float64
	I64Vec []int64
}

// F64Value wraps a float64 scalar, broadcast on encryption.
func F64Value(v float64) Value { return Value{Kind: KindF64, F64: v} }

// I64Value wraps an int64 scalar.
func I64Value(v int64) Value { return Value{Kind: KindI64, I64: v} }

// U8Value wraps a small-int-backend scalar.
func U8Value(v uint8) Value { return Value{Kind: KindU8, U8: v} }

// F64VectorValue wraps an explicit CKKS-family vector.
func F64VectorValue(v []float64) Value { return Value{Kind: KindF64Vec, F64Vec: v} }

// I64VectorValue wraps an explicit BFV-family vector.
func I64VectorValue(v []int64) Value { return Value{Kind: KindI64Vec, I64Vec: v} }

// Valuation is a name -> Value mapping, the shape both Encrypt's input
// and Decrypt's result take (§6).
type Valuation map[string]Value

// asF64Slots resolves v to a length-slots float64 vector: a scalar
// broadcasts, a vector must already match.
func (v Value) asF64Slots(slots int) ([]float64, error) {
	switch v.Kind {
	case KindF64:
		out := make([]float64, slots)
		for i := range out {
			out[i] = v.F64
		}
		return out, nil
	case KindF64Vec:
		if len(v.F64Vec) != slots {
			return nil, errs.E(errs.ShapeMismatch, "value has %d elements, dag has %d slots", len(v.F64Vec), slots)
		}
		return v.F64Vec, nil
	default:
		return nil, errs.E(errs.InvalidInputType, "value kind %d is not a CKKS-family (f64) shape", v.Kind)
	}
}

// asI64Slots resolves v to a length-slots int64 vector: a scalar
// (I64 or U8) broadcasts, a vector must already match.
func (v Value) asI64Slots(slots int) ([]int64, error) {
	switch v.Kind {
	case KindI64:
		out := make([]int64, slots)
		for i := range out {
			out[i] = v.I64
		}
		return out, nil
	case KindU8:
		out := make([]int64, slots)
		for i := range out {
			out[i] = int64(v.U8)
		}
		return out, nil
	case KindI64Vec:
		if len(v.I64Vec) != slots {
			return nil, errs.E(errs.ShapeMismatch, "value has %d elements, dag has %d slots", len(v.I64Vec), slots)
		}
		return v.I64Vec, nil
	default:
		return nil, errs.E(errs.InvalidInputType, "value kind %d is not a BFV/small-int (i64) shape", v.Kind)
	}
}
