// Package params computes the backend-agnostic parameter set a
// compiled Dag needs: rotation key set, coefficient-modulus prime
// chain and polynomial degree, following §4.4's derivation from the
// longest rescale/multiplication chain found during the rewriting
// pipeline.
package params

import (
	"math/big"

	"github.com/ALTree/bigfloat"

	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/internal/logging"
)

// Set is the parameter bundle handed to a backend's GenKeys.
type Set struct {
	N                int
	LogN             int
	Slots            int
	CoeffModulusBits []int
	RotationKeys     []int
	SecurityLevel    int
	QuantumSafe      bool
}

// Select derives a Set for d, which must already have gone through
// passes.Transpile (so EncodeAtScale/RescaleDivisor/Type attributes and
// AfterReductionDepth are populated). It is ignored when d.ShortInt
// (the small-int/TFHE-like backend has no coefficient-modulus chain to
// derive in the same sense).
func Select(d *dag.Dag, cfg config.Config) (Set, error) {
	securityLevel := int(cfg.Security)
	quantumSafe := cfg.QuantumSafe
	rotKeys := RotationKeys(d)

	if d.ShortInt {
		n, logN, err := degreeFor(32, 0, securityLevel, quantumSafe)
		if err != nil {
			return Set{}, err
		}
		return Set{N: n, LogN: logN, Slots: d.Slots(), RotationKeys: rotKeys, SecurityLevel: securityLevel, QuantumSafe: quantumSafe}, nil
	}

	bfv := d.HasInt64 && !d.HasDouble
	chain, err := coeffModulus(d, bfv)
	if err != nil {
		return Set{}, err
	}

	totalBits := sumBits(chain)
	minN := d.Slots()
	if !bfv {
		minN *= 2
	}
	n, logN, err := degreeFor(totalBits, minN, securityLevel, quantumSafe)
	if err != nil {
		return Set{}, err
	}

	derivedSlots := n
	if !bfv {
		derivedSlots = n / 2
	}
	if derivedSlots > d.Slots() {
		logging.Warnf("derived slot count %d exceeds requested %d; correctness holds via tiling", derivedSlots, d.Slots())
	}

	return Set{
		N:                n,
		LogN:             logN,
		Slots:            d.Slots(),
		CoeffModulusBits: chain,
		RotationKeys:     rotKeys,
		SecurityLevel:    securityLevel,
		QuantumSafe:      quantumSafe,
	}, nil
}

// RotationKeys walks d and collects every rotation amount a cipher
// RotateLeftConst/RotateRightConst consumes; rotations over raw
// operands need no backend rotation key, so they are skipped.
func RotationKeys(d *dag.Dag) []int {
	var keys []int
	seen := make(map[int]bool)
	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		var sign int
		switch n.Kind() {
		case dag.OpRotateLeftConst:
			sign = 1
		case dag.OpRotateRightConst:
			sign = -1
		default:
			return
		}
		t, _ := n.Attrs().TypeAttr()
		if t != dag.Cipher {
			return
		}
		k, _ := n.Attrs().U32(dag.AttrRotation)
		amount := sign * int(k)
		if !seen[amount] {
			seen[amount] = true
			keys = append(keys, amount)
		}
	})
	return keys
}

// coeffModulus implements §4.4's prime-chain derivation. For CKKS the
// growth operator is Rescale; for BFV it is a cipher x cipher Mul, with
// a fixed per-mul prime size of DefaultScale/2 in lieu of a real
// rescale divisor.
func coeffModulus(d *dag.Dag, bfv bool) ([]int, error) {
	chains := dag.NewNodeMap[[]int](d)
	defer chains.Close()

	maxPrime := 0
	longestOutputChain := []int{}
	outputSize := 0

	dag.ForwardPass(d, func(d *dag.Dag, n *dag.Node) {
		t, _ := n.Attrs().TypeAttr()
		if t == dag.Raw || n.Kind() == dag.OpEncode {
			chains.Set(n.Index(), nil)
			return
		}

		ops := n.Operands()
		var longest []int
		for _, o := range ops {
			if c := chains.At(o); len(c) > len(longest) {
				longest = c
			}
		}

		grows, divisor := growthOp(n, bfv, d.DefaultScale)
		if grows {
			longest = append(append([]int(nil), longest...), divisor)
			if divisor > maxPrime {
				maxPrime = divisor
			}
		}
		chains.Set(n.Index(), longest)

		if n.Kind() == dag.OpOutput {
			if len(longest) > len(longestOutputChain) {
				longestOutputChain = longest
			}
			operand := d.Node(ops[0])
			scale, _ := operand.Attrs().U32(dag.AttrEncodeAtScale)
			rng, _ := operand.Attrs().U32(dag.AttrRange)
			if s := int(rng) + int(scale); s > outputSize {
				outputSize = s
			}
		}
	})

	var result []int
	defaultScale := int(d.DefaultScale)
	if outputSize > defaultScale {
		remaining := outputSize
		for remaining >= defaultScale {
			result = append(result, defaultScale)
			remaining -= defaultScale
		}
		if remaining < 20 {
			remaining = 20
		}
		result = append(result, remaining)
	} else {
		p := outputSize
		if maxPrime > p {
			p = maxPrime
		}
		result = append(result, p)
	}
	result = append(result, longestOutputChain...)

	keyPrime := 0
	for _, p := range result {
		if p > keyPrime {
			keyPrime = p
		}
	}
	result = append(result, keyPrime)
	return result, nil
}

// growthOp reports whether n is this scheme's chain-growing operator
// and, if so, the prime bit-size it consumes.
func growthOp(n *dag.Node, bfv bool, defaultScale uint32) (bool, int) {
	if bfv {
		if n.Kind() != dag.OpMul {
			return false, 0
		}
		ops := n.Operands()
		return len(ops) == 2, int(defaultScale) / 2
	}
	if n.Kind() != dag.OpRescale {
		return false, 0
	}
	divisor, _ := n.Attrs().U32(dag.AttrRescaleDivisor)
	return true, int(divisor)
}

// sumBits totals the prime chain's bit-width. It composes the chain as
// the actual modulus product (each prime's bit-size as a power of two)
// in high-precision big.Float and takes a single bigfloat.Log2 of the
// result, rather than summing per-prime float64 logs: on a long rescale
// chain (depth >= 20) the latter would accumulate rounding error across
// dozens of additions before it ever reaches degreeFor's table lookup.
func sumBits(chain []int) int {
	product := new(big.Float).SetPrec(256).SetInt64(1)
	for _, bits := range chain {
		factor := new(big.Float).SetPrec(256).SetMantExp(big.NewFloat(1), bits)
		product.Mul(product, factor)
	}
	rounded, _ := bigfloat.Log2(product).Int64()
	return int(rounded)
}

// degreeFor finds the smallest tabulated N >= minN whose bit allowance
// covers totalBits at (securityLevel, quantumSafe). minN lets a caller
// enforce the packing-capacity floor a requested slot count demands,
// since a degree chosen on bit budget alone may be too small to hold it.
func degreeFor(totalBits, minN, securityLevel int, quantumSafe bool) (int, int, error) {
	table := tableFor(securityLevel, quantumSafe)
	for _, n := range orderedDegrees {
		if n < minN {
			continue
		}
		if table[n] >= totalBits {
			return n, logInt(n), nil
		}
	}
	return 0, 0, errs.E(errs.SealBitBudgetExceeded, "bit modulus too large for available parameters: %d bits requested", totalBits)
}

func logInt(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
