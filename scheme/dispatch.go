// Package scheme implements the scheme dispatcher (C7, §4.5): the
// decision table that picks one backend from a compiled Dag's
// characteristics, and the DagGroup variant that unifies a choice
// across every child.
package scheme

import (
	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/errs"
)

// Decide implements the ordered decision table of §4.5:
//
//  1. ShortInt (set by any Div insertion) -> SmallInt.
//  2. HasInt64 -> BFV; OpenFHE-BFV if the post-reduction depth exceeds
//     MaxSealBits/perMulBits - DefaultQCount (see pickByDepth), else
//     SEAL-BFV.
//  3. HasDouble (the default) -> CKKS; same library choice by depth.
//  4. Otherwise "invalid input type".
//
// d must already have gone through passes.Transpile so
// AfterReductionDepth is populated.
func Decide(d *dag.Dag, cfg config.Config) (backend.Kind, error) {
	kind, err := decide(d, cfg)
	if err != nil {
		return backend.Kind(0), err
	}
	d.Decision = toDagKind(kind)
	return kind, nil
}

func decide(d *dag.Dag, cfg config.Config) (backend.Kind, error) {
	switch {
	case d.ShortInt:
		return backend.SmallInt, nil
	case d.HasInt64:
		return pickByDepth(d, cfg, backend.SealBFV, backend.OpenFHEBFV, int(cfg.DefaultScale)/2), nil
	case d.HasDouble:
		return pickByDepth(d, cfg, backend.SealCKKS, backend.OpenFHECKKS, int(cfg.DefaultScale)), nil
	default:
		return backend.Kind(0), errs.E(errs.InvalidInputType, "dag %q carries neither double nor int64 constants/inputs", d.Name)
	}
}

// toDagKind maps a backend.Kind to the parallel dag.BackendKind enum
// the dag package declares locally to avoid a dag -> backend import
// cycle (see dag.go).
func toDagKind(k backend.Kind) dag.BackendKind {
	switch k {
	case backend.SealCKKS:
		return dag.BackendSealCKKS
	case backend.OpenFHECKKS:
		return dag.BackendOpenFHECKKS
	case backend.SealBFV:
		return dag.BackendSealBFV
	case backend.OpenFHEBFV:
		return dag.BackendOpenFHEBFV
	case backend.SmallInt:
		return dag.BackendSmallInt
	default:
		return dag.BackendUndecided
	}
}

// pickByDepth chooses sealKind unless the graph's multiplicative depth
// exceeds the deepest chain SEAL's bit budget can still cover, in which
// case it upgrades to openfheKind. Mirrors alo_decision.cpp's
// max_dep_for_seal = MAX_SEAL_BITS/scale - DEFAULT_Q_CNT, upgrading iff
// depth > max_dep_for_seal: MaxSealBits/perMulBits is how many
// per-multiplication prime slots fit the budget, minus DefaultQCount
// reserved for the key-switching/special primes every SEAL parameter
// set already carries outside that chain. perMulBits is DefaultScale
// for CKKS (one rescale per multiplication) and DefaultScale/2 for BFV
// (the §4.4 placeholder heuristic).
func pickByDepth(d *dag.Dag, cfg config.Config, sealKind, openfheKind backend.Kind, perMulBits int) backend.Kind {
	maxDepthForSeal := config.MaxSealBits/perMulBits - config.DefaultQCount
	if d.AfterReductionDepth > maxDepthForSeal {
		return openfheKind
	}
	return sealKind
}

// DecideGroup prepares every child of g individually (the caller must
// already have run passes.Transpile on each) and adopts the deepest
// child's depth and a single, unified backend chosen from the deepest
// child's own decision — matching §4.5's "each child is individually
// prepared... the group adopts the deepest child's depth and a
// unified backend, then shares one backend instance across children."
func DecideGroup(g *dag.Group, cfg config.Config) (backend.Kind, error) {
	var deepest *dag.Dag
	for _, child := range g.Children() {
		if deepest == nil || child.AfterReductionDepth > deepest.AfterReductionDepth {
			deepest = child
		}
	}
	if deepest == nil {
		return backend.Kind(0), errs.E(errs.EmptyChildDag, "group %q has no children", g.Name)
	}
	kind, err := Decide(deepest, cfg)
	if err != nil {
		return backend.Kind(0), err
	}
	g.AfterReductionDepth = deepest.AfterReductionDepth
	g.Decision = deepest.Decision
	dagKind := toDagKind(kind)
	for _, child := range g.Children() {
		child.Decision = dagKind
	}
	return kind, nil
}
