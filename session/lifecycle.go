package session

import (
	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/internal/logging"
	"github.com/fhegraph/hedag/params"
	"github.com/fhegraph/hedag/scheme"
)

// Compile runs the rewriting pipeline (§4.3), parameter selection
// (§4.4) and scheme dispatch (§4.5): the `compile` operation of §6. For
// a group, every child is transpiled independently and the group
// adopts the deepest child's depth and a single unified backend
// decision, per §4.5/§4.8; the parameter set is then derived from that
// deepest child, since it is the one whose rescale/multiplication chain
// determines the coefficient-modulus depth the shared key set must
// support.
func (s *Session) Compile() error {
	var err error
	if s.group != nil {
		err = s.compileGroup()
	} else {
		err = s.compileSingle()
	}
	if err != nil {
		return err
	}
	s.warnIfDecisionSealBudgetTight()
	return nil
}

func (s *Session) compileSingle() error {
	ctx := passes.Transpile(s.single)
	s.contexts[s.single.Name] = ctx

	kind, err := scheme.Decide(s.single, s.cfg)
	if err != nil {
		return err
	}
	s.decision = kind

	p, err := params.Select(s.single, s.cfg)
	if err != nil {
		return err
	}
	s.paramSet = p
	s.compiled = true
	return nil
}

func (s *Session) compileGroup() error {
	var deepest *dag.Dag
	for _, child := range s.group.Children() {
		ctx := passes.Transpile(child)
		s.contexts[child.Name] = ctx
		if deepest == nil || child.AfterReductionDepth > deepest.AfterReductionDepth {
			deepest = child
		}
	}
	if deepest == nil {
		return errs.E(errs.EmptyChildDag, "Compile: group %q has no children", s.group.Name)
	}

	kind, err := scheme.DecideGroup(s.group, s.cfg)
	if err != nil {
		return err
	}
	s.decision = kind

	p, err := params.Select(deepest, s.cfg)
	if err != nil {
		return err
	}
	s.paramSet = p
	s.compiled = true
	return nil
}

// GenKeys produces backend keys via the chosen adapter (`gen_keys`).
// Compile must have run first so the backend decision and parameter
// set are available. For a group every child shares this one KeySet
// and Executor instance, per §4.5's "shares one backend instance
// across children".
func (s *Session) GenKeys() error {
	if !s.compiled {
		return errs.E(errs.NotCompiled, "GenKeys: session %q has not been Compiled", s.name())
	}
	rt, err := newRuntime(s.decision)
	if err != nil {
		return err
	}
	ks, err := rt.genKeys(s.paramSet)
	if err != nil {
		return err
	}
	s.rt = rt
	s.keys = ks
	s.keyed = true
	return nil
}

// Encrypt seeds input slots from vals (`encrypt`). If replace is false,
// an input already staged from a previous Encrypt call is left
// untouched (merge semantics); if true, it is re-encoded and
// re-encrypted with the new value. Each input's scale/level come off
// its own Input node's EncodeAtScale/EncodeAtLevel attributes, which
// Compile's ModSwitcher pass (CKKS only) has already finalized.
func (s *Session) Encrypt(vals Valuation, replace bool) error {
	if !s.keyed {
		return errs.E(errs.KeysNotGenerated, "Encrypt: session %q has no keys; call GenKeys first", s.name())
	}
	inputNodes, owner := s.inputIndex()
	for name, v := range vals {
		idx, ok := inputNodes[name]
		if !ok {
			return errs.E(errs.UnknownInputName, "Encrypt: %q is not a declared input of %q", name, s.name())
		}
		d := owner[name]
		n := d.Node(idx)
		scale, _ := n.Attrs().U32(dag.AttrEncodeAtScale)
		level, _ := n.Attrs().U32(dag.AttrEncodeAtLevel)
		if err := s.rt.stageInput(s.keys, name, v, s.slots(), scale, level, replace); err != nil {
			return err
		}
	}
	return nil
}

// inputIndex returns every declared input's node index plus, for a
// group, which child Dag owns it (so Encrypt can read that node's own
// scale/level attributes rather than assuming a single Dag's).
func (s *Session) inputIndex() (map[string]dag.NodeIndex, map[string]*dag.Dag) {
	names := map[string]dag.NodeIndex{}
	owner := map[string]*dag.Dag{}
	if s.group != nil {
		for _, child := range s.group.Children() {
			for name, idx := range child.Inputs() {
				names[name] = idx
				owner[name] = child
			}
		}
		return names, owner
	}
	for name, idx := range s.single.Inputs() {
		names[name] = idx
		owner[name] = s.single
	}
	return names, owner
}

// Execute evaluates every compiled graph (`execute`): a single run of
// the executor over the wrapped Dag, or one run per child for a group,
// sharing the one KeySet and Backend instance GenKeys produced.
// Decrypt reads the results this call stashes.
func (s *Session) Execute() error {
	if !s.keyed {
		return errs.E(errs.KeysNotGenerated, "Execute: session %q has no keys; call GenKeys first", s.name())
	}
	results := map[string]Value{}
	if s.group != nil {
		for _, child := range s.group.Children() {
			ctx, ok := s.contexts[child.Name]
			if !ok {
				return errs.E(errs.NotCompiled, "Execute: child %q was not compiled", child.Name)
			}
			out, err := s.rt.run(child, ctx, s.keys)
			if err != nil {
				return err
			}
			for name, v := range out {
				results[name] = v
			}
		}
	} else {
		ctx, ok := s.contexts[s.single.Name]
		if !ok {
			return errs.E(errs.NotCompiled, "Execute: session %q was not compiled", s.single.Name)
		}
		out, err := s.rt.run(s.single, ctx, s.keys)
		if err != nil {
			return err
		}
		results = out
	}
	s.lastOutputs = results
	return nil
}

// Decrypt returns the Valuation Execute produced (`decrypt`).
func (s *Session) Decrypt() (Valuation, error) {
	if s.lastOutputs == nil {
		return nil, errs.E(errs.EmptyResult, "Decrypt: session %q has not Executed", s.name())
	}
	out := make(Valuation, len(s.lastOutputs))
	for name, v := range s.lastOutputs {
		out[name] = v
	}
	return out, nil
}

// warnIfDecisionSealBudgetTight logs (never raises, per §7) when a
// SEAL-family decision used nearly its entire bit budget, matching the
// design note's conservative-placeholder caveat on the BFV heuristic.
func (s *Session) warnIfDecisionSealBudgetTight() {
	if s.decision != backend.SealBFV && s.decision != backend.SealCKKS {
		return
	}
	perMul := int(s.cfg.DefaultScale)
	if s.decision == backend.SealBFV {
		perMul /= 2
	}
	used := s.depth() * perMul
	if used > 0 && used*10 >= 881*9 {
		logging.Warnf("session %q: backend %s used %d/%d bits of the SEAL bit budget", s.name(), s.decision, used, 881)
	}
}

func (s *Session) depth() int {
	if s.group != nil {
		return s.group.AfterReductionDepth
	}
	return s.single.AfterReductionDepth
}
