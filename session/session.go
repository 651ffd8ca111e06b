// Package session binds the External Interfaces of spec.md §6 to a Go
// API: the sequence init_dag/set_input/set_output -> compile -> gen_keys
// -> encrypt -> execute -> decrypt a caller drives to run one program
// through the mid-end and a chosen backend, plus the serialization
// entry points of §4.7/§9. A Session wraps exactly one of a *dag.Dag or
// a *dag.Group; which one determines whether Compile/GenKeys/Execute
// operate over a single graph or fan out across a DagGroup's children
// while sharing one backend instance, per §4.5/§4.8.
package session

import (
	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/params"
)

// Session is the programmatic entry point of §6: one Dag or DagGroup
// plus the compilation/key/backend state threaded through a run.
type Session struct {
	cfg config.Config

	single *dag.Dag
	group  *dag.Group

	// contexts is keyed by child Dag name for a group, or by the single
	// Dag's own name otherwise; each pass pipeline run populates one.
	contexts map[string]*passes.Context

	paramSet    params.Set
	decision    backend.Kind
	keys        backend.KeySet
	rt          runtime
	compiled    bool
	keyed       bool
	lastOutputs map[string]Value
}

// New builds a Session around a freshly-created, empty single Dag
// (init_dag).
func New(name string, slots int) (*Session, error) {
	d, err := dag.New(name, slots)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: config.Default(), single: d, contexts: map[string]*passes.Context{}}, nil
}

// NewGroup builds a Session around a freshly-created, empty DagGroup
// (init_dag_group).
func NewGroup(name string, slots int) (*Session, error) {
	g, err := dag.NewGroup(name, slots)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: config.Default(), group: g, contexts: map[string]*passes.Context{}}, nil
}

// WithConfig overrides the default Config (scale, security level,
// quantum-safety, bootstrapping, verbosity) before Compile runs.
func (s *Session) WithConfig(cfg config.Config) *Session {
	s.cfg = cfg
	cfg.Apply()
	return s
}

// IsGroup reports whether this Session wraps a DagGroup rather than a
// single Dag.
func (s *Session) IsGroup() bool { return s.group != nil }

// Dag returns the wrapped single Dag, or nil for a group Session.
func (s *Session) Dag() *dag.Dag { return s.single }

// Group returns the wrapped DagGroup, or nil for a single-Dag Session.
func (s *Session) Group() *dag.Group { return s.group }

// AddChild attaches child's Dag to this Session's group (add_dag). The
// caller must have already called child.Dag().SetNextNodeIndex on the
// child's own session before building any node on it, per the DagGroup
// invariant (§4.8); NewChild below does this automatically for the
// common case of building a fresh child straight onto the group.
func (s *Session) AddChild(child *Session) error {
	if s.group == nil {
		return errs.E(errs.OperandDagMismatch, "AddChild: session %q is not a group", s.name())
	}
	if child.single == nil {
		return errs.E(errs.OperandDagMismatch, "AddChild: child session is itself a group")
	}
	if err := s.group.AddChild(child.single); err != nil {
		return err
	}
	return nil
}

// NewChild creates a fresh single-Dag Session already positioned at the
// group's shared next-index counter, ready to be populated with
// inputs/outputs and then passed to AddChild. This is the idiomatic way
// to build a group's children: NewChild, build the child's graph,
// AddChild(group, child).
func (s *Session) NewChild(name string) (*Session, error) {
	if s.group == nil {
		return nil, errs.E(errs.OperandDagMismatch, "NewChild: session %q is not a group", s.name())
	}
	d, err := dag.New(name, s.group.Slots())
	if err != nil {
		return nil, err
	}
	d.SetNextNodeIndex(s.group.NextIndex())
	return &Session{cfg: s.cfg, single: d, contexts: map[string]*passes.Context{}}, nil
}

// Input declares a named input on the wrapped single Dag (set_input).
// Not valid on a group Session: build inputs on a child Session via
// NewChild and add it with AddChild.
func (s *Session) Input(name string, t dag.Type) (*dag.Node, error) {
	if s.single == nil {
		return nil, errs.E(errs.OperandDagMismatch, "Input: session %q is a group; build inputs on a child", s.name())
	}
	return s.single.MakeInput(name, t)
}

// Output declares a named output over src on the wrapped single Dag
// (set_output).
func (s *Session) Output(name string, src *dag.Node) error {
	if s.single == nil {
		return errs.E(errs.OperandDagMismatch, "Output: session %q is a group; build outputs on a child", s.name())
	}
	_, err := s.single.MakeOutput(name, src)
	return err
}

func (s *Session) name() string {
	if s.group != nil {
		return s.group.Name
	}
	return s.single.Name
}

func (s *Session) slots() int {
	if s.group != nil {
		return s.group.Slots()
	}
	return s.single.Slots()
}
