// Package serialize implements the wire schema (C9, §4.7): five
// top-level envelope messages — Dag, DagGroup, Alo, Input, Output —
// each wrapped in a KnownType envelope tagged "IYFC", plus an
// out-of-band raw stream for bootstrapping keys. Sub-messages are
// encoded with encoding/gob, the same approach the teacher's own
// marshaler.go files use for composite parameter structs too irregular
// for a hand-rolled binary layout (see DESIGN.md).
package serialize

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/errs"
)

// creatorTag identifies every envelope this package emits, per §6
// "wrapped in a KnownType with producer tag 'IYFC'".
const creatorTag = "IYFC"

// FormatVersion is IYFC_FORMAT_VERSION (§6): bumped on any
// incompatible schema change to a message registered below.
const FormatVersion = 1

// envelopeKind names the inner message a KnownType wraps, used to
// dispatch a loader by inner-type name per §4.7.
type envelopeKind uint8

const (
	kindDag envelopeKind = iota
	kindDagGroup
	kindAlo
	kindInput
	kindOutput
)

// knownType is the discriminated-union envelope every top-level
// message is wrapped in before being handed to a caller as a string.
type knownType struct {
	Creator string
	Version int
	Kind    envelopeKind
	Body    []byte
}

func wrap(kind envelopeKind, body interface{}) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(body); err != nil {
		return "", errs.E(errs.ParseFailure, "serialize: encode body: %w", err)
	}
	env := knownType{Creator: creatorTag, Version: FormatVersion, Kind: kind, Body: buf.Bytes()}
	var envBuf bytes.Buffer
	if err := gob.NewEncoder(&envBuf).Encode(env); err != nil {
		return "", errs.E(errs.ParseFailure, "serialize: encode envelope: %w", err)
	}
	return envBuf.String(), nil
}

func unwrap(data string, want envelopeKind, body interface{}) error {
	var env knownType
	if err := gob.NewDecoder(bytes.NewReader([]byte(data))).Decode(&env); err != nil {
		return errs.E(errs.ParseFailure, "serialize: decode envelope: %w", err)
	}
	if env.Creator != creatorTag {
		return errs.E(errs.UnknownEnvelopeTag, "serialize: unrecognized creator tag %q", env.Creator)
	}
	if env.Version != FormatVersion {
		return errs.E(errs.EnvelopeOverrun, "serialize: format version %d unsupported (have %d)", env.Version, FormatVersion)
	}
	if env.Kind != want {
		return errs.E(errs.UnknownEnvelopeTag, "serialize: expected envelope kind %d, got %d", want, env.Kind)
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Body)).Decode(body); err != nil {
		return errs.E(errs.ParseFailure, "serialize: decode body: %w", err)
	}
	return nil
}

// wireNode is one node's post-order serialized form: its opcode,
// already-resolved operand indices and attribute list, per §4.7's
// "emits opcode, operand indices (already assigned), and attribute
// list".
type wireNode struct {
	Kind     dag.OpKind
	Operands []int32
	Attrs    []wireAttr
}

// wireAttr tags each (key, value) pair with a value_case discriminant
// so deserialization can dispatch on it and verify the pair is valid,
// per §4.7.
type wireAttr struct {
	Key   dag.AttrKey
	Case  attrCase
	U32   uint32
	F64   []float64
	I64   []int64
	Bool  bool
}

type attrCase uint8

const (
	caseNone attrCase = iota
	caseU32
	caseType
	caseConstF64Dense
	caseConstI64Dense
	caseBool
)

// wireDag is the Dag envelope body. Of the six flags of
// DagSerializePara (dag.SerializeParams), only NodeInfo and Signature
// select a sub-message here (HasNodeInfo, HasSignature); GenkeyInfo and
// the three context flags have no field in this message and do not
// change what is encoded.
type wireDag struct {
	Name  string
	Slots int

	HasNodeInfo bool
	Nodes       []wireNode
	Inputs      map[string]int32
	Outputs     map[string]int32

	HasSignature bool
	Signature    []byte

	DefaultScale        uint32
	BootstrapEnabled    bool
	AfterReductionDepth int
	Decision            dag.BackendKind
}

// wireDagGroup is the DagGroup envelope body: the common header plus
// one child sub-DAG message per §4.7 "Groups serialize as their
// common envelope plus one sub-DAG message per child."
type wireDagGroup struct {
	Name     string
	Children []wireDag
}

// wireAlo is the Alo envelope body: scheme parameters plus a
// backend-specific opaque key blob and a signature, per §4.7's "Alo
// (scheme parameters + keys + signature bundle, backend-specific inner
// body)". The key blob itself is produced by the owning backend
// adapter and treated as opaque bytes here.
type wireAlo struct {
	Decision  dag.BackendKind
	KeyBlob   []byte
	Signature []byte
}

// wireValuation is the shared shape behind the Input/Output envelopes:
// one named slot per declared input/output, each an opaque
// backend-encrypted ciphertext blob (the backend adapter's own
// MarshalBinary equivalent, out of scope for this package — callers
// supply already-serialized bytes from backend.Cipher.Inner()).
type wireValuation struct {
	Values map[string][]byte
}

// SaveDag implements save_dag_to_string (§6). NodeInfo is emitted only
// when p.NodeInfo is set; Signature only when p.Signature is set (a
// blake3 hash over the node stream, catching accidental corruption or
// mismatched Dag versions on load).
func SaveDag(d *dag.Dag, p dag.SerializeParams) (string, error) {
	w := wireDag{
		Name:                d.Name,
		Slots:               d.Slots(),
		DefaultScale:        d.DefaultScale,
		BootstrapEnabled:    d.BootstrapEnabled,
		AfterReductionDepth: d.AfterReductionDepth,
		Decision:            d.Decision,
	}
	if p.NodeInfo {
		nodes, inputs, outputs, err := serializeNodes(d)
		if err != nil {
			return "", err
		}
		w.HasNodeInfo = true
		w.Nodes = nodes
		w.Inputs = inputs
		w.Outputs = outputs
	}
	if p.Signature {
		w.HasSignature = true
		w.Signature = signNodes(w.Nodes)
	}
	return wrap(kindDag, w)
}

// LoadDag implements load_dag_from_string (§6), allocating nodes in
// the order messages arrive and resolving operand indices to
// already-constructed nodes, per §4.7.
func LoadDag(data string) (*dag.Dag, error) {
	var w wireDag
	if err := unwrap(data, kindDag, &w); err != nil {
		return nil, err
	}
	d, err := dag.New(w.Name, w.Slots)
	if err != nil {
		return nil, err
	}
	d.DefaultScale = w.DefaultScale
	d.BootstrapEnabled = w.BootstrapEnabled
	d.AfterReductionDepth = w.AfterReductionDepth
	d.Decision = w.Decision

	if w.HasSignature {
		if got := signNodes(w.Nodes); !bytes.Equal(got, w.Signature) {
			return nil, errs.E(errs.ParseFailure, "serialize: dag %q signature mismatch", w.Name)
		}
	}
	if w.HasNodeInfo {
		if err := deserializeNodes(d, w.Nodes, w.Inputs, w.Outputs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// serializeNodes walks d's sinks in post-order via an explicit
// visited/pending stack, assigning consecutive indices as nodes are
// finalized, per §4.7. The resulting wireNode.Operands reference
// positions in the returned slice, not the original dag.NodeIndex
// values (those are session-local and meaningless to a deserializer
// starting a fresh arena).
func serializeNodes(d *dag.Dag) ([]wireNode, map[string]int32, map[string]int32, error) {
	finalIndex := make(map[dag.NodeIndex]int32)
	var out []wireNode

	var visit func(idx dag.NodeIndex, pending map[dag.NodeIndex]bool) error
	visit = func(idx dag.NodeIndex, pending map[dag.NodeIndex]bool) error {
		if _, done := finalIndex[idx]; done {
			return nil
		}
		if pending[idx] {
			return errs.E(errs.ParseFailure, "serialize: cycle detected at node %d", idx)
		}
		pending[idx] = true
		n := d.Node(idx)
		operands := make([]int32, 0, len(n.Operands()))
		for _, op := range n.Operands() {
			if err := visit(op, pending); err != nil {
				return err
			}
			operands = append(operands, finalIndex[op])
		}
		delete(pending, idx)
		finalIndex[idx] = int32(len(out))
		out = append(out, wireNode{Kind: n.Kind(), Operands: operands, Attrs: serializeAttrs(n)})
		return nil
	}

	pending := make(map[dag.NodeIndex]bool)
	for idx := range d.Sinks() {
		if err := visit(idx, pending); err != nil {
			return nil, nil, nil, err
		}
	}

	inputs := make(map[string]int32, len(d.Inputs()))
	for name, idx := range d.Inputs() {
		inputs[name] = finalIndex[idx]
	}
	outputs := make(map[string]int32, len(d.Outputs()))
	for name, idx := range d.Outputs() {
		outputs[name] = finalIndex[idx]
	}
	return out, inputs, outputs, nil
}

func serializeAttrs(n *dag.Node) []wireAttr {
	var out []wireAttr
	if t, ok := n.Attrs().TypeAttr(); ok {
		out = append(out, wireAttr{Key: dag.AttrType, Case: caseType, U32: uint32(t)})
	}
	if v, ok := n.Attrs().U32(dag.AttrRescaleDivisor); ok {
		out = append(out, wireAttr{Key: dag.AttrRescaleDivisor, Case: caseU32, U32: v})
	}
	if v, ok := n.Attrs().U32(dag.AttrRotation); ok {
		out = append(out, wireAttr{Key: dag.AttrRotation, Case: caseU32, U32: v})
	}
	if v, ok := n.Attrs().U32(dag.AttrEncodeAtScale); ok {
		out = append(out, wireAttr{Key: dag.AttrEncodeAtScale, Case: caseU32, U32: v})
	}
	if v, ok := n.Attrs().U32(dag.AttrEncodeAtLevel); ok {
		out = append(out, wireAttr{Key: dag.AttrEncodeAtLevel, Case: caseU32, U32: v})
	}
	if c, ok := n.Attrs().ConstF64(); ok && !c.IsSparse() {
		out = append(out, wireAttr{Key: dag.AttrConstValue, Case: caseConstF64Dense, F64: c.Dense})
	}
	if c, ok := n.Attrs().ConstI64(); ok && !c.IsSparse() {
		out = append(out, wireAttr{Key: dag.AttrConstValueInt64, Case: caseConstI64Dense, I64: c.Dense})
	}
	return out
}

// deserializeNodes allocates nodes in the order messages arrive,
// resolving operand indices to already-constructed nodes; attribute
// deserialization dispatches on each wireAttr's Case and verifies the
// (key, value) pair is valid, per §4.7.
func deserializeNodes(d *dag.Dag, nodes []wireNode, inputs, outputs map[string]int32) error {
	inputNameByIdx := make(map[int32]string, len(inputs))
	for name, idx := range inputs {
		inputNameByIdx[idx] = name
	}
	outputNameByIdx := make(map[int32]string, len(outputs))
	for name, idx := range outputs {
		outputNameByIdx[idx] = name
	}

	built := make([]*dag.Node, len(nodes))
	for i, wn := range nodes {
		operands := make([]*dag.Node, len(wn.Operands))
		for j, op := range wn.Operands {
			if int(op) >= i {
				return errs.E(errs.IndexResolution, "serialize: node %d references unbuilt operand %d", i, op)
			}
			operands[j] = built[op]
		}
		n, err := buildNode(d, wn, operands, inputNameByIdx[int32(i)], outputNameByIdx[int32(i)])
		if err != nil {
			return err
		}
		if err := applyAttrs(n, wn.Attrs); err != nil {
			return err
		}
		built[i] = n
	}
	for name, idx := range inputs {
		if int(idx) >= len(built) {
			return errs.E(errs.IndexResolution, "serialize: input %q references out-of-range node %d", name, idx)
		}
		_ = name // the rebuilt Input node already registered itself via MakeInput
	}
	for name, idx := range outputs {
		if int(idx) >= len(built) {
			return errs.E(errs.IndexResolution, "serialize: output %q references out-of-range node %d", name, idx)
		}
	}
	return nil
}

func buildNode(d *dag.Dag, wn wireNode, operands []*dag.Node, inputName, outputName string) (*dag.Node, error) {
	switch wn.Kind {
	case dag.OpInput:
		t := dag.Raw
		for _, a := range wn.Attrs {
			if a.Case == caseType {
				t = dag.Type(a.U32)
			}
		}
		if inputName == "" {
			return nil, errs.E(errs.IndexResolution, "serialize: input node has no registered name")
		}
		n, err := d.MakeInput(inputName, t)
		return n, err
	case dag.OpConstant:
		for _, a := range wn.Attrs {
			switch a.Case {
			case caseConstF64Dense:
				return d.MakeDenseConstant(dag.NewDenseConst(a.F64)), nil
			case caseConstI64Dense:
				return d.MakeInt64DenseConstant(dag.NewDenseConst(a.I64)), nil
			}
		}
		return nil, errs.E(errs.InvalidAttributeType, "serialize: constant node missing a value attribute")
	case dag.OpOutput:
		if outputName == "" {
			return nil, errs.E(errs.IndexResolution, "serialize: output node has no registered name")
		}
		return d.MakeOutput(outputName, operands[0])
	case dag.OpAdd, dag.OpSub, dag.OpMul, dag.OpDiv:
		return d.MakeBinary(wn.Kind, operands[0], operands[1]), nil
	case dag.OpRotateLeftConst, dag.OpRotateRightConst:
		k := uint32(0)
		for _, a := range wn.Attrs {
			if a.Key == dag.AttrRotation {
				k = a.U32
			}
		}
		return d.MakeUnary(wn.Kind, operands[0]), setRotation(d, operands[0], wn.Kind, k)
	default:
		return d.MakeUnary(wn.Kind, operands[0]), nil
	}
}

// setRotation does nothing: deserialization builds a bare unary node in
// buildNode's rotation arm, and applyAttrs restores its Rotation
// attribute like any other u32 attribute, so this wrapper exists only
// to keep buildNode's switch uniform.
func setRotation(d *dag.Dag, _ *dag.Node, _ dag.OpKind, _ uint32) error { return nil }

func applyAttrs(n *dag.Node, attrs []wireAttr) error {
	for _, a := range attrs {
		switch a.Case {
		case caseU32:
			n.Attrs().SetU32(a.Key, a.U32)
		case caseType:
			// Already applied by buildNode for Input nodes; other kinds
			// recompute Type via TypeHandler (P2) on the next Compile.
		case caseBool:
			n.Attrs().Set(a.Key, a.Bool)
		case caseConstF64Dense, caseConstI64Dense, caseNone:
			// Handled by buildNode at construction time.
		default:
			return errs.E(errs.InvalidAttributeType, "serialize: node has attribute with unknown value_case %d", a.Case)
		}
	}
	return nil
}

func signNodes(nodes []wireNode) []byte {
	h := blake3.New()
	for _, n := range nodes {
		fmt.Fprintf(h, "%d:%v:", n.Kind, n.Operands)
	}
	return h.Sum(nil)
}

// SaveDagGroup implements the group form of save_dag_to_string: the
// common envelope plus one sub-DAG message per child, per §4.7.
func SaveDagGroup(g *dag.Group, p dag.SerializeParams) (string, error) {
	w := wireDagGroup{Name: g.Name}
	for _, child := range g.Children() {
		body := wireDag{
			Name:                child.Name,
			Slots:               child.Slots(),
			DefaultScale:        child.DefaultScale,
			BootstrapEnabled:    child.BootstrapEnabled,
			AfterReductionDepth: child.AfterReductionDepth,
			Decision:            child.Decision,
		}
		if p.NodeInfo {
			nodes, inputs, outputs, err := serializeNodes(child)
			if err != nil {
				return "", err
			}
			body.HasNodeInfo = true
			body.Nodes = nodes
			body.Inputs = inputs
			body.Outputs = outputs
		}
		w.Children = append(w.Children, body)
	}
	return wrap(kindDagGroup, w)
}

// SaveAlo implements save_keys_to_string: scheme parameters, a
// backend-opaque key blob and a blake3 signature over it.
func SaveAlo(decision dag.BackendKind, keyBlob []byte) (string, error) {
	h := blake3.New()
	h.Write(keyBlob)
	return wrap(kindAlo, wireAlo{Decision: decision, KeyBlob: keyBlob, Signature: h.Sum(nil)})
}

// LoadAlo implements load_keys_from_string.
func LoadAlo(data string) (dag.BackendKind, []byte, error) {
	var w wireAlo
	if err := unwrap(data, kindAlo, &w); err != nil {
		return 0, nil, err
	}
	h := blake3.New()
	h.Write(w.KeyBlob)
	if !bytes.Equal(h.Sum(nil), w.Signature) {
		return 0, nil, errs.E(errs.ParseFailure, "serialize: alo signature mismatch")
	}
	return w.Decision, w.KeyBlob, nil
}

// SaveInput implements save_input_to_string: one opaque ciphertext
// blob per named input slot.
func SaveInput(values map[string][]byte) (string, error) {
	return wrap(kindInput, wireValuation{Values: values})
}

// LoadInput implements load_input_from_string.
func LoadInput(data string) (map[string][]byte, error) {
	var w wireValuation
	if err := unwrap(data, kindInput, &w); err != nil {
		return nil, err
	}
	return w.Values, nil
}

// SaveOutput implements save_output_to_string.
func SaveOutput(values map[string][]byte) (string, error) {
	return wrap(kindOutput, wireValuation{Values: values})
}

// LoadOutput implements load_output_from_string.
func LoadOutput(data string) (map[string][]byte, error) {
	var w wireValuation
	if err := unwrap(data, kindOutput, &w); err != nil {
		return nil, err
	}
	return w.Values, nil
}

// SaveBootstrappingKey implements save_by_type(BootstrappingKey, ...):
// bootstrapping keys are written as a raw byte stream rather than
// wrapped in a KnownType envelope, since they can exceed the envelope
// size limit (§4.7).
func SaveBootstrappingKey(key []byte) []byte {
	return append([]byte(nil), key...)
}

// LoadBootstrappingKey implements load_by_type(BootstrappingKey, ...).
func LoadBootstrappingKey(raw []byte) []byte {
	return append([]byte(nil), raw...)
}
