package session

import (
	"bytes"
	"encoding/gob"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
	"github.com/fhegraph/hedag/errs"
	"github.com/fhegraph/hedag/serialize"
)

// SaveDag implements save_dag_to_string (§6) for a single-Dag session.
func (s *Session) SaveDag(p dag.SerializeParams) (string, error) {
	if s.single == nil {
		return "", errs.E(errs.OperandDagMismatch, "SaveDag: session %q is a group; use SaveGroup", s.name())
	}
	return serialize.SaveDag(s.single, p)
}

// LoadDag implements load_dag_from_string, returning a fresh Session
// wrapping the deserialized Dag. The returned Session has no key
// material and has not been Compiled, so GenKeys refuses it until
// Compile has run. The Decision field the wire message carried is
// restored on dag.Dag.Decision only, not as the Session's own backend
// choice.
func LoadDag(data string) (*Session, error) {
	d, err := serialize.LoadDag(data)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: config.Default(), single: d, contexts: map[string]*passes.Context{}}, nil
}

// SaveGroup implements save_dag_to_string for a group session.
func (s *Session) SaveGroup(p dag.SerializeParams) (string, error) {
	if s.group == nil {
		return "", errs.E(errs.OperandDagMismatch, "SaveGroup: session %q is not a group", s.name())
	}
	return serialize.SaveDagGroup(s.group, p)
}

// cipherBlob bundles a backend-marshaled ciphertext with the
// scale/level the backend needs to reconstruct it (the rlwe wire form
// by itself does not carry CKKS scale across processes, §4.7).
type cipherBlob struct {
	Data  []byte
	Scale uint64
	Level int
}

func encodeBlob(b cipherBlob) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(b)
	return buf.Bytes()
}

func decodeBlob(raw []byte) (cipherBlob, error) {
	var b cipherBlob
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return cipherBlob{}, errs.E(errs.ParseFailure, "session: decode ciphertext blob: %w", err)
	}
	return b, nil
}

// SaveInput implements save_input_to_string (§6): every input staged
// by a prior Encrypt call, as backend-marshaled ciphertext bytes.
func (s *Session) SaveInput() (string, error) {
	if s.rt == nil {
		return "", errs.E(errs.NotEncrypted, "SaveInput: session %q has not Encrypted any input", s.name())
	}
	names, _ := s.inputIndex()
	blobs := make(map[string][]byte, len(names))
	for name := range names {
		data, scale, level, err := s.rt.marshalInput(name)
		if err != nil {
			continue
		}
		blobs[name] = encodeBlob(cipherBlob{Data: data, Scale: scale, Level: level})
	}
	return serialize.SaveInput(blobs)
}

// LoadInput implements load_input_from_string, staging every carried
// ciphertext as this session's input, replacing an input of the same
// name that is already staged; staged inputs not carried in data are
// kept. GenKeys must already have run so s.rt exists.
func (s *Session) LoadInput(data string) error {
	if s.rt == nil {
		return errs.E(errs.KeysNotGenerated, "LoadInput: session %q has no keys; call GenKeys first", s.name())
	}
	blobs, err := serialize.LoadInput(data)
	if err != nil {
		return err
	}
	for name, raw := range blobs {
		b, err := decodeBlob(raw)
		if err != nil {
			return err
		}
		if err := s.rt.stageRawInput(s.keys, name, b.Data, b.Scale, b.Level); err != nil {
			return errs.E(errs.ParseFailure, "LoadInput: input %q: %w", name, err)
		}
	}
	return nil
}

// SaveOutput implements save_output_to_string (§6): the raw ciphertext
// behind every output Execute last produced, before Decrypt's decoding
// step. This is what §8 scenario 6 carries from g1's session to a
// separately-held key-only session.
func (s *Session) SaveOutput() (string, error) {
	if s.rt == nil || s.lastOutputs == nil {
		return "", errs.E(errs.EmptyResult, "SaveOutput: session %q has not Executed", s.name())
	}
	blobs := make(map[string][]byte, len(s.lastOutputs))
	for name := range s.lastOutputs {
		data, scale, level, ok, err := s.rt.marshalOutput(name)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		blobs[name] = encodeBlob(cipherBlob{Data: data, Scale: scale, Level: level})
	}
	return serialize.SaveOutput(blobs)
}

// LoadOutput implements load_output_from_string: restores Execute-level
// ciphertext results into this session so Decrypt can be called on a
// key-holding session that never ran Execute itself (§8 scenario 6).
func (s *Session) LoadOutput(data string) error {
	if s.rt == nil {
		return errs.E(errs.KeysNotGenerated, "LoadOutput: session %q has no keys; call GenKeys first", s.name())
	}
	blobs, err := serialize.LoadOutput(data)
	if err != nil {
		return err
	}
	if s.lastOutputs == nil {
		s.lastOutputs = map[string]Value{}
	}
	for name, raw := range blobs {
		b, err := decodeBlob(raw)
		if err != nil {
			return err
		}
		v, err := s.rt.decryptRaw(s.keys, b.Data, b.Scale, b.Level)
		if err != nil {
			return err
		}
		s.lastOutputs[name] = v
	}
	return nil
}

// SaveKeys implements save_keys_to_string (§6), scoped down to the
// secret key alone: enough for a separately-held session to call
// LoadKeys then Decrypt over a ciphertext carried via SaveOutput, but
// not a full reconstruction of the public/relinearization/Galois key
// material GenKeys also produces (see DESIGN.md's key-serialization
// note; §1 already puts the on-disk byte layout of keys out of scope,
// only their logical schema).
func (s *Session) SaveKeys() (string, error) {
	if !s.keyed {
		return "", errs.E(errs.KeysNotGenerated, "SaveKeys: session %q has no keys; call GenKeys first", s.name())
	}
	blob, err := s.rt.marshalSecretKey(s.keys)
	if err != nil {
		return "", err
	}
	return serialize.SaveAlo(dagKindOf(s.decision), blob)
}

// LoadKeys implements load_keys_from_string: restores the backend
// decision and secret key into a Session that has already Compiled
// (so its parameter set exists) but has not yet called GenKeys. A
// Session restored this way can Decrypt but not Encrypt/Execute, since
// the public/relinearization/Galois keys are not carried.
func (s *Session) LoadKeys(data string) error {
	if !s.compiled {
		return errs.E(errs.NotCompiled, "LoadKeys: session %q has not been Compiled", s.name())
	}
	kind, blob, err := serialize.LoadAlo(data)
	if err != nil {
		return err
	}
	bk := fromDagKind(kind)
	rt, err := newRuntime(bk)
	if err != nil {
		return err
	}
	ks, err := rt.unmarshalSecretKey(blob)
	if err != nil {
		return err
	}
	s.decision = bk
	s.rt = rt
	s.keys = ks
	s.keyed = true
	return nil
}

// dagKindOf/fromDagKind convert between backend.Kind and the parallel
// dag.BackendKind enum the wire envelope carries (dag cannot import
// backend directly, see dag.go).
func dagKindOf(k backend.Kind) dag.BackendKind {
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

func fromDagKind(k dag.BackendKind) backend.Kind {
	switch k {
	case dag.BackendSealCKKS:
		return backend.SealCKKS
	case dag.BackendOpenFHECKKS:
		return backend.OpenFHECKKS
	case dag.BackendSealBFV:
		return backend.SealBFV
	case dag.BackendOpenFHEBFV:
		return backend.OpenFHEBFV
	case dag.BackendSmallInt:
		return backend.SmallInt
	default:
		return backend.Kind(0)
	}
}
