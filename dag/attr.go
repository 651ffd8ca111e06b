package dag

import "sort"

// AttrKey identifies one attribute slot. Keys are small integers so
// that the attribute list can be a flat, sorted small-vector instead of
// a map: attribute counts per node are small (<10), so O(n) insertion
// with O(log n) binary-search lookup beats a hash map in practice.
type AttrKey uint8

const (
	AttrRescaleDivisor AttrKey = iota
	AttrRotation
	AttrConstValue
	AttrConstValueInt64
	AttrUint32Const
	AttrType
	AttrRange
	AttrBool
	AttrEncodeAtScale
	AttrEncodeAtLevel
)

// attr is one (key, value) pair. Value holds whichever concrete type
// the key implies; callers use the typed accessors on Attrs rather
// than touching attr directly.
type attr struct {
	key   AttrKey
	value interface{}
}

// Attrs is a node's attribute list: a flat slice sorted by key.
type Attrs struct {
	list []attr
}

func (a *Attrs) search(key AttrKey) (int, bool) {
	i := sort.Search(len(a.list), func(i int) bool { return a.list[i].key >= key })
	return i, i < len(a.list) && a.list[i].key == key
}

// Set inserts or overwrites the value at key, keeping the list sorted.
func (a *Attrs) Set(key AttrKey, value interface{}) {
	i, ok := a.search(key)
	if ok {
		a.list[i].value = value
		return
	}
	a.list = append(a.list, attr{})
	copy(a.list[i+1:], a.list[i:])
	a.list[i] = attr{key: key, value: value}
}

// Get returns the raw value at key and whether it is present.
func (a *Attrs) Get(key AttrKey) (interface{}, bool) {
	i, ok := a.search(key)
	if !ok {
		return nil, false
	}
	return a.list[i].value, true
}

// Has reports whether key is present.
func (a *Attrs) Has(key AttrKey) bool {
	_, ok := a.search(key)
	return ok
}

// Delete removes key if present.
func (a *Attrs) Delete(key AttrKey) {
	i, ok := a.search(key)
	if !ok {
		return
	}
	a.list = append(a.list[:i], a.list[i+1:]...)
}

// Typed accessors. Each panics if the key is present with the wrong Go
// type: that is a compiler bug, not a user error, since only the
// passes in this package ever write attributes.

func (a *Attrs) U32(key AttrKey) (uint32, bool) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

func (a *Attrs) SetU32(key AttrKey, v uint32) { a.Set(key, v) }

func (a *Attrs) TypeAttr() (Type, bool) {
	v, ok := a.Get(AttrType)
	if !ok {
		return Undef, false
	}
	return v.(Type), true
}

func (a *Attrs) SetTypeAttr(t Type) { a.Set(AttrType, t) }

func (a *Attrs) ConstF64() (ConstValue[float64], bool) {
	v, ok := a.Get(AttrConstValue)
	if !ok {
		return ConstValue[float64]{}, false
	}
	return v.(ConstValue[float64]), true
}

func (a *Attrs) SetConstF64(c ConstValue[float64]) { a.Set(AttrConstValue, c) }

func (a *Attrs) ConstI64() (ConstValue[int64], bool) {
	v, ok := a.Get(AttrConstValueInt64)
	if !ok {
		return ConstValue[int64]{}, false
	}
	return v.(ConstValue[int64]), true
}

func (a *Attrs) SetConstI64(c ConstValue[int64]) { a.Set(AttrConstValueInt64, c) }

// Clone returns a deep-enough copy (the list is copied; element values
// are assigned by value/reference as Go semantics dictate, matching
// the teacher's ShallowCopy idiom for lightweight structs).
func (a Attrs) Clone() Attrs {
	out := Attrs{list: make([]attr, len(a.list))}
	copy(out.list, a.list)
	return out
}
