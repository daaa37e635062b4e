package pickle

// Dict and Set implement Python's dict/set semantics over Value: keys
// compare and hash the way Python does it, so int64(1), float64(1.0) and
// a Bool true=1 collide the way CPython's dict would collide them. This
// mirrors the teacher's dict.go (equal/hash/kindOf machinery over
// interface{}, backed by github.com/aristanetworks/gomap) narrowed to
// operate over the closed Value union instead of reflect-inspected any,
// since Value already knows its own Kind — no reflection needed.

import (
	"fmt"
	"hash/maphash"
	"math"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Dict represents a Python dict: insertion order is not preserved,
// matching the data model's "insertion order irrelevant for correctness".
type Dict struct {
	m *gomap.Map[Value, Value]
}

// NewDict returns an empty Dict.
func NewDict() *Dict { return NewDictWithSizeHint(0) }

// NewDictWithSizeHint returns an empty Dict preallocated for size items.
func NewDictWithSizeHint(size int) *Dict {
	return &Dict{m: gomap.NewHint[Value, Value](size, valueEqual, valueHash)}
}

// Get returns the value associated with a key equal to key.
func (d *Dict) Get(key Value) (Value, bool, error) {
	if !isHashable(key) {
		return Value{}, false, errKind(Malformed, "unhashable dict key: "+key.Kind().String())
	}
	v, ok := d.m.Get(key)
	return v, ok, nil
}

// Set associates key with value, replacing any prior equal key.
func (d *Dict) Set(key, value Value) error {
	if !isHashable(key) {
		return errKind(Malformed, "unhashable dict key: "+key.Kind().String())
	}
	d.m.Set(key, value)
	return nil
}

// Len returns the number of entries.
func (d *Dict) Len() int { return d.m.Len() }

// Iter calls yield for each entry in arbitrary order until yield returns false.
func (d *Dict) Iter(yield func(key, value Value) bool) {
	it := d.m.Iter()
	for it.Next() {
		if !yield(it.Key(), it.Elem()) {
			return
		}
	}
}

// String renders the dict for debugging, in a stable (sorted) order.
func (d *Dict) String() string {
	type kv struct{ k, v string }
	items := make([]kv, 0, d.Len())
	d.Iter(func(k, v Value) bool {
		items = append(items, kv{k.GoString(), v.GoString()})
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].k < items[j].k })
	s := "{"
	for i, it := range items {
		if i > 0 {
			s += ", "
		}
		s += it.k + ": " + it.v
	}
	return s + "}"
}

// Set represents a Python set.
type Set struct {
	m *gomap.Map[Value, struct{}]
}

// NewSet returns an empty Set.
func NewSet() *Set { return &Set{m: gomap.New[Value, struct{}](valueEqual, valueHash)} }

// Add inserts key into the set.
func (s *Set) Add(key Value) error {
	if !isHashable(key) {
		return errKind(Malformed, "unhashable set element: "+key.Kind().String())
	}
	s.m.Set(key, struct{}{})
	return nil
}

// Has reports whether key is a member.
func (s *Set) Has(key Value) bool {
	_, ok := s.m.Get(key)
	return ok
}

// Len returns the number of elements.
func (s *Set) Len() int { return s.m.Len() }

// Iter calls yield for each element in arbitrary order until yield returns false.
func (s *Set) Iter(yield func(key Value) bool) {
	it := s.m.Iter()
	for it.Next() {
		if !yield(it.Key()) {
			return
		}
	}
}

// String renders the set for debugging, in a stable (sorted) order.
func (s *Set) String() string {
	items := make([]string, 0, s.Len())
	s.Iter(func(k Value) bool {
		items = append(items, k.GoString())
		return true
	})
	sort.Strings(items)
	out := "{"
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out + "}"
}

// isHashable reports whether v is allowed as a Dict key / Set element,
// matching which Python types support __hash__.
func isHashable(v Value) bool {
	switch v.kind {
	case KindNone, KindBool, KindInt, KindFloat, KindString, KindBytes:
		return true
	case KindTuple:
		for _, it := range v.tup {
			if !isHashable(it) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// numKind classifies a Value for the cross-type numeric equality matrix.
type numKind int

const (
	numNone numKind = iota
	numBool
	numInt
	numFloat
)

func classifyNum(v Value) (numKind, float64, bool) {
	switch v.kind {
	case KindBool:
		b, _ := v.Bool()
		f := 0.0
		if b {
			f = 1.0
		}
		return numBool, f, true
	case KindInt:
		i, _ := v.Int()
		return numInt, float64(i), true
	case KindFloat:
		f, _ := v.Float()
		return numFloat, f, true
	}
	return numNone, 0, false
}

// valueEqual implements Python's == for values allowed as Dict/Set keys
// (and, for List/Dict/Set, for general structural comparison elsewhere).
func valueEqual(a, b Value) bool {
	// bool/int/float compare across kinds, matching Python's numeric tower.
	if _, _, ok := classifyNum(a); ok {
		if _, _, ok := classifyNum(b); ok {
			_, af, _ := classifyNum(a)
			_, bf, _ := classifyNum(b)
			return af == bf
		}
	}

	if a.kind != b.kind {
		return false
	}

	switch a.kind {
	case KindNone, KindMark:
		return true
	case KindString:
		return a.str == b.str
	case KindBytes:
		return a.str == b.str
	case KindTuple:
		if len(a.tup) != len(b.tup) {
			return false
		}
		for i := range a.tup {
			if !valueEqual(a.tup[i], b.tup[i]) {
				return false
			}
		}
		return true
	case KindList:
		if a.lst == b.lst {
			return true
		}
		if len(a.lst.items) != len(b.lst.items) {
			return false
		}
		for i := range a.lst.items {
			if !valueEqual(a.lst.items[i], b.lst.items[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return equalDict(a.dct, b.dct)
	case KindSet:
		return equalSet(a.set, b.set)
	case KindObject:
		return a.obj == b.obj
	case KindAny:
		return a.any == b.any
	}
	return false
}

func equalDict(a, b *Dict) bool {
	if a.Len() != b.Len() {
		return false
	}
	eq := true
	a.Iter(func(k, va Value) bool {
		vb, ok, _ := b.Get(k)
		if !ok || !valueEqual(va, vb) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func equalSet(a, b *Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	eq := true
	a.Iter(func(k Value) bool {
		if !b.Has(k) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

// valueHash implements a hash consistent with valueEqual: equal values
// always hash equal.
func valueHash(seed maphash.Seed, v Value) uint64 {
	if _, f, ok := classifyNum(v); ok {
		return hashFloat(seed, f)
	}

	switch v.kind {
	case KindNone:
		return maphash.String(seed, "\x00none")
	case KindString:
		return maphash.String(seed, v.str)
	case KindBytes:
		return maphash.String(seed, "\x00bytes"+v.str)
	case KindTuple:
		var h maphash.Hash
		h.SetSeed(seed)
		h.WriteString("tuple")
		for _, it := range v.tup {
			var b [8]byte
			putUint64(b[:], valueHash(seed, it))
			h.Write(b[:])
		}
		return h.Sum64()
	}
	panic(fmt.Sprintf("pickle: unhashable type: %s", v.Kind()))
}

func hashFloat(seed maphash.Seed, f float64) uint64 {
	i := int64(f)
	if float64(i) == f {
		var b [8]byte
		putUint64(b[:], uint64(i))
		return maphash.Bytes(seed, b[:])
	}
	var b [8]byte
	putUint64(b[:], math.Float64bits(f))
	return maphash.Bytes(seed, b[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
