package pickle

import "fmt"

// Kind tags the variant a Value holds. It is the closed set described by
// the data model: adding a new payload is a Kind addition plus one
// constructor/accessor pair, never an implicit conversion.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindTuple
	KindDict
	KindSet
	KindMark
	KindObject
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindList:
		return "List"
	case KindTuple:
		return "Tuple"
	case KindDict:
		return "Dict"
	case KindSet:
		return "Set"
	case KindMark:
		return "Mark"
	case KindObject:
		return "Object"
	case KindAny:
		return "Any"
	}
	return "Invalid"
}

// Object is the payload of a Kind Object Value: an opaque host handle
// produced by an instantiator, paired with the symbolic type tag that
// routes BUILD/initialize dispatch and later host-side queries.
type Object struct {
	Payload any
	Tag     string
}

// list is the shared, mutable backing store for a Kind List Value. Value
// itself is a small copyable struct; List identity (for APPEND/memo
// sharing) lives in this pointed-to header, same as Python list semantics.
type list struct{ items []Value }

// Value is the tagged union every opcode handler pushes onto or pops from
// the VM's value stack.
//
// The zero Value is KindInvalid and must never be returned to a caller;
// every constructor below produces a valid Kind.
type Value struct {
	kind Kind

	b float64 // reused for Bool(0/1) and Float, to keep Value small
	i int64   // Int payload

	str string  // String/Bytes payload (Bytes stored as raw string bytes)
	lst *list   // List payload (shared, mutable)
	tup []Value // Tuple payload (immutable once built)
	dct *Dict   // Dict payload (shared)
	set *Set    // Set payload (shared)
	obj *Object // Object payload
	any any     // Any payload (opaque passthrough, e.g. NEXT_BUFFER results)
}

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

// None is the singleton null value.
var None = Value{kind: KindNone}

// Mark is the sentinel used internally to delimit variable-length argument
// groups. It is never legal outside the VM's stack/metastack.
var Mark = Value{kind: KindMark}

// Bool constructs a Kind Bool Value.
func Bool(b bool) Value {
	f := 0.0
	if b {
		f = 1.0
	}
	return Value{kind: KindBool, b: f}
}

// Int constructs a Kind Int Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float constructs a Kind Float Value.
func Float(f float64) Value { return Value{kind: KindFloat, b: f} }

// Str constructs a Kind String Value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Bytes constructs a Kind Bytes Value from raw bytes.
func Bytes(b []byte) Value { return Value{kind: KindBytes, str: string(b)} }

// List constructs a Kind List Value from initial items (copied).
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, lst: &list{items: cp}}
}

// MakeTuple constructs a Kind Tuple Value from items (copied).
func MakeTuple(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindTuple, tup: cp}
}

// FromDict constructs a Kind Dict Value wrapping d.
func FromDict(d *Dict) Value { return Value{kind: KindDict, dct: d} }

// FromSet constructs a Kind Set Value wrapping s.
func FromSet(s *Set) Value { return Value{kind: KindSet, set: s} }

// FromObject constructs a Kind Object Value.
func FromObject(payload any, tag string) Value {
	return Value{kind: KindObject, obj: &Object{Payload: payload, Tag: tag}}
}

// Any constructs a Kind Any escape-hatch Value carrying x unchanged.
func Any(x any) Value { return Value{kind: KindAny, any: x} }

// --- accessors: each returns (typed value, present) ---

// Bool reports whether v is a Kind Bool and returns its value.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b != 0, true
}

// Int reports whether v is a Kind Int and returns its value.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float reports whether v is a Kind Float and returns its value.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.b, true
}

// Str reports whether v is a Kind String and returns its value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Bytes reports whether v is a Kind Bytes and returns its value.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.str), true
}

// List reports whether v is a Kind List and returns its backing slice.
// The returned slice aliases the Value's storage; mutate via AppendList.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.lst.items, true
}

// AppendList appends items to a Kind List Value in place.
func (v Value) AppendList(items ...Value) bool {
	if v.kind != KindList {
		return false
	}
	v.lst.items = append(v.lst.items, items...)
	return true
}

// Tuple reports whether v is a Kind Tuple and returns its items.
func (v Value) Tuple() ([]Value, bool) {
	if v.kind != KindTuple {
		return nil, false
	}
	return v.tup, true
}

// Dict reports whether v is a Kind Dict and returns the underlying Dict.
func (v Value) Dict() (*Dict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dct, true
}

// Set reports whether v is a Kind Set and returns the underlying Set.
func (v Value) Set() (*Set, bool) {
	if v.kind != KindSet {
		return nil, false
	}
	return v.set, true
}

// AsObject reports whether v is a Kind Object and returns it.
func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Any reports whether v is a Kind Any and returns its payload.
func (v Value) Any() (any, bool) {
	if v.kind != KindAny {
		return nil, false
	}
	return v.any, true
}

// IsNone reports whether v is the None singleton.
func (v Value) IsNone() bool { return v.kind == KindNone }

// GoString renders v for debugging/tests.
func (v Value) GoString() string {
	switch v.kind {
	case KindInvalid:
		return "<invalid>"
	case KindNone:
		return "None"
	case KindBool:
		b, _ := v.Bool()
		return fmt.Sprintf("%v", b)
	case KindInt:
		i, _ := v.Int()
		return fmt.Sprintf("%d", i)
	case KindFloat:
		f, _ := v.Float()
		return fmt.Sprintf("%g", f)
	case KindString:
		s, _ := v.Str()
		return fmt.Sprintf("%q", s)
	case KindBytes:
		b, _ := v.Bytes()
		return fmt.Sprintf("b%q", b)
	case KindList:
		items, _ := v.List()
		return fmt.Sprintf("%v", items)
	case KindTuple:
		items, _ := v.Tuple()
		return fmt.Sprintf("(%v)", items)
	case KindDict:
		d, _ := v.Dict()
		return d.String()
	case KindSet:
		s, _ := v.Set()
		return s.String()
	case KindMark:
		return "<mark>"
	case KindObject:
		o, _ := v.AsObject()
		return fmt.Sprintf("%s{%v}", o.Tag, o.Payload)
	case KindAny:
		return fmt.Sprintf("any(%v)", v.any)
	}
	return "<?>"
}

// walkForMark reports whether v, or anything reachable inside it, is the
// Mark sentinel. It is used by tests to check the invariant that Mark
// never survives into a returned result.
func walkForMark(v Value, seen map[*list]bool) bool {
	switch v.kind {
	case KindMark:
		return true
	case KindList:
		if seen == nil {
			seen = map[*list]bool{}
		}
		if seen[v.lst] {
			return false
		}
		seen[v.lst] = true
		for _, it := range v.lst.items {
			if walkForMark(it, seen) {
				return true
			}
		}
	case KindTuple:
		for _, it := range v.tup {
			if walkForMark(it, seen) {
				return true
			}
		}
	case KindDict:
		found := false
		v.dct.Iter(func(k, val Value) bool {
			if walkForMark(k, seen) || walkForMark(val, seen) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	case KindSet:
		found := false
		v.set.Iter(func(k Value) bool {
			if walkForMark(k, seen) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// ContainsMark reports whether v or any value nested within it is the Mark
// sentinel. A correctly functioning VM never returns such a value.
func ContainsMark(v Value) bool { return walkForMark(v, nil) }
