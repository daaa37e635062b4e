package pickle

import "testing"

// TestDictNumericKeysCollide verifies Python's dict key semantics: int,
// float and bool keys compare equal across kinds when numerically equal,
// so 1, 1.0 and True all address the same slot.
func TestDictNumericKeysCollide(t *testing.T) {
	d := NewDict()
	if err := d.Set(Int(1), Str("from-int")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(Float(1.0), Str("from-float")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(Bool(true), Str("from-bool")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (Int(1)/Float(1.0)/Bool(true) must collide)", d.Len())
	}
	got, ok, err := d.Get(Int(1))
	if err != nil || !ok {
		t.Fatalf("Get(Int(1)) = (_, %v, %v)", ok, err)
	}
	if s, _ := got.Str(); s != "from-bool" {
		t.Fatalf("last Set should win: got %q, want from-bool", s)
	}
}

func TestDictZeroAndFalseCollide(t *testing.T) {
	d := NewDict()
	d.Set(Int(0), Str("zero"))
	got, ok, _ := d.Get(Bool(false))
	if !ok {
		t.Fatalf("Bool(false) should collide with Int(0)")
	}
	if s, _ := got.Str(); s != "zero" {
		t.Fatalf("got %q, want zero", s)
	}
}

func TestDictBytesAndStringNeverCollide(t *testing.T) {
	d := NewDict()
	d.Set(Str("x"), Int(1))
	d.Set(Bytes([]byte("x")), Int(2))
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (Bytes and String keys must never collide)", d.Len())
	}
}

func TestDictUnhashableKeyRejected(t *testing.T) {
	d := NewDict()
	if err := d.Set(List(Int(1)), Int(1)); err == nil {
		t.Fatalf("Set with a List key should fail: lists are unhashable")
	}
}

func TestTupleKeyHashableWhenElementsAre(t *testing.T) {
	d := NewDict()
	key := MakeTuple(Int(1), Str("a"))
	if err := d.Set(key, Int(99)); err != nil {
		t.Fatalf("Set with a Tuple-of-hashable key should succeed: %v", err)
	}
	got, ok, err := d.Get(MakeTuple(Int(1), Str("a")))
	if err != nil || !ok {
		t.Fatalf("Get with an equal Tuple key should find it: (%v, %v, %v)", got, ok, err)
	}
}

func TestTupleKeyUnhashableWhenElementIsnt(t *testing.T) {
	d := NewDict()
	key := MakeTuple(Int(1), List(Int(2)))
	if err := d.Set(key, Int(1)); err == nil {
		t.Fatalf("Tuple containing a List should be unhashable")
	}
}

func TestSetMembership(t *testing.T) {
	s := NewSet()
	s.Add(Int(1))
	s.Add(Float(2.0))
	if !s.Has(Int(1)) {
		t.Fatalf("Has(Int(1)) should be true")
	}
	if !s.Has(Bool(true)) {
		t.Fatalf("Has(Bool(true)) should be true: numeric tower makes it equal to Int(1)")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestDictIterVisitsAllEntries(t *testing.T) {
	d := NewDict()
	want := map[string]int64{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		d.Set(Str(k), Int(v))
	}
	seen := map[string]int64{}
	d.Iter(func(k, v Value) bool {
		ks, _ := k.Str()
		vi, _ := v.Int()
		seen[ks] = vi
		return true
	})
	if len(seen) != len(want) {
		t.Fatalf("Iter visited %d entries, want %d", len(seen), len(want))
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("seen[%q] = %d, want %d", k, seen[k], v)
		}
	}
}
