package pickle

import "testing"

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := Int(42)
	if _, ok := v.Float(); ok {
		t.Fatalf("Float() on a Kind Int value should report absent")
	}
	if _, ok := v.Str(); ok {
		t.Fatalf("Str() on a Kind Int value should report absent")
	}
	n, ok := v.Int()
	if !ok || n != 42 {
		t.Fatalf("Int() = (%d, %v), want (42, true)", n, ok)
	}
}

func TestValueGoString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{None, "None"},
		{Bool(true), "true"},
		{Int(7), "7"},
		{Float(1.5), "1.5"},
		{Str("hi"), `"hi"`},
		{Bytes([]byte("hi")), `b"hi"`},
	}
	for _, c := range cases {
		if got := c.v.GoString(); got != c.want {
			t.Errorf("GoString() = %q, want %q", got, c.want)
		}
	}
}

func TestListSharesBackingStore(t *testing.T) {
	l := List(Int(1), Int(2))
	other := l
	if !other.AppendList(Int(3)) {
		t.Fatalf("AppendList failed")
	}
	items, _ := l.List()
	if len(items) != 3 {
		t.Fatalf("appending through a copy of Value should mutate the shared list; got %d items", len(items))
	}
}

func TestTupleIsImmutableOnceBuilt(t *testing.T) {
	items := []Value{Int(1), Int(2)}
	tup := MakeTuple(items...)
	items[0] = Int(99)
	got, _ := tup.Tuple()
	if n, _ := got[0].Int(); n != 1 {
		t.Fatalf("MakeTuple must copy its input slice; mutating the caller's slice changed the tuple")
	}
}

func TestContainsMark(t *testing.T) {
	if ContainsMark(Int(1)) {
		t.Fatalf("plain Int value should not contain Mark")
	}
	if !ContainsMark(List(Int(1), Mark)) {
		t.Fatalf("Mark nested in a List should be detected")
	}
	if !ContainsMark(MakeTuple(Str("a"), List(Mark))) {
		t.Fatalf("Mark nested two levels deep should be detected")
	}
}

func TestObjectRoundtrip(t *testing.T) {
	v := FromObject([]byte{1, 2, 3}, "FloatStorage")
	obj, ok := v.AsObject()
	if !ok {
		t.Fatalf("AsObject() on a Kind Object value should succeed")
	}
	if obj.Tag != "FloatStorage" {
		t.Fatalf("Tag = %q, want FloatStorage", obj.Tag)
	}
	payload, ok := obj.Payload.([]byte)
	if !ok || len(payload) != 3 {
		t.Fatalf("Payload round-trip failed: %#v", obj.Payload)
	}
}
