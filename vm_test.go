package pickle

import (
	"bytes"
	"testing"
)

func mustUnpickle(t *testing.T, b []byte, opts ...Option) Value {
	t.Helper()
	v, err := UnpickleBytes(b, opts...)
	if err != nil {
		t.Fatalf("UnpickleBytes(%x): %v", b, err)
	}
	return v
}

// TestBinfloatExactValues checks the documented test vectors for BINFLOAT:
// an 8-byte big-endian IEEE-754 double.
func TestBinfloatExactValues(t *testing.T) {
	cases := []struct {
		name string
		bits []byte
		want float64
	}{
		{"zero", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0.0},
		{"one", []byte{0x3F, 0xF0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 1.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stream := append([]byte{opBinfloat}, c.bits...)
			stream = append(stream, opStop)
			v := mustUnpickle(t, stream)
			got, ok := v.Float()
			if !ok || got != c.want {
				t.Fatalf("BINFLOAT %x = (%v, %v), want (%v, true)", c.bits, got, ok, c.want)
			}
		})
	}
}

// TestBinint2Value checks BININT2's documented vector: 00 01 -> 256.
func TestBinint2Value(t *testing.T) {
	stream := []byte{opBinint2, 0x00, 0x01, opStop}
	v := mustUnpickle(t, stream)
	got, ok := v.Int()
	if !ok || got != 256 {
		t.Fatalf("BININT2 00 01 = (%v, %v), want (256, true)", got, ok)
	}
}

// TestLong1NegativeOne checks LONG1's documented vector: length 2, body
// [0xFF, 0xFF] two's-complement decodes to -1.
func TestLong1NegativeOne(t *testing.T) {
	stream := []byte{opLong1, 0x02, 0xFF, 0xFF, opStop}
	v := mustUnpickle(t, stream)
	got, ok := v.Int()
	if !ok || got != -1 {
		t.Fatalf("LONG1 02 ff ff = (%v, %v), want (-1, true)", got, ok)
	}
}

func TestEmptyDict(t *testing.T) {
	stream := []byte{opProto, 2, opEmptyDict, opStop}
	v := mustUnpickle(t, stream)
	d, ok := v.Dict()
	if !ok || d.Len() != 0 {
		t.Fatalf("EMPTY_DICT result = %#v, want an empty Dict", v)
	}
}

// TestMarkedList builds [1, 2] via MARK, BININT1 x2, LIST.
func TestMarkedList(t *testing.T) {
	stream := []byte{opMark, opBinint1, 1, opBinint1, 2, opList, opStop}
	v := mustUnpickle(t, stream)
	items, ok := v.List()
	if !ok || len(items) != 2 {
		t.Fatalf("LIST result = %#v, want a 2-element List", v)
	}
	a, _ := items[0].Int()
	b, _ := items[1].Int()
	if a != 1 || b != 2 {
		t.Fatalf("items = [%d %d], want [1 2]", a, b)
	}
}

func TestMemoPutGetRoundtrip(t *testing.T) {
	// BININT1 7, BINPUT 0, POP, BINGET 0, STOP
	stream := []byte{opBinint1, 7, opBinput, 0, opPop, opBinget, 0, opStop}
	v := mustUnpickle(t, stream)
	n, ok := v.Int()
	if !ok || n != 7 {
		t.Fatalf("memo round-trip = (%v, %v), want (7, true)", n, ok)
	}
}

func TestUnknownOpcodeFails(t *testing.T) {
	_, err := UnpickleBytes([]byte{0xFE})
	if err == nil {
		t.Fatalf("unknown opcode byte should fail, not panic or succeed")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != UnknownOpcode {
		t.Fatalf("expected UnknownOpcode, got %#v", err)
	}
}

func TestFrameBoundaryViolationSurfacesAsError(t *testing.T) {
	// FRAME declares 2 bytes follow, but BININT2 (opcode + 2 operand bytes)
	// needs 3, so its operand read crosses the boundary.
	stream := []byte{opFrame, 2, 0, 0, 0, 0, 0, 0, 0, opBinint2, 9, 9, opStop}
	_, err := UnpickleBytes(stream)
	if err == nil {
		t.Fatalf("a read crossing a declared frame boundary should fail")
	}
	if e, ok := err.(*Error); !ok || e.Kind != FrameExhausted {
		t.Fatalf("expected FrameExhausted, got %#v", err)
	}
}

func TestAbsentPersistentLoaderPushesNone(t *testing.T) {
	// BINUNICODE8-free path: use SHORT_BINUNICODE "x", BINPERSID, STOP.
	stream := []byte{opShortBinUnicode, 1, 'x', opBinpersid, opStop}
	v := mustUnpickle(t, stream)
	if !v.IsNone() {
		t.Fatalf("persistent id with no loader installed should resolve to None, got %s", v.GoString())
	}
}

func TestPersistentLoaderInvoked(t *testing.T) {
	stream := []byte{opShortBinUnicode, 1, 'x', opBinpersid, opStop}
	called := false
	v := mustUnpickle(t, stream, WithPersistentLoader(func(pid Value) (Value, error) {
		called = true
		s, _ := pid.Str()
		if s != "x" {
			t.Fatalf("persistent id = %q, want x", s)
		}
		return Int(42), nil
	}))
	if !called {
		t.Fatalf("persistent loader was never invoked")
	}
	n, ok := v.Int()
	if !ok || n != 42 {
		t.Fatalf("result = (%v, %v), want (42, true)", n, ok)
	}
}

func TestVMIsSingleShot(t *testing.T) {
	vm := NewVMFromBytes([]byte{opNone, opStop})
	if _, err := vm.Load(); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := vm.Load(); err == nil {
		t.Fatalf("a second Load on the same VM should fail")
	}
}

// TestBuildWithUnregisteredClassFallsBackToDict exercises GLOBAL naming an
// unregistered class, followed by BUILD merging state into its fallback Dict.
func TestBuildWithUnregisteredClassFallsBackToDict(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(opGlobal)
	buf.WriteString("mymodule\n")
	buf.WriteString("MyClass\n")
	// state dict: {"a": 1}
	buf.WriteByte(opEmptyDict)
	buf.WriteByte(opShortBinUnicode)
	buf.WriteByte(1)
	buf.WriteString("a")
	buf.WriteByte(opBinint1)
	buf.WriteByte(1)
	buf.WriteByte(opSetitem)
	buf.WriteByte(opBuild)
	buf.WriteByte(opStop)

	v := mustUnpickle(t, buf.Bytes())
	obj, ok := v.AsObject()
	if !ok {
		t.Fatalf("unregistered GLOBAL class should decode to a Kind Object fallback")
	}
	if obj.Tag != "mymodule.MyClass" {
		t.Fatalf("Tag = %q, want mymodule.MyClass", obj.Tag)
	}
	d, ok := obj.Payload.(*Dict)
	if !ok {
		t.Fatalf("fallback Object payload should be a *Dict")
	}
	got, ok, _ := d.Get(Str("a"))
	if !ok {
		t.Fatalf("BUILD should have merged state into the fallback Dict")
	}
	if n, _ := got.Int(); n != 1 {
		t.Fatalf("a = %d, want 1", n)
	}
}

func TestOrderedDictHandler(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(opShortBinUnicode)
	buf.WriteByte(byte(len("collections")))
	buf.WriteString("collections")
	buf.WriteByte(opShortBinUnicode)
	buf.WriteByte(byte(len("OrderedDict")))
	buf.WriteString("OrderedDict")
	buf.WriteByte(opStackGlobal)
	buf.WriteByte(opEmptyTuple)
	buf.WriteByte(opNewobj)
	buf.WriteByte(opMark)
	buf.WriteByte(opMark)
	buf.WriteByte(opShortBinUnicode)
	buf.WriteByte(1)
	buf.WriteString("k")
	buf.WriteByte(opBinint1)
	buf.WriteByte(5)
	buf.WriteByte(opTuple)
	buf.WriteByte(opList)
	buf.WriteByte(opBuild)
	buf.WriteByte(opStop)

	v := mustUnpickle(t, buf.Bytes())
	obj, ok := v.AsObject()
	if !ok || obj.Tag != "OrderedDict" {
		t.Fatalf("expected an OrderedDict Object, got %s", v.GoString())
	}
	d := obj.Payload.(*Dict)
	got, ok, _ := d.Get(Str("k"))
	if !ok {
		t.Fatalf("OrderedDict initializer should have set key k")
	}
	if n, _ := got.Int(); n != 5 {
		t.Fatalf("k = %d, want 5", n)
	}
}
