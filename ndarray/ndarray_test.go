package ndarray

import "testing"

func TestNewRejectsBufferTooSmall(t *testing.T) {
	if _, err := New([]byte{1, 2, 3}, []int64{2}, F32); err == nil {
		t.Fatalf("3 bytes of data for a shape (2,) f32 array should fail: need 8")
	}
}

func TestNewTruncatesExtraBytes(t *testing.T) {
	data := make([]byte, 16)
	arr, err := New(data, []int64{2}, F32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(arr.Bytes()) != 8 {
		t.Fatalf("Bytes() len = %d, want 8 (extra storage bytes beyond the shape should be dropped)", len(arr.Bytes()))
	}
}

func TestFloat64AtF32(t *testing.T) {
	// little-endian f32 1.0 followed by 2.0
	data := []byte{0, 0, 128, 63, 0, 0, 0, 64}
	arr, err := New(data, []int64{2}, F32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := arr.Float64At(0); got != 1.0 {
		t.Fatalf("Float64At(0) = %v, want 1.0", got)
	}
	if got := arr.Float64At(1); got != 2.0 {
		t.Fatalf("Float64At(1) = %v, want 2.0", got)
	}
}

func TestFloat64AtI8Signed(t *testing.T) {
	arr, err := New([]byte{0xFF}, []int64{1}, I8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := arr.Float64At(0); got != -1 {
		t.Fatalf("Float64At(0) = %v, want -1 (0xFF as signed int8)", got)
	}
}

func TestLenMultipliesShape(t *testing.T) {
	arr, err := New(make([]byte, 2*3*4), []int64{2, 3}, F32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if arr.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", arr.Len())
	}
}

func TestDTypeSize(t *testing.T) {
	cases := map[DType]int{
		F64: 8, I64: 8, Complex64: 8, F32: 4, I32: 4,
		F16: 2, I16: 2, BF16: 2, I8: 1, U8: 1, Bool: 1,
	}
	for dt, want := range cases {
		if got := dt.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", dt, got, want)
		}
	}
}

func TestNewRejectsNegativeDimension(t *testing.T) {
	if _, err := New([]byte{}, []int64{-1}, F32); err == nil {
		t.Fatalf("a negative shape dimension should fail")
	}
}
