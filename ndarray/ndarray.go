// Package ndarray is a minimal host numerical-array type: shape, element
// type and backing bytes, with typed accessors. It is intentionally not a
// tensor math engine — the checkpoint loader's reconstructed tensors hand
// their storage bytes to this package and stop there.
package ndarray

import (
	"fmt"
	"math"
)

// DType names an element type a storage entry can carry.
type DType uint8

const (
	InvalidDType DType = iota
	F64
	F32
	F16
	I64
	I32
	I16
	I8
	U8
	Bool
	BF16
	Complex64
)

func (d DType) String() string {
	switch d {
	case F64:
		return "f64"
	case F32:
		return "f32"
	case F16:
		return "f16"
	case I64:
		return "i64"
	case I32:
		return "i32"
	case I16:
		return "i16"
	case I8:
		return "i8"
	case U8:
		return "u8"
	case Bool:
		return "bool"
	case BF16:
		return "bf16"
	case Complex64:
		return "complex64"
	}
	return "invalid"
}

// Size reports the number of bytes one element of d occupies.
func (d DType) Size() int {
	switch d {
	case F64, I64, Complex64:
		return 8
	case F32, I32:
		return 4
	case F16, I16, BF16:
		return 2
	case I8, U8, Bool:
		return 1
	}
	return 0
}

// Array is a flat, row-major, typed view over a byte buffer.
type Array struct {
	shape []int64
	dtype DType
	data  []byte
}

// New constructs an Array from a backing byte buffer, a shape and an
// element type. It fails if the buffer is shorter than shape implies.
func New(data []byte, shape []int64, dtype DType) (*Array, error) {
	n := int64(1)
	for _, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("ndarray: negative dimension %d", s)
		}
		n *= s
	}
	want := n * int64(dtype.Size())
	if int64(len(data)) < want {
		return nil, fmt.Errorf("ndarray: buffer has %d bytes, shape %v of %s needs %d", len(data), shape, dtype, want)
	}
	sh := make([]int64, len(shape))
	copy(sh, shape)
	return &Array{shape: sh, dtype: dtype, data: data[:want]}, nil
}

// Shape returns the array's dimensions.
func (a *Array) Shape() []int64 { return a.shape }

// DType returns the array's element type.
func (a *Array) DType() DType { return a.dtype }

// Bytes returns the raw backing buffer.
func (a *Array) Bytes() []byte { return a.data }

// Len returns the total element count (product of shape).
func (a *Array) Len() int64 {
	n := int64(1)
	for _, s := range a.shape {
		n *= s
	}
	return n
}

// Float64At returns element i (row-major, flattened) as a float64,
// converting from the array's native element type. It panics if dtype is
// not a numeric type this package knows how to widen.
func (a *Array) Float64At(i int64) float64 {
	sz := int64(a.dtype.Size())
	off := i * sz
	b := a.data[off : off+sz]
	switch a.dtype {
	case F64:
		return math.Float64frombits(le64(b))
	case F32:
		return float64(math.Float32frombits(uint32(le64(b))))
	case I64:
		return float64(int64(le64(b)))
	case I32:
		return float64(int32(le64(b)))
	case I16:
		return float64(int16(le64(b)))
	case I8:
		return float64(int8(b[0]))
	case U8:
		return float64(b[0])
	case Bool:
		if b[0] != 0 {
			return 1
		}
		return 0
	}
	panic(fmt.Sprintf("ndarray: Float64At unsupported for %s", a.dtype))
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b) && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
