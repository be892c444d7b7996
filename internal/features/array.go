// Package features defines the typed-array records pipeline steps
// exchange as artifacts. A record maps feature names to dense arrays
// (the MSA matrix, deletion counts, residue indices and so on) and has
// a deterministic binary encoding, so equal records always produce
// byte-identical artifacts.
package features

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for feature records.
var (
	ErrMalformed = errors.New("features: malformed record")
	ErrDType     = errors.New("features: dtype mismatch")
)

// DType identifies an array's element type.
type DType uint8

// Element types. Values are part of the wire encoding and must not be
// reordered.
const (
	F32 DType = iota + 1
	F64
	I32
	I64
	U8
)

// Size returns the element width in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case F32, I32:
		return 4
	case F64, I64:
		return 8
	case U8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case F32:
		return "f32"
	case F64:
		return "f64"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Array is a dense n-dimensional array. Data holds the elements in
// row-major order, little-endian. An empty shape denotes a scalar with
// exactly one element.
type Array struct {
	DType DType
	Shape []int64
	Data  []byte
}

// NumElems returns the element count implied by the shape.
func (a *Array) NumElems() int64 {
	n := int64(1)
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Validate checks that the data length matches dtype and shape.
func (a *Array) Validate() error {
	es := a.DType.Size()
	if es == 0 {
		return fmt.Errorf("%w: unknown dtype %d", ErrMalformed, a.DType)
	}
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrMalformed, d)
		}
	}
	if want := a.NumElems() * int64(es); int64(len(a.Data)) != want {
		return fmt.Errorf("%w: data length %d, shape wants %d", ErrMalformed, len(a.Data), want)
	}
	return nil
}

// NewFloat32 builds an F32 array from values in row-major order.
func NewFloat32(shape []int64, values []float32) *Array {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &Array{DType: F32, Shape: shape, Data: data}
}

// NewFloat64 builds an F64 array from values in row-major order.
func NewFloat64(shape []int64, values []float64) *Array {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return &Array{DType: F64, Shape: shape, Data: data}
}

// NewInt32 builds an I32 array from values in row-major order.
func NewInt32(shape []int64, values []int32) *Array {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
	}
	return &Array{DType: I32, Shape: shape, Data: data}
}

// NewInt64 builds an I64 array from values in row-major order.
func NewInt64(shape []int64, values []int64) *Array {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	}
	return &Array{DType: I64, Shape: shape, Data: data}
}

// NewBytes builds a U8 array, typically an encoded sequence string.
func NewBytes(b []byte) *Array {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Array{DType: U8, Shape: []int64{int64(len(b))}, Data: cp}
}

// NewScalarFloat64 builds a 0-dimensional F64 scalar.
func NewScalarFloat64(v float64) *Array {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(v))
	return &Array{DType: F64, Shape: nil, Data: data}
}

// Float32s decodes the data as []float32.
func (a *Array) Float32s() ([]float32, error) {
	if a.DType != F32 {
		return nil, fmt.Errorf("%w: want f32, have %s", ErrDType, a.DType)
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

// Float64s decodes the data as []float64.
func (a *Array) Float64s() ([]float64, error) {
	if a.DType != F64 {
		return nil, fmt.Errorf("%w: want f64, have %s", ErrDType, a.DType)
	}
	out := make([]float64, len(a.Data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i*8:]))
	}
	return out, nil
}

// Int32s decodes the data as []int32.
func (a *Array) Int32s() ([]int32, error) {
	if a.DType != I32 {
		return nil, fmt.Errorf("%w: want i32, have %s", ErrDType, a.DType)
	}
	out := make([]int32, len(a.Data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

// Int64s decodes the data as []int64.
func (a *Array) Int64s() ([]int64, error) {
	if a.DType != I64 {
		return nil, fmt.Errorf("%w: want i64, have %s", ErrDType, a.DType)
	}
	out := make([]int64, len(a.Data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(a.Data[i*8:]))
	}
	return out, nil
}

// Bytes returns the raw data of a U8 array.
func (a *Array) Bytes() ([]byte, error) {
	if a.DType != U8 {
		return nil, fmt.Errorf("%w: want u8, have %s", ErrDType, a.DType)
	}
	return a.Data, nil
}

// ScalarFloat64 decodes a 0-dimensional F64 array.
func (a *Array) ScalarFloat64() (float64, error) {
	if a.DType != F64 || len(a.Shape) != 0 {
		return 0, fmt.Errorf("%w: want f64 scalar, have %s shape %v", ErrDType, a.DType, a.Shape)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(a.Data)), nil
}

// Clone returns a deep copy of the array.
func (a *Array) Clone() *Array {
	shape := make([]int64, len(a.Shape))
	copy(shape, a.Shape)
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Array{DType: a.DType, Shape: shape, Data: data}
}
