package base

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"
)

type Vector struct {
	Data  []byte
	Count int
	Type  DataType
}

func NewVector(count int, dtype DataType) *Vector {
	return &Vector{
		Data:  make([]byte, count*dtype.Size()),
		Count: count,
		Type:  dtype,
	}
}

// VectorF32 wraps xs without copying.
func VectorF32(xs []float32) *Vector {
	if len(xs) == 0 {
		return &Vector{Type: F32}
	}
	return &Vector{
		Data:  unsafe.Slice((*byte)(unsafe.Pointer(&xs[0])), len(xs)*4),
		Count: len(xs),
		Type:  F32,
	}
}

// Slice returns a new Vector that points to a subset of the original Vector.
// 0 <= begin < end <= count - 1
func (b *Vector) Slice(begin, end int) *Vector {
	return &Vector{
		Data:  b.Data[begin*b.Type.Size() : end*b.Type.Size()],
		Count: end - begin,
		Type:  b.Type,
	}
}

func (b *Vector) CopyFrom(c *Vector) {
	if err := b.copyFrom(c); err != nil {
		panic(err)
	}
}

func (b *Vector) copyFrom(c *Vector) error {
	if b.Count != c.Count {
		return fmt.Errorf("Vector::Copy error: inconsistent count: %d vs %d", b.Count, c.Count)
	}
	if b.Type != c.Type {
		return fmt.Errorf("Vector::Copy error: inconsistent type: %s vs %s", b.Type, c.Type)
	}
	copy(b.Data, c.Data)
	return nil
}

func mustBe(b *Vector, t DataType) {
	if b.Type != t {
		panic(fmt.Errorf("vector of %s used as %s", b.Type, t))
	}
}

func (b *Vector) AsF32() []float32 {
	mustBe(b, F32)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.Data[0])), b.Count)
}

func (b *Vector) AsF64() []float64 {
	mustBe(b, F64)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.Data[0])), b.Count)
}

func (b *Vector) AsI8() []int8 {
	mustBe(b, I8)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b.Data[0])), b.Count)
}

func (b *Vector) AsI32() []int32 {
	mustBe(b, I32)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.Data[0])), b.Count)
}

func (b *Vector) AsI64() []int64 {
	mustBe(b, I64)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b.Data[0])), b.Count)
}

func (b *Vector) AsF16() []float16.Float16 {
	mustBe(b, F16)
	if b.Count == 0 {
		return nil
	}
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&b.Data[0])), b.Count)
}

// EncodeF16 narrows xs into a half precision vector.
func EncodeF16(xs []float32) *Vector {
	v := NewVector(len(xs), F16)
	ys := v.AsF16()
	for i, x := range xs {
		ys[i] = float16.Fromfloat32(x)
	}
	return v
}

// DecodeF16 widens v into xs.
func DecodeF16(xs []float32, v *Vector) {
	for i, y := range v.AsF16() {
		xs[i] = y.Float32()
	}
}
