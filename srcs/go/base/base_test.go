package base

import (
	"testing"

	"github.com/lsds/moebench/srcs/go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Transform2(t *testing.T) {
	x := VectorF32([]float32{1, 5, -2})
	y := VectorF32([]float32{3, 2, -1})
	cases := []struct {
		op   OP
		want []float32
	}{
		{SUM, []float32{4, 7, -3}},
		{MIN, []float32{1, 2, -2}},
		{MAX, []float32{3, 5, -1}},
		{PROD, []float32{3, 10, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			z := NewVector(3, F32)
			Transform2(z, x, y, tc.op)
			assert.Equal(t, tc.want, z.AsF32())
		})
	}
}

func Test_TransformI32(t *testing.T) {
	y := NewVector(2, I32)
	x := NewVector(2, I32)
	copy(y.AsI32(), []int32{1, 2})
	copy(x.AsI32(), []int32{10, 20})
	Transform(y, x, SUM)
	assert.Equal(t, []int32{11, 22}, y.AsI32())
}

func Test_F16RoundTrip(t *testing.T) {
	xs := []float32{0.5, -1.25, 3}
	v := EncodeF16(xs)
	assert.Equal(t, 6, len(v.Data))

	s := EncodeF16([]float32{0.5, 0.25, 1})
	Transform(v, s, SUM)

	ys := make([]float32, 3)
	DecodeF16(ys, v)
	assert.Equal(t, []float32{1, -1, 4}, ys)
}

func Test_VectorF32SharesMemory(t *testing.T) {
	xs := []float32{1, 2}
	v := VectorF32(xs)
	v.AsF32()[1] = 7
	assert.Equal(t, float32(7), xs[1])
}

func Test_Split(t *testing.T) {
	w := Workspace{
		SendBuf: NewVector(10, F32),
		RecvBuf: NewVector(10, F32),
		OP:      SUM,
		Name:    "grad",
	}
	ws := w.Split(plan.EvenPartition, 3)
	require.Len(t, ws, 3)
	assert.Equal(t, "part::grad[0:3]", ws[0].Name)
	assert.Equal(t, 4, ws[2].SendBuf.Count)

	assert.Len(t, w.Split(plan.EvenPartition, 20), 10)
}

func Test_ParseStrategy(t *testing.T) {
	s, err := ParseStrategy("ring")
	require.NoError(t, err)
	assert.Equal(t, Ring, s)
	_, err = ParseStrategy("tree")
	assert.Error(t, err)
}
