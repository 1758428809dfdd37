package base

import (
	"fmt"

	"github.com/x448/float16"
)

type OP int32

const (
	SUM OP = iota
	MIN
	MAX
	PROD
)

var opNames = map[OP]string{
	SUM:  "sum",
	MIN:  "min",
	MAX:  "max",
	PROD: "prod",
}

func (op OP) String() string {
	return opNames[op]
}

// Transform performs y[i] += x[i] for vectors y and x
func Transform(y, x *Vector, op OP) {
	// Assuming Count and Type are consistent
	Transform2(y, x, y, op)
}

type number interface {
	~uint8 | ~int8 | ~int32 | ~int64 | ~float32 | ~float64
}

func apply[T number](z, x, y []T, op OP) {
	switch op {
	case SUM:
		for i := range z {
			z[i] = x[i] + y[i]
		}
	case MIN:
		for i := range z {
			z[i] = min(x[i], y[i])
		}
	case MAX:
		for i := range z {
			z[i] = max(x[i], y[i])
		}
	case PROD:
		for i := range z {
			z[i] = x[i] * y[i]
		}
	default:
		panic(fmt.Errorf("invalid op %d", op))
	}
}

func applyF16(z, x, y []float16.Float16, op OP) {
	for i := range z {
		a, b := x[i].Float32(), y[i].Float32()
		var c float32
		switch op {
		case SUM:
			c = a + b
		case MIN:
			c = min(a, b)
		case MAX:
			c = max(a, b)
		case PROD:
			c = a * b
		default:
			panic(fmt.Errorf("invalid op %d", op))
		}
		z[i] = float16.Fromfloat32(c)
	}
}

// Transform2 performs z[i] = x[i] + y[i] for vectors z and x, y.
func Transform2(z, x, y *Vector, op OP) {
	// Assuming Count and Type are consistent
	if z.Count == 0 {
		return
	}
	switch z.Type {
	case U8:
		apply(z.Data, x.Data, y.Data, op)
	case I8:
		apply(z.AsI8(), x.AsI8(), y.AsI8(), op)
	case I32:
		apply(z.AsI32(), x.AsI32(), y.AsI32(), op)
	case I64:
		apply(z.AsI64(), x.AsI64(), y.AsI64(), op)
	case F16:
		applyF16(z.AsF16(), x.AsF16(), y.AsF16(), op)
	case F32:
		apply(z.AsF32(), x.AsF32(), y.AsF32(), op)
	case F64:
		apply(z.AsF64(), x.AsF64(), y.AsF64(), op)
	default:
		panic(fmt.Errorf("invalid data type %d", z.Type))
	}
}
