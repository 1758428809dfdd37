package base

import "fmt"

type DataType int32

const (
	U8 DataType = iota
	I8
	I32
	I64
	F16
	F32
	F64
)

var dtypeSizes = map[DataType]int{
	U8:  1,
	I8:  1,
	I32: 4,
	I64: 8,
	F16: 2,
	F32: 4,
	F64: 8,
}

func (t DataType) Size() int {
	return dtypeSizes[t]
}

var dtypeNames = map[DataType]string{
	U8:  "u8",
	I8:  "i8",
	I32: "i32",
	I64: "i64",
	F16: "f16",
	F32: "f32",
	F64: "f64",
}

func (t DataType) String() string {
	return dtypeNames[t]
}

func ParseDataType(s string) (DataType, error) {
	for k, v := range dtypeNames {
		if s == v {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid data type %q", s)
}
