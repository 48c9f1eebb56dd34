// Package tensor provides the dense tensor representation used by the CPU kernels.
package tensor

import (
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// DataType represents runtime type information for tensors.
//
// The set is fixed: kernels type-switch over exactly these kinds.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	BFloat16
	Float16
	Int64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64, Int64:
		return 8
	case BFloat16, Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// IsNarrow reports whether the type is a 16-bit floating type that
// must be accumulated in float32.
func (dt DataType) IsNarrow() bool {
	return dt == BFloat16 || dt == Float16
}

// IsFloating reports whether the type is a floating point type.
func (dt DataType) IsFloating() bool {
	return dt != Int64
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}

// Element is the constraint over Go storage types of the supported data types.
type Element interface {
	~float32 | ~float64 | bfloat16.BFloat16 | float16.Float16 | ~int64
}

// DataTypeOf returns the DataType for the storage type T.
func DataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case bfloat16.BFloat16:
		return BFloat16
	case float16.Float16:
		return Float16
	case int64:
		return Int64
	default:
		panic("unsupported type")
	}
}
