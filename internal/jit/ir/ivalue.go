package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/cpuext/internal/tensor"
)

// IValue is the payload of a prim::Constant node.
type IValue struct {
	Kind   TypeKind
	Int    int64
	Float  float64
	Bool   bool
	Ints   []int64
	Tensor *tensor.RawTensor
}

// IntValue returns an int constant.
func IntValue(v int64) IValue { return IValue{Kind: IntKind, Int: v} }

// FloatValue returns a float constant.
func FloatValue(v float64) IValue { return IValue{Kind: FloatKind, Float: v} }

// BoolValue returns a bool constant.
func BoolValue(v bool) IValue { return IValue{Kind: BoolKind, Bool: v} }

// IntListValue returns an int[] constant.
func IntListValue(v ...int64) IValue {
	return IValue{Kind: IntListKind, Ints: append([]int64{}, v...)}
}

// NoneValue returns the None constant.
func NoneValue() IValue { return IValue{Kind: NoneKind} }

// TensorValue returns a tensor constant.
func TensorValue(t *tensor.RawTensor) IValue { return IValue{Kind: TensorKind, Tensor: t} }

// Type returns the static type of the constant.
func (v IValue) Type() Type {
	if v.Kind != TensorKind {
		return Type{Kind: v.Kind}
	}
	if v.Tensor == nil {
		return UnknownTensorType()
	}
	sizes := make([]int64, len(v.Tensor.Shape()))
	for i, d := range v.Tensor.Shape() {
		sizes[i] = int64(d)
	}
	return TensorType(sizes...)
}

// IsDouble reports whether the constant holds a float.
func (v IValue) IsDouble() bool { return v.Kind == FloatKind }

// IsInt reports whether the constant holds an int.
func (v IValue) IsInt() bool { return v.Kind == IntKind }

// AsFloat returns int and float constants as float64.
func (v IValue) AsFloat() (float64, bool) {
	switch v.Kind {
	case IntKind:
		return float64(v.Int), true
	case FloatKind:
		return v.Float, true
	case BoolKind:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String formats the constant for the graph printer.
func (v IValue) String() string {
	switch v.Kind {
	case IntKind:
		return strconv.FormatInt(v.Int, 10)
	case FloatKind:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += "."
		}
		return s
	case BoolKind:
		return strconv.FormatBool(v.Bool)
	case IntListKind:
		parts := make([]string, len(v.Ints))
		for i, x := range v.Ints {
			parts[i] = strconv.FormatInt(x, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case NoneKind:
		return "None"
	case TensorKind:
		if v.Tensor == nil {
			return "<Tensor>"
		}
		return fmt.Sprintf("<Tensor %s%v>", v.Tensor.DType(), []int(v.Tensor.Shape()))
	default:
		return "?"
	}
}
