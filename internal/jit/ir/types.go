package ir

import (
	"fmt"
	"strings"
)

// TypeKind enumerates the value types the IR distinguishes.
type TypeKind int

// Supported type kinds.
const (
	TensorKind TypeKind = iota
	IntKind
	FloatKind
	BoolKind
	IntListKind
	NoneKind
	ClassKind
)

// String returns the TorchScript spelling of the kind.
func (k TypeKind) String() string {
	switch k {
	case TensorKind:
		return "Tensor"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case BoolKind:
		return "bool"
	case IntListKind:
		return "int[]"
	case NoneKind:
		return "NoneType"
	case ClassKind:
		return "Class"
	default:
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
}

// Type is the static type of a Value.
//
// Tensor types may carry concrete sizes; Sizes is nil when the sizes are not
// statically known. Class types carry a qualified name.
type Type struct {
	Kind  TypeKind
	Sizes []int64
	Name  string
}

// TensorType returns a tensor type with concrete sizes.
func TensorType(sizes ...int64) Type {
	if sizes == nil {
		sizes = []int64{}
	}
	return Type{Kind: TensorKind, Sizes: append([]int64(nil), sizes...)}
}

// UnknownTensorType returns a tensor type without size information.
func UnknownTensorType() Type {
	return Type{Kind: TensorKind}
}

// ClassType returns a custom class type.
func ClassType(name string) Type {
	return Type{Kind: ClassKind, Name: name}
}

// Scalar types.
var (
	IntType     = Type{Kind: IntKind}
	FloatType   = Type{Kind: FloatKind}
	BoolType    = Type{Kind: BoolKind}
	IntListType = Type{Kind: IntListKind}
	NoneType    = Type{Kind: NoneKind}
)

// ConcreteSizes returns the tensor sizes and whether they are statically known.
func (t Type) ConcreteSizes() ([]int64, bool) {
	if t.Kind != TensorKind || t.Sizes == nil {
		return nil, false
	}
	return t.Sizes, true
}

// Equal reports whether two types are identical, sizes included.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Name != o.Name || (t.Sizes == nil) != (o.Sizes == nil) {
		return false
	}
	return sizesEqual(t.Sizes, o.Sizes)
}

func sizesEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String formats the type the way the graph printer shows it.
func (t Type) String() string {
	switch t.Kind {
	case TensorKind:
		if t.Sizes == nil {
			return "Tensor"
		}
		parts := make([]string, len(t.Sizes))
		for i, s := range t.Sizes {
			parts[i] = fmt.Sprint(s)
		}
		return "Tensor(" + strings.Join(parts, ", ") + ")"
	case ClassKind:
		return t.Name
	default:
		return t.Kind.String()
	}
}
