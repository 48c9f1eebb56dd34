package eval

import (
	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/tensor"
)

func arity(args []Value, want int) error {
	if len(args) != want {
		return errors.Errorf("expected %d inputs, got %d", want, len(args))
	}
	return nil
}

func tensorAt(args []Value, i int) (*tensor.RawTensor, error) {
	if args[i].Kind != ir.TensorKind || args[i].Tensor == nil {
		return nil, errors.Errorf("input %d: expected Tensor, got %s", i, args[i].Type())
	}
	return args[i].Tensor, nil
}

// optionalTensorAt accepts a tensor or None.
func optionalTensorAt(args []Value, i int) (*tensor.RawTensor, error) {
	if args[i].Kind == ir.NoneKind {
		return nil, nil
	}
	return tensorAt(args, i)
}

func floatAt(args []Value, i int) (float64, error) {
	if args[i].Kind == ir.BoolKind {
		return 0, errors.Errorf("input %d: expected a number, got bool", i)
	}
	f, ok := args[i].AsFloat()
	if !ok {
		return 0, errors.Errorf("input %d: expected a number, got %s", i, args[i].Type())
	}
	return f, nil
}

func intAt(args []Value, i int) (int, error) {
	if args[i].Kind != ir.IntKind {
		return 0, errors.Errorf("input %d: expected int, got %s", i, args[i].Type())
	}
	return int(args[i].Int), nil
}

func boolAt(args []Value, i int) (bool, error) {
	if args[i].Kind != ir.BoolKind {
		return false, errors.Errorf("input %d: expected bool, got %s", i, args[i].Type())
	}
	return args[i].Bool, nil
}

func intsAt(args []Value, i int) ([]int64, error) {
	if args[i].Kind != ir.IntListKind {
		return nil, errors.Errorf("input %d: expected int[], got %s", i, args[i].Type())
	}
	return args[i].Ints, nil
}

// pairAt reads an int[] of one or two elements as (h, w).
func pairAt(args []Value, i int) ([2]int, error) {
	xs, err := intsAt(args, i)
	if err != nil {
		return [2]int{}, err
	}
	switch len(xs) {
	case 1:
		return [2]int{int(xs[0]), int(xs[0])}, nil
	case 2:
		return [2]int{int(xs[0]), int(xs[1])}, nil
	default:
		return [2]int{}, errors.Errorf("input %d: expected 1 or 2 elements, got %d", i, len(xs))
	}
}

func packedAt(args []Value, i int) (*PackedConv, error) {
	if args[i].Packed == nil {
		return nil, errors.Errorf("input %d: expected %s, got %s", i, ir.ConvContextClass, args[i].Type())
	}
	return args[i].Packed, nil
}

// writeInto stores src in dst's buffer, converting the memory layout when
// needed, and returns dst.
func writeInto(dst, src *tensor.RawTensor) (Value, error) {
	if !dst.Shape().Equal(src.Shape()) || dst.DType() != src.DType() {
		return Value{}, errors.Errorf("cannot write %s%v into %s%v", src.DType(), src.Shape(), dst.DType(), dst.Shape())
	}
	src, err := src.Contiguous(dst.Layout())
	if err != nil {
		return Value{}, err
	}
	copy(dst.Data(), src.Data())
	return TensorArg(dst), nil
}
