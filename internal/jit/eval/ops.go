package eval

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/tensor"
)

// registerStructural adds list construction and the side-effecting prims.
func (r *Registry) registerStructural() {
	r.Register(ir.ListConstruct, func(_ *Context, _ *ir.Node, args []Value) (Value, error) {
		ints := make([]int64, len(args))
		for i := range args {
			x, err := intAt(args, i)
			if err != nil {
				return Value{}, err
			}
			ints[i] = int64(x)
		}
		return Value{IValue: ir.IntListValue(ints...)}, nil
	})
	r.Register(ir.Print, func(_ *Context, _ *ir.Node, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		klog.Info(strings.Join(parts, " "))
		return Value{IValue: ir.NoneValue()}, nil
	})
	r.Register(ir.RaiseExc, func(_ *Context, _ *ir.Node, args []Value) (Value, error) {
		return Value{}, errors.Errorf("exception raised by graph: %v", args)
	})
}

// registerElementwise adds activations and binary arithmetic, each with its
// in-place variant.
func (r *Registry) registerElementwise() {
	unary := map[ir.Kind]func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error){
		ir.Relu: func(ctx *Context, x *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
			return ctx.Backend.ReLU(x)
		},
		ir.Sigmoid: func(ctx *Context, x *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
			return ctx.Backend.Sigmoid(x)
		},
		ir.Silu: func(ctx *Context, x *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
			return ctx.Backend.SiLU(x)
		},
		ir.Hardtanh: func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error) {
			lo, hi, err := hardtanhBounds(args, 1)
			if err != nil {
				return nil, err
			}
			return ctx.Backend.Hardtanh(x, lo, hi)
		},
		ir.Elu: func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error) {
			alpha, scale, inputScale, err := eluParams(args, 1)
			if err != nil {
				return nil, err
			}
			return ctx.Backend.ELU(x, alpha, scale, inputScale)
		},
		ir.Mul: func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error) {
			y, err := sameLayoutAt(args, 1, x.Layout())
			if err != nil {
				return nil, err
			}
			return ctx.Backend.Mul(x, y)
		},
		ir.Add: func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error) {
			y, err := sameLayoutAt(args, 1, x.Layout())
			if err != nil {
				return nil, err
			}
			alpha, err := floatAt(args, 2)
			if err != nil {
				return nil, err
			}
			return ctx.Backend.AddScaled(x, y, alpha)
		},
	}
	arities := map[ir.Kind]int{ir.Hardtanh: 3, ir.Elu: 4, ir.Mul: 2, ir.Add: 3}

	for kind, f := range unary {
		n, ok := arities[kind]
		if !ok {
			n = 1
		}
		r.Register(kind, elementwise(n, false, f))
		r.Register(kind+"_", elementwise(n, true, f))
	}
}

// elementwise adapts f into a handler. In-place variants write the result
// into their first input and return it.
func elementwise(n int, inplace bool, f func(ctx *Context, x *tensor.RawTensor, args []Value) (*tensor.RawTensor, error)) Handler {
	return func(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
		if err := arity(args, n); err != nil {
			return Value{}, err
		}
		x, err := tensorAt(args, 0)
		if err != nil {
			return Value{}, err
		}
		out, err := f(ctx, x, args)
		if err != nil {
			return Value{}, err
		}
		if inplace {
			return writeInto(x, out)
		}
		return TensorArg(out), nil
	}
}

func sameLayoutAt(args []Value, i int, layout tensor.Layout) (*tensor.RawTensor, error) {
	t, err := tensorAt(args, i)
	if err != nil {
		return nil, err
	}
	return t.Contiguous(layout)
}

func hardtanhBounds(args []Value, first int) (lo, hi float64, err error) {
	if lo, err = floatAt(args, first); err != nil {
		return 0, 0, err
	}
	hi, err = floatAt(args, first+1)
	return lo, hi, err
}

func eluParams(args []Value, first int) (alpha, scale, inputScale float64, err error) {
	if alpha, err = floatAt(args, first); err != nil {
		return 0, 0, 0, err
	}
	if scale, err = floatAt(args, first+1); err != nil {
		return 0, 0, 0, err
	}
	inputScale, err = floatAt(args, first+2)
	return alpha, scale, inputScale, err
}

// registerSpatial adds pooling and pixel shuffling.
func (r *Registry) registerSpatial() {
	r.Register(ir.AvgPool2d, handleAvgPool2d)
	r.Register(ir.PixelShuffle, func(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
		return shuffle(args, ctx.Backend.PixelShuffle)
	})
	r.Register(ir.PixelUnshuffle, func(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
		return shuffle(args, ctx.Backend.PixelUnshuffle)
	})
}

func shuffle(args []Value, f func(*tensor.RawTensor, int) (*tensor.RawTensor, error)) (Value, error) {
	if err := arity(args, 2); err != nil {
		return Value{}, err
	}
	x, err := tensorAt(args, 0)
	if err != nil {
		return Value{}, err
	}
	factor, err := intAt(args, 1)
	if err != nil {
		return Value{}, err
	}
	out, err := f(x, factor)
	if err != nil {
		return Value{}, err
	}
	return TensorArg(out), nil
}

// aten::avg_pool2d(input, kernel_size, stride, padding, ceil_mode,
// count_include_pad, divisor_override). An empty stride means the kernel
// size.
func handleAvgPool2d(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
	if err := arity(args, 7); err != nil {
		return Value{}, err
	}
	x, err := tensorAt(args, 0)
	if err != nil {
		return Value{}, err
	}
	kernel, err := pairAt(args, 1)
	if err != nil {
		return Value{}, err
	}
	var stride [2]int
	if s, err := intsAt(args, 2); err != nil {
		return Value{}, err
	} else if len(s) > 0 {
		if stride, err = pairAt(args, 2); err != nil {
			return Value{}, err
		}
	}
	padding, err := pairAt(args, 3)
	if err != nil {
		return Value{}, err
	}
	ceil, err := boolAt(args, 4)
	if err != nil {
		return Value{}, err
	}
	countPad, err := boolAt(args, 5)
	if err != nil {
		return Value{}, err
	}

	p := tensor.Pool2D{
		KernelH: kernel[0], KernelW: kernel[1],
		StrideH: stride[0], StrideW: stride[1],
		PadH: padding[0], PadW: padding[1],
		CeilMode:        ceil,
		CountIncludePad: countPad,
	}
	if args[6].Kind != ir.NoneKind {
		d, err := intAt(args, 6)
		if err != nil {
			return Value{}, err
		}
		p.DivisorOverride = &d
	}

	out, err := ctx.Backend.AvgPool2D(x, p)
	if err != nil {
		return Value{}, err
	}
	return TensorArg(out), nil
}
