package eval

import (
	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/backend/cpu"
	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/tensor"
)

// registerConvolutions adds raw, prepacked and fused convolutions.
func (r *Registry) registerConvolutions() {
	r.Register(ir.Conv2d, handleConv2d)
	r.Register(ir.ConvolutionForward, handleConvolutionForward)
	r.Register(ir.ConvPrepack, handleConvPrepack)

	r.Register(ir.ConvRun, fusedConv(0, func(_ *Context, y *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
		return y, nil
	}))
	r.Register(ir.ConvReluRun, fusedConv(0, func(ctx *Context, y *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
		return ctx.Backend.ReLU(y)
	}))
	r.Register(ir.ConvSigmoidRun, fusedConv(0, func(ctx *Context, y *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
		return ctx.Backend.Sigmoid(y)
	}))
	r.Register(ir.ConvSwishRun, fusedConv(0, func(ctx *Context, y *tensor.RawTensor, _ []Value) (*tensor.RawTensor, error) {
		return ctx.Backend.SiLU(y)
	}))
	r.Register(ir.ConvHardtanhRun, fusedConv(2, func(ctx *Context, y *tensor.RawTensor, extra []Value) (*tensor.RawTensor, error) {
		lo, hi, err := hardtanhBounds(extra, 0)
		if err != nil {
			return nil, err
		}
		return ctx.Backend.Hardtanh(y, lo, hi)
	}))
	r.Register(ir.ConvEluRun, fusedConv(3, func(ctx *Context, y *tensor.RawTensor, extra []Value) (*tensor.RawTensor, error) {
		alpha, scale, inputScale, err := eluParams(extra, 0)
		if err != nil {
			return nil, err
		}
		return ctx.Backend.ELU(y, alpha, scale, inputScale)
	}))
	r.Register(ir.ConvAddRun, fusedAdd(false))
	r.Register(ir.ConvAddReluRun, fusedAdd(true))
}

// aten::conv2d(input, weight, bias, stride, padding, dilation, groups)
func handleConv2d(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
	if err := arity(args, 7); err != nil {
		return Value{}, err
	}
	return convolve(ctx, args, 6)
}

// torch_ipex::convolution_forward(input, weight, bias, stride, padding,
// dilation, kernel_size, groups, output_channel, weight_is_channels_last,
// weight_is_prepacked)
func handleConvolutionForward(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
	if err := arity(args, 11); err != nil {
		return Value{}, err
	}
	return convolve(ctx, args, 7)
}

func convolve(ctx *Context, args []Value, groupsAt int) (Value, error) {
	input, err := tensorAt(args, 0)
	if err != nil {
		return Value{}, err
	}
	weight, err := tensorAt(args, 1)
	if err != nil {
		return Value{}, err
	}
	bias, err := optionalTensorAt(args, 2)
	if err != nil {
		return Value{}, err
	}
	p, err := convParams(args, 3, groupsAt)
	if err != nil {
		return Value{}, err
	}
	out, err := ctx.Backend.Conv2D(input, weight, bias, p)
	if err != nil {
		return Value{}, err
	}
	return TensorArg(out), nil
}

// convParams reads stride, padding and dilation from three consecutive
// inputs starting at first, and groups from groupsAt.
func convParams(args []Value, first, groupsAt int) (cpu.Conv2DParams, error) {
	var p cpu.Conv2DParams
	var err error
	if p.Stride, err = pairAt(args, first); err != nil {
		return p, err
	}
	if p.Padding, err = pairAt(args, first+1); err != nil {
		return p, err
	}
	if p.Dilation, err = pairAt(args, first+2); err != nil {
		return p, err
	}
	p.Groups, err = intAt(args, groupsAt)
	return p, err
}

// convolution_prepack(weight, bias, stride, padding, dilation, kernel_size,
// groups, output_channel, weight_is_channels_last, weight_is_prepacked,
// input_size)
func handleConvPrepack(_ *Context, _ *ir.Node, args []Value) (Value, error) {
	if err := arity(args, 11); err != nil {
		return Value{}, err
	}
	weight, err := tensorAt(args, 0)
	if err != nil {
		return Value{}, err
	}
	bias, err := optionalTensorAt(args, 1)
	if err != nil {
		return Value{}, err
	}
	p, err := convParams(args, 2, 6)
	if err != nil {
		return Value{}, err
	}
	kernel, err := pairAt(args, 5)
	if err != nil {
		return Value{}, err
	}
	outChannels, err := intAt(args, 7)
	if err != nil {
		return Value{}, err
	}
	prepacked, err := boolAt(args, 9)
	if err != nil {
		return Value{}, err
	}
	inputSize, err := intsAt(args, 10)
	if err != nil {
		return Value{}, err
	}

	ws := weight.Shape()
	if len(ws) != 4 || ws[0] != outChannels || ws[2] != kernel[0] || ws[3] != kernel[1] {
		return Value{}, errors.Errorf("weight %v does not match output_channel %d and kernel_size %v", ws, outChannels, kernel)
	}
	if prepacked {
		return Value{}, errors.Wrap(ErrUnsupported, "weights that are already prepacked")
	}

	packed := &PackedConv{Weight: weight, Bias: bias, Params: p, InputSize: inputSize}
	return Value{IValue: ir.IValue{Kind: ir.ClassKind}, Packed: packed}, nil
}

// fusedConv handles a run variant taking (input, extra..., packed): the
// convolution result is handed to post along with the extra operands.
func fusedConv(extra int, post func(ctx *Context, y *tensor.RawTensor, extra []Value) (*tensor.RawTensor, error)) Handler {
	return func(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
		if err := arity(args, extra+2); err != nil {
			return Value{}, err
		}
		y, err := runPacked(ctx, args)
		if err != nil {
			return Value{}, err
		}
		out, err := post(ctx, y, args[1:1+extra])
		if err != nil {
			return Value{}, err
		}
		return TensorArg(out), nil
	}
}

// fusedAdd handles (add|add_relu)_run(input, accumu, alpha, packed): the
// result conv(input) + alpha*accumu is written into accumu.
func fusedAdd(relu bool) Handler {
	return func(ctx *Context, _ *ir.Node, args []Value) (Value, error) {
		if err := arity(args, 4); err != nil {
			return Value{}, err
		}
		accumu, err := tensorAt(args, 1)
		if err != nil {
			return Value{}, err
		}
		alpha, err := floatAt(args, 2)
		if err != nil {
			return Value{}, err
		}
		y, err := runPacked(ctx, args)
		if err != nil {
			return Value{}, err
		}
		if accumu.Layout() != y.Layout() {
			if accumu, err = accumu.Contiguous(y.Layout()); err != nil {
				return Value{}, err
			}
		}
		sum, err := ctx.Backend.AddScaled(y, accumu, alpha)
		if err != nil {
			return Value{}, err
		}
		if relu {
			if sum, err = ctx.Backend.ReLU(sum); err != nil {
				return Value{}, err
			}
		}
		return writeInto(args[1].Tensor, sum)
	}
}

// runPacked convolves args[0] with the context in the last argument.
func runPacked(ctx *Context, args []Value) (*tensor.RawTensor, error) {
	input, err := tensorAt(args, 0)
	if err != nil {
		return nil, err
	}
	packed, err := packedAt(args, len(args)-1)
	if err != nil {
		return nil, err
	}
	return ctx.Backend.Conv2D(input, packed.Weight, packed.Bias, packed.Params)
}
