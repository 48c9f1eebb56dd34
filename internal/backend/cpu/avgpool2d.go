package cpu

import (
	"github.com/born-ml/cpuext/internal/tensor"
)

// PoolingOutputSize returns the output extent of a pooling window sliding over
// an input of extent in. With ceilMode the division rounds up, but the last
// window must still start inside the input or its left padding.
func PoolingOutputSize(in, kernel, pad, stride, dilation int, ceilMode bool) int {
	num := in + 2*pad - dilation*(kernel-1) - 1
	if ceilMode {
		num += stride - 1
	}
	out := floorDiv(num, stride) + 1
	if ceilMode && (out-1)*stride >= in+pad {
		out--
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// poolGeometry is the fully resolved description of one pooling call.
// Output extents are computed once during validation.
type poolGeometry struct {
	nbatch, channels int
	inH, inW         int
	outH, outW       int
	kH, kW           int
	dH, dW           int
	padH, padW       int
	countIncludePad  bool
	divisorOverride  int // Zero when absent
}

// window returns the clamped input window [ih0, ih1) x [iw0, iw1) of output
// cell (oh, ow) and the divisor used to average it.
func (g *poolGeometry) window(oh, ow int) (ih0, ih1, iw0, iw1, divide int) {
	ih0 = oh*g.dH - g.padH
	iw0 = ow*g.dW - g.padW
	ih1 = min(ih0+g.kH, g.inH+g.padH)
	iw1 = min(iw0+g.kW, g.inW+g.padW)
	poolSize := (ih1 - ih0) * (iw1 - iw0)
	ih0 = max(ih0, 0)
	iw0 = max(iw0, 0)
	ih1 = min(ih1, g.inH)
	iw1 = min(iw1, g.inW)

	switch {
	case g.divisorOverride != 0:
		divide = g.divisorOverride
	case g.countIncludePad:
		divide = poolSize
	default:
		divide = (ih1 - ih0) * (iw1 - iw0)
	}
	return ih0, ih1, iw0, iw1, divide
}

// planes returns the number of independent [H, W] planes of a planar tensor.
func (g *poolGeometry) planes() int {
	return g.nbatch * g.channels
}

// newPoolGeometry validates input against p and resolves the geometry.
func newPoolGeometry(op string, input *tensor.RawTensor, p tensor.Pool2D) (*poolGeometry, error) {
	if err := checkLayout(op, input); err != nil {
		return nil, err
	}
	shape := input.Shape()
	if len(shape) != 3 && len(shape) != 4 {
		return nil, invalidf("%s: non-empty 3D or 4D input tensor expected, got %dD", op, len(shape))
	}

	kH, kW := p.KernelH, p.KernelW
	if kH <= 0 || kW <= 0 {
		return nil, invalidf("%s: kernel size should be greater than zero, but got kH: %d kW: %d", op, kH, kW)
	}
	dH, dW := p.StrideH, p.StrideW
	if dH == 0 {
		dH = kH
	}
	if dW == 0 {
		dW = kW
	}
	if dH < 0 || dW < 0 {
		return nil, invalidf("%s: stride should be greater than zero, but got dH: %d dW: %d", op, dH, dW)
	}
	if p.PadH < 0 || p.PadW < 0 {
		return nil, invalidf("%s: padding must be non-negative, got padH: %d padW: %d", op, p.PadH, p.PadW)
	}
	if p.PadH > kH/2 || p.PadW > kW/2 {
		return nil, invalidf("%s: pad should be smaller than or equal to half of kernel size, but got padW = %d, padH = %d, kW = %d, kH = %d",
			op, p.PadW, p.PadH, kW, kH)
	}
	divisor := 0
	if p.DivisorOverride != nil {
		if *p.DivisorOverride == 0 {
			return nil, invalidf("%s: divisor must be not zero", op)
		}
		divisor = *p.DivisorOverride
	}

	g := &poolGeometry{
		nbatch:          1,
		channels:        shape.Dim(-3),
		inH:             shape.Dim(-2),
		inW:             shape.Dim(-1),
		kH:              kH,
		kW:              kW,
		dH:              dH,
		dW:              dW,
		padH:            p.PadH,
		padW:            p.PadW,
		countIncludePad: p.CountIncludePad,
		divisorOverride: divisor,
	}
	if len(shape) == 4 {
		g.nbatch = shape[0]
	}
	if g.channels == 0 || g.inH == 0 || g.inW == 0 {
		return nil, invalidf("%s: expected input with non-zero channel and spatial dims, got %v", op, shape)
	}

	g.outH = PoolingOutputSize(g.inH, kH, p.PadH, dH, 1, p.CeilMode)
	g.outW = PoolingOutputSize(g.inW, kW, p.PadW, dW, 1, p.CeilMode)
	if g.outH < 1 || g.outW < 1 {
		return nil, invalidf("%s: given input size (%dx%dx%d), calculated output size (%dx%dx%d) is too small",
			op, g.channels, g.inH, g.inW, g.channels, g.outH, g.outW)
	}
	return g, nil
}

// outputShape returns the pooled shape for an input of the given rank.
func (g *poolGeometry) outputShape(rank int) tensor.Shape {
	if rank == 3 {
		return tensor.Shape{g.channels, g.outH, g.outW}
	}
	return tensor.Shape{g.nbatch, g.channels, g.outH, g.outW}
}

// AvgPool2D performs 2D average pooling.
//
// Input shape:  [batch, channels, height, width] or [channels, height, width]
// Output shape: [batch, channels, out_height, out_width] in the input's layout
//
// Each output element is the mean of its input window. The divisor is the
// explicit override when set, otherwise the window area including padding
// (CountIncludePad) or the in-bounds area only. A window lying entirely in
// padding produces zero.
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[3.5,5.5],
//	        [5,6,7,8],             [11.5,13.5]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, p tensor.Pool2D) (*tensor.RawTensor, error) {
	g, err := newPoolGeometry("avg_pool2d", input, p)
	if err != nil {
		return nil, err
	}

	output, err := tensor.NewRaw(g.outputShape(len(input.Shape())), input.DType(), input.Layout())
	if err != nil {
		return nil, invalidf("avg_pool2d: failed to create output: %v", err)
	}
	if output.NumElements() == 0 {
		return output, nil
	}

	if input.Layout() == tensor.ChannelsLast {
		switch input.DType() {
		case tensor.Float32:
			avgPool2DChannelsLast(tensor.Elements[float32](output), tensor.Elements[float32](input), g, addLane[float32], cpu.cfg)
		case tensor.Float64:
			avgPool2DChannelsLast(tensor.Elements[float64](output), tensor.Elements[float64](input), g, addLaneFloat64, cpu.cfg)
		case tensor.Int64:
			avgPool2DChannelsLast(tensor.Elements[int64](output), tensor.Elements[int64](input), g, addLane[int64], cpu.cfg)
		case tensor.BFloat16:
			avgPool2DChannelsLastNarrow(output.AsBFloat16(), input.AsBFloat16(), g, bfloat16Codec, cpu.cfg)
		case tensor.Float16:
			avgPool2DChannelsLastNarrow(output.AsFloat16(), input.AsFloat16(), g, float16Codec, cpu.cfg)
		default:
			return nil, invalidf("avg_pool2d_channels_last: unsupported dtype %s", input.DType())
		}
		return output, nil
	}

	switch input.DType() {
	case tensor.Float32:
		avgPool2DPlanar(output.AsFloat32(), input.AsFloat32(), g, float32Codec, cpu.cfg)
	case tensor.Float64:
		avgPool2DPlanar(output.AsFloat64(), input.AsFloat64(), g, float64Codec, cpu.cfg)
	case tensor.Int64:
		avgPool2DPlanar(output.AsInt64(), input.AsInt64(), g, int64Codec, cpu.cfg)
	case tensor.BFloat16:
		avgPool2DPlanar(output.AsBFloat16(), input.AsBFloat16(), g, bfloat16Codec, cpu.cfg)
	case tensor.Float16:
		avgPool2DPlanar(output.AsFloat16(), input.AsFloat16(), g, float16Codec, cpu.cfg)
	default:
		return nil, invalidf("avg_pool2d: unsupported dtype %s", input.DType())
	}
	return output, nil
}
