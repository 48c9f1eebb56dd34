package cpu

import (
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// AvgPool2DBackward computes the gradient w.r.t. the input of AvgPool2D.
//
// Algorithm: every output gradient element, divided by the same divisor as the
// forward pass, is added to each input position of its clamped window.
// Overlapping windows accumulate in window-scan order, so results are
// reproducible run to run.
//
// The returned gradient has the input's shape and layout.
func (cpu *CPUBackend) AvgPool2DBackward(gradOutput, input *tensor.RawTensor, p tensor.Pool2D) (*tensor.RawTensor, error) {
	if gradOutput.DType() != input.DType() {
		return nil, invalidf("avg_pool2d_backward: expected dtype %s for gradOutput but got dtype %s",
			input.DType(), gradOutput.DType())
	}
	if _, err := newPoolGeometry("avg_pool2d_backward", input, p); err != nil {
		return nil, err
	}

	gradInput, err := tensor.NewRaw(input.Shape(), input.DType(), input.Layout())
	if err != nil {
		return nil, invalidf("avg_pool2d_backward: failed to create gradient tensor: %v", err)
	}
	if err := cpu.AvgPool2DBackwardInto(gradInput, gradOutput, p); err != nil {
		return nil, err
	}
	return gradInput, nil
}

// AvgPool2DBackwardInto accumulates the AvgPool2D input gradient into
// gradInput, which the caller allocates and zeroes. gradInput and gradOutput
// must share dtype and layout.
func (cpu *CPUBackend) AvgPool2DBackwardInto(gradInput, gradOutput *tensor.RawTensor, p tensor.Pool2D) error {
	const op = "avg_pool2d_backward"
	g, err := newPoolGeometry(op, gradInput, p)
	if err != nil {
		return err
	}
	if gradOutput.DType() != gradInput.DType() {
		return invalidf("%s: gradInput dtype %s != gradOutput dtype %s", op, gradInput.DType(), gradOutput.DType())
	}
	if gradOutput.Layout() != gradInput.Layout() {
		return invalidf("%s: gradInput layout %s != gradOutput layout %s", op, gradInput.Layout(), gradOutput.Layout())
	}
	if want := g.outputShape(len(gradInput.Shape())); !gradOutput.Shape().Equal(want) {
		return invalidf("%s: expected gradOutput of shape %v, got %v", op, want, gradOutput.Shape())
	}
	if gradInput.NumElements() == 0 {
		return nil
	}

	if gradInput.Layout() == tensor.ChannelsLast {
		switch gradInput.DType() {
		case tensor.Float32:
			avgPool2DBackwardChannelsLast(gradInput.AsFloat32(), gradOutput.AsFloat32(), g, float32Codec, cpu.cfg)
		case tensor.Float64:
			avgPool2DBackwardChannelsLast(gradInput.AsFloat64(), gradOutput.AsFloat64(), g, float64Codec, cpu.cfg)
		case tensor.Int64:
			avgPool2DBackwardChannelsLast(gradInput.AsInt64(), gradOutput.AsInt64(), g, int64Codec, cpu.cfg)
		case tensor.BFloat16:
			avgPool2DBackwardChannelsLast(gradInput.AsBFloat16(), gradOutput.AsBFloat16(), g, bfloat16Codec, cpu.cfg)
		case tensor.Float16:
			avgPool2DBackwardChannelsLast(gradInput.AsFloat16(), gradOutput.AsFloat16(), g, float16Codec, cpu.cfg)
		default:
			return invalidf("%s_channels_last: unsupported dtype %s", op, gradInput.DType())
		}
		return nil
	}

	switch gradInput.DType() {
	case tensor.Float32:
		avgPool2DBackwardPlanar(gradInput.AsFloat32(), gradOutput.AsFloat32(), g, float32Codec, cpu.cfg)
	case tensor.Float64:
		avgPool2DBackwardPlanar(gradInput.AsFloat64(), gradOutput.AsFloat64(), g, float64Codec, cpu.cfg)
	case tensor.Int64:
		avgPool2DBackwardPlanar(gradInput.AsInt64(), gradOutput.AsInt64(), g, int64Codec, cpu.cfg)
	case tensor.BFloat16:
		avgPool2DBackwardPlanar(gradInput.AsBFloat16(), gradOutput.AsBFloat16(), g, bfloat16Codec, cpu.cfg)
	case tensor.Float16:
		avgPool2DBackwardPlanar(gradInput.AsFloat16(), gradOutput.AsFloat16(), g, float16Codec, cpu.cfg)
	default:
		return invalidf("%s: unsupported dtype %s", op, gradInput.DType())
	}
	return nil
}

// avgPool2DBackwardPlanar scatters gradients plane by plane. Planes are the
// unit of parallel work because every output cell of a plane writes into the
// same input plane.
func avgPool2DBackwardPlanar[T tensor.Element, A accumulator](gin, gout []T, g *poolGeometry, cv codec[T, A], cfg parallel.Config) {
	inPlane := g.inH * g.inW
	outPlane := g.outH * g.outW
	parallel.ForRange(g.planes(), 1, func(begin, end int) {
		for c := begin; c < end; c++ {
			gi := gin[c*inPlane : (c+1)*inPlane]
			gp := gout[c*outPlane : (c+1)*outPlane]

			for oh := 0; oh < g.outH; oh++ {
				for ow := 0; ow < g.outW; ow++ {
					ih0, ih1, iw0, iw1, divide := g.window(oh, ow)
					if ih0 >= ih1 || iw0 >= iw1 {
						continue
					}

					delta := cv.load(gp[oh*g.outW+ow]) / A(divide)
					for ih := ih0; ih < ih1; ih++ {
						row := gi[ih*g.inW : (ih+1)*g.inW]
						for iw := iw0; iw < iw1; iw++ {
							row[iw] = cv.store(cv.load(row[iw]) + delta)
						}
					}
				}
			}
		}
	}, cfg)
}

// avgPool2DBackwardChannelsLast scatters gradients image by image; inner
// loops run over channel lanes.
func avgPool2DBackwardChannelsLast[T tensor.Element, A accumulator](gin, gout []T, g *poolGeometry, cv codec[T, A], cfg parallel.Config) {
	c := g.channels
	inImage := g.inH * g.inW * c
	outImage := g.outH * g.outW * c
	parallel.ForRange(g.nbatch, 1, func(begin, end int) {
		for n := begin; n < end; n++ {
			gi := gin[n*inImage : (n+1)*inImage]
			gob := gout[n*outImage : (n+1)*outImage]

			for oh := 0; oh < g.outH; oh++ {
				for ow := 0; ow < g.outW; ow++ {
					ih0, ih1, iw0, iw1, divide := g.window(oh, ow)
					if ih0 >= ih1 || iw0 >= iw1 {
						continue
					}

					goff := (oh*g.outW + ow) * c
					lane := gob[goff : goff+c]
					for ih := ih0; ih < ih1; ih++ {
						for iw := iw0; iw < iw1; iw++ {
							off := (ih*g.inW + iw) * c
							scatterDivLane(gi[off:off+c], lane, A(divide), cv.load, cv.store)
						}
					}
				}
			}
		}
	}, cfg)
}
