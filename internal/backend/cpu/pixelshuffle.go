package cpu

import (
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// shuffleGeometry describes the channel-deep side of a pixel shuffle:
// a [nbatch, csub*s*s, h, w] tensor. The spatially large side is always
// [nbatch, csub, h*s, w*s]. Leading dims of planar tensors fold into nbatch.
type shuffleGeometry struct {
	nbatch, csub, h, w, s int
}

func (g shuffleGeometry) channels() int {
	return g.csub * g.s * g.s
}

func newShuffleGeometry(deep tensor.Shape, s int) shuffleGeometry {
	c, h, w := deep.Dim(-3), deep.Dim(-2), deep.Dim(-1)
	nbatch := 0
	if c*h*w > 0 {
		nbatch = deep.NumElements() / (c * h * w)
	}
	return shuffleGeometry{nbatch: nbatch, csub: c / (s * s), h: h, w: w, s: s}
}

// PixelShuffle rearranges [*, C*S*S, H, W] into [*, C, H*S, W*S].
//
// The channel index is read as (c, s1, s2); s1 moves into the height axis and
// s2 into the width axis:
//
//	output[n, c, h*S+s1, w*S+s2] = input[n, c*S*S + s1*S + s2, h, w]
func (cpu *CPUBackend) PixelShuffle(input *tensor.RawTensor, upscale int) (*tensor.RawTensor, error) {
	const op = "pixel_shuffle"
	if err := checkShuffleInput(op, input, upscale); err != nil {
		return nil, err
	}
	outShape, err := shuffledShape(op, input.Shape(), upscale)
	if err != nil {
		return nil, err
	}

	output, err := tensor.NewRaw(outShape, input.DType(), input.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create output: %v", op, err)
	}
	if err := cpu.toSpace(output, input, newShuffleGeometry(input.Shape(), upscale)); err != nil {
		return nil, err
	}
	return output, nil
}

// PixelShuffleBackward returns the gradient w.r.t. the input of PixelShuffle.
// It is the unshuffle of grad, shaped like the original input.
func (cpu *CPUBackend) PixelShuffleBackward(grad *tensor.RawTensor, inputShape tensor.Shape, upscale int) (*tensor.RawTensor, error) {
	const op = "pixel_shuffle_backward"
	if err := checkShuffleInput(op, grad, upscale); err != nil {
		return nil, err
	}
	want, err := shuffledShape(op, inputShape, upscale)
	if err != nil {
		return nil, err
	}
	if !grad.Shape().Equal(want) {
		return nil, invalidf("%s: expected grad of shape %v for input shape %v, got %v", op, want, inputShape, grad.Shape())
	}

	gradInput, err := tensor.NewRaw(inputShape, grad.DType(), grad.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create gradient tensor: %v", op, err)
	}
	if err := cpu.toDepth(gradInput, grad, newShuffleGeometry(inputShape, upscale)); err != nil {
		return nil, err
	}
	return gradInput, nil
}

// PixelUnshuffle rearranges [*, C, H*S, W*S] into [*, C*S*S, H, W], the
// inverse of PixelShuffle.
func (cpu *CPUBackend) PixelUnshuffle(input *tensor.RawTensor, downscale int) (*tensor.RawTensor, error) {
	const op = "pixel_unshuffle"
	if err := checkShuffleInput(op, input, downscale); err != nil {
		return nil, err
	}
	outShape, err := unshuffledShape(op, input.Shape(), downscale)
	if err != nil {
		return nil, err
	}

	output, err := tensor.NewRaw(outShape, input.DType(), input.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create output: %v", op, err)
	}
	if err := cpu.toDepth(output, input, newShuffleGeometry(outShape, downscale)); err != nil {
		return nil, err
	}
	return output, nil
}

// PixelUnshuffleBackward returns the gradient w.r.t. the input of
// PixelUnshuffle: the shuffle of grad.
func (cpu *CPUBackend) PixelUnshuffleBackward(grad *tensor.RawTensor, inputShape tensor.Shape, downscale int) (*tensor.RawTensor, error) {
	const op = "pixel_unshuffle_backward"
	if err := checkShuffleInput(op, grad, downscale); err != nil {
		return nil, err
	}
	want, err := unshuffledShape(op, inputShape, downscale)
	if err != nil {
		return nil, err
	}
	if !grad.Shape().Equal(want) {
		return nil, invalidf("%s: expected grad of shape %v for input shape %v, got %v", op, want, inputShape, grad.Shape())
	}

	gradInput, err := tensor.NewRaw(inputShape, grad.DType(), grad.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create gradient tensor: %v", op, err)
	}
	if err := cpu.toSpace(gradInput, grad, newShuffleGeometry(grad.Shape(), downscale)); err != nil {
		return nil, err
	}
	return gradInput, nil
}

func checkShuffleInput(op string, t *tensor.RawTensor, factor int) error {
	if err := checkLayout(op, t); err != nil {
		return err
	}
	if len(t.Shape()) < 3 {
		return invalidf("%s expects input to have at least 3 dimensions, but got input with %d dimension(s)", op, len(t.Shape()))
	}
	if factor <= 0 {
		return invalidf("%s expects a positive factor, but got %d", op, factor)
	}
	return nil
}

// shuffledShape returns the PixelShuffle output shape for an input shape.
func shuffledShape(op string, in tensor.Shape, s int) (tensor.Shape, error) {
	if len(in) < 3 {
		return nil, invalidf("%s expects input to have at least 3 dimensions, but got input with %d dimension(s)", op, len(in))
	}
	c := in.Dim(-3)
	if c%(s*s) != 0 {
		return nil, invalidf("%s expects its input's 'channel' dimension to be divisible by the square of upscale_factor, but input.size(-3)=%d is not divisible by %d",
			op, c, s*s)
	}
	out := in.Clone()
	r := len(out)
	out[r-3] = c / (s * s)
	out[r-2] *= s
	out[r-1] *= s
	return out, nil
}

// unshuffledShape returns the PixelUnshuffle output shape for an input shape.
func unshuffledShape(op string, in tensor.Shape, s int) (tensor.Shape, error) {
	if len(in) < 3 {
		return nil, invalidf("%s expects input to have at least 3 dimensions, but got input with %d dimension(s)", op, len(in))
	}
	h, w := in.Dim(-2), in.Dim(-1)
	if h%s != 0 {
		return nil, invalidf("%s expects height to be divisible by downscale_factor, but input.size(-2)=%d is not divisible by %d", op, h, s)
	}
	if w%s != 0 {
		return nil, invalidf("%s expects width to be divisible by downscale_factor, but input.size(-1)=%d is not divisible by %d", op, w, s)
	}
	out := in.Clone()
	r := len(out)
	out[r-3] *= s * s
	out[r-2] = h / s
	out[r-1] = w / s
	return out, nil
}

// toSpace gathers the channel-deep src into the spatially large dst.
func (cpu *CPUBackend) toSpace(dst, src *tensor.RawTensor, g shuffleGeometry) error {
	return permute(dst, src, func(out, in any) {
		switch out := out.(type) {
		case []float32:
			gatherToSpace(out, in.([]float32), g, dst.Layout(), cpu.cfg)
		case []float64:
			gatherToSpace(out, in.([]float64), g, dst.Layout(), cpu.cfg)
		case []int64:
			gatherToSpace(out, in.([]int64), g, dst.Layout(), cpu.cfg)
		case []uint16:
			gatherToSpace(out, in.([]uint16), g, dst.Layout(), cpu.cfg)
		}
	})
}

// toDepth gathers the spatially large src into the channel-deep dst.
func (cpu *CPUBackend) toDepth(dst, src *tensor.RawTensor, g shuffleGeometry) error {
	return permute(dst, src, func(out, in any) {
		switch out := out.(type) {
		case []float32:
			gatherToDepth(out, in.([]float32), g, dst.Layout(), cpu.cfg)
		case []float64:
			gatherToDepth(out, in.([]float64), g, dst.Layout(), cpu.cfg)
		case []int64:
			gatherToDepth(out, in.([]int64), g, dst.Layout(), cpu.cfg)
		case []uint16:
			gatherToDepth(out, in.([]uint16), g, dst.Layout(), cpu.cfg)
		}
	})
}

// permute hands kernel typed views of dst and src. Shuffles only move
// elements, so both 16-bit float types are moved as raw uint16 words.
func permute(dst, src *tensor.RawTensor, kernel func(out, in any)) error {
	if dst.NumElements() == 0 {
		return nil
	}
	switch src.DType() {
	case tensor.Float32:
		kernel(dst.AsFloat32(), src.AsFloat32())
	case tensor.Float64:
		kernel(dst.AsFloat64(), src.AsFloat64())
	case tensor.Int64:
		kernel(dst.AsInt64(), src.AsInt64())
	case tensor.BFloat16, tensor.Float16:
		kernel(tensor.Words16(dst), tensor.Words16(src))
	default:
		return invalidf("pixel_shuffle: unsupported dtype %s", src.DType())
	}
	return nil
}

// gatherToSpace writes out in its own memory order, reading each element
// from the channel-deep input.
//
// Planar output is walked as (n, c, h, s1, w, s2); channels-last output as
// (n, h, s1, w, s2, c).
func gatherToSpace[T any](out, in []T, g shuffleGeometry, layout tensor.Layout, cfg parallel.Config) {
	s, h, w, csub := g.s, g.h, g.w, g.csub
	c := g.channels()

	if layout == tensor.ChannelsLast {
		parallel.ForRange(len(out), 0, func(begin, end int) {
			ctr := newIndexCounter(begin, g.nbatch, h, s, w, s, csub)
			for i := begin; i < end; i++ {
				n, ih, s1, iw, s2, ic := ctr.idx[0], ctr.idx[1], ctr.idx[2], ctr.idx[3], ctr.idx[4], ctr.idx[5]
				out[i] = in[n*h*w*c+ih*w*c+iw*c+ic*s*s+s1*s+s2]
				ctr.step()
			}
		}, cfg)
		return
	}

	parallel.ForRange(len(out), 0, func(begin, end int) {
		ctr := newIndexCounter(begin, g.nbatch, csub, h, s, w, s)
		for i := begin; i < end; i++ {
			n, ic, ih, s1, iw, s2 := ctr.idx[0], ctr.idx[1], ctr.idx[2], ctr.idx[3], ctr.idx[4], ctr.idx[5]
			out[i] = in[n*c*h*w+ic*s*s*h*w+s1*s*h*w+s2*h*w+ih*w+iw]
			ctr.step()
		}
	}, cfg)
}

// gatherToDepth is the inverse of gatherToSpace.
//
// Planar output is walked as (n, c, s1, s2, h, w); channels-last output as
// (n, h, w, c, s1, s2).
func gatherToDepth[T any](out, in []T, g shuffleGeometry, layout tensor.Layout, cfg parallel.Config) {
	s, h, w, csub := g.s, g.h, g.w, g.csub
	c := g.channels()

	if layout == tensor.ChannelsLast {
		parallel.ForRange(len(out), 0, func(begin, end int) {
			ctr := newIndexCounter(begin, g.nbatch, h, w, csub, s, s)
			for i := begin; i < end; i++ {
				n, ih, iw, ic, s1, s2 := ctr.idx[0], ctr.idx[1], ctr.idx[2], ctr.idx[3], ctr.idx[4], ctr.idx[5]
				out[i] = in[n*h*w*c+ih*s*w*s*csub+s1*w*s*csub+iw*s*csub+s2*csub+ic]
				ctr.step()
			}
		}, cfg)
		return
	}

	parallel.ForRange(len(out), 0, func(begin, end int) {
		ctr := newIndexCounter(begin, g.nbatch, csub, s, s, h, w)
		for i := begin; i < end; i++ {
			n, ic, s1, s2, ih, iw := ctr.idx[0], ctr.idx[1], ctr.idx[2], ctr.idx[3], ctr.idx[4], ctr.idx[5]
			out[i] = in[n*c*h*w+ic*h*s*w*s+ih*s*w*s+s1*w*s+iw*s+s2]
			ctr.step()
		}
	}, cfg)
}
