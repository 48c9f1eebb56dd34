package ops

import (
	"github.com/born-ml/cpuext/internal/tensor"
)

// PixelShuffleOp records a pixel shuffle for autodiff.
//
// Forward:
//
//	output[n, c, h*S+s1, w*S+s2] = input[n, c*S*S + s1*S + s2, h, w]
//
// Backward:
//   - The shuffle is a permutation, so the input gradient is the inverse
//     permutation of the output gradient (a pixel unshuffle)
type PixelShuffleOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	upscale int
}

// NewPixelShuffleOp creates a new PixelShuffle operation.
func NewPixelShuffleOp(input, output *tensor.RawTensor, upscale int) *PixelShuffleOp {
	return &PixelShuffleOp{input: input, output: output, upscale: upscale}
}

// Inputs returns the input tensors.
func (op *PixelShuffleOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *PixelShuffleOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient of PixelShuffle.
func (op *PixelShuffleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) ([]*tensor.RawTensor, error) {
	inputGrad, err := backend.PixelShuffleBackward(outputGrad, op.input.Shape(), op.upscale)
	if err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputGrad}, nil
}

// PixelUnshuffleOp records a pixel unshuffle for autodiff. Its backward is a
// pixel shuffle of the output gradient.
type PixelUnshuffleOp struct {
	input     *tensor.RawTensor
	output    *tensor.RawTensor
	downscale int
}

// NewPixelUnshuffleOp creates a new PixelUnshuffle operation.
func NewPixelUnshuffleOp(input, output *tensor.RawTensor, downscale int) *PixelUnshuffleOp {
	return &PixelUnshuffleOp{input: input, output: output, downscale: downscale}
}

// Inputs returns the input tensors.
func (op *PixelUnshuffleOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *PixelUnshuffleOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient of PixelUnshuffle.
func (op *PixelUnshuffleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) ([]*tensor.RawTensor, error) {
	inputGrad, err := backend.PixelUnshuffleBackward(outputGrad, op.input.Shape(), op.downscale)
	if err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputGrad}, nil
}
