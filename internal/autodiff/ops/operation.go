// Package ops defines operation records for automatic differentiation.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend
//   - Backward pass: computes gradients for inputs given output gradient
//
// Supported operations:
//   - AvgPool2DOp: average pooling (gradient spread evenly over each window)
//   - PixelShuffleOp: depth-to-space permutation (gradient is the inverse permutation)
//   - PixelUnshuffleOp: space-to-depth permutation
package ops

import "github.com/born-ml/cpuext/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	//
	// Example for PixelShuffleOp:
	//   inputs: [x]
	//   outputGrad: dL/d(shuffle(x))
	//   returns: [unshuffle(outputGrad)]
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) ([]*tensor.RawTensor, error)

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
