package ops

import (
	"github.com/born-ml/cpuext/internal/tensor"
)

// AvgPool2DOp records an average pooling operation for autodiff.
//
// Forward:
//
//	output[n,c,oh,ow] = sum(input[n,c,ih,iw] for (ih,iw) in window(oh,ow)) / divisor(oh,ow)
//
// Backward:
//   - Every input position of a window receives grad[n,c,oh,ow] / divisor(oh,ow)
//   - Overlapping windows accumulate
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [2.5]  Input Grad: [[g/4, g/4],
//	         [3, 4]]                              [g/4, g/4]]
//
// Average pooling has no parameters, so only the input receives a gradient.
// The window parameters are kept verbatim so backward uses the same divisor.
type AvgPool2DOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	params tensor.Pool2D
}

// NewAvgPool2DOp creates a new AvgPool2D operation.
func NewAvgPool2DOp(input, output *tensor.RawTensor, p tensor.Pool2D) *AvgPool2DOp {
	if p.DivisorOverride != nil {
		d := *p.DivisorOverride
		p.DivisorOverride = &d
	}
	return &AvgPool2DOp{
		input:  input,
		output: output,
		params: p,
	}
}

// Inputs returns the input tensors.
func (op *AvgPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *AvgPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Params returns the recorded window parameters.
func (op *AvgPool2DOp) Params() tensor.Pool2D {
	return op.params
}

// Backward computes the input gradient of AvgPool2D.
//
// This is pure orchestration - delegates computation to backend.
func (op *AvgPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) ([]*tensor.RawTensor, error) {
	inputGrad, err := backend.AvgPool2DBackward(outputGrad, op.input, op.params)
	if err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputGrad}, nil
}
