package autodiff

import (
	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/tensor"
)

// Backward computes gradients of output w.r.t. every tensor recorded on the
// tape of backend, seeding output with ones. output must be the result of
// the last recorded operation.
//
// Example:
//
//	ad := autodiff.New(cpu.New())
//	ad.Tape().StartRecording()
//	y, _ := ad.PixelShuffle(x, 2)
//	grads, _ := autodiff.Backward(ad, y)
//	grad := grads[x]
func Backward[B tensor.Backend](backend *AutodiffBackend[B], output *tensor.RawTensor) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		return nil, errors.New("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	if tape.LastOutput() != output {
		return nil, errors.New("backward: output was not produced by the last recorded operation")
	}

	seed := make([]float64, output.NumElements())
	for i := range seed {
		seed[i] = 1
	}
	outputGrad, err := tensor.FromFloat64(output.Shape(), output.DType(), output.Layout(), seed)
	if err != nil {
		return nil, errors.Wrap(err, "backward: failed to create output gradient")
	}
	return tape.Backward(outputGrad, backend.Inner())
}
