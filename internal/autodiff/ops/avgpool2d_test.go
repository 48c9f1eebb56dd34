package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cpuext/internal/backend/cpu"
	"github.com/born-ml/cpuext/internal/tensor"
)

func ones(t *testing.T, shape tensor.Shape, layout tensor.Layout) *tensor.RawTensor {
	t.Helper()
	values := make([]float64, shape.NumElements())
	for i := range values {
		values[i] = 1
	}
	raw, err := tensor.FromFloat64(shape, tensor.Float32, layout, values)
	require.NoError(t, err)
	return raw
}

// TestAvgPool2DOp_BackwardGradients tests AvgPool2D backward pass gradients.
func TestAvgPool2DOp_BackwardGradients(t *testing.T) {
	backend := cpu.New()
	p := tensor.Pool2D{KernelH: 2, KernelW: 2}

	for _, layout := range []tensor.Layout{tensor.Planar, tensor.ChannelsLast} {
		input := ones(t, tensor.Shape{1, 2, 4, 4}, layout)
		output, err := backend.AvgPool2D(input, p)
		require.NoError(t, err)

		op := NewAvgPool2DOp(input, output, p)
		assert.Equal(t, []*tensor.RawTensor{input}, op.Inputs())
		assert.Same(t, output, op.Output())

		grads, err := op.Backward(ones(t, output.Shape(), layout), backend)
		require.NoError(t, err)
		require.Len(t, grads, 1)

		// Every input cell belongs to exactly one 2x2 window.
		inputGrad := grads[0]
		assert.Equal(t, input.Shape(), inputGrad.Shape())
		assert.Equal(t, layout, inputGrad.Layout())
		for _, v := range inputGrad.ToFloat64() {
			assert.Equal(t, 0.25, v)
		}
	}
}

func TestAvgPool2DOp_KeepsDivisorOverride(t *testing.T) {
	backend := cpu.New()
	divisor := 1
	p := tensor.Pool2D{KernelH: 2, KernelW: 2, DivisorOverride: &divisor}

	input := ones(t, tensor.Shape{1, 1, 2, 2}, tensor.Planar)
	output, err := backend.AvgPool2D(input, p)
	require.NoError(t, err)
	op := NewAvgPool2DOp(input, output, p)

	// Later changes to the caller's divisor must not leak into the record.
	divisor = 4

	grads, err := op.Backward(ones(t, output.Shape(), tensor.Planar), backend)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, grads[0].ToFloat64())
	assert.Equal(t, 1, *op.Params().DivisorOverride)
}

func TestAvgPool2DOp_BackwardRejectsBadGrad(t *testing.T) {
	backend := cpu.New()
	p := tensor.Pool2D{KernelH: 2, KernelW: 2}
	input := ones(t, tensor.Shape{1, 1, 4, 4}, tensor.Planar)
	output, err := backend.AvgPool2D(input, p)
	require.NoError(t, err)

	op := NewAvgPool2DOp(input, output, p)
	_, err = op.Backward(ones(t, tensor.Shape{1, 1, 3, 3}, tensor.Planar), backend)
	require.ErrorIs(t, err, cpu.ErrInvalidArgument)
}
