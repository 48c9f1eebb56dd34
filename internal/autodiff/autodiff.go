// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (AvgPool2D, PixelShuffle, PixelUnshuffle) implements backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	ad := autodiff.New(cpu.New())
//	ad.Tape().StartRecording()
//	y, _ := ad.AvgPool2D(x, tensor.Pool2D{KernelH: 2, KernelW: 2})
//	grads, _ := autodiff.Backward(ad, y)
//	dx := grads[x]
package autodiff

import (
	"github.com/born-ml/cpuext/internal/autodiff/ops"
	"github.com/born-ml/cpuext/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name with autodiff prefix.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// AvgPool2D performs average pooling and records the operation.
func (b *AutodiffBackend[B]) AvgPool2D(input *tensor.RawTensor, p tensor.Pool2D) (*tensor.RawTensor, error) {
	output, err := b.inner.AvgPool2D(input, p)
	if err != nil {
		return nil, err
	}
	b.tape.Record(ops.NewAvgPool2DOp(input, output, p))
	return output, nil
}

// AvgPool2DBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) AvgPool2DBackward(gradOutput, input *tensor.RawTensor, p tensor.Pool2D) (*tensor.RawTensor, error) {
	return b.inner.AvgPool2DBackward(gradOutput, input, p)
}

// PixelShuffle performs a pixel shuffle and records the operation.
func (b *AutodiffBackend[B]) PixelShuffle(input *tensor.RawTensor, upscale int) (*tensor.RawTensor, error) {
	output, err := b.inner.PixelShuffle(input, upscale)
	if err != nil {
		return nil, err
	}
	b.tape.Record(ops.NewPixelShuffleOp(input, output, upscale))
	return output, nil
}

// PixelShuffleBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) PixelShuffleBackward(gradOutput *tensor.RawTensor, inputShape tensor.Shape, upscale int) (*tensor.RawTensor, error) {
	return b.inner.PixelShuffleBackward(gradOutput, inputShape, upscale)
}

// PixelUnshuffle performs a pixel unshuffle and records the operation.
func (b *AutodiffBackend[B]) PixelUnshuffle(input *tensor.RawTensor, downscale int) (*tensor.RawTensor, error) {
	output, err := b.inner.PixelUnshuffle(input, downscale)
	if err != nil {
		return nil, err
	}
	b.tape.Record(ops.NewPixelUnshuffleOp(input, output, downscale))
	return output, nil
}

// PixelUnshuffleBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) PixelUnshuffleBackward(gradOutput *tensor.RawTensor, inputShape tensor.Shape, downscale int) (*tensor.RawTensor, error) {
	return b.inner.PixelUnshuffleBackward(gradOutput, inputShape, downscale)
}

// AddScaled delegates to the wrapped backend. Adds are not differentiated.
func (b *AutodiffBackend[B]) AddScaled(x, y *tensor.RawTensor, alpha float64) (*tensor.RawTensor, error) {
	return b.inner.AddScaled(x, y, alpha)
}

var _ tensor.Backend = (*AutodiffBackend[tensor.Backend])(nil)
