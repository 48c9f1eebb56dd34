package tensor

// Pool2D holds the window parameters of a 2D average pooling.
type Pool2D struct {
	KernelH, KernelW int
	StrideH, StrideW int // Zero means "same as kernel"
	PadH, PadW       int
	CeilMode         bool
	CountIncludePad  bool
	DivisorOverride  *int // Explicit divisor; must be non-zero when set
}

// Backend defines the kernels a compute backend provides to the autodiff
// records and the graph interpreter.
//
// Implementations:
//   - CPU: pure Go with goroutine fork-join parallelism
type Backend interface {
	// Name returns the backend name.
	Name() string

	// Pooling
	AvgPool2D(input *RawTensor, p Pool2D) (*RawTensor, error)
	AvgPool2DBackward(gradOutput, input *RawTensor, p Pool2D) (*RawTensor, error)

	// Pixel rearrangement
	PixelShuffle(input *RawTensor, upscale int) (*RawTensor, error)
	PixelShuffleBackward(gradOutput *RawTensor, inputShape Shape, upscale int) (*RawTensor, error)
	PixelUnshuffle(input *RawTensor, downscale int) (*RawTensor, error)
	PixelUnshuffleBackward(gradOutput *RawTensor, inputShape Shape, downscale int) (*RawTensor, error)

	// Element-wise a + alpha*b; used to accumulate gradients.
	AddScaled(a, b *RawTensor, alpha float64) (*RawTensor, error)
}
