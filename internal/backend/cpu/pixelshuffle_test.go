package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

func TestPixelShuffle_IndexMapping(t *testing.T) {
	backend := New()
	for _, layout := range allLayouts {
		t.Run(layout.String(), func(t *testing.T) {
			input := newTensor(t, tensor.Shape{1, 4, 2, 2}, tensor.Float32, layout, sequence(16, 0))

			output, err := backend.PixelShuffle(input, 2)
			require.NoError(t, err)
			require.Equal(t, tensor.Shape{1, 1, 4, 4}, output.Shape())
			assert.Equal(t, layout, output.Layout())

			for h := range 2 {
				for w := range 2 {
					for s1 := range 2 {
						for s2 := range 2 {
							assert.Equal(t, input.At(0, s1*2+s2, h, w), output.At(0, 0, 2*h+s1, 2*w+s2),
								"h=%d w=%d s1=%d s2=%d", h, w, s1, s2)
						}
					}
				}
			}
		})
	}
}

func TestPixelShuffle_KnownOutput(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{1, 4, 1, 2}, tensor.Int64, tensor.Planar, []float64{
		0, 1, // channel 0
		2, 3, // channel 1
		4, 5, // channel 2
		6, 7, // channel 3
	})

	output, err := backend.PixelShuffle(input, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2, 4}, output.Shape())
	assert.Equal(t, []int64{
		0, 2, 1, 3,
		4, 6, 5, 7,
	}, output.AsInt64())
}

func TestPixelShuffle_RoundTrip(t *testing.T) {
	shapes := []struct {
		shape  tensor.Shape
		factor int
	}{
		{tensor.Shape{2, 12, 3, 5}, 2},
		{tensor.Shape{1, 18, 2, 2}, 3},
		{tensor.Shape{3, 4, 1, 1}, 2},
	}

	for _, cfg := range []parallel.Config{parallel.Sequential(), {Enabled: true, NumWorkers: 4, MinChunkSize: 5}} {
		backend := NewWithConfig(cfg)
		for _, dt := range allDTypes {
			for _, layout := range allLayouts {
				for _, tc := range shapes {
					values := randomValues(tc.shape.NumElements(), 11)
					x := newTensor(t, tc.shape, dt, layout, values)

					shuffled, err := backend.PixelShuffle(x, tc.factor)
					require.NoError(t, err)
					back, err := backend.PixelUnshuffle(shuffled, tc.factor)
					require.NoError(t, err)

					assert.Equal(t, x.Shape(), back.Shape())
					assert.Equal(t, x.Data(), back.Data(), "%s %s %v", dt, layout, tc.shape)
				}
			}
		}
	}
}

func TestPixelUnshuffle_RoundTrip(t *testing.T) {
	backend := New()
	for _, dt := range allDTypes {
		for _, layout := range allLayouts {
			shape := tensor.Shape{2, 3, 6, 4}
			x := newTensor(t, shape, dt, layout, randomValues(shape.NumElements(), 13))

			unshuffled, err := backend.PixelUnshuffle(x, 2)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{2, 12, 3, 2}, unshuffled.Shape())

			back, err := backend.PixelShuffle(unshuffled, 2)
			require.NoError(t, err)
			assert.Equal(t, x.Data(), back.Data(), "%s %s", dt, layout)
		}
	}
}

func TestPixelShuffle_FlattensLeadingDims(t *testing.T) {
	backend := New()
	shape := tensor.Shape{2, 3, 8, 2, 3}
	x := newTensor(t, shape, tensor.Float64, tensor.Planar, sequence(shape.NumElements(), 0))

	output, err := backend.PixelShuffle(x, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 2, 4, 6}, output.Shape())

	// Every [8, 2, 3] slice shuffles on its own.
	flat, err := x.Reshape(tensor.Shape{6, 8, 2, 3})
	require.NoError(t, err)
	want, err := backend.PixelShuffle(flat, 2)
	require.NoError(t, err)
	assert.Equal(t, want.ToFloat64(), output.ToFloat64())

	rank3 := newTensor(t, tensor.Shape{4, 1, 1}, tensor.Float32, tensor.Planar, []float64{1, 2, 3, 4})
	out3, err := backend.PixelShuffle(rank3, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2}, out3.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, out3.ToFloat64())
}

func TestPixelShuffle_LayoutsAgree(t *testing.T) {
	backend := New()
	shape := tensor.Shape{2, 27, 4, 5}
	planar := newTensor(t, shape, tensor.Float32, tensor.Planar, randomValues(shape.NumElements(), 17))
	nhwc, err := planar.Contiguous(tensor.ChannelsLast)
	require.NoError(t, err)

	want, err := backend.PixelShuffle(planar, 3)
	require.NoError(t, err)
	got, err := backend.PixelShuffle(nhwc, 3)
	require.NoError(t, err)
	assert.Equal(t, want.ToFloat64(), got.ToFloat64())

	wantU, err := backend.PixelUnshuffle(want, 3)
	require.NoError(t, err)
	gotU, err := backend.PixelUnshuffle(got, 3)
	require.NoError(t, err)
	assert.Equal(t, wantU.ToFloat64(), gotU.ToFloat64())
}

func TestPixelShuffle_BackwardIsInverse(t *testing.T) {
	backend := New()
	for _, layout := range allLayouts {
		inputShape := tensor.Shape{2, 8, 3, 3}
		grad := newTensor(t, tensor.Shape{2, 2, 6, 6}, tensor.Float64, layout, randomValues(2*2*6*6, 19))

		gradInput, err := backend.PixelShuffleBackward(grad, inputShape, 2)
		require.NoError(t, err)
		assert.Equal(t, inputShape, gradInput.Shape())
		assert.Equal(t, layout, gradInput.Layout())

		unshuffled, err := backend.PixelUnshuffle(grad, 2)
		require.NoError(t, err)
		assert.Equal(t, unshuffled.Data(), gradInput.Data())

		// Unshuffle backward maps the gradient back through a shuffle.
		gradBack, err := backend.PixelUnshuffleBackward(gradInput, grad.Shape(), 2)
		require.NoError(t, err)
		assert.Equal(t, grad.Data(), gradBack.Data())
	}
}

func TestPixelShuffle_EmptyBatch(t *testing.T) {
	backend := New()
	x, err := tensor.NewRaw(tensor.Shape{0, 4, 2, 2}, tensor.Float32, tensor.ChannelsLast)
	require.NoError(t, err)

	out, err := backend.PixelShuffle(x, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 1, 4, 4}, out.Shape())
}

func TestPixelShuffle_Validation(t *testing.T) {
	backend := New()
	x := newTensor(t, tensor.Shape{1, 6, 4, 4}, tensor.Float32, tensor.Planar, filled(96, 1))

	t.Run("channels not divisible", func(t *testing.T) {
		_, err := backend.PixelShuffle(x, 2)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("non-positive factor", func(t *testing.T) {
		_, err := backend.PixelShuffle(x, 0)
		require.ErrorIs(t, err, ErrInvalidArgument)
		_, err = backend.PixelUnshuffle(x, -1)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rank 2", func(t *testing.T) {
		r2 := newTensor(t, tensor.Shape{4, 4}, tensor.Float32, tensor.Planar, filled(16, 1))
		_, err := backend.PixelShuffle(r2, 2)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("spatial not divisible", func(t *testing.T) {
		_, err := backend.PixelUnshuffle(x, 3)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("backward shape mismatch", func(t *testing.T) {
		grad := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.Planar, filled(16, 1))
		_, err := backend.PixelShuffleBackward(grad, tensor.Shape{1, 4, 3, 3}, 2)
		require.ErrorIs(t, err, ErrInvalidArgument)
		_, err = backend.PixelUnshuffleBackward(grad, tensor.Shape{1, 1, 4, 4}, 2)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func BenchmarkPixelShuffle(b *testing.B) {
	backend := New()
	shape := tensor.Shape{4, 64, 64, 64}
	for _, layout := range allLayouts {
		input := newTensor(b, shape, tensor.Float32, layout, randomValues(shape.NumElements(), 23))
		b.Run(layout.String(), func(b *testing.B) {
			for b.Loop() {
				_, _ = backend.PixelShuffle(input, 2)
			}
		})
	}
}
