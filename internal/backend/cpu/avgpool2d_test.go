package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

var allDTypes = []tensor.DataType{tensor.Float32, tensor.Float64, tensor.BFloat16, tensor.Float16, tensor.Int64}

var allLayouts = []tensor.Layout{tensor.Planar, tensor.ChannelsLast}

// newTensor creates a tensor from values listed in logical order.
func newTensor(t testing.TB, shape tensor.Shape, dt tensor.DataType, layout tensor.Layout, values []float64) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat64(shape, dt, layout, values)
	require.NoError(t, err)
	return raw
}

func sequence(n int, start float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)
	}
	return values
}

func filled(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func randomValues(n int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, 7))
	values := make([]float64, n)
	for i := range values {
		// Multiples of 1/8 in [-4, 4) are exact in every float type.
		values[i] = float64(r.IntN(64)-32) / 8
	}
	return values
}

func intPtr(v int) *int { return &v }

func TestAvgPool2D_AllOnes(t *testing.T) {
	backend := New()
	for _, dt := range allDTypes {
		for _, layout := range allLayouts {
			t.Run(dt.String()+"/"+layout.String(), func(t *testing.T) {
				input := newTensor(t, tensor.Shape{1, 1, 4, 4}, dt, layout, filled(16, 1))

				output, err := backend.AvgPool2D(input, tensor.Pool2D{
					KernelH: 2, KernelW: 2, StrideH: 2, StrideW: 2, CountIncludePad: true,
				})
				require.NoError(t, err)

				assert.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
				assert.Equal(t, layout, output.Layout())
				assert.Equal(t, dt, output.DType())
				assert.Equal(t, []float64{1, 1, 1, 1}, output.ToFloat64())
			})
		}
	}
}

func TestAvgPool2D_BasicForward(t *testing.T) {
	backend := New()

	// [[1,2,3,4],      -> [[3.5,5.5],
	//  [5,6,7,8],          [11.5,13.5]]
	//  [9,10,11,12],
	//  [13,14,15,16]]
	for _, layout := range allLayouts {
		input := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32, layout, sequence(16, 1))
		output, err := backend.AvgPool2D(input, tensor.Pool2D{KernelH: 2, KernelW: 2})
		require.NoError(t, err)
		assert.Equal(t, []float64{3.5, 5.5, 11.5, 13.5}, output.ToFloat64(), layout.String())
	}
}

func TestAvgPool2D_Int64TruncatesDivision(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Int64, tensor.Planar, []float64{1, 2, 3, 4})

	output, err := backend.AvgPool2D(input, tensor.Pool2D{KernelH: 2, KernelW: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, output.AsInt64())
}

func TestAvgPool2D_Padding(t *testing.T) {
	backend := New()
	tests := []struct {
		name            string
		countIncludePad bool
		corner          float64
	}{
		{"include_pad", true, 0.25},
		{"exclude_pad", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, layout := range allLayouts {
				input := newTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float64, layout, filled(9, 1))
				output, err := backend.AvgPool2D(input, tensor.Pool2D{
					KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1,
					CountIncludePad: tt.countIncludePad,
				})
				require.NoError(t, err)

				// out = (3 + 2 - 1 - 1) / 1 + 1 = 4
				require.Equal(t, tensor.Shape{1, 1, 4, 4}, output.Shape())
				assert.Equal(t, tt.corner, output.At(0, 0, 0, 0))
				assert.Equal(t, tt.corner, output.At(0, 0, 3, 3))
				assert.Equal(t, 1.0, output.At(0, 0, 1, 1))
			}
		})
	}
}

func TestAvgPool2D_DivisorOverride(t *testing.T) {
	backend := New()
	for _, layout := range allLayouts {
		input := newTensor(t, tensor.Shape{1, 2, 4, 4}, tensor.Float32, layout, filled(32, 1))
		output, err := backend.AvgPool2D(input, tensor.Pool2D{
			KernelH: 2, KernelW: 2, DivisorOverride: intPtr(2),
		})
		require.NoError(t, err)
		assert.Equal(t, filled(8, 2), output.ToFloat64())
	}
}

func TestAvgPool2D_CeilMode(t *testing.T) {
	backend := New()
	for _, layout := range allLayouts {
		input := newTensor(t, tensor.Shape{1, 1, 5, 5}, tensor.Float64, layout, sequence(25, 0))
		output, err := backend.AvgPool2D(input, tensor.Pool2D{KernelH: 2, KernelW: 2, CeilMode: true})
		require.NoError(t, err)

		require.Equal(t, tensor.Shape{1, 1, 3, 3}, output.Shape())
		// Right edge window covers column 4 of rows 0-1: (4 + 9) / 2.
		assert.Equal(t, 6.5, output.At(0, 0, 0, 2))
		// Bottom right window is the single element 24.
		assert.Equal(t, 24.0, output.At(0, 0, 2, 2))
	}
}

func TestAvgPool2D_Rank3Input(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{2, 4, 4}, tensor.Float32, tensor.Planar, sequence(32, 1))

	output, err := backend.AvgPool2D(input, tensor.Pool2D{KernelH: 2, KernelW: 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 2}, output.Shape())
	assert.Equal(t, []float64{3.5, 5.5, 11.5, 13.5, 19.5, 21.5, 27.5, 29.5}, output.ToFloat64())
}

// TestAvgPool2D_EmptyWindowIsZero drives the kernels with a geometry whose
// border windows lie entirely in padding. Validation forbids such padding,
// so the geometry is built by hand.
func TestAvgPool2D_EmptyWindowIsZero(t *testing.T) {
	g := &poolGeometry{
		nbatch: 1, channels: 3,
		inH: 2, inW: 2,
		outH: 4, outW: 4,
		kH: 1, kW: 1, dH: 1, dW: 1,
		padH: 1, padW: 1,
	}
	cfg := parallel.Sequential()

	check := func(t *testing.T, out []float64) {
		for i, v := range out {
			oh, ow := (i/4)%4, i%4
			if oh == 0 || oh == 3 || ow == 0 || ow == 3 {
				assert.Zero(t, v, "border cell %d", i)
			} else {
				assert.Equal(t, 5.0, v, "interior cell %d", i)
			}
		}
	}

	t.Run("planar/int64", func(t *testing.T) {
		in := []int64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}
		out := make([]int64, 3*16)
		for i := range out {
			out[i] = -1
		}
		avgPool2DPlanar(out, in, g, int64Codec, cfg)

		got := make([]float64, len(out))
		for i, v := range out {
			got[i] = float64(v)
		}
		check(t, got)
	})

	t.Run("channels_last/int64", func(t *testing.T) {
		in := make([]int64, 12)
		for i := range in {
			in[i] = 5
		}
		out := make([]int64, 16*3)
		for i := range out {
			out[i] = -1
		}
		avgPool2DChannelsLast(out, in, g, addLane[int64], cfg)

		// Channel-innermost to one plane per channel.
		got := make([]float64, len(out))
		for p := 0; p < 16; p++ {
			for c := 0; c < 3; c++ {
				got[c*16+p] = float64(out[p*3+c])
			}
		}
		check(t, got)
	})

	t.Run("channels_last/bfloat16", func(t *testing.T) {
		input := newTensor(t, tensor.Shape{1, 3, 2, 2}, tensor.BFloat16, tensor.ChannelsLast, filled(12, 5))
		output := newTensor(t, tensor.Shape{1, 3, 4, 4}, tensor.BFloat16, tensor.ChannelsLast, filled(48, -1))
		avgPool2DChannelsLastNarrow(output.AsBFloat16(), input.AsBFloat16(), g, bfloat16Codec, cfg)
		check(t, output.ToFloat64())
	})

	t.Run("backward/int64", func(t *testing.T) {
		gin := make([]int64, 12)
		gout := make([]int64, 48)
		for i := range gout {
			gout[i] = 7
		}
		avgPool2DBackwardPlanar(gin, gout, g, int64Codec, cfg)
		// Each input cell is covered by exactly one non-empty 1x1 window.
		for _, v := range gin {
			assert.Equal(t, int64(7), v)
		}
	})
}

func TestAvgPool2D_LayoutsAgree(t *testing.T) {
	params := []tensor.Pool2D{
		{KernelH: 2, KernelW: 2},
		{KernelH: 3, KernelW: 3, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1},
		{KernelH: 3, KernelW: 2, StrideH: 2, StrideW: 1, PadH: 1, CountIncludePad: true},
		{KernelH: 3, KernelW: 3, StrideH: 2, StrideW: 2, PadH: 1, PadW: 1, CeilMode: true},
		{KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1, DivisorOverride: intPtr(3)},
	}
	shape := tensor.Shape{2, 11, 7, 9} // 11 channels exercise the lane remainder
	values := randomValues(shape.NumElements(), 1)

	for _, cfg := range []parallel.Config{parallel.Sequential(), {Enabled: true, NumWorkers: 4, MinChunkSize: 3}} {
		backend := NewWithConfig(cfg)
		for _, dt := range allDTypes {
			for i, p := range params {
				planar := newTensor(t, shape, dt, tensor.Planar, values)
				nhwc, err := planar.Contiguous(tensor.ChannelsLast)
				require.NoError(t, err)

				want, err := backend.AvgPool2D(planar, p)
				require.NoError(t, err)
				got, err := backend.AvgPool2D(nhwc, p)
				require.NoError(t, err)

				assert.Equal(t, want.Shape(), got.Shape())
				assert.True(t, floats.EqualApprox(want.ToFloat64(), got.ToFloat64(), 1e-5),
					"dtype %s params #%d", dt, i)
			}
		}
	}
}

func TestAvgPool2D_Validation(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.Planar, filled(16, 1))

	tests := []struct {
		name  string
		input *tensor.RawTensor
		p     tensor.Pool2D
	}{
		{"zero kernel", input, tensor.Pool2D{KernelH: 0, KernelW: 2}},
		{"negative stride", input, tensor.Pool2D{KernelH: 2, KernelW: 2, StrideH: -1}},
		{"negative padding", input, tensor.Pool2D{KernelH: 2, KernelW: 2, PadW: -1}},
		{"padding above half kernel", input, tensor.Pool2D{KernelH: 2, KernelW: 2, PadH: 2}},
		{"zero divisor", input, tensor.Pool2D{KernelH: 2, KernelW: 2, DivisorOverride: intPtr(0)}},
		{"output too small", input, tensor.Pool2D{KernelH: 5, KernelW: 5}},
		{"rank 2", newTensor(t, tensor.Shape{4, 4}, tensor.Float32, tensor.Planar, filled(16, 1)), tensor.Pool2D{KernelH: 2, KernelW: 2}},
		{"zero channels", newTensor(t, tensor.Shape{1, 0, 4, 4}, tensor.Float32, tensor.Planar, nil), tensor.Pool2D{KernelH: 2, KernelW: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := backend.AvgPool2D(tt.input, tt.p)
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, output)
		})
	}
}

func TestAvgPool2D_EmptyBatch(t *testing.T) {
	backend := New()
	input, err := tensor.NewRaw(tensor.Shape{0, 3, 4, 4}, tensor.Float32, tensor.ChannelsLast)
	require.NoError(t, err)

	output, err := backend.AvgPool2D(input, tensor.Pool2D{KernelH: 2, KernelW: 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 3, 2, 2}, output.Shape())
}

func TestAvgPool2DBackward_Basic(t *testing.T) {
	backend := New()
	for _, layout := range allLayouts {
		input := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32, layout, sequence(16, 1))
		grad := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32, layout, []float64{4, 8, 12, 16})

		gradInput, err := backend.AvgPool2DBackward(grad, input, tensor.Pool2D{KernelH: 2, KernelW: 2})
		require.NoError(t, err)

		assert.Equal(t, layout, gradInput.Layout())
		assert.Equal(t, []float64{
			1, 1, 2, 2,
			1, 1, 2, 2,
			3, 3, 4, 4,
			3, 3, 4, 4,
		}, gradInput.ToFloat64())
	}
}

func TestAvgPool2DBackward_OverlappingWindows(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float64, tensor.Planar, filled(9, 0))
	grad := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.Planar, filled(4, 4))

	gradInput, err := backend.AvgPool2DBackward(grad, input, tensor.Pool2D{KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1})
	require.NoError(t, err)

	// The centre is covered by all four windows.
	assert.Equal(t, []float64{
		1, 2, 1,
		2, 4, 2,
		1, 2, 1,
	}, gradInput.ToFloat64())
}

// TestAvgPool2DBackward_Conservation checks that without padding in the
// divisor every output cell hands out exactly its incoming gradient.
func TestAvgPool2DBackward_Conservation(t *testing.T) {
	backend := New()
	shape := tensor.Shape{2, 3, 8, 7}
	p := tensor.Pool2D{KernelH: 3, KernelW: 3, StrideH: 2, StrideW: 1, PadH: 1, PadW: 1}

	for _, layout := range allLayouts {
		input := newTensor(t, shape, tensor.Float64, layout, filled(shape.NumElements(), 0))
		out, err := backend.AvgPool2D(input, p)
		require.NoError(t, err)

		gradValues := randomValues(out.NumElements(), 3)
		grad := newTensor(t, out.Shape(), tensor.Float64, layout, gradValues)

		gradInput, err := backend.AvgPool2DBackward(grad, input, p)
		require.NoError(t, err)
		assert.InDelta(t, floats.Sum(gradValues), floats.Sum(gradInput.ToFloat64()), 1e-9, layout.String())
	}
}

func TestAvgPool2DBackward_LayoutsAgree(t *testing.T) {
	backend := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1})
	shape := tensor.Shape{3, 10, 6, 5}
	p := tensor.Pool2D{KernelH: 3, KernelW: 2, StrideH: 1, StrideW: 2, PadH: 1, PadW: 1, CountIncludePad: true}

	for _, dt := range allDTypes {
		input := newTensor(t, shape, dt, tensor.Planar, filled(shape.NumElements(), 0))
		out, err := backend.AvgPool2D(input, p)
		require.NoError(t, err)
		grad := newTensor(t, out.Shape(), dt, tensor.Planar, randomValues(out.NumElements(), 5))

		want, err := backend.AvgPool2DBackward(grad, input, p)
		require.NoError(t, err)

		inputCL, err := input.Contiguous(tensor.ChannelsLast)
		require.NoError(t, err)
		gradCL, err := grad.Contiguous(tensor.ChannelsLast)
		require.NoError(t, err)
		got, err := backend.AvgPool2DBackward(gradCL, inputCL, p)
		require.NoError(t, err)

		assert.True(t, floats.EqualApprox(want.ToFloat64(), got.ToFloat64(), 1e-5), dt.String())
	}
}

func TestAvgPool2DBackward_Validation(t *testing.T) {
	backend := New()
	p := tensor.Pool2D{KernelH: 2, KernelW: 2}
	input := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.Planar, filled(16, 1))

	t.Run("dtype mismatch", func(t *testing.T) {
		grad := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.Planar, filled(4, 1))
		_, err := backend.AvgPool2DBackward(grad, input, p)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		grad := newTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.Planar, filled(9, 1))
		_, err := backend.AvgPool2DBackward(grad, input, p)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("layout mismatch", func(t *testing.T) {
		grad := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.ChannelsLast, filled(4, 1))
		gradInput, err := tensor.NewRaw(input.Shape(), tensor.Float32, tensor.Planar)
		require.NoError(t, err)
		err = backend.AvgPool2DBackwardInto(gradInput, grad, p)
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, filled(16, 0), gradInput.ToFloat64(), "no partial output")
	})
}

func TestPoolingOutputSize(t *testing.T) {
	tests := []struct {
		in, k, pad, stride, dilation int
		ceil                         bool
		want                         int
	}{
		{4, 2, 0, 2, 1, false, 2},
		{5, 2, 0, 2, 1, false, 2},
		{5, 2, 0, 2, 1, true, 3},
		{6, 3, 1, 2, 1, true, 4},
		{5, 3, 1, 2, 1, true, 3},
		{5, 3, 1, 3, 1, true, 2}, // last window would start in right padding
		{7, 3, 0, 1, 2, false, 3},
	}
	for _, tt := range tests {
		got := PoolingOutputSize(tt.in, tt.k, tt.pad, tt.stride, tt.dilation, tt.ceil)
		assert.Equal(t, tt.want, got, "%+v", tt)
	}
}

func BenchmarkAvgPool2D(b *testing.B) {
	backend := New()
	shape := tensor.Shape{8, 64, 56, 56}
	p := tensor.Pool2D{KernelH: 3, KernelW: 3, StrideH: 2, StrideW: 2, PadH: 1, PadW: 1}

	for _, layout := range allLayouts {
		input := newTensor(b, shape, tensor.Float32, layout, randomValues(shape.NumElements(), 9))
		b.Run(layout.String(), func(b *testing.B) {
			for b.Loop() {
				_, _ = backend.AvgPool2D(input, p)
			}
		})
	}
}
