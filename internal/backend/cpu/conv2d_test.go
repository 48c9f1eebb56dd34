package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/cpuext/internal/tensor"
)

// naiveConv2D is the direct six-loop convolution used as ground truth.
func naiveConv2D(in, weight, bias []float64, n, cin, h, w, cout, kh, kw int, p Conv2DParams) []float64 {
	oh := PoolingOutputSize(h, kh, p.Padding[0], p.Stride[0], p.Dilation[0], false)
	ow := PoolingOutputSize(w, kw, p.Padding[1], p.Stride[1], p.Dilation[1], false)
	cinG, coutG := cin/p.Groups, cout/p.Groups
	out := make([]float64, n*cout*oh*ow)

	for b := 0; b < n; b++ {
		for oc := 0; oc < cout; oc++ {
			grp := oc / coutG
			for y := 0; y < oh; y++ {
				for x := 0; x < ow; x++ {
					sum := 0.0
					if bias != nil {
						sum = bias[oc]
					}
					for ic := 0; ic < cinG; ic++ {
						for ky := 0; ky < kh; ky++ {
							for kx := 0; kx < kw; kx++ {
								iy := y*p.Stride[0] - p.Padding[0] + ky*p.Dilation[0]
								ix := x*p.Stride[1] - p.Padding[1] + kx*p.Dilation[1]
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								c := grp*cinG + ic
								sum += in[((b*cin+c)*h+iy)*w+ix] * weight[((oc*cinG+ic)*kh+ky)*kw+kx]
							}
						}
					}
					out[((b*cout+oc)*oh+y)*ow+x] = sum
				}
			}
		}
	}
	return out
}

func TestConv2D_Basic(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3], kernel 2x2 of ones, stride 1, no padding.
	input := newTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.Planar, sequence(9, 1))
	weight := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.Planar, filled(4, 1))

	output, err := backend.Conv2D(input, weight, nil, DefaultConv2DParams())
	require.NoError(t, err)

	// [[1,2,3],     [[1+2+4+5, 2+3+5+6],
	//  [4,5,6], ->   [4+5+7+8, 5+6+8+9]]
	//  [7,8,9]]
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{12, 16, 24, 28}, output.AsFloat32())
}

func TestConv2D_MatchesNaive(t *testing.T) {
	backend := New()
	tests := []struct {
		name                   string
		n, cin, h, w, cout, kh int
		kw                     int
		p                      Conv2DParams
		bias                   bool
	}{
		{"plain", 2, 3, 6, 5, 4, 3, 3, DefaultConv2DParams(), false},
		{"bias_padding", 1, 2, 5, 5, 3, 3, 3, Conv2DParams{Stride: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1}, true},
		{"stride_dilation", 2, 2, 9, 8, 2, 3, 2, Conv2DParams{Stride: [2]int{2, 1}, Padding: [2]int{2, 0}, Dilation: [2]int{2, 3}, Groups: 1}, true},
		{"groups", 1, 4, 4, 4, 6, 1, 1, Conv2DParams{Stride: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 2}, true},
		{"depthwise", 2, 3, 5, 4, 3, 3, 3, Conv2DParams{Stride: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inShape := tensor.Shape{tt.n, tt.cin, tt.h, tt.w}
			wShape := tensor.Shape{tt.cout, tt.cin / tt.p.Groups, tt.kh, tt.kw}
			inVals := randomValues(inShape.NumElements(), 31)
			wVals := randomValues(wShape.NumElements(), 37)
			var bVals []float64
			var bias *tensor.RawTensor
			if tt.bias {
				bVals = randomValues(tt.cout, 41)
				bias = newTensor(t, tensor.Shape{tt.cout}, tensor.Float64, tensor.Planar, bVals)
			}

			output, err := backend.Conv2D(
				newTensor(t, inShape, tensor.Float64, tensor.Planar, inVals),
				newTensor(t, wShape, tensor.Float64, tensor.Planar, wVals),
				bias, tt.p)
			require.NoError(t, err)

			want := naiveConv2D(inVals, wVals, bVals, tt.n, tt.cin, tt.h, tt.w, tt.cout, tt.kh, tt.kw, tt.p)
			assert.True(t, floats.EqualApprox(want, output.AsFloat64(), 1e-9))
		})
	}
}

func TestConv2D_Validation(t *testing.T) {
	backend := New()
	input := newTensor(t, tensor.Shape{1, 4, 5, 5}, tensor.Float32, tensor.Planar, filled(100, 1))
	weight := newTensor(t, tensor.Shape{2, 4, 3, 3}, tensor.Float32, tensor.Planar, filled(72, 1))

	tests := []struct {
		name   string
		weight *tensor.RawTensor
		bias   *tensor.RawTensor
		p      Conv2DParams
	}{
		{"zero groups", weight, nil, Conv2DParams{Stride: [2]int{1, 1}, Dilation: [2]int{1, 1}}},
		{"groups mismatch", weight, nil, Conv2DParams{Stride: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 3}},
		{"channel mismatch", weight, nil, Conv2DParams{Stride: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 2}},
		{"zero stride", weight, nil, Conv2DParams{Dilation: [2]int{1, 1}, Groups: 1}},
		{"bad bias", weight, newTensor(t, tensor.Shape{3}, tensor.Float32, tensor.Planar, filled(3, 0)), DefaultConv2DParams()},
		{"dtype mismatch", newTensor(t, tensor.Shape{2, 4, 3, 3}, tensor.Float64, tensor.Planar, filled(72, 1)), nil, DefaultConv2DParams()},
		{"kernel too large", newTensor(t, tensor.Shape{2, 4, 7, 7}, tensor.Float32, tensor.Planar, filled(392, 1)), nil, DefaultConv2DParams()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backend.Conv2D(input, tt.weight, tt.bias, tt.p)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestActivations(t *testing.T) {
	backend := New()
	values := []float64{-2, -0.5, 0, 0.5, 2}

	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float64} {
		t.Run(dt.String(), func(t *testing.T) {
			x := newTensor(t, tensor.Shape{5}, dt, tensor.Planar, values)

			relu, err := backend.ReLU(x)
			require.NoError(t, err)
			assert.Equal(t, []float64{0, 0, 0, 0.5, 2}, relu.ToFloat64())

			ht, err := backend.Hardtanh(x, -1, 1)
			require.NoError(t, err)
			assert.Equal(t, []float64{-1, -0.5, 0, 0.5, 1}, ht.ToFloat64())

			sig, err := backend.Sigmoid(x)
			require.NoError(t, err)
			assert.InDelta(t, 0.5, sig.ToFloat64()[2], 1e-7)
			assert.InDelta(t, 0.8807970779778823, sig.ToFloat64()[4], 1e-6)

			elu, err := backend.ELU(x, 1, 1, 1)
			require.NoError(t, err)
			assert.InDelta(t, -0.8646647167633873, elu.ToFloat64()[0], 1e-6)
			assert.Equal(t, 2.0, elu.ToFloat64()[4])

			scaled, err := backend.ELU(x, 2, 3, 1)
			require.NoError(t, err)
			assert.InDelta(t, 3*2*(-0.8646647167633873), scaled.ToFloat64()[0], 1e-5)
			assert.Equal(t, 6.0, scaled.ToFloat64()[4])

			// SiLU must equal the unfused sigmoid-mul exactly.
			silu, err := backend.SiLU(x)
			require.NoError(t, err)
			gated, err := backend.Mul(x, sig)
			require.NoError(t, err)
			assert.Equal(t, gated.Data(), silu.Data())
		})
	}
}

func TestElementwise(t *testing.T) {
	backend := New()
	a := newTensor(t, tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.ChannelsLast, sequence(8, 0))
	b := newTensor(t, tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.ChannelsLast, filled(8, 2))

	sum, err := backend.AddScaled(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, tensor.ChannelsLast, sum.Layout())
	assert.Equal(t, sequence(8, 1), sum.ToFloat64())

	prod, err := backend.Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10, 12, 14}, prod.ToFloat64())

	planar := newTensor(t, tensor.Shape{1, 2, 2, 2}, tensor.Float32, tensor.Planar, filled(8, 2))
	_, err = backend.Mul(a, planar)
	require.ErrorIs(t, err, ErrInvalidArgument)

	other := newTensor(t, tensor.Shape{8}, tensor.Float32, tensor.Planar, filled(8, 2))
	_, err = backend.AddScaled(planar, other, 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	ints := newTensor(t, tensor.Shape{2}, tensor.Int64, tensor.Planar, []float64{1, 2})
	_, err = backend.ReLU(ints)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = backend.Hardtanh(planar, 1, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
