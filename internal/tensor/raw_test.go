package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw_ZeroInitialized(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32, Planar)
	require.NoError(t, err)

	data := raw.AsFloat32()
	assert.Len(t, data, 6)
	for _, v := range data {
		assert.Zero(t, v)
	}

	// Zero-copy access
	data[0] = 42
	assert.Equal(t, float32(42), raw.AsFloat32()[0])
}

func TestNewRaw_ChannelsLastRequiresRank4(t *testing.T) {
	_, err := NewRaw(Shape{2, 3, 4}, Float32, ChannelsLast)
	require.Error(t, err)

	_, err = NewRaw(Shape{1, 2, 3, 4}, Float32, ChannelsLast)
	require.NoError(t, err)
}

func TestNewRaw_RejectsNegativeDims(t *testing.T) {
	_, err := NewRaw(Shape{2, -1}, Float64, Planar)
	require.Error(t, err)
}

func TestNewRaw_EmptyTensor(t *testing.T) {
	raw, err := NewRaw(Shape{0, 3, 4, 4}, Float32, ChannelsLast)
	require.NoError(t, err)
	assert.Equal(t, 0, raw.NumElements())
	assert.Nil(t, raw.AsFloat32())
}

func TestChannelsLastStrides(t *testing.T) {
	s := Shape{2, 3, 4, 5}
	assert.Equal(t, []int{60, 20, 5, 1}, Planar.Strides(s))
	assert.Equal(t, []int{60, 1, 15, 3}, ChannelsLast.Strides(s))
}

func TestDTypeAccessorPanicsOnMismatch(t *testing.T) {
	raw, err := NewRaw(Shape{2}, Float64, Planar)
	require.NoError(t, err)
	assert.Panics(t, func() { raw.AsFloat32() })
	assert.NotPanics(t, func() { raw.AsFloat64() })
}

func TestContiguous_RoundTrip(t *testing.T) {
	shape := Shape{2, 3, 2, 2}
	values := make([]float64, shape.NumElements())
	for i := range values {
		values[i] = float64(i)
	}

	for _, dt := range []DataType{Float32, Float64, BFloat16, Float16, Int64} {
		t.Run(dt.String(), func(t *testing.T) {
			planar, err := FromFloat64(shape, dt, Planar, values)
			require.NoError(t, err)

			nhwc, err := planar.Contiguous(ChannelsLast)
			require.NoError(t, err)
			assert.Equal(t, ChannelsLast, nhwc.Layout())
			assert.Equal(t, values, nhwc.ToFloat64())

			// Channel is innermost in memory.
			assert.Equal(t, planar.At(1, 2, 1, 0), nhwc.At(1, 2, 1, 0))
			assert.Equal(t, 1, nhwc.Strides()[1])

			back, err := nhwc.Contiguous(Planar)
			require.NoError(t, err)
			assert.Equal(t, planar.Data(), back.Data())
		})
	}
}

func TestContiguous_SameLayoutIsIdentity(t *testing.T) {
	raw, err := NewRaw(Shape{1, 1, 2, 2}, Float32, Planar)
	require.NoError(t, err)
	same, err := raw.Contiguous(Planar)
	require.NoError(t, err)
	assert.Same(t, raw, same)
}

func TestNarrowTypesRoundValues(t *testing.T) {
	raw, err := FromFloat64(Shape{3}, BFloat16, Planar, []float64{1, 0.5, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5, 3}, raw.ToFloat64())
	assert.True(t, BFloat16.IsNarrow())
	assert.True(t, Float16.IsNarrow())
	assert.False(t, Float32.IsNarrow())
	assert.Equal(t, 2, Float16.Size())
}

func TestReshape(t *testing.T) {
	raw, err := FromFloat64(Shape{2, 4}, Float32, Planar, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)

	view, err := raw.Reshape(Shape{2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 5.0, view.At(1, 0, 1))

	_, err = raw.Reshape(Shape{3, 3})
	require.Error(t, err)
}

func TestDataTypeOf(t *testing.T) {
	assert.Equal(t, Float32, DataTypeOf[float32]())
	assert.Equal(t, Int64, DataTypeOf[int64]())
}
