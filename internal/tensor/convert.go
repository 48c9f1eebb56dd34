package tensor

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// FromFloat64 creates a tensor of the given type and layout from values listed
// in logical (row-major over shape) order.
func FromFloat64(shape Shape, dtype DataType, layout Layout, values []float64) (*RawTensor, error) {
	if len(values) != shape.NumElements() {
		return nil, fmt.Errorf("from float64: got %d values for shape %v", len(values), shape)
	}
	out, err := NewRaw(shape, dtype, layout)
	if err != nil {
		return nil, err
	}
	forEachIndex(out, func(i, off int) {
		out.setFloat64(off, values[i])
	})
	return out, nil
}

// ToFloat64 returns the tensor values in logical order converted to float64.
func (r *RawTensor) ToFloat64() []float64 {
	values := make([]float64, r.NumElements())
	forEachIndex(r, func(i, off int) {
		values[i] = r.float64At(off)
	})
	return values
}

// At returns the element at the given logical index converted to float64.
func (r *RawTensor) At(index ...int) float64 {
	return r.float64At(r.Offset(index...))
}

// forEachIndex walks the logical indices of r in row-major order, reporting
// the flat logical position and the storage offset.
func forEachIndex(r *RawTensor, f func(i, off int)) {
	if r.layout == Planar {
		for i := 0; i < r.NumElements(); i++ {
			f(i, i)
		}
		return
	}
	n, c, h, w := r.shape[0], r.shape[1], r.shape[2], r.shape[3]
	i := 0
	for in := 0; in < n; in++ {
		for ic := 0; ic < c; ic++ {
			for ih := 0; ih < h; ih++ {
				for iw := 0; iw < w; iw++ {
					f(i, r.Offset(in, ic, ih, iw))
					i++
				}
			}
		}
	}
}

func (r *RawTensor) float64At(off int) float64 {
	switch r.dtype {
	case Float32:
		return float64(r.AsFloat32()[off])
	case Float64:
		return r.AsFloat64()[off]
	case BFloat16:
		return float64(r.AsBFloat16()[off].Float32())
	case Float16:
		return float64(r.AsFloat16()[off].Float32())
	case Int64:
		return float64(r.AsInt64()[off])
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}

func (r *RawTensor) setFloat64(off int, v float64) {
	switch r.dtype {
	case Float32:
		r.AsFloat32()[off] = float32(v)
	case Float64:
		r.AsFloat64()[off] = v
	case BFloat16:
		r.AsBFloat16()[off] = bfloat16.FromFloat32(float32(v))
	case Float16:
		r.AsFloat16()[off] = float16.Fromfloat32(float32(v))
	case Int64:
		r.AsInt64()[off] = int64(v)
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}
