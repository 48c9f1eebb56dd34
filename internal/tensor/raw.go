package tensor

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// RawTensor is the low-level tensor representation: a dense byte buffer
// interpreted through a shape, a data type and a memory layout.
type RawTensor struct {
	data   []byte   // Element storage
	shape  Shape    // Logical dimensions ([N, C, H, W] for images)
	stride []int    // Memory strides indexed by logical axis
	dtype  DataType // Runtime type information
	layout Layout   // Physical axis order
}

// NewRaw creates a new RawTensor with the given shape, type and layout.
// Memory is zero-initialized.
func NewRaw(shape Shape, dtype DataType, layout Layout) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if err := layout.Check(shape); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: layout.Strides(shape),
		dtype:  dtype,
		layout: layout,
	}, nil
}

// Shape returns the tensor's logical shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides indexed by logical axis.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Layout returns the tensor's memory layout.
func (r *RawTensor) Layout() Layout {
	return r.layout
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	r.mustBe(Float32)
	return asSlice[float32](r)
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	r.mustBe(Float64)
	return asSlice[float64](r)
}

// AsBFloat16 interprets the data as []bfloat16.BFloat16.
// Panics if the tensor's dtype is not BFloat16.
func (r *RawTensor) AsBFloat16() []bfloat16.BFloat16 {
	r.mustBe(BFloat16)
	return asSlice[bfloat16.BFloat16](r)
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	r.mustBe(Float16)
	return asSlice[float16.Float16](r)
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	r.mustBe(Int64)
	return asSlice[int64](r)
}

func (r *RawTensor) mustBe(dt DataType) {
	if r.dtype != dt {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dt))
	}
}

// Elements returns the storage of r as []T without copying.
// Panics if T does not match the tensor's dtype.
func Elements[T Element](r *RawTensor) []T {
	r.mustBe(DataTypeOf[T]())
	return asSlice[T](r)
}

func asSlice[T any](r *RawTensor) []T {
	n := r.NumElements()
	if n == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), n)
}

// Offset returns the storage offset of the element at the given logical index.
func (r *RawTensor) Offset(index ...int) int {
	if len(index) != len(r.shape) {
		panic(fmt.Sprintf("offset: expected %d indices, got %d", len(r.shape), len(index)))
	}
	off := 0
	for i, idx := range index {
		off += idx * r.stride[i]
	}
	return off
}

// Clone returns a deep copy of the tensor in the same layout.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		data:   append([]byte(nil), r.data...),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		layout: r.layout,
	}
}

// Zero sets every element to zero.
func (r *RawTensor) Zero() {
	clear(r.data)
}

// Contiguous returns r stored in the requested layout. The receiver itself is
// returned when it already uses that layout.
func (r *RawTensor) Contiguous(layout Layout) (*RawTensor, error) {
	if r.layout == layout {
		return r, nil
	}
	out, err := NewRaw(r.shape, r.dtype, layout)
	if err != nil {
		return nil, err
	}

	es := r.dtype.Size()
	n, c, h, w := r.shape[0], r.shape[1], r.shape[2], r.shape[3]
	for in := 0; in < n; in++ {
		for ic := 0; ic < c; ic++ {
			for ih := 0; ih < h; ih++ {
				for iw := 0; iw < w; iw++ {
					src := r.Offset(in, ic, ih, iw) * es
					dst := out.Offset(in, ic, ih, iw) * es
					copy(out.data[dst:dst+es], r.data[src:src+es])
				}
			}
		}
	}
	return out, nil
}

// Reshape returns a view of r with a new shape sharing the same storage.
// Only planar tensors can be reshaped.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if r.layout != Planar {
		return nil, fmt.Errorf("reshape: tensor must be planar, got %s", r.layout)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape: cannot reshape %v into %v", r.shape, shape)
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		layout: Planar,
	}, nil
}

// Words16 returns the storage of a 16-bit tensor as raw words, for kernels
// that move elements without interpreting them. Panics for other widths.
func Words16(r *RawTensor) []uint16 {
	if r.dtype.Size() != 2 {
		panic(fmt.Sprintf("tensor dtype %s is not 16 bits wide", r.dtype))
	}
	return asSlice[uint16](r)
}
