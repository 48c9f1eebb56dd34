// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/cpuext/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape, type and layout information via Shape(), DType(), Layout()
//   - Type-safe data access via AsFloat32(), AsBFloat16(), AsInt64(), etc.
//   - Deep copies via Clone() and layout conversion via Contiguous()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3, 4, 4}, tensor.Float32, tensor.ChannelsLast)
//	data := raw.AsFloat32()  // Type-safe access
//	clone := raw.Clone()     // Independent buffer
type RawTensor = tensor.RawTensor

// NewRaw allocates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType, layout Layout) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, layout)
}

// FromFloat64 builds a tensor from values given in logical (row-major NCHW)
// order, rounding them to dtype.
func FromFloat64(shape Shape, dtype DataType, layout Layout, values []float64) (*RawTensor, error) {
	return tensor.FromFloat64(shape, dtype, layout, values)
}
