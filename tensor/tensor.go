// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/cpuext/internal/tensor"
)

// Type aliases for public API

// DataType represents the underlying element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32  DataType = tensor.Float32
	Float64  DataType = tensor.Float64
	BFloat16 DataType = tensor.BFloat16
	Float16  DataType = tensor.Float16
	Int64    DataType = tensor.Int64
)

// Layout is the physical order of a 4D tensor's elements.
type Layout = tensor.Layout

// Layout constants.
const (
	Planar       Layout = tensor.Planar       // NCHW
	ChannelsLast Layout = tensor.ChannelsLast // NHWC
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4, 4} is a batch of two 3-channel 4×4 images.
type Shape = tensor.Shape

// Element is the constraint satisfied by Go element types with a DataType.
type Element = tensor.Element

// Elements returns r's buffer as a []T. It panics when T does not match
// r's data type.
func Elements[T Element](r *RawTensor) []T {
	return tensor.Elements[T](r)
}
