// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the raw tensor type shared by the CPU kernels and
// the graph interpreter.
//
// # Overview
//
// A RawTensor is a dense, contiguous buffer with a shape, an element type and
// a memory layout:
//   - Float32, Float64, BFloat16, Float16 (floating-point)
//   - Int64 (signed integers)
//
// 4D tensors are stored either planar (NCHW) or channels-last (NHWC). Shapes
// are always reported in logical NCHW order, whatever the layout.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cpuext/backend/cpu"
//	    "github.com/born-ml/cpuext/tensor"
//	)
//
//	func main() {
//	    x, _ := tensor.FromFloat64(tensor.Shape{1, 1, 4, 4}, tensor.BFloat16, tensor.ChannelsLast, values)
//	    y, _ := cpu.New().AvgPool2D(x, tensor.Pool2D{KernelH: 2, KernelW: 2})
//	    fmt.Println(y.ToFloat64())
//	}
//
// # Reduced Precision
//
// BFloat16 and Float16 tensors are read and written through
// github.com/gomlx/gopjrt/dtypes/bfloat16 and github.com/x448/float16.
// Kernels accumulate them in float32 and round once per output element.
package tensor
