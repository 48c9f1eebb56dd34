// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/cpuext/internal/backend/cpu"
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/tensor"
)

// Backend represents the CPU backend implementation.
//
// CPU backend provides pure Go implementations of average pooling, pixel
// shuffling, 2D convolution and the activations used by fused convolutions.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// Conv2DParams holds stride, padding, dilation and groups of a convolution.
type Conv2DParams = internalcpu.Conv2DParams

// ErrInvalidArgument is wrapped by every shape, dtype and parameter error the
// kernels return.
var ErrInvalidArgument = internalcpu.ErrInvalidArgument

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cpuext/backend/cpu"
//	    "github.com/born-ml/cpuext/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    y, err := backend.AvgPool2D(x, tensor.Pool2D{KernelH: 3, KernelW: 3, PadH: 1, PadW: 1})
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend that runs every kernel on the calling
// goroutine.
func NewSequential() *Backend {
	return internalcpu.NewWithConfig(parallel.Sequential())
}

// DefaultConv2DParams returns stride 1, no padding, dilation 1, one group.
func DefaultConv2DParams() Conv2DParams {
	return internalcpu.DefaultConv2DParams()
}

// PoolingOutputSize returns the output extent of a pooling or convolution
// window along one axis.
func PoolingOutputSize(in, kernel, pad, stride, dilation int, ceilMode bool) int {
	return internalcpu.PoolingOutputSize(in, kernel, pad, stride, dilation, ceilMode)
}
