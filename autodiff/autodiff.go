// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation (backpropagation)
// using a gradient tape. It wraps any backend to record average pooling and
// pixel shuffling so their input gradients can be computed.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cpuext/autodiff"
//	    "github.com/born-ml/cpuext/backend/cpu"
//	    "github.com/born-ml/cpuext/tensor"
//	)
//
//	func main() {
//	    // Wrap CPU backend with autodiff
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    y, _ := backend.AvgPool2D(x, tensor.Pool2D{KernelH: 2, KernelW: 2})
//
//	    // Compute gradients
//	    grads, _ := autodiff.Backward(backend, y)
//	    dx := grads[x]
//	}
package autodiff

import (
	"github.com/born-ml/cpuext/internal/autodiff"
	"github.com/born-ml/cpuext/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// Backward seeds output with ones and returns the gradient of every tensor
// recorded on backend's tape. output must come from the last recorded
// operation.
func Backward[B tensor.Backend](backend *Backend[B], output *tensor.RawTensor) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	return autodiff.Backward(backend, output)
}
