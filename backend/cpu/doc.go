// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Average pooling forward and backward, planar and channels-last
//   - Pixel shuffle and unshuffle for every data type
//   - Im2col convolutions on gonum BLAS
//   - BFloat16 and Float16 inputs accumulated in float32
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cpuext/backend/cpu"
//	    "github.com/born-ml/cpuext/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    up, err := backend.PixelShuffle(x, 2)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Errors
//
// Invalid shapes, data types and window parameters are reported as errors
// wrapping ErrInvalidArgument; kernels never panic on user input.
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each kernel splits its
// output across goroutines and returns once every chunk has completed.
package cpu
