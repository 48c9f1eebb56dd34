// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/cpuext/internal/tensor"

// Backend defines the kernels a compute backend provides.
//
// Implementations:
//   - backend/cpu: Pure Go with goroutine fork-join parallelism
//
// Decorator backends for additional functionality:
//   - autodiff: Records pooling and shuffling for backpropagation
//
// Example:
//
//	import (
//	    "github.com/born-ml/cpuext/backend/cpu"
//	    "github.com/born-ml/cpuext/tensor"
//	)
//
//	var backend tensor.Backend = cpu.New()
//	y, err := backend.PixelShuffle(x, 2)
type Backend = tensor.Backend

// Pool2D holds the window parameters of a 2D average pooling.
//
// A zero stride means "same as the kernel". DivisorOverride, when set,
// replaces the per-window element count.
type Pool2D = tensor.Pool2D
