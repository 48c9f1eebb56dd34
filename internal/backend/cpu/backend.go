// Package cpu implements the CPU backend: layout-aware pooling and pixel
// shuffle kernels plus the reference convolution and activations used by
// the graph interpreter.
package cpu

import (
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// CPUBackend implements tensor kernels on CPU with goroutine fork-join parallelism.
type CPUBackend struct {
	cfg parallel.Config
}

// New creates a new CPU backend using parallel.DefaultConfig.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{cfg: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Config returns the parallel configuration of the backend.
func (cpu *CPUBackend) Config() parallel.Config {
	return cpu.cfg
}

var _ tensor.Backend = (*CPUBackend)(nil)
