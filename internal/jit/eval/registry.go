// Package eval is a reference interpreter for jit graphs. It runs every
// operator, raw, prepacked or fused, on the CPU backend so rewritten graphs
// can be checked against the graphs they came from.
package eval

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/backend/cpu"
	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/tensor"
)

// ErrUnsupported is returned for nodes the interpreter cannot execute.
var ErrUnsupported = errors.New("unsupported operator")

// Backend is the kernel set the handlers call.
type Backend interface {
	tensor.Backend
	Conv2D(input, weight, bias *tensor.RawTensor, p cpu.Conv2DParams) (*tensor.RawTensor, error)
	ReLU(x *tensor.RawTensor) (*tensor.RawTensor, error)
	Sigmoid(x *tensor.RawTensor) (*tensor.RawTensor, error)
	Hardtanh(x *tensor.RawTensor, minVal, maxVal float64) (*tensor.RawTensor, error)
	ELU(x *tensor.RawTensor, alpha, scale, inputScale float64) (*tensor.RawTensor, error)
	SiLU(x *tensor.RawTensor) (*tensor.RawTensor, error)
	Mul(a, b *tensor.RawTensor) (*tensor.RawTensor, error)
}

var _ Backend = (*cpu.CPUBackend)(nil)

// Value is a runtime value flowing along a graph edge: a constant payload
// or a packed convolution context.
type Value struct {
	ir.IValue
	Packed *PackedConv
}

// TensorArg wraps a tensor as a runtime value.
func TensorArg(t *tensor.RawTensor) Value { return Value{IValue: ir.TensorValue(t)} }

// PackedConv is the context produced by convolution_prepack.
type PackedConv struct {
	Weight    *tensor.RawTensor
	Bias      *tensor.RawTensor // nil without bias
	Params    cpu.Conv2DParams
	InputSize []int64
}

// Handler executes one node over its evaluated inputs.
type Handler func(ctx *Context, n *ir.Node, args []Value) (Value, error)

// Context carries what handlers need besides their arguments.
type Context struct {
	Backend Backend
}

// Registry maps operator kinds to handlers.
type Registry struct {
	handlers map[ir.Kind]Handler
}

// NewRegistry creates a registry with every supported operator.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[ir.Kind]Handler)}
	r.registerStructural()
	r.registerConvolutions()
	r.registerElementwise()
	r.registerSpatial()
	return r
}

// Register adds or replaces the handler for kind.
func (r *Registry) Register(kind ir.Kind, h Handler) {
	r.handlers[kind] = h
}

// Get returns the handler for kind.
func (r *Registry) Get(kind ir.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Execute runs the handler for n.
func (r *Registry) Execute(ctx *Context, n *ir.Node, args []Value) (Value, error) {
	h, ok := r.handlers[n.Kind()]
	if !ok {
		return Value{}, errors.Wrap(ErrUnsupported, string(n.Kind()))
	}
	return h(ctx, n, args)
}

// SupportedOps returns the registered kinds in sorted order.
func (r *Registry) SupportedOps() []ir.Kind {
	ops := make([]ir.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		ops = append(ops, k)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
