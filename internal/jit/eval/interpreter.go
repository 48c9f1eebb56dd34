package eval

import (
	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/backend/cpu"
	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/tensor"
)

// Interpreter executes graphs node by node in program order.
type Interpreter struct {
	registry *Registry
	ctx      *Context
}

// New creates an interpreter over backend with the default registry.
func New(backend Backend) *Interpreter {
	return &Interpreter{registry: NewRegistry(), ctx: &Context{Backend: backend}}
}

// Registry returns the operator registry, for adding custom handlers.
func (in *Interpreter) Registry() *Registry { return in.registry }

// Run executes g on a default CPU backend. Graph inputs and outputs must all
// be tensors.
func Run(g *ir.Graph, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	args := make([]Value, len(inputs))
	for i, t := range inputs {
		args[i] = TensorArg(t)
	}
	outs, err := New(cpu.New()).Execute(g, args)
	if err != nil {
		return nil, err
	}

	result := make([]*tensor.RawTensor, len(outs))
	for i, v := range outs {
		if v.Kind != ir.TensorKind || v.Tensor == nil {
			return nil, errors.Errorf("output %d is %s, not a tensor", i, v.Type())
		}
		result[i] = v.Tensor
	}
	return result, nil
}

// Execute binds inputs to the graph inputs, runs the graph and returns its
// outputs.
func (in *Interpreter) Execute(g *ir.Graph, inputs []Value) ([]Value, error) {
	params := g.Inputs()
	if len(inputs) != len(params) {
		return nil, errors.Errorf("graph takes %d inputs, got %d", len(params), len(inputs))
	}
	env := make(map[*ir.Value]Value, len(params))
	for i, p := range params {
		env[p] = inputs[i]
	}
	return in.execBlock(g.Block(), env)
}

func (in *Interpreter) execBlock(b *ir.Block, env map[*ir.Value]Value) ([]Value, error) {
	for _, n := range b.Nodes() {
		if err := in.execNode(n, env); err != nil {
			return nil, errors.Wrapf(err, "node %s", n.Kind())
		}
	}
	return lookup(b.Outputs(), env)
}

func (in *Interpreter) execNode(n *ir.Node, env map[*ir.Value]Value) error {
	switch n.Kind() {
	case ir.Constant:
		c, _ := n.Constant()
		if c.Kind == ir.TensorKind && c.Tensor != nil {
			// In-place operators must not modify the graph's constants.
			c.Tensor = c.Tensor.Clone()
		}
		env[n.Output()] = Value{IValue: c}
		return nil

	case ir.If:
		cond, err := lookup(n.Inputs()[:1], env)
		if err != nil {
			return err
		}
		if cond[0].Kind != ir.BoolKind || len(n.Blocks()) != 2 {
			return errors.New("malformed prim::If")
		}
		branch := n.Blocks()[1]
		if cond[0].Bool {
			branch = n.Blocks()[0]
		}
		outs, err := in.execBlock(branch, env)
		if err != nil {
			return err
		}
		if len(outs) != len(n.Outputs()) {
			return errors.Errorf("branch yields %d values, node has %d outputs", len(outs), len(n.Outputs()))
		}
		for i, o := range n.Outputs() {
			env[o] = outs[i]
		}
		return nil
	}

	args, err := lookup(n.Inputs(), env)
	if err != nil {
		return err
	}
	result, err := in.registry.Execute(in.ctx, n, args)
	if err != nil {
		return err
	}
	switch len(n.Outputs()) {
	case 0:
	case 1:
		env[n.Output()] = result
	default:
		return errors.Wrapf(ErrUnsupported, "%d outputs", len(n.Outputs()))
	}
	return nil
}

func lookup(vs []*ir.Value, env map[*ir.Value]Value) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		x, ok := env[v]
		if !ok {
			return nil, errors.Errorf("%%%s used before it is defined", v.DebugName())
		}
		out[i] = x
	}
	return out, nil
}
