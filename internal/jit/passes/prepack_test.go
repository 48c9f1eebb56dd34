package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cpuext/internal/jit/ir"
)

// convNet builds y = conv2d(x, w) with a 3x3 kernel and unit padding over
// statically shaped inputs.
func convNet() (*ir.Graph, *ir.Value) {
	g := ir.NewGraph()
	x := g.AddInput("x", ir.TensorType(1, 3, 8, 8))
	w := g.AddInput("w", ir.TensorType(4, 3, 3, 3))
	return g, conv2d(g, x, w)
}

func conv2d(g *ir.Graph, x, w *ir.Value) *ir.Value {
	return g.Insert(ir.Conv2d, x, w,
		g.InsertConstant(ir.NoneValue()),
		g.InsertConstant(ir.IntListValue(1, 1)),
		g.InsertConstant(ir.IntListValue(1, 1)),
		g.InsertConstant(ir.IntListValue(1, 1)),
		g.InsertConstant(ir.IntValue(1))).Output()
}

// kinds counts the non-constant nodes of g by kind.
func kinds(g *ir.Graph) map[ir.Kind]int {
	counts := make(map[ir.Kind]int)
	for _, n := range g.Nodes() {
		if n.Kind() != ir.Constant {
			counts[n.Kind()]++
		}
	}
	return counts
}

func constantOf(t *testing.T, v *ir.Value) ir.IValue {
	t.Helper()
	c, ok := v.Constant()
	require.True(t, ok, "%%%s is not a constant", v.DebugName())
	return c
}

func TestInsertPrepackedConv2d(t *testing.T) {
	g, y := convNet()
	g.RegisterOutput(y)

	require.Equal(t, 1, InsertPrepackedConv2d(g))
	assert.Equal(t, map[ir.Kind]int{ir.ConvPrepack: 1, ir.ConvRun: 1}, kinds(g))

	run := g.Outputs()[0].Node()
	require.Equal(t, ir.ConvRun, run.Kind())
	assert.Same(t, g.Inputs()[0], run.Input(0))
	assert.Equal(t, []int64{1, 4, 8, 8}, run.Output().Type().Sizes)

	prepack := run.Input(1).Node()
	require.Equal(t, ir.ConvPrepack, prepack.Kind())
	assert.Equal(t, ir.ClassType(ir.ConvContextClass), prepack.Output().Type())
	require.Len(t, prepack.Inputs(), 11)
	assert.Same(t, g.Inputs()[1], prepack.Input(0))
	assert.Equal(t, ir.NoneValue(), constantOf(t, prepack.Input(1)))
	assert.Equal(t, ir.IntListValue(3, 3), constantOf(t, prepack.Input(5)))
	assert.Equal(t, ir.IntValue(1), constantOf(t, prepack.Input(6)))
	assert.Equal(t, ir.IntValue(4), constantOf(t, prepack.Input(7)))
	assert.Equal(t, ir.BoolValue(false), constantOf(t, prepack.Input(8)))
	assert.Equal(t, ir.BoolValue(false), constantOf(t, prepack.Input(9)))
	assert.Equal(t, ir.IntListValue(1, 3, 8, 8), constantOf(t, prepack.Input(10)))
	assert.True(t, prepack.IsBefore(run))
}

func TestInsertPrepackedConv2d_KeepsDeclaredType(t *testing.T) {
	g, y := convNet()
	y.SetType(ir.TensorType(1, 4, 8, 8)).SetDebugName("y")
	g.RegisterOutput(y)

	InsertPrepackedConv2d(g)
	out := g.Outputs()[0]
	assert.Equal(t, "y", out.DebugName())
	assert.Equal(t, ir.TensorType(1, 4, 8, 8), out.Type())
}

func TestInsertPrepackedConv2d_Skips(t *testing.T) {
	tests := []struct {
		name   string
		input  ir.Type
		weight ir.Type
	}{
		{"unknown input", ir.UnknownTensorType(), ir.TensorType(4, 3, 3, 3)},
		{"unknown weight", ir.TensorType(1, 3, 8, 8), ir.UnknownTensorType()},
		{"rank 3 input", ir.TensorType(3, 8, 8), ir.TensorType(4, 3, 3, 3)},
		{"rank 3 weight", ir.TensorType(1, 3, 8, 8), ir.TensorType(4, 3, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ir.NewGraph()
			y := conv2d(g, g.AddInput("x", tt.input), g.AddInput("w", tt.weight))
			g.RegisterOutput(y)
			before := g.String()

			assert.Equal(t, 0, InsertPrepackedConv2d(g))
			assert.Equal(t, before, g.String())
		})
	}
}

func TestInsertPrepackedConv2d_ConvolutionForward(t *testing.T) {
	g := ir.NewGraph()
	x := g.AddInput("x", ir.TensorType(2, 3, 10, 10))
	w := g.AddInput("w", ir.UnknownTensorType())
	conv := g.Insert(ir.ConvolutionForward, x, w,
		g.InsertConstant(ir.NoneValue()),
		g.InsertConstant(ir.IntListValue(2, 2)),
		g.InsertConstant(ir.IntListValue(0, 0)),
		g.InsertConstant(ir.IntListValue(1, 1)),
		g.InsertConstant(ir.IntListValue(3, 3)),
		g.InsertConstant(ir.IntValue(1)),
		g.InsertConstant(ir.IntValue(5)),
		g.InsertConstant(ir.BoolValue(false)),
		g.InsertConstant(ir.BoolValue(false)))
	args := conv.Inputs()[1:]
	g.RegisterOutput(conv.Output())

	require.Equal(t, 1, InsertPrepackedConv2d(g))
	run := g.Outputs()[0].Node()
	require.Equal(t, ir.ConvRun, run.Kind())
	assert.Equal(t, []int64{2, 5, 4, 4}, run.Output().Type().Sizes)

	prepack := run.Input(1).Node()
	require.Len(t, prepack.Inputs(), len(args)+1)
	for i, v := range args {
		assert.Same(t, v, prepack.Input(i))
	}
	assert.Equal(t, ir.IntListValue(2, 3, 10, 10), constantOf(t, prepack.Input(len(args))))
}

func TestInsertPrepackedConv2d_NestedBlocks(t *testing.T) {
	g := ir.NewGraph()
	x := g.AddInput("x", ir.TensorType(1, 3, 8, 8))
	w := g.AddInput("w", ir.TensorType(4, 3, 3, 3))
	c := g.AddInput("c", ir.BoolType)

	ifNode := g.InsertNode(g.Create(ir.If, []*ir.Value{c}, 1))
	then := ifNode.AddBlock()
	prev := g.SetInsertPointAtEnd(then)
	then.RegisterOutput(conv2d(g, x, w))
	els := ifNode.AddBlock()
	g.SetInsertPointAtEnd(els)
	els.RegisterOutput(g.Insert(ir.Relu, x).Output())
	g.SetInsertPoint(prev)
	g.RegisterOutput(ifNode.Output())

	require.Equal(t, 1, InsertPrepackedConv2d(g))
	run := then.Outputs()[0].Node()
	assert.Equal(t, ir.ConvRun, run.Kind())
	assert.Same(t, then, run.Owner())
	assert.Same(t, then, run.Input(1).Node().Owner())
	assert.Equal(t, 0, kinds(g)[ir.Conv2d])
}

func TestInsertPrepackedConv2d_Idempotent(t *testing.T) {
	g, y := convNet()
	g.RegisterOutput(y)
	require.Equal(t, 1, InsertPrepackedConv2d(g))
	once := g.String()

	assert.Equal(t, 0, InsertPrepackedConv2d(g))
	assert.Equal(t, once, g.String())
}
