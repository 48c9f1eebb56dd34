package passes

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/cpuext/internal/jit/ir"
)

// InsertPrepackedConv2d replaces every aten::conv2d and
// torch_ipex::convolution_forward whose operand shapes are statically known
// with a convolution_prepack / convolution_run pair, then removes the dead
// nodes. It returns the number of convolutions rewritten.
func InsertPrepackedConv2d(g *ir.Graph) int {
	return insertPrepackedConv2d(g, g.Block())
}

func insertPrepackedConv2d(g *ir.Graph, b *ir.Block) int {
	rewritten := 0
	for _, n := range b.Nodes() {
		for _, sb := range n.Blocks() {
			rewritten += insertPrepackedConv2d(g, sb)
		}
		switch n.Kind() {
		case ir.Conv2d, ir.ConvolutionForward:
			if prepackConv(g, n) {
				rewritten++
			}
		}
	}
	ir.EliminateDeadCode(b)
	return rewritten
}

// aten::conv2d(input, weight, bias, stride, padding, dilation, groups)
const conv2dArity = 7

func prepackConv(g *ir.Graph, conv *ir.Node) bool {
	input := conv.Input(0)
	inputSizes, ok := input.Type().ConcreteSizes()
	if !ok || len(inputSizes) != 4 {
		klog.V(3).Infof("skip %s: input %%%s has no static rank-4 sizes", conv.Kind(), input.DebugName())
		return false
	}

	defer g.SetInsertPoint(g.SetInsertPoint(conv))

	var args []*ir.Value
	switch conv.Kind() {
	case ir.Conv2d:
		if len(conv.Inputs()) != conv2dArity {
			klog.V(3).Infof("skip %s: expected %d inputs, got %d", conv.Kind(), conv2dArity, len(conv.Inputs()))
			return false
		}
		weight := conv.Input(1)
		w, ok := weight.Type().ConcreteSizes()
		if !ok || len(w) != 4 {
			klog.V(3).Infof("skip %s: weight %%%s has no static rank-4 sizes", conv.Kind(), weight.DebugName())
			return false
		}
		args = append(args, conv.Inputs()[1:6]...) // weight, bias, stride, padding, dilation
		args = append(args,
			g.InsertConstant(ir.IntListValue(w[2], w[3])), // kernel_size
			conv.Input(6),                                 // groups
			g.InsertConstant(ir.IntValue(w[0])),           // output_channel
			g.InsertConstant(ir.BoolValue(false)),         // weight_is_channels_last
			g.InsertConstant(ir.BoolValue(false)),         // weight_is_prepacked
		)
	default:
		args = append(args, conv.Inputs()[1:]...)
	}
	args = append(args, g.InsertConstant(ir.IntListValue(inputSizes...)))

	prepack := g.InsertNode(g.Create(ir.ConvPrepack, args, 1))
	prepack.Output().SetType(ir.ClassType(ir.ConvContextClass))

	run := g.InsertNode(g.Create(ir.ConvRun, []*ir.Value{input, prepack.Output()}, 1))
	out := conv.Output()
	run.Output().SetType(convOutputType(conv, inputSizes))
	if out.HasDebugName() {
		run.Output().SetDebugName(out.DebugName())
	}
	out.ReplaceAllUsesWith(run.Output())
	return true
}

// convOutputType returns the convolution's declared output type, or the type
// inferred from constant stride, padding and dilation when sizes are unknown.
func convOutputType(conv *ir.Node, inputSizes []int64) ir.Type {
	declared := conv.Output().Type()
	if _, ok := declared.ConcreteSizes(); ok {
		return declared
	}

	var weight []int64
	var ok bool
	switch conv.Kind() {
	case ir.Conv2d:
		weight, ok = conv.Input(1).Type().ConcreteSizes()
	default:
		weight, ok = convolutionForwardWeightSizes(conv)
	}
	if !ok || len(weight) != 4 || len(conv.Inputs()) < 6 {
		return declared
	}

	stride, ok1 := pair(conv.Input(3))
	padding, ok2 := pair(conv.Input(4))
	dilation, ok3 := pair(conv.Input(5))
	if !ok1 || !ok2 || !ok3 {
		return declared
	}

	sizes := []int64{inputSizes[0], weight[0], 0, 0}
	for i := range 2 {
		span := dilation[i]*(weight[2+i]-1) + 1
		if stride[i] <= 0 || inputSizes[2+i]+2*padding[i] < span {
			return declared
		}
		sizes[2+i] = (inputSizes[2+i]+2*padding[i]-span)/stride[i] + 1
	}
	return ir.TensorType(sizes...)
}

// convolution_forward(input, weight, bias, stride, padding, dilation,
// kernel_size, groups, output_channel, ...) carries its kernel geometry as
// constants.
func convolutionForwardWeightSizes(conv *ir.Node) ([]int64, bool) {
	if len(conv.Inputs()) < 9 {
		return nil, false
	}
	kernel, ok1 := pair(conv.Input(6))
	oc, ok2 := conv.Input(8).Constant()
	if !ok1 || !ok2 || !oc.IsInt() {
		return nil, false
	}
	return []int64{oc.Int, 0, kernel[0], kernel[1]}, true
}

// pair reads a constant int[] of length 1 or 2 as a (h, w) pair.
func pair(v *ir.Value) ([2]int64, bool) {
	c, ok := v.Constant()
	if !ok || c.Kind != ir.IntListKind {
		return [2]int64{}, false
	}
	switch len(c.Ints) {
	case 1:
		return [2]int64{c.Ints[0], c.Ints[0]}, true
	case 2:
		return [2]int64{c.Ints[0], c.Ints[1]}, true
	default:
		return [2]int64{}, false
	}
}
