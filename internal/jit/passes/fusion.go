package passes

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/cpuext/internal/jit/ir"
)

// Config selects the fusion families ApplyFusions runs.
type Config struct {
	Eltwise bool // conv + relu/sigmoid/hardtanh/elu/swish/silu
	Add     bool // conv + residual add, conv + add + relu
}

// DefaultConfig enables every fusion family.
func DefaultConfig() Config {
	return Config{Eltwise: true, Add: true}
}

// Stats summarizes one optimization run.
type Stats struct {
	Prepacked int
	Fused     map[string]int
}

// Optimize inserts prepacked convolutions and then fuses them with their
// consumers. A graph without candidates is left unchanged.
func Optimize(g *ir.Graph, cfg Config) Stats {
	stats := Stats{Prepacked: InsertPrepackedConv2d(g)}
	stats.Fused = ApplyFusions(g, cfg)
	klog.V(2).Infof("optimize: %d convolutions prepacked, fusions %v", stats.Prepacked, stats.Fused)
	return stats
}

// ApplyFusions rewrites prepack/run pairs followed by a supported consumer
// into a single fused run, then removes dead nodes. It returns the number of
// rewrites per rule.
func ApplyFusions(g *ir.Graph, cfg Config) map[string]int {
	var r SubgraphRewriter
	if cfg.Eltwise {
		for _, p := range eltwisePatterns() {
			r.RegisterRewritePattern(p)
		}
	}
	if cfg.Add {
		for _, p := range addPatterns() {
			r.RegisterRewritePattern(p)
		}
	}
	counts := r.RunOnGraph(g)
	ir.EliminateDeadCode(g.Block())
	return counts
}

// Every template starts from the packed context and the plain run over it.
var (
	prepackNode = PNode{Kinds: AliasSet{ir.ConvPrepack}, Output: "packed", Variadic: true}
	runNode     = PNode{Kinds: AliasSet{ir.ConvRun}, Inputs: []string{"input", "packed"}, Output: "x"}
	repack      = RNode{Clone: "packed", Output: "packed2"}
)

// fusedRun returns the replacement that re-creates the prepack and feeds it
// to a fused run taking args followed by the packed context.
func fusedRun(kind ir.Kind, args ...string) []RNode {
	return []RNode{repack, {Kind: kind, Inputs: append(args, "packed2"), Output: "y"}}
}

// The swish templates accept only the out-of-place sigmoid: sigmoid_ would
// overwrite the convolution output the multiply reads.
func eltwisePatterns() []Pattern {
	return []Pattern{
		{
			Name:    "conv_relu",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Relu), Inputs: []string{"x"}, Output: "y"}},
			Replace: fusedRun(ir.ConvReluRun, "input"),
		},
		{
			Name:    "conv_sigmoid",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Sigmoid), Inputs: []string{"x"}, Output: "y"}},
			Replace: fusedRun(ir.ConvSigmoidRun, "input"),
		},
		{
			Name:    "conv_hardtanh",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Hardtanh), Inputs: []string{"x", "min", "max"}, Output: "y"}},
			Replace: fusedRun(ir.ConvHardtanhRun, "input", "min", "max"),
		},
		{
			Name:    "conv_elu",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Elu), Inputs: []string{"x", "alpha", "scale", "input_scale"}, Output: "y"}},
			Replace: fusedRun(ir.ConvEluRun, "input", "alpha", "scale", "input_scale"),
			Filter:  unitInputScale,
		},
		{
			Name: "conv_swish",
			Match: []PNode{prepackNode, runNode,
				{Kinds: AliasSet{ir.Sigmoid}, Inputs: []string{"x"}, Output: "s"},
				{Kinds: Inplace(ir.Mul), Inputs: []string{"x", "s"}, Output: "y"}},
			Replace: fusedRun(ir.ConvSwishRun, "input"),
		},
		{
			Name: "conv_swish_commuted",
			Match: []PNode{prepackNode, runNode,
				{Kinds: AliasSet{ir.Sigmoid}, Inputs: []string{"x"}, Output: "s"},
				{Kinds: Inplace(ir.Mul), Inputs: []string{"s", "x"}, Output: "y"}},
			Replace: fusedRun(ir.ConvSwishRun, "input"),
		},
		{
			Name:    "conv_silu",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Silu), Inputs: []string{"x"}, Output: "y"}},
			Replace: fusedRun(ir.ConvSwishRun, "input"),
		},
	}
}

func addPatterns() []Pattern {
	return []Pattern{
		{
			Name:    "conv_add",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Add), Inputs: []string{"x", "accumu", "alpha"}, Output: "y"}},
			Replace: fusedRun(ir.ConvAddRun, "input", "accumu", "alpha"),
			Filter:  writableAccumulator,
		},
		{
			Name:    "conv_add_commuted",
			Match:   []PNode{prepackNode, runNode, {Kinds: Inplace(ir.Add), Inputs: []string{"accumu", "x", "alpha"}, Output: "y"}},
			Replace: fusedRun(ir.ConvAddRun, "input", "accumu", "alpha"),
			Filter: func(m *Match) bool {
				return unitConstant(m.Value("alpha")) && writableAccumulator(m)
			},
		},
		{
			Name: "conv_add_relu",
			Match: []PNode{prepackNode,
				{Kinds: AliasSet{ir.ConvAddRun}, Inputs: []string{"input", "accumu", "alpha", "packed"}, Output: "x"},
				{Kinds: Inplace(ir.Relu), Inputs: []string{"x"}, Output: "y"}},
			Replace: fusedRun(ir.ConvAddReluRun, "input", "accumu", "alpha"),
			Filter:  writableAccumulator,
		},
	}
}

// unitInputScale accepts an ELU whose input_scale is the constant 1 or 1.0;
// the fused kernel cannot scale its input.
func unitInputScale(m *Match) bool {
	return unitConstant(m.Value("input_scale"))
}

func unitConstant(v *ir.Value) bool {
	c, ok := v.Constant()
	if !ok {
		return false
	}
	return (c.IsDouble() && c.Float == 1.0) || (c.IsInt() && c.Int == 1)
}

// writableAccumulator accepts an add whose accumulator the fused kernel may
// overwrite: a tensor of the convolution's output sizes whose buffer is not a
// graph input and that nothing reads after the add. In-place ops share their
// first input's buffer, so the checks cover every value in that alias chain.
// Under conv_add_relu the writer is the already fused add run, whose sizes
// were checked when it was formed.
func writableAccumulator(m *Match) bool {
	accumu := m.Value("accumu")
	writer := m.Anchor()
	if Inplace(ir.Add).Contains(writer.Kind()) {
		want, ok1 := m.Value("x").Type().ConcreteSizes()
		got, ok2 := accumu.Type().ConcreteSizes()
		if !ok1 || !ok2 || !slices.Equal(want, got) {
			return false
		}
	} else {
		writer = m.Nodes[1]
	}

	for _, v := range bufferAliases(accumu, m.Nodes) {
		if p := v.Node(); p.Kind() == ir.Param && p.Owner().OwningNode() == nil {
			return false
		}
		for _, u := range v.Uses() {
			if slices.Contains(m.Nodes, u.User) {
				continue
			}
			if !u.User.IsBefore(writer) {
				return false
			}
		}
	}
	return true
}

// bufferAliases returns v and every value sharing its buffer: the inputs it
// was computed in place of and the results of ops that write into it. Uses by
// the matched nodes are not followed.
func bufferAliases(v *ir.Value, matched []*ir.Node) []*ir.Value {
	seen := []*ir.Value{v}
	for i := 0; i < len(seen); i++ {
		cur := seen[i]
		var next []*ir.Value
		n := cur.Node()
		if k, ok := writtenInput(n.Kind()); ok && k < len(n.Inputs()) {
			next = append(next, n.Input(k))
		}
		for _, u := range cur.Uses() {
			if k, ok := writtenInput(u.User.Kind()); ok && k == u.Offset && !slices.Contains(matched, u.User) {
				next = append(next, u.User.Outputs()...)
			}
		}
		for _, a := range next {
			if !slices.Contains(seen, a) {
				seen = append(seen, a)
			}
		}
	}
	return seen
}

// writtenInput returns the input whose buffer a node of kind k overwrites and
// returns as its result.
func writtenInput(k ir.Kind) (int, bool) {
	switch {
	case k == ir.ConvAddRun || k == ir.ConvAddReluRun:
		return 1, true
	case k.IsInplace():
		return 0, true
	}
	return 0, false
}
