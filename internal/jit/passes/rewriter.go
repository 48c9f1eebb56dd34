package passes

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/cpuext/internal/jit/ir"
)

// SubgraphRewriter replaces every occurrence of its registered patterns.
// Patterns run in registration order, each one until the graph stops
// changing.
type SubgraphRewriter struct {
	patterns []Pattern
}

// RegisterRewritePattern appends p to the rewriter.
func (r *SubgraphRewriter) RegisterRewritePattern(p Pattern) {
	r.patterns = append(r.patterns, p)
}

// RunOnGraph applies all patterns to g, nested blocks included, and returns
// the number of rewrites per pattern name.
func (r *SubgraphRewriter) RunOnGraph(g *ir.Graph) map[string]int {
	counts := make(map[string]int)
	for i := range r.patterns {
		p := &r.patterns[i]
		n := runPattern(g, p)
		if n > 0 {
			counts[p.Name] += n
			klog.V(2).Infof("rewrite %s: %d matches", p.Name, n)
		}
	}
	return counts
}

func runPattern(g *ir.Graph, p *Pattern) int {
	mt := newMatcher(p)
	anchor := p.Match[len(p.Match)-1].Kinds
	total := 0
	for {
		rewrites := 0
		for _, n := range g.Nodes() {
			if n.IsDestroyed() || !anchor.Contains(n.Kind()) {
				continue
			}
			m, ok := mt.matchAt(n)
			if !ok {
				continue
			}
			rewrite(g, p, m)
			rewrites++
		}
		if rewrites == 0 {
			return total
		}
		total += rewrites
	}
}

// rewrite materializes the replacement right before the anchor, moves the
// anchor's uses to it and destroys the matched nodes.
func rewrite(g *ir.Graph, p *Pattern, m *Match) {
	anchor := m.Anchor()
	defer g.SetInsertPoint(g.SetInsertPoint(anchor))

	created := make(map[string]*ir.Value, len(p.Replace))
	lookup := func(name string) *ir.Value {
		if v, ok := created[name]; ok {
			return v
		}
		return m.Values[name]
	}

	var out *ir.Value
	for _, rn := range p.Replace {
		var n *ir.Node
		if rn.Clone != "" {
			src := m.Values[rn.Clone].Node()
			n = g.Create(src.Kind(), src.Inputs(), 1)
			n.Output().SetType(src.Output().Type())
		} else {
			inputs := make([]*ir.Value, len(rn.Inputs))
			for i, name := range rn.Inputs {
				inputs[i] = lookup(name)
			}
			n = g.Create(rn.Kind, inputs, 1)
		}
		g.InsertNode(n)
		out = n.Output()
		created[rn.Output] = out
	}

	old := anchor.Output()
	out.SetType(old.Type())
	if old.HasDebugName() {
		out.SetDebugName(old.DebugName())
	}
	old.ReplaceAllUsesWith(out)
	for i := len(m.Nodes) - 1; i >= 0; i-- {
		m.Nodes[i].Destroy()
	}
}
