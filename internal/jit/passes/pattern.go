// Package passes holds graph rewrites over the jit IR: a subgraph pattern
// matcher and rewriter, prepacked convolution insertion, and the convolution
// fusion rules built on top of them.
package passes

import (
	"slices"

	"github.com/born-ml/cpuext/internal/jit/ir"
)

// AliasSet is the set of operator kinds a pattern node accepts, typically an
// operator together with its in-place variant.
type AliasSet []ir.Kind

// Contains reports whether k is in the set.
func (s AliasSet) Contains(k ir.Kind) bool { return slices.Contains(s, k) }

// Inplace returns the set {k, k_}.
func Inplace(k ir.Kind) AliasSet { return AliasSet{k, k + "_"} }

// PNode is one node of a match template. Inputs and Output name template
// values: a name produced by an earlier PNode refers to that node's output,
// any other name is a placeholder binding to an arbitrary value. A Variadic
// node matches any inputs.
type PNode struct {
	Kinds    AliasSet
	Inputs   []string
	Output   string
	Variadic bool
}

// RNode is one node of a replacement template. Inputs name matched values or
// outputs of earlier RNodes. When Clone is set the node is a copy of the
// matched node producing that value, inputs and output type included.
type RNode struct {
	Kind   ir.Kind
	Inputs []string
	Clone  string
	Output string
}

// Pattern is a match template, its replacement and an optional guard. The
// last PNode is the anchor; the output of the last RNode takes over all of
// the anchor's uses.
type Pattern struct {
	Name    string
	Match   []PNode
	Replace []RNode
	Filter  func(m *Match) bool
}

// Match is one binding of a pattern in a graph.
type Match struct {
	Values map[string]*ir.Value
	Nodes  []*ir.Node // Indexed like Pattern.Match
}

// Anchor returns the node bound to the pattern's last node.
func (m *Match) Anchor() *ir.Node { return m.Nodes[len(m.Nodes)-1] }

// Value returns the value bound to name, nil if none.
func (m *Match) Value(name string) *ir.Value { return m.Values[name] }

type matcher struct {
	p        *Pattern
	producer map[string]int // Template value name -> index of the PNode producing it
	block    *ir.Block
	m        *Match
}

func newMatcher(p *Pattern) *matcher {
	producer := make(map[string]int, len(p.Match))
	for i, pn := range p.Match {
		producer[pn.Output] = i
	}
	return &matcher{p: p, producer: producer}
}

// matchAt tries to bind the pattern with its anchor at n.
func (mt *matcher) matchAt(n *ir.Node) (*Match, bool) {
	mt.block = n.Owner()
	mt.m = &Match{
		Values: make(map[string]*ir.Value),
		Nodes:  make([]*ir.Node, len(mt.p.Match)),
	}
	if !mt.bind(len(mt.p.Match)-1, n) {
		return nil, false
	}
	if !mt.closed() {
		return nil, false
	}
	if mt.p.Filter != nil && !mt.p.Filter(mt.m) {
		return nil, false
	}
	return mt.m, true
}

func (mt *matcher) bind(i int, n *ir.Node) bool {
	pn := mt.p.Match[i]
	if n.IsDestroyed() || n.Owner() != mt.block || !pn.Kinds.Contains(n.Kind()) || len(n.Outputs()) != 1 {
		return false
	}
	if slices.Contains(mt.m.Nodes, n) {
		return false
	}
	mt.m.Nodes[i] = n
	mt.m.Values[pn.Output] = n.Output()
	if pn.Variadic {
		return true
	}
	if len(pn.Inputs) != len(n.Inputs()) {
		return false
	}

	for j, name := range pn.Inputs {
		v := n.Input(j)
		if k, ok := mt.producer[name]; ok && k < i {
			if bound := mt.m.Nodes[k]; bound != nil {
				if bound.Output() != v {
					return false
				}
				continue
			}
			if v.Offset() != 0 || !mt.bind(k, v.Node()) {
				return false
			}
			continue
		}
		if bound, ok := mt.m.Values[name]; ok {
			if bound != v {
				return false
			}
			continue
		}
		mt.m.Values[name] = v
	}
	return true
}

// closed checks that every template node was bound, that no placeholder
// captured a value produced inside the match, and that values produced inside
// the match other than the anchor's output are used only inside it.
func (mt *matcher) closed() bool {
	anchor := len(mt.m.Nodes) - 1
	for i, n := range mt.m.Nodes {
		if n == nil {
			return false
		}
		if i == anchor {
			continue
		}
		for _, u := range n.Output().Uses() {
			if !slices.Contains(mt.m.Nodes, u.User) {
				return false
			}
		}
	}
	for name, v := range mt.m.Values {
		if _, produced := mt.producer[name]; produced {
			continue
		}
		if slices.Contains(mt.m.Nodes, v.Node()) {
			return false
		}
	}
	return true
}
