// Package ir is a small TorchScript-style graph IR: a Graph owns a top-level
// Block, blocks hold an ordered list of Nodes, and nodes consume and produce
// SSA Values. Every value records its uses, so rewrites can redirect edges in
// place.
package ir

import "fmt"

// Graph is a computation graph. It exclusively owns all of its nodes.
type Graph struct {
	block        *Block
	insertBefore *Node // New nodes are inserted before this node
	nextID       int
}

// Block is an ordered node list framed by a param node, whose outputs are the
// block inputs, and a return node, whose inputs are the block outputs.
type Block struct {
	graph *Graph
	owner *Node // nil for the top-level block
	param *Node
	ret   *Node
}

// Node is one operator application.
type Node struct {
	kind      Kind
	graph     *Graph
	owner     *Block
	prev      *Node
	next      *Node
	inputs    []*Value
	outputs   []*Value
	blocks    []*Block
	constant  *IValue
	destroyed bool
}

// Value is an SSA value produced by exactly one node.
type Value struct {
	node   *Node
	offset int
	typ    Type
	name   string
	id     int
	uses   []Use
}

// Use is one consumer of a value: input Offset of node User.
type Use struct {
	User   *Node
	Offset int
}

// NewGraph creates an empty graph. The insert point is the end of the
// top-level block.
func NewGraph() *Graph {
	g := &Graph{}
	g.block = newBlock(g, nil)
	g.insertBefore = g.block.ret
	return g
}

func newBlock(g *Graph, owner *Node) *Block {
	b := &Block{graph: g, owner: owner}
	b.param = &Node{kind: Param, graph: g, owner: b}
	b.ret = &Node{kind: Return, graph: g, owner: b}
	b.param.next = b.ret
	b.ret.prev = b.param
	return b
}

// Block returns the top-level block.
func (g *Graph) Block() *Block { return g.block }

// Inputs returns the graph inputs.
func (g *Graph) Inputs() []*Value { return g.block.Inputs() }

// Outputs returns the graph outputs.
func (g *Graph) Outputs() []*Value { return g.block.Outputs() }

// AddInput appends a graph input.
func (g *Graph) AddInput(name string, t Type) *Value { return g.block.AddInput(name, t) }

// RegisterOutput appends v to the graph outputs and returns its index.
func (g *Graph) RegisterOutput(v *Value) int { return g.block.RegisterOutput(v) }

// Create makes a detached node with the given inputs and numOutputs outputs
// typed as unknown tensors.
func (g *Graph) Create(kind Kind, inputs []*Value, numOutputs int) *Node {
	n := &Node{kind: kind, graph: g}
	for _, v := range inputs {
		n.AddInput(v)
	}
	for range numOutputs {
		n.addOutput(UnknownTensorType())
	}
	return n
}

// InsertNode inserts a detached node at the insert point.
func (g *Graph) InsertNode(n *Node) *Node {
	n.InsertBefore(g.insertBefore)
	return n
}

// Insert creates a single-output node and inserts it at the insert point.
func (g *Graph) Insert(kind Kind, inputs ...*Value) *Node {
	return g.InsertNode(g.Create(kind, inputs, 1))
}

// SetInsertPoint makes subsequent insertions go right before n and returns
// the previous insert point, so callers can restore it:
//
//	defer g.SetInsertPoint(g.SetInsertPoint(n))
func (g *Graph) SetInsertPoint(n *Node) *Node {
	prev := g.insertBefore
	g.insertBefore = n
	return prev
}

// SetInsertPointAtEnd makes subsequent insertions append to b.
func (g *Graph) SetInsertPointAtEnd(b *Block) *Node {
	return g.SetInsertPoint(b.ret)
}

// InsertConstant inserts a prim::Constant holding v and returns its output.
func (g *Graph) InsertConstant(v IValue) *Value {
	n := g.Create(Constant, nil, 1)
	n.constant = &v
	n.Output().SetType(v.Type())
	g.InsertNode(n)
	return n.Output()
}

// Nodes returns every node of the graph in program order, nested blocks
// included, depth first.
func (g *Graph) Nodes() []*Node {
	var out []*Node
	var walk func(b *Block)
	walk = func(b *Block) {
		for _, n := range b.Nodes() {
			out = append(out, n)
			for _, sb := range n.blocks {
				walk(sb)
			}
		}
	}
	walk(g.block)
	return out
}

func (g *Graph) newValue(n *Node, offset int, t Type) *Value {
	g.nextID++
	return &Value{node: n, offset: offset, typ: t, id: g.nextID}
}

// Inputs returns the block inputs.
func (b *Block) Inputs() []*Value { return b.param.outputs }

// Outputs returns the block outputs.
func (b *Block) Outputs() []*Value { return b.ret.inputs }

// AddInput appends a block input.
func (b *Block) AddInput(name string, t Type) *Value {
	v := b.param.addOutput(t)
	v.name = name
	return v
}

// RegisterOutput appends v to the block outputs and returns its index.
func (b *Block) RegisterOutput(v *Value) int {
	b.ret.AddInput(v)
	return len(b.ret.inputs) - 1
}

// ParamNode returns the node whose outputs are the block inputs.
func (b *Block) ParamNode() *Node { return b.param }

// ReturnNode returns the node whose inputs are the block outputs.
func (b *Block) ReturnNode() *Node { return b.ret }

// OwningNode returns the node this block belongs to, nil for the top block.
func (b *Block) OwningNode() *Node { return b.owner }

// Graph returns the owning graph.
func (b *Block) Graph() *Graph { return b.graph }

// Nodes returns a snapshot of the block's nodes, sentinels excluded.
// Mutating the block does not invalidate the snapshot.
func (b *Block) Nodes() []*Node {
	var out []*Node
	for n := b.param.next; n != b.ret; n = n.next {
		out = append(out, n)
	}
	return out
}

// Kind returns the operator symbol.
func (n *Node) Kind() Kind { return n.kind }

// Graph returns the owning graph.
func (n *Node) Graph() *Graph { return n.graph }

// Owner returns the block the node is linked into, nil while detached.
func (n *Node) Owner() *Block { return n.owner }

// Inputs returns the node inputs. The slice must not be modified.
func (n *Node) Inputs() []*Value { return n.inputs }

// Input returns input i.
func (n *Node) Input(i int) *Value { return n.inputs[i] }

// Outputs returns the node outputs. The slice must not be modified.
func (n *Node) Outputs() []*Value { return n.outputs }

// Output returns the only output of a single-output node.
func (n *Node) Output() *Value {
	if len(n.outputs) != 1 {
		panic(fmt.Sprintf("%s has %d outputs, expected 1", n.kind, len(n.outputs)))
	}
	return n.outputs[0]
}

// Blocks returns the nested blocks.
func (n *Node) Blocks() []*Block { return n.blocks }

// AddBlock appends a nested block.
func (n *Node) AddBlock() *Block {
	b := newBlock(n.graph, n)
	n.blocks = append(n.blocks, b)
	return b
}

// Next returns the following node in the owning block.
func (n *Node) Next() *Node { return n.next }

// Prev returns the preceding node in the owning block.
func (n *Node) Prev() *Node { return n.prev }

// Constant returns the payload of a prim::Constant node.
func (n *Node) Constant() (IValue, bool) {
	if n.kind != Constant || n.constant == nil {
		return IValue{}, false
	}
	return *n.constant, true
}

// IsDestroyed reports whether Destroy was called on the node.
func (n *Node) IsDestroyed() bool { return n.destroyed }

// HasUses reports whether any output of the node is used.
func (n *Node) HasUses() bool {
	for _, o := range n.outputs {
		if len(o.uses) > 0 {
			return true
		}
	}
	return false
}

// AddInput appends v as an input.
func (n *Node) AddInput(v *Value) {
	v.uses = append(v.uses, Use{User: n, Offset: len(n.inputs)})
	n.inputs = append(n.inputs, v)
}

// ReplaceInput makes input i refer to v.
func (n *Node) ReplaceInput(i int, v *Value) {
	n.inputs[i].dropUse(n, i)
	n.inputs[i] = v
	v.uses = append(v.uses, Use{User: n, Offset: i})
}

func (n *Node) addOutput(t Type) *Value {
	v := n.graph.newValue(n, len(n.outputs), t)
	n.outputs = append(n.outputs, v)
	return v
}

// InsertBefore links the detached node n right before m.
func (n *Node) InsertBefore(m *Node) {
	if n.owner != nil {
		panic(fmt.Sprintf("%s is already linked into a block", n.kind))
	}
	if m.kind == Param {
		panic("cannot insert before a block's param node")
	}
	n.owner = m.owner
	n.prev = m.prev
	n.next = m
	m.prev.next = n
	m.prev = n
}

// InsertAfter links the detached node n right after m.
func (n *Node) InsertAfter(m *Node) {
	n.InsertBefore(m.next)
}

// IsBefore reports whether n executes before m. Nodes in different blocks
// are compared through their enclosing nodes in the innermost common block;
// a node precedes everything nested inside it.
func (n *Node) IsBefore(m *Node) bool {
	if n == m {
		return false
	}
	for a := n; a != nil; a = a.owner.owner {
		for b := m; b != nil; b = b.owner.owner {
			if a.owner != b.owner {
				continue
			}
			if a == b {
				// One node is nested in the other.
				return a == n
			}
			return a.isBeforeInBlock(b)
		}
	}
	return false
}

func (n *Node) isBeforeInBlock(m *Node) bool {
	for x := n.next; x != nil; x = x.next {
		if x == m {
			return true
		}
	}
	return false
}

// Destroy unlinks the node and drops its input edges. Its outputs must be
// unused. Nested blocks are destroyed with it.
func (n *Node) Destroy() {
	if n.HasUses() {
		panic(fmt.Sprintf("cannot destroy %s: its outputs are still used", n.kind))
	}
	n.destroy()
}

func (n *Node) destroy() {
	for _, b := range n.blocks {
		for x := b.ret; x != nil; x = x.prev {
			x.dropInputs()
			x.destroyed = true
		}
	}
	n.dropInputs()
	if n.owner != nil {
		n.prev.next = n.next
		n.next.prev = n.prev
	}
	n.prev, n.next, n.owner = nil, nil, nil
	n.destroyed = true
}

func (n *Node) dropInputs() {
	for i, v := range n.inputs {
		v.dropUse(n, i)
	}
	n.inputs = nil
}

// Node returns the producing node.
func (v *Value) Node() *Node { return v.node }

// Offset returns the output index of v on its node.
func (v *Value) Offset() int { return v.offset }

// Type returns the static type.
func (v *Value) Type() Type { return v.typ }

// SetType replaces the static type.
func (v *Value) SetType(t Type) *Value {
	v.typ = t
	return v
}

// Unique returns the graph-unique id of the value.
func (v *Value) Unique() int { return v.id }

// DebugName returns the value's name, or its unique id when unnamed.
func (v *Value) DebugName() string {
	if v.name != "" {
		return v.name
	}
	return fmt.Sprint(v.id)
}

// HasDebugName reports whether the value was explicitly named.
func (v *Value) HasDebugName() bool { return v.name != "" }

// SetDebugName names the value.
func (v *Value) SetDebugName(name string) *Value {
	v.name = name
	return v
}

// Uses returns the consumers of v. The slice must not be modified.
func (v *Value) Uses() []Use { return v.uses }

// HasUses reports whether v has any consumer.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// Constant returns the payload when v is produced by a prim::Constant.
func (v *Value) Constant() (IValue, bool) {
	return v.node.Constant()
}

// ReplaceAllUsesWith redirects every consumer of v to w.
func (v *Value) ReplaceAllUsesWith(w *Value) {
	if v == w {
		return
	}
	for _, u := range v.uses {
		u.User.inputs[u.Offset] = w
		w.uses = append(w.uses, u)
	}
	v.uses = nil
}

func (v *Value) dropUse(n *Node, offset int) {
	for i, u := range v.uses {
		if u.User == n && u.Offset == offset {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}
