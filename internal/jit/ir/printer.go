package ir

import (
	"fmt"
	"strings"
)

// String renders the graph in a TorchScript-like text form:
//
//	graph(%x : Tensor(1, 3, 8, 8)):
//	  %2 : int[] = prim::Constant[value=[1, 1]]()
//	  %3 : Tensor = aten::relu(%x)
//	  return (%3)
func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("graph(")
	writeDecls(&sb, g.block.Inputs())
	sb.WriteString("):\n")
	writeBody(&sb, g.block, 1)
	sb.WriteString("  return (")
	writeRefs(&sb, g.block.Outputs())
	sb.WriteString(")\n")
	return sb.String()
}

// String renders a single node without its nested blocks.
func (n *Node) String() string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeBody(sb *strings.Builder, b *Block, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range b.Nodes() {
		sb.WriteString(indent)
		writeNode(sb, n)
		sb.WriteByte('\n')
		for i, nb := range n.blocks {
			fmt.Fprintf(sb, "%s  block%d(", indent, i)
			writeDecls(sb, nb.Inputs())
			sb.WriteString("):\n")
			writeBody(sb, nb, depth+2)
			fmt.Fprintf(sb, "%s    -> (", indent)
			writeRefs(sb, nb.Outputs())
			sb.WriteString(")\n")
		}
	}
}

func writeNode(sb *strings.Builder, n *Node) {
	if len(n.outputs) > 0 {
		writeDecls(sb, n.outputs)
		sb.WriteString(" = ")
	}
	sb.WriteString(string(n.kind))
	if c, ok := n.Constant(); ok && c.Kind != NoneKind {
		fmt.Fprintf(sb, "[value=%s]", c)
	}
	sb.WriteByte('(')
	writeRefs(sb, n.inputs)
	sb.WriteByte(')')
}

func writeDecls(sb *strings.Builder, vs []*Value) {
	for i, v := range vs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%%%s : %s", v.DebugName(), v.typ)
	}
}

func writeRefs(sb *strings.Builder, vs []*Value) {
	for i, v := range vs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("%" + v.DebugName())
	}
}
