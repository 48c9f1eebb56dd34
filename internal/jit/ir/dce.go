package ir

// EliminateDeadCode removes nodes whose outputs are unused and which have no
// side effects, walking b and its nested blocks bottom-up. A node with nested
// blocks is removed only once all of them are empty.
func EliminateDeadCode(b *Block) int {
	removed := 0
	for n := b.ret.prev; n != b.param; {
		prev := n.prev
		for _, sb := range n.blocks {
			removed += EliminateDeadCode(sb)
		}
		if n.isDead() {
			n.Destroy()
			removed++
		}
		n = prev
	}
	return removed
}

func (n *Node) isDead() bool {
	if n.kind.hasSideEffects() || n.HasUses() {
		return false
	}
	for _, b := range n.blocks {
		if b.param.next != b.ret {
			return false
		}
	}
	return true
}
