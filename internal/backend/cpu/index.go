package cpu

// indexCounter walks a multi-dimensional index space in row-major order
// (last dimension fastest). It is initialized once from a flat position and
// then advanced with step, which avoids a division and modulo per dimension
// for every element.
type indexCounter struct {
	idx  []int
	dims []int
}

// newIndexCounter positions a counter over dims at the flat index pos.
func newIndexCounter(pos int, dims ...int) *indexCounter {
	c := &indexCounter{
		idx:  make([]int, len(dims)),
		dims: dims,
	}
	for d := len(dims) - 1; d >= 0; d-- {
		if dims[d] == 0 {
			continue
		}
		c.idx[d] = pos % dims[d]
		pos /= dims[d]
	}
	return c
}

// step advances the counter by one position, carrying into outer dimensions.
func (c *indexCounter) step() {
	for d := len(c.idx) - 1; d >= 0; d-- {
		c.idx[d]++
		if c.idx[d] < c.dims[d] {
			return
		}
		c.idx[d] = 0
	}
}
