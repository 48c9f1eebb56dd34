package cpu

import "gonum.org/v1/gonum/floats"

// vecWidth is the block width of the channel-lane loops. Lanes are processed
// in blocks of vecWidth elements, then a scalar remainder.
const vecWidth = 8

// fillLane sets every element of dst to v.
func fillLane[T any](dst []T, v T) {
	n := len(dst)
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		b := dst[d : d+vecWidth : d+vecWidth]
		b[0], b[1], b[2], b[3] = v, v, v, v
		b[4], b[5], b[6], b[7] = v, v, v, v
	}
	for ; d < n; d++ {
		dst[d] = v
	}
}

// addLane accumulates src into dst element-wise.
func addLane[T accumulator](dst, src []T) {
	n := len(dst)
	src = src[:n]
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		o := dst[d : d+vecWidth : d+vecWidth]
		s := src[d : d+vecWidth : d+vecWidth]
		o[0] += s[0]
		o[1] += s[1]
		o[2] += s[2]
		o[3] += s[3]
		o[4] += s[4]
		o[5] += s[5]
		o[6] += s[6]
		o[7] += s[7]
	}
	for ; d < n; d++ {
		dst[d] += src[d]
	}
}

// addLaneFloat64 accumulates src into dst using gonum's assembly kernels.
func addLaneFloat64(dst, src []float64) {
	floats.Add(dst, src[:len(dst)])
}

// divLane divides every element of dst by div.
func divLane[T accumulator](dst []T, div T) {
	n := len(dst)
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		o := dst[d : d+vecWidth : d+vecWidth]
		o[0] /= div
		o[1] /= div
		o[2] /= div
		o[3] /= div
		o[4] /= div
		o[5] /= div
		o[6] /= div
		o[7] /= div
	}
	for ; d < n; d++ {
		dst[d] /= div
	}
}

// loadAddLane widens src through load and accumulates it into dst.
func loadAddLane[T any, A accumulator](dst []A, src []T, load func(T) A) {
	n := len(dst)
	src = src[:n]
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		o := dst[d : d+vecWidth : d+vecWidth]
		s := src[d : d+vecWidth : d+vecWidth]
		for k := range o {
			o[k] += load(s[k])
		}
	}
	for ; d < n; d++ {
		dst[d] += load(src[d])
	}
}

// storeDivLane writes sum/div narrowed through store into dst.
func storeDivLane[T any, A accumulator](dst []T, sum []A, div A, store func(A) T) {
	n := len(dst)
	sum = sum[:n]
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		o := dst[d : d+vecWidth : d+vecWidth]
		s := sum[d : d+vecWidth : d+vecWidth]
		for k := range o {
			o[k] = store(s[k] / div)
		}
	}
	for ; d < n; d++ {
		dst[d] = store(sum[d] / div)
	}
}

// scatterDivLane adds gout/div into gin element-wise, widening through the codec.
func scatterDivLane[T any, A accumulator](gin, gout []T, div A, load func(T) A, store func(A) T) {
	n := len(gin)
	gout = gout[:n]
	d := 0
	for ; d < n-n%vecWidth; d += vecWidth {
		o := gin[d : d+vecWidth : d+vecWidth]
		g := gout[d : d+vecWidth : d+vecWidth]
		for k := range o {
			o[k] = store(load(o[k]) + load(g[k])/div)
		}
	}
	for ; d < n; d++ {
		gin[d] = store(load(gin[d]) + load(gout[d])/div)
	}
}
