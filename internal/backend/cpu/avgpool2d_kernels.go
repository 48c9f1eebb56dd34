package cpu

import (
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// avgPool2DPlanar averages windows of a planar [N*C, H, W] input.
// Work is split over the flattened (N*C, OH, OW) output index; each element
// is summed in the accumulator type A and narrowed once on store.
func avgPool2DPlanar[T tensor.Element, A accumulator](out, in []T, g *poolGeometry, cv codec[T, A], cfg parallel.Config) {
	planes := g.planes()
	parallel.ForRange(len(out), 0, func(begin, end int) {
		ctr := newIndexCounter(begin, planes, g.outH, g.outW)
		for i := begin; i < end; i++ {
			c, oh, ow := ctr.idx[0], ctr.idx[1], ctr.idx[2]
			ctr.step()

			var zero T
			out[i] = zero

			ih0, ih1, iw0, iw1, divide := g.window(oh, ow)
			if ih0 >= ih1 || iw0 >= iw1 {
				continue
			}

			plane := in[c*g.inH*g.inW : (c+1)*g.inH*g.inW]
			var sum A
			for ih := ih0; ih < ih1; ih++ {
				row := plane[ih*g.inW : (ih+1)*g.inW]
				for iw := iw0; iw < iw1; iw++ {
					sum += cv.load(row[iw])
				}
			}
			out[i] = cv.store(sum / A(divide))
		}
	}, cfg)
}

// avgPool2DChannelsLast averages windows of an [N, H, W, C] input whose
// storage type is its own accumulator. Work is split over (N, OH, OW); each
// output lane of C channels is computed in three passes: zero the lane,
// accumulate every window row into it, divide.
func avgPool2DChannelsLast[T accumulator](out, in []T, g *poolGeometry, laneAdd func(dst, src []T), cfg parallel.Config) {
	c := g.channels
	parallel.ForRange(g.nbatch*g.outH*g.outW, 0, func(begin, end int) {
		ctr := newIndexCounter(begin, g.nbatch, g.outH, g.outW)
		for i := begin; i < end; i++ {
			n, oh, ow := ctr.idx[0], ctr.idx[1], ctr.idx[2]
			ctr.step()

			ih0, ih1, iw0, iw1, divide := g.window(oh, ow)
			lane := out[i*c : (i+1)*c]

			// Pass I: zero the out lane
			fillLane(lane, 0)
			if ih0 >= ih1 || iw0 >= iw1 {
				continue
			}

			// Pass II: accumulate the window
			image := in[n*g.inH*g.inW*c:]
			for ih := ih0; ih < ih1; ih++ {
				for iw := iw0; iw < iw1; iw++ {
					off := (ih*g.inW + iw) * c
					laneAdd(lane, image[off:off+c])
				}
			}

			// Pass III: average
			divLane(lane, T(divide))
		}
	}, cfg)
}

// avgPool2DChannelsLastNarrow is avgPool2DChannelsLast for 16-bit float
// storage. Sums are kept in a per-chunk float32 scratch lane since adding in
// the narrow type would round after every window element.
func avgPool2DChannelsLastNarrow[T tensor.Element](out, in []T, g *poolGeometry, cv codec[T, float32], cfg parallel.Config) {
	c := g.channels
	parallel.ForRange(g.nbatch*g.outH*g.outW, 0, func(begin, end int) {
		sum := make([]float32, c)
		ctr := newIndexCounter(begin, g.nbatch, g.outH, g.outW)
		for i := begin; i < end; i++ {
			n, oh, ow := ctr.idx[0], ctr.idx[1], ctr.idx[2]
			ctr.step()

			ih0, ih1, iw0, iw1, divide := g.window(oh, ow)
			lane := out[i*c : (i+1)*c]

			// Pass I: zero the scratch lane
			fillLane(sum, 0)
			if ih0 >= ih1 || iw0 >= iw1 {
				// The output is not the accumulation buffer, zero it too.
				var zero T
				fillLane(lane, zero)
				continue
			}

			// Pass II: accumulate the window in float32
			image := in[n*g.inH*g.inW*c:]
			for ih := ih0; ih < ih1; ih++ {
				for iw := iw0; iw < iw1; iw++ {
					off := (ih*g.inW + iw) * c
					loadAddLane(sum, image[off:off+c], cv.load)
				}
			}

			// Pass III: average and narrow
			storeDivLane(lane, sum, float32(divide), cv.store)
		}
	}, cfg)
}
