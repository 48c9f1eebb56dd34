package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// Conv2DParams holds the hyper-parameters of a 2D convolution.
// Pairs are (height, width).
type Conv2DParams struct {
	Stride   [2]int
	Padding  [2]int
	Dilation [2]int
	Groups   int
}

// DefaultConv2DParams returns stride 1, no padding, dilation 1, one group.
func DefaultConv2DParams() Conv2DParams {
	return Conv2DParams{Stride: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1}
}

type convGeometry struct {
	n, cin, h, w     int
	cout, kh, kw     int
	oh, ow           int
	groups           int
	sH, sW, pH, pW   int
	dH, dW           int
	cinG, coutG, col int // per-group input/output channels, im2col row width
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel_h, kernel_w]
// Bias shape:   [out_channels] or nil
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm: Im2col, per image and group
//  1. Transform input patches into rows (im2col)
//  2. Multiply the group's weight rows by the transposed patch matrix (BLAS GEMM)
//  3. Write results straight into [N, C_out, H_out, W_out] order
//
// This is the reference convolution the graph interpreter runs for both raw
// and prepacked convolutions; only planar float32/float64 are supported.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, weight, bias *tensor.RawTensor, p Conv2DParams) (*tensor.RawTensor, error) {
	const op = "conv2d"
	g, err := newConvGeometry(op, input, weight, bias, p)
	if err != nil {
		return nil, err
	}

	output, err := tensor.NewRaw(tensor.Shape{g.n, g.cout, g.oh, g.ow}, input.DType(), tensor.Planar)
	if err != nil {
		return nil, invalidf("%s: failed to create output tensor: %v", op, err)
	}
	if output.NumElements() == 0 {
		return output, nil
	}

	switch input.DType() {
	case tensor.Float32:
		var b []float32
		if bias != nil {
			b = bias.AsFloat32()
		}
		conv2dIm2col(output.AsFloat32(), input.AsFloat32(), weight.AsFloat32(), b, g, cpu.cfg)
	case tensor.Float64:
		var b []float64
		if bias != nil {
			b = bias.AsFloat64()
		}
		conv2dIm2col(output.AsFloat64(), input.AsFloat64(), weight.AsFloat64(), b, g, cpu.cfg)
	default:
		return nil, invalidf("%s: unsupported dtype %s", op, input.DType())
	}
	return output, nil
}

func newConvGeometry(op string, input, weight, bias *tensor.RawTensor, p Conv2DParams) (*convGeometry, error) {
	if input.Layout() != tensor.Planar || weight.Layout() != tensor.Planar {
		return nil, invalidf("%s: only planar tensors are supported", op)
	}
	in, k := input.Shape(), weight.Shape()
	if len(in) != 4 {
		return nil, invalidf("%s: input must be 4D [N,C,H,W], got %dD", op, len(in))
	}
	if len(k) != 4 {
		return nil, invalidf("%s: weight must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", op, len(k))
	}
	if weight.DType() != input.DType() {
		return nil, invalidf("%s: weight dtype %s != input dtype %s", op, weight.DType(), input.DType())
	}
	if p.Groups <= 0 {
		return nil, invalidf("%s: groups must be positive, got %d", op, p.Groups)
	}
	for i := range 2 {
		if p.Stride[i] <= 0 || p.Dilation[i] <= 0 || p.Padding[i] < 0 {
			return nil, invalidf("%s: invalid stride %v, padding %v or dilation %v", op, p.Stride, p.Padding, p.Dilation)
		}
	}

	g := &convGeometry{
		n: in[0], cin: in[1], h: in[2], w: in[3],
		cout: k[0], kh: k[2], kw: k[3],
		groups: p.Groups,
		sH:     p.Stride[0], sW: p.Stride[1],
		pH: p.Padding[0], pW: p.Padding[1],
		dH: p.Dilation[0], dW: p.Dilation[1],
	}
	if g.cin%g.groups != 0 || g.cout%g.groups != 0 {
		return nil, invalidf("%s: channels (in %d, out %d) must be divisible by groups %d", op, g.cin, g.cout, g.groups)
	}
	g.cinG = g.cin / g.groups
	g.coutG = g.cout / g.groups
	if k[1] != g.cinG {
		return nil, invalidf("%s: expected weight of %d input channels per group, got %d", op, g.cinG, k[1])
	}
	if bias != nil {
		if bias.DType() != input.DType() || len(bias.Shape()) != 1 || bias.Shape()[0] != g.cout {
			return nil, invalidf("%s: expected bias of shape [%d] and dtype %s, got %v %s",
				op, g.cout, input.DType(), bias.Shape(), bias.DType())
		}
	}

	g.oh = PoolingOutputSize(g.h, g.kh, g.pH, g.sH, g.dH, false)
	g.ow = PoolingOutputSize(g.w, g.kw, g.pW, g.sW, g.dW, false)
	if g.oh <= 0 || g.ow <= 0 {
		return nil, invalidf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.oh, g.ow)
	}
	g.col = g.cinG * g.kh * g.kw
	return g, nil
}

// conv2dIm2col runs one image per unit of parallel work. Each worker owns a
// patch buffer of [H_out * W_out, C_in/groups * K_h * K_w]; the group's
// weights multiply it transposed in a single GEMM.
func conv2dIm2col[T float32 | float64](out, in, weight, bias []T, g *convGeometry, cfg parallel.Config) {
	spatial := g.oh * g.ow
	parallel.ForRange(g.n, 1, func(begin, end int) {
		colBuf := make([]T, spatial*g.col)
		for n := begin; n < end; n++ {
			for grp := 0; grp < g.groups; grp++ {
				image := in[(n*g.cin+grp*g.cinG)*g.h*g.w:]
				im2col(colBuf, image, g)

				first := grp * g.coutG
				dst := out[(n*g.cout+first)*spatial : (n*g.cout+first+g.coutG)*spatial]
				if bias != nil {
					for oc := range g.coutG {
						row := dst[oc*spatial : (oc+1)*spatial]
						for p := range row {
							row[p] = bias[first+oc]
						}
					}
				}
				gemmNT(g.coutG, spatial, g.col, weight[first*g.col:(first+g.coutG)*g.col], colBuf, dst)
			}
		}
	}, cfg)
}

// gemmNT computes c += a * bᵀ for row-major a [m,k], b [n,k] and c [m,n].
func gemmNT[T float32 | float64](m, n, k int, a, b, c []T) {
	switch a := any(a).(type) {
	case []float32:
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
			blas32.General{Rows: n, Cols: k, Stride: k, Data: any(b).([]float32)},
			1, blas32.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(blas.NoTrans, blas.Trans, 1,
			blas64.General{Rows: m, Cols: k, Stride: k, Data: a},
			blas64.General{Rows: n, Cols: k, Stride: k, Data: any(b).([]float64)},
			1, blas64.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float64)})
	}
}

// im2col transforms the group's channels of one image into patch rows.
//
// Each row of colBuf corresponds to one output position.
// Each column corresponds to one kernel weight.
func im2col[T ~float32 | ~float64](colBuf, image []T, g *convGeometry) {
	row := 0
	for outH := 0; outH < g.oh; outH++ {
		for outW := 0; outW < g.ow; outW++ {
			// Top-left corner in input space
			hStart := outH*g.sH - g.pH
			wStart := outW*g.sW - g.pW

			bufIdx := row * g.col
			for c := 0; c < g.cinG; c++ {
				plane := image[c*g.h*g.w:]
				for kh := 0; kh < g.kh; kh++ {
					h := hStart + kh*g.dH
					for kw := 0; kw < g.kw; kw++ {
						w := wStart + kw*g.dW
						if h >= 0 && h < g.h && w >= 0 && w < g.w {
							colBuf[bufIdx] = plane[h*g.w+w]
						} else {
							// Padding
							colBuf[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			row++
		}
	}
}
