package cpu

import (
	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// Mul computes a * b element-wise. Shapes, dtypes and layouts must match;
// there is no broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	return cpu.binary("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// AddScaled computes a + alpha*b element-wise, the semantics of a scaled
// residual add.
func (cpu *CPUBackend) AddScaled(a, b *tensor.RawTensor, alpha float64) (*tensor.RawTensor, error) {
	return cpu.binary("add", a, b,
		func(x, y float32) float32 { return x + float32(alpha)*y },
		func(x, y float64) float64 { return x + alpha*y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f32 func(x, y float32) float32, f64 func(x, y float64) float64) (*tensor.RawTensor, error) {
	if err := checkLayout(op, a); err != nil {
		return nil, err
	}
	if !a.Shape().Equal(b.Shape()) {
		return nil, invalidf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape())
	}
	if a.DType() != b.DType() {
		return nil, invalidf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType())
	}
	if a.Layout() != b.Layout() {
		return nil, invalidf("%s: layout mismatch %s vs %s", op, a.Layout(), b.Layout())
	}

	result, err := tensor.NewRaw(a.Shape(), a.DType(), a.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create result tensor: %v", op, err)
	}
	if result.NumElements() == 0 {
		return result, nil
	}

	switch a.DType() {
	case tensor.Float32:
		zipElements(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), f32, cpu.cfg)
	case tensor.Float64:
		zipElements(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), f64, cpu.cfg)
	default:
		return nil, invalidf("%s: unsupported dtype %s (only float32/float64 supported)", op, a.DType())
	}
	return result, nil
}

func zipElements[T float](dst, a, b []T, f func(x, y T) T, cfg parallel.Config) {
	parallel.ForRange(len(dst), 0, func(begin, end int) {
		for i := begin; i < end; i++ {
			dst[i] = f(a[i], b[i])
		}
	}, cfg)
}
