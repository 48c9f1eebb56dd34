package cpu

import (
	"math"

	"github.com/born-ml/cpuext/internal/parallel"
	"github.com/born-ml/cpuext/internal/tensor"
)

// float is the set of storage types the reference activations support.
type float interface {
	~float32 | ~float64
}

// ReLU computes max(x, 0) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	return cpu.unary("relu", x, relu[float32], relu[float64])
}

// Sigmoid computes 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	return cpu.unary("sigmoid", x, sigmoid[float32], sigmoid[float64])
}

// Hardtanh clamps x to [minVal, maxVal].
func (cpu *CPUBackend) Hardtanh(x *tensor.RawTensor, minVal, maxVal float64) (*tensor.RawTensor, error) {
	if minVal > maxVal {
		return nil, invalidf("hardtanh: min_val %g cannot be greater than max_val %g", minVal, maxVal)
	}
	return cpu.unary("hardtanh", x,
		func(v float32) float32 { return hardtanh(v, float32(minVal), float32(maxVal)) },
		func(v float64) float64 { return hardtanh(v, minVal, maxVal) })
}

// ELU computes scale*x for positive x and scale*alpha*(exp(x*inputScale)-1)
// otherwise.
func (cpu *CPUBackend) ELU(x *tensor.RawTensor, alpha, scale, inputScale float64) (*tensor.RawTensor, error) {
	return cpu.unary("elu", x,
		func(v float32) float32 { return elu(v, alpha, scale, inputScale) },
		func(v float64) float64 { return elu(v, alpha, scale, inputScale) })
}

// SiLU computes x * sigmoid(x). The sigmoid is rounded to the storage type
// before the product, so SiLU(x) equals Mul(x, Sigmoid(x)) bit for bit.
func (cpu *CPUBackend) SiLU(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	return cpu.unary("silu", x, silu[float32], silu[float64])
}

func relu[T float](v T) T {
	if v > 0 {
		return v
	}
	return 0
}

func sigmoid[T float](v T) T {
	return T(1 / (1 + math.Exp(-float64(v))))
}

func hardtanh[T float](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

func elu[T float](v T, alpha, scale, inputScale float64) T {
	if v > 0 {
		return T(scale * float64(v))
	}
	return T(scale * alpha * math.Expm1(float64(v)*inputScale))
}

func silu[T float](v T) T {
	return v * sigmoid(v)
}

// unary applies an element-wise function to a float tensor of any layout.
// Layout is preserved since the function does not depend on position.
func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) (*tensor.RawTensor, error) {
	if err := checkLayout(op, x); err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(x.Shape(), x.DType(), x.Layout())
	if err != nil {
		return nil, invalidf("%s: failed to create result tensor: %v", op, err)
	}
	if result.NumElements() == 0 {
		return result, nil
	}

	switch x.DType() {
	case tensor.Float32:
		mapElements(result.AsFloat32(), x.AsFloat32(), f32, cpu.cfg)
	case tensor.Float64:
		mapElements(result.AsFloat64(), x.AsFloat64(), f64, cpu.cfg)
	default:
		return nil, invalidf("%s: unsupported dtype %s (only float32/float64 supported)", op, x.DType())
	}
	return result, nil
}

func mapElements[T float](dst, src []T, f func(T) T, cfg parallel.Config) {
	parallel.ForRange(len(dst), 0, func(begin, end int) {
		for i := begin; i < end; i++ {
			dst[i] = f(src[i])
		}
	}, cfg)
}
