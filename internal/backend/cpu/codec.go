package cpu

import (
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/cpuext/internal/tensor"
)

// accumulator is the set of types sums are carried in.
type accumulator interface {
	~float32 | ~float64 | ~int64
}

// codec converts between a storage type T and its accumulation type A.
// Narrow float storage accumulates in float32 to bound rounding error.
type codec[T tensor.Element, A accumulator] struct {
	load  func(T) A
	store func(A) T
}

func same[T accumulator](v T) T { return v }

var (
	float32Codec = codec[float32, float32]{load: same[float32], store: same[float32]}
	float64Codec = codec[float64, float64]{load: same[float64], store: same[float64]}
	int64Codec   = codec[int64, int64]{load: same[int64], store: same[int64]}

	bfloat16Codec = codec[bfloat16.BFloat16, float32]{
		load:  func(v bfloat16.BFloat16) float32 { return v.Float32() },
		store: bfloat16.FromFloat32,
	}
	float16Codec = codec[float16.Float16, float32]{
		load:  func(v float16.Float16) float32 { return v.Float32() },
		store: float16.Fromfloat32,
	}
)
