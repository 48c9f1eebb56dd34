package ir

// Kind is an operator symbol such as "aten::conv2d".
type Kind string

// Structural kinds.
const (
	Param         Kind = "prim::Param"
	Return        Kind = "prim::Return"
	Constant      Kind = "prim::Constant"
	ListConstruct Kind = "prim::ListConstruct"
	If            Kind = "prim::If"
	Print         Kind = "prim::Print"
	RaiseExc      Kind = "prim::RaiseException"
)

// Operator kinds understood by the rewriter and the interpreter. In-place
// variants carry a trailing underscore.
const (
	Conv2d             Kind = "aten::conv2d"
	ConvolutionForward Kind = "torch_ipex::convolution_forward"
	Relu               Kind = "aten::relu"
	ReluInplace        Kind = "aten::relu_"
	Sigmoid            Kind = "aten::sigmoid"
	SigmoidInplace     Kind = "aten::sigmoid_"
	Hardtanh           Kind = "aten::hardtanh"
	HardtanhInplace    Kind = "aten::hardtanh_"
	Elu                Kind = "aten::elu"
	EluInplace         Kind = "aten::elu_"
	Silu               Kind = "aten::silu"
	SiluInplace        Kind = "aten::silu_"
	Mul                Kind = "aten::mul"
	MulInplace         Kind = "aten::mul_"
	Add                Kind = "aten::add"
	AddInplace         Kind = "aten::add_"
	AvgPool2d          Kind = "aten::avg_pool2d"
	PixelShuffle       Kind = "aten::pixel_shuffle"
	PixelUnshuffle     Kind = "aten::pixel_unshuffle"
)

// Prepacked convolution kinds.
const (
	ConvPrepack     Kind = "ipex_prepack::convolution_prepack"
	ConvRun         Kind = "ipex_prepack::convolution_run"
	ConvReluRun     Kind = "ipex_prepack::convolution_relu_run"
	ConvSigmoidRun  Kind = "ipex_prepack::convolution_sigmoid_run"
	ConvHardtanhRun Kind = "ipex_prepack::convolution_hardtanh_run"
	ConvEluRun      Kind = "ipex_prepack::convolution_elu_run"
	ConvSwishRun    Kind = "ipex_prepack::convolution_swish_run"
	ConvAddRun      Kind = "ipex_prepack::convolution_add_run"
	ConvAddReluRun  Kind = "ipex_prepack::convolution_add_relu_run"
)

// ConvContextClass is the type of the packed-weight value produced by ConvPrepack.
const ConvContextClass = "__torch__.torch.classes.ipex_prepack.ConvolutionOpContext"

// IsInplace reports whether the kind mutates its first input.
func (k Kind) IsInplace() bool {
	return len(k) > 1 && k[len(k)-1] == '_' && k[len(k)-2] != '_'
}

// hasSideEffects reports whether a node of this kind must survive dead code
// elimination even when its outputs are unused.
func (k Kind) hasSideEffects() bool {
	switch k {
	case Print, RaiseExc, Return, Param, ConvAddRun, ConvAddReluRun:
		return true
	}
	return k.IsInplace()
}
