// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package jit provides the convolution fusion passes of the Born CPU
// extension and an interpreter to run the rewritten graphs.
//
// Graphs are TorchScript-style SSA graphs: nodes carry an operator kind such
// as "aten::conv2d", consume and produce values, and may own nested blocks
// (prim::If). The passes rewrite convolutions into a prepack node, which
// holds weights and hyper-parameters, plus a run node, then fold trailing
// element-wise operators and residual additions into fused run kinds.
//
// # Example Usage
//
//	import "github.com/born-ml/cpuext/jit"
//
//	g, err := jit.Load("resblock.graph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats := jit.Optimize(g, jit.DefaultConfig())
//	fmt.Println(stats.Fused["conv_add_relu"], g)
//
//	outputs, err := jit.Run(g, []*tensor.RawTensor{x, w})
//
// # Fusions
//
//   - Element-wise: relu, sigmoid, hardtanh, elu, swish (x*sigmoid(x)), silu
//   - Residual: add (either operand order) and add followed by relu
//
// In-place variants (relu_, add_, ...) are matched as well. Residual
// fusions write into the accumulator tensor and are only applied when
// nothing reads the accumulator afterwards.
package jit

import (
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/cpuext/internal/jit/eval"
	"github.com/born-ml/cpuext/internal/jit/ir"
	"github.com/born-ml/cpuext/internal/jit/passes"
	"github.com/born-ml/cpuext/internal/tensor"
)

// Graph is an SSA graph of operator nodes.
type Graph = ir.Graph

// Value is an SSA value produced by a node or a block parameter.
type Value = ir.Value

// Node is a single operator application.
type Node = ir.Node

// Kind is an operator symbol such as "aten::relu".
type Kind = ir.Kind

// Type is the static type of a value.
type Type = ir.Type

// IValue is a constant operand: int, float, bool, int list, None or tensor.
type IValue = ir.IValue

// TensorType returns a tensor type with concrete sizes; pass no sizes for a
// zero-dimensional tensor and use UnknownTensorType when sizes are unknown.
func TensorType(sizes ...int64) Type { return ir.TensorType(sizes...) }

// UnknownTensorType returns a tensor type without size information.
func UnknownTensorType() Type { return ir.UnknownTensorType() }

// IntValue returns an int constant for Graph.InsertConstant.
func IntValue(v int64) IValue { return ir.IntValue(v) }

// FloatValue returns a float constant.
func FloatValue(v float64) IValue { return ir.FloatValue(v) }

// BoolValue returns a bool constant.
func BoolValue(v bool) IValue { return ir.BoolValue(v) }

// IntListValue returns an int[] constant such as a stride or padding.
func IntListValue(v ...int64) IValue { return ir.IntListValue(v...) }

// NoneValue returns the None constant, used for an absent bias.
func NoneValue() IValue { return ir.NoneValue() }

// TensorValue returns a tensor constant. The interpreter copies it on every run.
func TensorValue(t *tensor.RawTensor) IValue { return ir.TensorValue(t) }

// Config selects the fusion families Optimize applies.
type Config = passes.Config

// Stats reports what Optimize rewrote.
type Stats = passes.Stats

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return ir.NewGraph()
}

// DefaultConfig enables every fusion.
func DefaultConfig() Config {
	return passes.DefaultConfig()
}

// InsertPrepackedConv2d replaces every convolution in g with a prepack and
// run pair and returns the number replaced.
func InsertPrepackedConv2d(g *Graph) int {
	return passes.InsertPrepackedConv2d(g)
}

// ApplyFusions folds element-wise and residual operators following a
// prepacked run. It returns the number of rewrites per fusion name.
func ApplyFusions(g *Graph, cfg Config) map[string]int {
	return passes.ApplyFusions(g, cfg)
}

// Optimize prepacks convolutions and applies the fusions enabled by cfg.
func Optimize(g *Graph, cfg Config) Stats {
	return passes.Optimize(g, cfg)
}

// Run executes g on the CPU backend.
func Run(g *Graph, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return eval.Run(g, inputs)
}

// SupportedOps returns the operator kinds Run can execute, sorted.
func SupportedOps() []Kind {
	return eval.NewRegistry().SupportedOps()
}

// Marshal encodes g in the binary graph format.
func Marshal(g *Graph) []byte {
	return ir.Marshal(g)
}

// Unmarshal decodes a graph produced by Marshal.
func Unmarshal(data []byte) (*Graph, error) {
	return ir.Unmarshal(data)
}

// Load reads a graph file written by Save.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read graph")
	}
	g, err := ir.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return g, nil
}

// Save writes g to path in the binary graph format.
func Save(path string, g *Graph) error {
	return errors.Wrap(os.WriteFile(path, ir.Marshal(g), 0o644), "write graph")
}
