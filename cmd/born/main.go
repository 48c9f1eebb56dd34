// Package main provides the Born CPU extension CLI.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"github.com/born-ml/cpuext/jit"
	"github.com/born-ml/cpuext/tensor"
)

const version = "v0.0.1-dev"

func usage() {
	fmt.Println("Born CPU extension - convolution fusion for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                       Show version")
	fmt.Println("  ops                           List operators the interpreter executes")
	fmt.Println("  print -in FILE                Print a graph")
	fmt.Println("  optimize -in FILE -out FILE   Prepack convolutions and apply fusions")
	fmt.Println("  demo                          Fuse and run a residual block")
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("Born CPU extension %s\n", version)
	case "ops":
		for _, k := range jit.SupportedOps() {
			fmt.Println(k)
		}
	case "print":
		err = printCmd(args)
	case "optimize":
		err = optimizeCmd(args)
	case "demo":
		err = demoCmd(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		klog.Fatalf("%s: %v", os.Args[1], err)
	}
}

func printCmd(args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	in := fs.String("in", "", "graph file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	g, err := jit.Load(*in)
	if err != nil {
		return err
	}
	fmt.Print(g)
	return nil
}

func optimizeCmd(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	in := fs.String("in", "", "input graph file")
	out := fs.String("out", "", "output graph file (default: overwrite -in)")
	eltwise := fs.Bool("eltwise", true, "fuse element-wise activations")
	add := fs.Bool("add", true, "fuse residual additions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		*out = *in
	}

	g, err := jit.Load(*in)
	if err != nil {
		return err
	}
	stats := jit.Optimize(g, jit.Config{Eltwise: *eltwise, Add: *add})
	fmt.Printf("prepacked %d convolutions\n", stats.Prepacked)
	for name, n := range stats.Fused {
		fmt.Printf("  %-22s %d\n", name, n)
	}
	return jit.Save(*out, g)
}

// demoCmd builds relu(conv2(relu(conv1(x))) + relu(conv1(x))), runs it
// before and after fusion and reports the largest difference.
func demoCmd(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	channels := fs.Int("channels", 8, "channels of the residual block")
	size := fs.Int("size", 16, "input height and width")
	seed := fs.Uint64("seed", 1, "random seed for inputs and weights")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, hw := int64(*channels), int64(*size)

	g := residualBlock(c, hw)
	fmt.Println("before:")
	fmt.Print(g)

	fused, err := jit.Unmarshal(jit.Marshal(g))
	if err != nil {
		return err
	}
	stats := jit.Optimize(fused, jit.DefaultConfig())
	fmt.Printf("\nafter (prepacked %d, fused %v):\n", stats.Prepacked, stats.Fused)
	fmt.Print(fused)

	rng := rand.New(rand.NewPCG(*seed, 0))
	inputs := make([]*tensor.RawTensor, 3)
	for i, shape := range []tensor.Shape{{1, *channels, *size, *size}, {*channels, *channels, 3, 3}, {*channels, *channels, 3, 3}} {
		values := make([]float64, shape.NumElements())
		for j := range values {
			values[j] = rng.NormFloat64() / 4
		}
		if inputs[i], err = tensor.FromFloat64(shape, tensor.Float32, tensor.Planar, values); err != nil {
			return err
		}
	}

	want, err := run(g, inputs)
	if err != nil {
		return err
	}
	got, err := run(fused, inputs)
	if err != nil {
		return err
	}
	fmt.Printf("\nmax |unfused - fused| = %g\n", floats.Distance(want, got, math.Inf(1)))
	return nil
}

func run(g *jit.Graph, inputs []*tensor.RawTensor) ([]float64, error) {
	cloned := make([]*tensor.RawTensor, len(inputs))
	for i, x := range inputs {
		cloned[i] = x.Clone()
	}
	out, err := jit.Run(g, cloned)
	if err != nil {
		return nil, err
	}
	return out[0].ToFloat64(), nil
}

func residualBlock(c, hw int64) *jit.Graph {
	g := jit.NewGraph()
	x := g.AddInput("x", jit.TensorType(1, c, hw, hw))
	w1 := g.AddInput("w1", jit.TensorType(c, c, 3, 3))
	w2 := g.AddInput("w2", jit.TensorType(c, c, 3, 3))

	conv := func(in, w *jit.Value) *jit.Value {
		return g.Insert("aten::conv2d", in, w,
			g.InsertConstant(jit.NoneValue()),
			g.InsertConstant(jit.IntListValue(1, 1)),
			g.InsertConstant(jit.IntListValue(1, 1)),
			g.InsertConstant(jit.IntListValue(1, 1)),
			g.InsertConstant(jit.IntValue(1))).Output()
	}

	h := g.Insert("aten::relu", conv(x, w1)).Output().
		SetType(jit.TensorType(1, c, hw, hw)).
		SetDebugName("h")
	sum := g.Insert("aten::add", conv(h, w2), h, g.InsertConstant(jit.IntValue(1))).Output()
	g.RegisterOutput(g.Insert("aten::relu_", sum).Output().SetDebugName("y"))
	return g
}
