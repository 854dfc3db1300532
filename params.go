package stackgan

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// paramBuilder Creates learnable nodes for a model.
//
// g - graph which will own the nodes
// shared - if not nil, nodes are bound to the values of these nodes (looked up by name) instead of being initialized.
// This is how one parameter set is used by several graphs: values are shared by reference, nodes are not.
// learnables - every node created so far, in creation order
//
type paramBuilder struct {
	g          *gorgonia.ExprGraph
	shared     map[string]*gorgonia.Node
	learnables gorgonia.Nodes
	err        error
}

func newParamBuilder(g *gorgonia.ExprGraph) *paramBuilder {
	return &paramBuilder{g: g}
}

func newSharedParamBuilder(g *gorgonia.ExprGraph, source gorgonia.Nodes) *paramBuilder {
	shared := make(map[string]*gorgonia.Node, len(source))
	for _, n := range source {
		shared[n.Name()] = n
	}
	return &paramBuilder{g: g, shared: shared}
}

func (pb *paramBuilder) node(name string, init gorgonia.InitWFn, shape ...int) *gorgonia.Node {
	var n *gorgonia.Node
	if pb.shared == nil {
		n = gorgonia.NewTensor(pb.g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithInit(init))
	} else {
		src, ok := pb.shared[name]
		if !ok {
			if pb.err == nil {
				pb.err = errors.Errorf("Can't share parameter '%s': source model has no such node", name)
			}
			return nil
		}
		if !src.Shape().Eq(tensor.Shape(shape)) {
			if pb.err == nil {
				pb.err = errors.Errorf("Can't share parameter '%s': shape %v differs from %v", name, src.Shape(), tensor.Shape(shape))
			}
			return nil
		}
		n = gorgonia.NewTensor(pb.g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(src.Value()))
	}
	pb.learnables = append(pb.learnables, n)
	return n
}

func (pb *paramBuilder) dense(name string, in, out int, activation ActivationFunc) *Layer {
	return &Layer{
		WeightNode: pb.node(name+"_w", gorgonia.GlorotN(1.0), out, in),
		BiasNode:   pb.node(name+"_b", gorgonia.Zeroes(), 1, out),
		Type:       LayerLinear,
		Activation: activation,
	}
}

// conv Convolution with "same"-style symmetric padding. There is no bias: every convolution either feeds a batch norm or a saturating output.
func (pb *paramBuilder) conv(name string, in, out, kernel, stride, padding int, norm bool, eps float64, activation ActivationFunc) *Layer {
	l := &Layer{
		WeightNode:   pb.node(name+"_w", gorgonia.GlorotN(1.0), out, in, kernel, kernel),
		Type:         LayerConvolutional,
		Activation:   activation,
		KernelHeight: kernel,
		KernelWidth:  kernel,
		Padding:      []int{padding, padding},
		Stride:       []int{stride, stride},
		Dilation:     []int{1, 1},
	}
	if norm {
		l.Norm = pb.batchNorm(name+"_bn", out, eps)
	}
	return l
}

func (pb *paramBuilder) batchNorm(name string, channels int, eps float64) *BatchNorm {
	return &BatchNorm{
		Gamma:   pb.node(name+"_gamma", gorgonia.Ones(), channels, 1),
		Beta:    pb.node(name+"_beta", gorgonia.Zeroes(), channels, 1),
		Epsilon: eps,
	}
}

var auxCounter uint64

// auxName Unique name for non-learnable helper inputs (noise, ones, constants).
// Input nodes are deduplicated by name in a graph, so every helper gets its own.
func auxName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, atomic.AddUint64(&auxCounter, 1))
}

// onesRow Constant (1, n) matrix used to broadcast columns through matrix multiplication.
func onesRow(g *gorgonia.ExprGraph, n int) *gorgonia.Node {
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, n), gorgonia.WithName(auxName("ones")), gorgonia.WithInit(gorgonia.Ones()))
}

func scalar(g *gorgonia.ExprGraph, prefix string, v float64) *gorgonia.Node {
	return gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName(auxName(prefix)), gorgonia.WithValue(v))
}
