package stackgan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+Normalization+ActivationFunction combo
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Norm       *BatchNorm
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	// ReshapeDims Target dimensions without the batch axis
	ReshapeDims []int
	// Scale Upsampling factor
	Scale int
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerReshape
	LayerUpsample
)

var (
	allowedNoWeights = []LayerType{LayerFlatten, LayerReshape, LayerUpsample}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Feedforward input through the layer (normalization included, activation excluded)
func (l *Layer) Fwd(input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, errors.Wrap(ErrUninitialized, "WeightNode is nil")
	}
	batchSize := input.Shape()[0]
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
		if l.BiasNode != nil {
			if batchSize < 2 {
				out, err = gorgonia.Add(out, l.BiasNode)
				if err != nil {
					return nil, errors.Wrap(err, "Can't add bias")
				}
			} else {
				out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
				if err != nil {
					return nil, errors.Wrap(err, fmt.Sprintf("Can't add bias [in broadcast term with batch_size = %d]", batchSize))
				}
			}
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		out, err = gorgonia.Reshape(input, append(tensor.Shape{batchSize}, l.ReshapeDims...))
		if err != nil {
			return nil, errors.Wrap(err, "Can't reshape input")
		}
	case LayerUpsample:
		out, err = gorgonia.Upsample2D(input, l.Scale)
		if err != nil {
			return nil, errors.Wrap(err, "Can't upsample[2D] input")
		}
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
	if l.Norm != nil {
		out, err = l.Norm.Fwd(out)
		if err != nil {
			return nil, errors.Wrap(err, "Can't normalize output")
		}
	}
	return out, nil
}

// Learnables Returns learnables nodes
func (l *Layer) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 4)
	if l.WeightNode != nil {
		learnables = append(learnables, l.WeightNode)
	}
	if l.BiasNode != nil {
		learnables = append(learnables, l.BiasNode)
	}
	if l.Norm != nil {
		learnables = append(learnables, l.Norm.Gamma, l.Norm.Beta)
	}
	return learnables
}

// BatchNorm Normalizes every channel of (N, C, H, W) node over batch and spatial axes, then scales and shifts it.
// Statistics are always computed from the current batch.
//
// Gamma - (C, 1) scale
// Beta - (C, 1) shift
//
type BatchNorm struct {
	Gamma   *gorgonia.Node
	Beta    *gorgonia.Node
	Epsilon float64
}

// Fwd Initializates normalization for provided input
func (bn *BatchNorm) Fwd(x *gorgonia.Node) (*gorgonia.Node, error) {
	if bn.Gamma == nil || bn.Beta == nil {
		return nil, errors.Wrap(ErrUninitialized, "BatchNorm")
	}
	if err := checkTrailing("BatchNorm", x.Shape(), 4, -1, bn.Gamma.Shape()[0], -1, -1); err != nil {
		return nil, err
	}
	shp := x.Shape().Clone()
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]
	m := n * h * w
	g := x.Graph()

	// (N, C, H, W) => (C, N*H*W): one row per channel
	rows := x
	var err error
	if n > 1 {
		rows, err = gorgonia.Transpose(x, 1, 0, 2, 3)
		if err != nil {
			return nil, errors.Wrap(err, "Can't move channels to the first axis")
		}
	}
	rows, err = gorgonia.Reshape(rows, tensor.Shape{c, m})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input into channel rows")
	}

	ones := onesRow(g, m)
	spread := func(col *gorgonia.Node) (*gorgonia.Node, error) {
		if col.Dims() == 1 {
			col, err = gorgonia.Reshape(col, tensor.Shape{c, 1})
			if err != nil {
				return nil, err
			}
		}
		return gorgonia.Mul(col, ones)
	}

	mean, err := gorgonia.Mean(rows, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x)")
	}
	meanRows, err := spread(mean)
	if err != nil {
		return nil, errors.Wrap(err, "Can't broadcast mean")
	}
	centered, err := gorgonia.Sub(rows, meanRows)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mean)")
	}
	sqr, err := gorgonia.Square(centered)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	variance, err := gorgonia.Mean(sqr, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x^2)")
	}
	variance, err = gorgonia.Add(variance, scalar(g, "bn_eps", bn.Epsilon))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (var+eps)")
	}
	invStd, err := gorgonia.InverseSqrt(variance)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do 1/√x")
	}
	invStdRows, err := spread(invStd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't broadcast 1/std")
	}
	normed, err := gorgonia.HadamardProd(centered, invStdRows)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*y)")
	}
	gammaRows, err := spread(bn.Gamma)
	if err != nil {
		return nil, errors.Wrap(err, "Can't broadcast gamma")
	}
	betaRows, err := spread(bn.Beta)
	if err != nil {
		return nil, errors.Wrap(err, "Can't broadcast beta")
	}
	scaled, err := gorgonia.HadamardProd(normed, gammaRows)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*gamma)")
	}
	out, err := gorgonia.Add(scaled, betaRows)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+beta)")
	}

	// (C, N*H*W) => (N, C, H, W)
	if n == 1 {
		return gorgonia.Reshape(out, shp)
	}
	out, err = gorgonia.Reshape(out, tensor.Shape{c, n, h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape channel rows")
	}
	return gorgonia.Transpose(out, 1, 0, 2, 3)
}

// tile Repeats every row of (N, D) node at each position of (h, w) grid: (N, D) => (N, D, h, w).
// Values are copied exactly (outer product with a row of ones), nothing is interpolated.
func tile(v *gorgonia.Node, h, w int) (*gorgonia.Node, error) {
	if v.Dims() != 2 {
		return nil, &ShapeError{Op: "tile", Expected: []int{-1, -1}, Actual: v.Shape().Clone()}
	}
	n, d := v.Shape()[0], v.Shape()[1]
	col, err := gorgonia.Reshape(v, tensor.Shape{n * d, 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't expand vector")
	}
	grid, err := gorgonia.Mul(col, onesRow(v.Graph(), h*w))
	if err != nil {
		return nil, errors.Wrap(err, "Can't repeat vector over grid")
	}
	return gorgonia.Reshape(grid, tensor.Shape{n, d, h, w})
}

// toChannelsFirst (N, H, W, C) => (N, C, H, W)
func toChannelsFirst(x *gorgonia.Node) (*gorgonia.Node, error) {
	return gorgonia.Transpose(x, 0, 3, 1, 2)
}

// toChannelsLast (N, C, H, W) => (N, H, W, C)
func toChannelsLast(x *gorgonia.Node) (*gorgonia.Node, error) {
	return gorgonia.Transpose(x, 0, 2, 3, 1)
}
