package stackgan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ConditionalDiscriminator Differentiable function from (image, embedding) to probability that the pair is real and matching.
type ConditionalDiscriminator interface {
	// Fwd Builds one application of the discriminator: (N, H, W, 3) image and (N, embedding_dim) embedding => (N, 1) score in (0, 1)
	Fwd(image, embedding *gorgonia.Node) (*gorgonia.Node, error)
	// Learnables Nodes which should receive gradients when the discriminator is trained through a graph
	Learnables() gorgonia.Nodes
}

// FrozenDiscriminator Wraps discriminator and hides its learnables, effectively freezing the parameters
// for graphs built through the wrapper.
type FrozenDiscriminator struct {
	ConditionalDiscriminator
}

// Learnables Frozen view reports nothing to train
func (f FrozenDiscriminator) Learnables() gorgonia.Nodes { return nil }

// Stage2Discriminator Scores (256x256 image, embedding) pairs.
//
// downsampler - 256x256 => 4x4 feature map
// text - embedding compression, tiled over the 4x4 grid
// joint - fused map => probability
//
type Stage2Discriminator struct {
	name        string
	cfg         Config
	downsampler *Network
	text        *Network
	joint       *Network
	learnables  gorgonia.Nodes
}

// NewStage2Discriminator Defines discriminator on the graph
func NewStage2Discriminator(g *gorgonia.ExprGraph, cfg Config) (*Stage2Discriminator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator]")
	}
	return newStage2Discriminator(newParamBuilder(g), "disc", cfg)
}

func newStage2Discriminator(pb *paramBuilder, name string, cfg Config) (*Stage2Discriminator, error) {
	df := cfg.DiscriminatorFilters
	eps := cfg.NormEpsilon
	leaky := LeakyRectify(cfg.LeakySlope)

	widths := []int{df, 2 * df, 4 * df, 8 * df, 16 * df, 32 * df}
	layers := make([]*Layer, 0, len(widths)+2)
	in := ImageChannels
	for i, width := range widths {
		layers = append(layers, pb.conv(fmt.Sprintf("%s_down%d", name, i), in, width, 4, 2, 1, i > 0, eps, leaky))
		in = width
	}
	layers = append(layers,
		pb.conv(name+"_squeeze0", 32*df, 16*df, 1, 1, 0, true, eps, leaky),
		pb.conv(name+"_squeeze1", 16*df, 8*df, 1, 1, 0, true, eps, leaky),
	)
	net := &Stage2Discriminator{
		name:        name,
		cfg:         cfg,
		downsampler: &Network{Name: name + "_downsampler", Layers: layers},
		text: &Network{
			Name:   name + "_text",
			Layers: []*Layer{pb.dense(name+"_text", cfg.EmbeddingDim, cfg.CompressedEmbeddingDim, Rectify)},
		},
		joint: &Network{
			Name: name + "_joint",
			Layers: []*Layer{
				pb.conv(name+"_joint", 8*df+cfg.CompressedEmbeddingDim, 8*df, 1, 1, 0, true, eps, leaky),
				{Type: LayerFlatten, Activation: NoActivation},
				pb.dense(name+"_score", 8*df*discriminatorGrid*discriminatorGrid, 1, Sigmoid),
			},
		},
	}
	if pb.err != nil {
		return nil, errors.Wrap(pb.err, "[Stage2Discriminator]")
	}
	net.learnables = pb.learnables
	return net, nil
}

// discriminatorGrid Side of the feature map left after six stride-2 convolutions of 256x256 image
const discriminatorGrid = HighResolution / 64

// Share Defines the same discriminator on another graph. Nodes are new, parameter values are shared by reference.
func (net *Stage2Discriminator) Share(g *gorgonia.ExprGraph) (*Stage2Discriminator, error) {
	return newStage2Discriminator(newSharedParamBuilder(g, net.learnables), net.name, net.cfg)
}

// Learnables Returns learnables nodes
func (net *Stage2Discriminator) Learnables() gorgonia.Nodes {
	return net.learnables
}

// Frozen Returns view of the discriminator which reports no learnables
func (net *Stage2Discriminator) Frozen() ConditionalDiscriminator {
	return FrozenDiscriminator{net}
}

// Fwd Initializates feedforward for (N, 256, 256, 3) image and (N, embedding_dim) embedding. Returns (N, 1) scores.
func (net *Stage2Discriminator) Fwd(image, embedding *gorgonia.Node) (*gorgonia.Node, error) {
	if net.downsampler == nil || net.text == nil || net.joint == nil {
		return nil, errors.Wrap(ErrUninitialized, "[Stage2Discriminator]")
	}
	if err := checkTrailing("Stage2Discriminator", image.Shape(), 4, -1, HighResolution, HighResolution, ImageChannels); err != nil {
		return nil, err
	}
	if err := checkTrailing("Stage2Discriminator", embedding.Shape(), 2, -1, net.cfg.EmbeddingDim); err != nil {
		return nil, err
	}
	if err := checkBatch("Stage2Discriminator", image.Shape(), embedding.Shape()); err != nil {
		return nil, err
	}
	x, err := toChannelsFirst(image)
	if err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator] Can't transpose image")
	}
	x, err = net.downsampler.Fwd(x)
	if err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator]")
	}
	t, err := net.text.Fwd(embedding)
	if err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator]")
	}
	x, err = fuseChannelsFirst(t, x)
	if err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator]")
	}
	score, err := net.joint.Fwd(x)
	if err != nil {
		return nil, errors.Wrap(err, "[Stage2Discriminator]")
	}
	return score, nil
}
