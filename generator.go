package stackgan

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ConditionalGenerator Differentiable function from (embedding, noise-or-image) to (image, mean_logsigma).
// Both generator stages satisfy it, so a composition could be written once against it.
type ConditionalGenerator interface {
	// Fwd Builds one application of the generator. Images are (N, H, W, 3), mean_logsigma is (N, 2*condition_dim)
	Fwd(embedding, input *gorgonia.Node) (image, meanLogSigma *gorgonia.Node, err error)
	// Learnables Nodes which should receive gradients when the generator is trained through a graph
	Learnables() gorgonia.Nodes
	// Resample Draws fresh conditioning noise for every application built so far
	Resample(rng *rand.Rand) error
}

// FrozenGenerator Wraps generator and hides its learnables, effectively freezing the parameters
// for graphs built through the wrapper. The wrapped generator keeps its own learnables.
type FrozenGenerator struct {
	ConditionalGenerator
}

// Learnables Frozen view reports nothing to train
func (f FrozenGenerator) Learnables() gorgonia.Nodes { return nil }

// Stage1Generator (embedding, noise) => (64x64 image, mean_logsigma)
type Stage1Generator struct {
	name       string
	cfg        Config
	ca         *ConditioningAugmentation
	projection *Network
	upsampler  *Network
	learnables gorgonia.Nodes
}

// NewStage1Generator Defines stage-1 generator on the graph
func NewStage1Generator(g *gorgonia.ExprGraph, cfg Config) (*Stage1Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Stage1Generator]")
	}
	return newStage1Generator(newParamBuilder(g), "stage1", cfg)
}

func newStage1Generator(pb *paramBuilder, name string, cfg Config) (*Stage1Generator, error) {
	gf := cfg.Stage1Filters
	eps := cfg.NormEpsilon
	net := &Stage1Generator{
		name: name,
		cfg:  cfg,
		ca:   newConditioningAugmentation(pb, name+"_ca", cfg.EmbeddingDim, cfg.ConditionDim, cfg.LeakySlope),
		projection: &Network{
			Name:   name + "_projection",
			Layers: []*Layer{pb.dense(name+"_projection", cfg.ConditionDim+cfg.NoiseDim, 4*4*8*gf, Rectify)},
		},
	}
	layers := []*Layer{{Type: LayerReshape, ReshapeDims: []int{8 * gf, 4, 4}}}
	layers = append(layers, upsampleStages(pb, name, 8*gf, []int{4 * gf, 2 * gf, gf, gf / 2}, eps)...)
	layers = append(layers, pb.conv(name+"_rgb", gf/2, ImageChannels, 3, 1, 1, false, eps, Tanh))
	net.upsampler = &Network{Name: name + "_upsampler", Layers: layers}
	if pb.err != nil {
		return nil, errors.Wrap(pb.err, "[Stage1Generator]")
	}
	net.learnables = pb.learnables
	return net, nil
}

// Share Defines the same generator on another graph. Nodes are new, parameter values are shared by reference.
func (net *Stage1Generator) Share(g *gorgonia.ExprGraph) (*Stage1Generator, error) {
	return newStage1Generator(newSharedParamBuilder(g, net.learnables), net.name, net.cfg)
}

// Learnables Returns learnables nodes
func (net *Stage1Generator) Learnables() gorgonia.Nodes {
	return net.learnables
}

// Frozen Returns view of the generator which reports no learnables
func (net *Stage1Generator) Frozen() ConditionalGenerator {
	return FrozenGenerator{net}
}

// Resample Draws fresh conditioning noise
func (net *Stage1Generator) Resample(rng *rand.Rand) error {
	if net.ca == nil {
		return errors.Wrap(ErrUninitialized, "[Stage1Generator]")
	}
	return net.ca.Resample(rng)
}

// Fwd Initializates feedforward for (N, embedding_dim) embedding and (N, noise_dim) noise.
// Returns (N, 64, 64, 3) image in [-1, 1] and (N, 2*condition_dim) mean_logsigma.
func (net *Stage1Generator) Fwd(embedding, noise *gorgonia.Node) (*gorgonia.Node, *gorgonia.Node, error) {
	if net.ca == nil || net.projection == nil || net.upsampler == nil {
		return nil, nil, errors.Wrap(ErrUninitialized, "[Stage1Generator]")
	}
	if err := checkTrailing("Stage1Generator", embedding.Shape(), 2, -1, net.cfg.EmbeddingDim); err != nil {
		return nil, nil, err
	}
	if err := checkTrailing("Stage1Generator", noise.Shape(), 2, -1, net.cfg.NoiseDim); err != nil {
		return nil, nil, err
	}
	if err := checkBatch("Stage1Generator", embedding.Shape(), noise.Shape()); err != nil {
		return nil, nil, err
	}
	cond, err := net.ca.Fwd(embedding)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage1Generator] Can't apply conditioning augmentation")
	}
	z, err := gorgonia.Concat(1, cond.C, noise)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage1Generator] Can't concatenate condition and noise")
	}
	h, err := net.projection.Fwd(z)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage1Generator]")
	}
	img, err := net.upsampler.Fwd(h)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage1Generator]")
	}
	img, err = toChannelsLast(img)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage1Generator] Can't transpose image")
	}
	gorgonia.WithName(net.name + "_image")(img)
	return img, cond.MeanLogSigma, nil
}

// Stage2Generator (embedding, 64x64 image) => (256x256 image, mean_logsigma)
//
// ca - own conditioning augmentation, never shared with stage 1
// encoder - 64x64 image => 16x16 feature map
// joint - convolution over fused (features, condition) map
// residuals - channel preserving refinement
// upsampler - 16x16 => 256x256 RGB
//
type Stage2Generator struct {
	name       string
	cfg        Config
	ca         *ConditioningAugmentation
	encoder    *Network
	joint      *Network
	residuals  []*ResidualBlock
	upsampler  *Network
	learnables gorgonia.Nodes
}

// NewStage2Generator Defines stage-2 generator on the graph
func NewStage2Generator(g *gorgonia.ExprGraph, cfg Config) (*Stage2Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Stage2Generator]")
	}
	return newStage2Generator(newParamBuilder(g), "stage2", cfg)
}

func newStage2Generator(pb *paramBuilder, name string, cfg Config) (*Stage2Generator, error) {
	gf := cfg.Stage2Filters
	eps := cfg.NormEpsilon
	net := &Stage2Generator{
		name: name,
		cfg:  cfg,
		ca:   newConditioningAugmentation(pb, name+"_ca", cfg.EmbeddingDim, cfg.ConditionDim, cfg.LeakySlope),
		encoder: &Network{
			Name: name + "_encoder",
			Layers: []*Layer{
				pb.conv(name+"_encoder0", ImageChannels, gf, 3, 1, 1, false, eps, Rectify),
				pb.conv(name+"_encoder1", gf, 2*gf, 4, 2, 1, true, eps, Rectify),
				pb.conv(name+"_encoder2", 2*gf, 4*gf, 4, 2, 1, true, eps, Rectify),
			},
		},
		joint: &Network{
			Name:   name + "_joint",
			Layers: []*Layer{pb.conv(name+"_joint", 4*gf+cfg.ConditionDim, 4*gf, 3, 1, 1, true, eps, Rectify)},
		},
	}
	for i := 0; i < cfg.ResidualBlocks; i++ {
		net.residuals = append(net.residuals, newResidualBlock(pb, fmt.Sprintf("%s_residual%d", name, i), 4*gf, eps))
	}
	layers := upsampleStages(pb, name, 4*gf, []int{4 * gf, 2 * gf, gf, gf / 2}, eps)
	layers = append(layers, pb.conv(name+"_rgb", gf/2, ImageChannels, 3, 1, 1, false, eps, Tanh))
	net.upsampler = &Network{Name: name + "_upsampler", Layers: layers}
	if pb.err != nil {
		return nil, errors.Wrap(pb.err, "[Stage2Generator]")
	}
	net.learnables = pb.learnables
	return net, nil
}

// Share Defines the same generator on another graph. Nodes are new, parameter values are shared by reference.
func (net *Stage2Generator) Share(g *gorgonia.ExprGraph) (*Stage2Generator, error) {
	return newStage2Generator(newSharedParamBuilder(g, net.learnables), net.name, net.cfg)
}

// Learnables Returns learnables nodes
func (net *Stage2Generator) Learnables() gorgonia.Nodes {
	return net.learnables
}

// Frozen Returns view of the generator which reports no learnables
func (net *Stage2Generator) Frozen() ConditionalGenerator {
	return FrozenGenerator{net}
}

// Resample Draws fresh conditioning noise
func (net *Stage2Generator) Resample(rng *rand.Rand) error {
	if net.ca == nil {
		return errors.Wrap(ErrUninitialized, "[Stage2Generator]")
	}
	return net.ca.Resample(rng)
}

// Fwd Initializates feedforward for (N, embedding_dim) embedding and (N, 64, 64, 3) low resolution image.
// Returns (N, 256, 256, 3) image in [-1, 1] and (N, 2*condition_dim) mean_logsigma.
func (net *Stage2Generator) Fwd(embedding, lowRes *gorgonia.Node) (*gorgonia.Node, *gorgonia.Node, error) {
	if net.ca == nil || net.encoder == nil || net.joint == nil || net.upsampler == nil {
		return nil, nil, errors.Wrap(ErrUninitialized, "[Stage2Generator]")
	}
	if err := checkTrailing("Stage2Generator", embedding.Shape(), 2, -1, net.cfg.EmbeddingDim); err != nil {
		return nil, nil, err
	}
	if err := checkTrailing("Stage2Generator", lowRes.Shape(), 4, -1, LowResolution, LowResolution, ImageChannels); err != nil {
		return nil, nil, err
	}
	if err := checkBatch("Stage2Generator", embedding.Shape(), lowRes.Shape()); err != nil {
		return nil, nil, err
	}
	cond, err := net.ca.Fwd(embedding)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator] Can't apply conditioning augmentation")
	}
	x, err := toChannelsFirst(lowRes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator] Can't transpose image")
	}
	x, err = net.encoder.Fwd(x)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator]")
	}
	x, err = fuseChannelsFirst(cond.C, x)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator]")
	}
	x, err = net.joint.Fwd(x)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator]")
	}
	for i, block := range net.residuals {
		x, err = block.Fwd(x)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("[Stage2Generator] residual block #%d", i))
		}
	}
	x, err = net.upsampler.Fwd(x)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator]")
	}
	x, err = toChannelsLast(x)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Stage2Generator] Can't transpose image")
	}
	gorgonia.WithName(net.name + "_image")(x)
	return x, cond.MeanLogSigma, nil
}

// upsampleStages Nearest x2 upsampling followed by conv3x3-BN-ReLU for every width
func upsampleStages(pb *paramBuilder, name string, in int, widths []int, eps float64) []*Layer {
	layers := make([]*Layer, 0, 2*len(widths))
	for i, width := range widths {
		layers = append(layers,
			&Layer{Type: LayerUpsample, Scale: 2, Activation: NoActivation},
			pb.conv(fmt.Sprintf("%s_up%d", name, i), in, width, 3, 1, 1, true, eps, Rectify),
		)
		in = width
	}
	return layers
}
