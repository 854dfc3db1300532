package stackgan

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GAN Adversarial composition: stage-1 generator => stage-2 generator => discriminator.
//
// stage1 - frozen view of stage-1 generator
// stage2 - trainable stage-2 generator
// discriminator - frozen view of discriminator
//
// GAN owns no parameters. Frozen parts share nodes with the models passed to NewGAN,
// but report no learnables, so the only learnables of the composition are stage-2 ones.
type GAN struct {
	stage1        ConditionalGenerator
	stage2        ConditionalGenerator
	discriminator ConditionalDiscriminator

	out           *gorgonia.Node
	lowRes        *gorgonia.Node
	highRes       *gorgonia.Node
	meanLogSigma1 *gorgonia.Node
	meanLogSigma2 *gorgonia.Node
}

// NewGAN Composes models. Stage-1 generator and discriminator are wrapped into frozen views,
// their own Learnables() stay untouched.
func NewGAN(stage1, stage2 ConditionalGenerator, discriminator ConditionalDiscriminator) (*GAN, error) {
	if stage1 == nil || stage2 == nil || discriminator == nil {
		return nil, errors.Wrap(ErrUninitialized, "GAN needs both generators and discriminator")
	}
	return &GAN{
		stage1:        FrozenGenerator{stage1},
		stage2:        stage2,
		discriminator: FrozenDiscriminator{discriminator},
	}, nil
}

// Fwd Initializates feedforward for (N, embedding_dim) generator embedding, (N, noise_dim) noise
// and (N, embedding_dim) discriminator embedding.
//
// Both embeddings describe the same text, but stay separate inputs: every model keeps its own input slot.
func (net *GAN) Fwd(embeddingGen, noise, embeddingDisc *gorgonia.Node) error {
	if net.stage1 == nil || net.stage2 == nil || net.discriminator == nil {
		return errors.Wrap(ErrUninitialized, "[GAN]")
	}
	lowRes, meanLogSigma1, err := net.stage1.Fwd(embeddingGen, noise)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't feedforward stage-1 generator")
	}
	highRes, meanLogSigma2, err := net.stage2.Fwd(embeddingGen, lowRes)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't feedforward stage-2 generator")
	}
	out, err := net.discriminator.Fwd(highRes, embeddingDisc)
	if err != nil {
		return errors.Wrap(err, "[GAN] Can't feedforward discriminator")
	}
	gorgonia.WithName("gan_score")(out)
	net.lowRes = lowRes
	net.highRes = highRes
	net.meanLogSigma1 = meanLogSigma1
	net.meanLogSigma2 = meanLogSigma2
	net.out = out
	return nil
}

// Out Returns reference to (N, 1) discriminator score
func (net *GAN) Out() *gorgonia.Node {
	return net.out
}

// MeanLogSigma Returns reference to stage-2 conditioning parameters, needed for KL regularization
func (net *GAN) MeanLogSigma() *gorgonia.Node {
	return net.meanLogSigma2
}

// GeneratorOut Returns reference to (N, 256, 256, 3) image of stage-2 generator
func (net *GAN) GeneratorOut() *gorgonia.Node {
	return net.highRes
}

// LowResolutionOut Returns reference to (N, 64, 64, 3) image of stage-1 generator
func (net *GAN) LowResolutionOut() *gorgonia.Node {
	return net.lowRes
}

// Stage1MeanLogSigma Returns reference to stage-1 conditioning parameters
func (net *GAN) Stage1MeanLogSigma() *gorgonia.Node {
	return net.meanLogSigma1
}

// Learnables Returns learnables nodes
func (net *GAN) Learnables() gorgonia.Nodes {
	if net.stage2 == nil {
		return nil
	}
	learnables := gorgonia.Nodes{}
	learnables = append(learnables, net.stage1.Learnables()...)
	learnables = append(learnables, net.stage2.Learnables()...)
	learnables = append(learnables, net.discriminator.Learnables()...)
	return learnables
}

// Resample Draws fresh conditioning noise for both generators. Must be called before each run of the graph.
func (net *GAN) Resample(rng *rand.Rand) error {
	if net.stage1 == nil || net.stage2 == nil {
		return errors.Wrap(ErrUninitialized, "[GAN]")
	}
	if err := net.stage1.Resample(rng); err != nil {
		return errors.Wrap(err, "[GAN] stage-1")
	}
	if err := net.stage2.Resample(rng); err != nil {
		return errors.Wrap(err, "[GAN] stage-2")
	}
	return nil
}
