package stackgan

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Trainer Adversarial training of stage-2 generator and discriminator.
//
// Two graphs are used:
// - adversarial graph: frozen stage-1 generator => stage-2 generator => frozen copy of discriminator.
// Copy shares parameter values with the discriminator, so it always scores with the latest weights.
// - discriminator graph: discriminator applied to (real image, text), (fake image, text) and (real image, wrong text).
//
// Stage-1 generator is never updated: load pretrained values into Stage1.Learnables() before training.
// Step and Train must be called from a single goroutine.
type Trainer struct {
	cfg Config
	rng *rand.Rand

	Stage1        *Stage1Generator
	Stage2        *Stage2Generator
	Discriminator *Stage2Discriminator
	History       History

	gan *GAN

	// adversarial graph inputs
	embeddingGen  *gorgonia.Node
	noise         *gorgonia.Node
	embeddingDisc *gorgonia.Node

	// discriminator graph inputs
	realImages     *gorgonia.Node
	fakeImages     *gorgonia.Node
	embedding      *gorgonia.Node
	wrongEmbedding *gorgonia.Node

	generatorLossValue     gorgonia.Value
	klLossValue            gorgonia.Value
	discriminatorLossValue gorgonia.Value
	fakeImagesValue        gorgonia.Value

	vmGenerator         gorgonia.VM
	vmDiscriminator     gorgonia.VM
	solverGenerator     gorgonia.Solver
	solverDiscriminator gorgonia.Solver
}

// History Loss values, one per step
type History struct {
	Generator     []float64
	KL            []float64
	Discriminator []float64
}

// StepLosses Loss values of a single step
type StepLosses struct {
	Generator     float64
	KL            float64
	Discriminator float64
}

// NewTrainer Defines both graphs, losses, gradients, machines and solvers
func NewTrainer(cfg Config, rng *rand.Rand) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Trainer]")
	}
	n := cfg.BatchSize
	ganGraph := gorgonia.NewGraph()
	discriminatorGraph := gorgonia.NewGraph()

	stage1, err := NewStage1Generator(ganGraph, cfg)
	if err != nil {
		return nil, err
	}
	stage2, err := NewStage2Generator(ganGraph, cfg)
	if err != nil {
		return nil, err
	}
	discriminator, err := NewStage2Discriminator(discriminatorGraph, cfg)
	if err != nil {
		return nil, err
	}
	discriminatorGAN, err := discriminator.Share(ganGraph)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't share discriminator with adversarial graph")
	}
	gan, err := NewGAN(stage1, stage2, discriminatorGAN)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		cfg:           cfg,
		rng:           rng,
		Stage1:        stage1,
		Stage2:        stage2,
		Discriminator: discriminator,
		gan:           gan,

		embeddingGen:  gorgonia.NewMatrix(ganGraph, gorgonia.Float64, gorgonia.WithShape(n, cfg.EmbeddingDim), gorgonia.WithName("gan_embedding_generator")),
		noise:         gorgonia.NewMatrix(ganGraph, gorgonia.Float64, gorgonia.WithShape(n, cfg.NoiseDim), gorgonia.WithName("gan_noise")),
		embeddingDisc: gorgonia.NewMatrix(ganGraph, gorgonia.Float64, gorgonia.WithShape(n, cfg.EmbeddingDim), gorgonia.WithName("gan_embedding_discriminator")),

		realImages:     gorgonia.NewTensor(discriminatorGraph, gorgonia.Float64, 4, gorgonia.WithShape(n, HighResolution, HighResolution, ImageChannels), gorgonia.WithName("discriminator_real_images")),
		fakeImages:     gorgonia.NewTensor(discriminatorGraph, gorgonia.Float64, 4, gorgonia.WithShape(n, HighResolution, HighResolution, ImageChannels), gorgonia.WithName("discriminator_fake_images")),
		embedding:      gorgonia.NewMatrix(discriminatorGraph, gorgonia.Float64, gorgonia.WithShape(n, cfg.EmbeddingDim), gorgonia.WithName("discriminator_embedding")),
		wrongEmbedding: gorgonia.NewMatrix(discriminatorGraph, gorgonia.Float64, gorgonia.WithShape(n, cfg.EmbeddingDim), gorgonia.WithName("discriminator_wrong_embedding")),
	}

	/* Adversarial graph */
	err = gan.Fwd(t.embeddingGen, t.noise, t.embeddingDisc)
	if err != nil {
		return nil, err
	}
	adversarialLoss, err := BinaryCrossEntropyLoss(gan.Out(), labels(ganGraph, n, 1.0))
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't define adversarial loss")
	}
	klLoss, err := KLLoss(gan.MeanLogSigma(), cfg.ConditionDim)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't define KL loss")
	}
	klScaled, err := gorgonia.Mul(klLoss, scalar(ganGraph, "kl_coefficient", cfg.KLCoefficient))
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't scale KL loss")
	}
	generatorLoss, err := gorgonia.Add(adversarialLoss, klScaled)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't sum generator losses")
	}
	gorgonia.WithName("generator_loss")(generatorLoss)
	_, err = gorgonia.Grad(generatorLoss, gan.Learnables()...)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't differentiate generator loss")
	}
	gorgonia.Read(generatorLoss, &t.generatorLossValue)
	gorgonia.Read(klLoss, &t.klLossValue)
	gorgonia.Read(gan.GeneratorOut(), &t.fakeImagesValue)

	/* Discriminator graph */
	discLoss, err := discriminatorLoss(discriminator, t.realImages, t.fakeImages, t.embedding, t.wrongEmbedding)
	if err != nil {
		return nil, err
	}
	gorgonia.WithName("discriminator_loss")(discLoss)
	_, err = gorgonia.Grad(discLoss, discriminator.Learnables()...)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't differentiate discriminator loss")
	}
	gorgonia.Read(discLoss, &t.discriminatorLossValue)

	t.vmGenerator = gorgonia.NewTapeMachine(ganGraph, gorgonia.BindDualValues(gan.Learnables()...))
	t.vmDiscriminator = gorgonia.NewTapeMachine(discriminatorGraph, gorgonia.BindDualValues(discriminator.Learnables()...))
	t.solverGenerator = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(n)), gorgonia.WithLearnRate(cfg.GeneratorLearningRate), gorgonia.WithBeta1(0.5))
	t.solverDiscriminator = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(n)), gorgonia.WithLearnRate(cfg.DiscriminatorLearningRate), gorgonia.WithBeta1(0.5))
	return t, nil
}

// discriminatorLoss BCE(real, 1) + 0.5*(BCE(fake, 0) + BCE(wrong, 0))
func discriminatorLoss(discriminator ConditionalDiscriminator, realImages, fakeImages, embedding, wrongEmbedding *gorgonia.Node) (*gorgonia.Node, error) {
	g := realImages.Graph()
	n := realImages.Shape()[0]
	realScore, err := discriminator.Fwd(realImages, embedding)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't score real pairs")
	}
	fakeScore, err := discriminator.Fwd(fakeImages, embedding)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't score fake pairs")
	}
	wrongScore, err := discriminator.Fwd(realImages, wrongEmbedding)
	if err != nil {
		return nil, errors.Wrap(err, "[Trainer] Can't score wrong pairs")
	}
	realLoss, err := BinaryCrossEntropyLoss(realScore, labels(g, n, 1.0))
	if err != nil {
		return nil, err
	}
	fakeLoss, err := BinaryCrossEntropyLoss(fakeScore, labels(g, n, 0.0))
	if err != nil {
		return nil, err
	}
	wrongLoss, err := BinaryCrossEntropyLoss(wrongScore, labels(g, n, 0.0))
	if err != nil {
		return nil, err
	}
	negatives, err := gorgonia.Add(fakeLoss, wrongLoss)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	negatives, err = gorgonia.Mul(negatives, scalar(g, "discriminator_half", 0.5))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (0.5*x)")
	}
	return gorgonia.Add(realLoss, negatives)
}

// labels Constant (n, 1) targets
func labels(g *gorgonia.ExprGraph, n int, value float64) *gorgonia.Node {
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(n, 1), gorgonia.WithName(auxName("labels")), gorgonia.WithInit(gorgonia.ValuesOf(value)))
}

// Step Runs one generator update followed by one discriminator update
func (t *Trainer) Step(batch *Batch) (StepLosses, error) {
	losses := StepLosses{}
	if t.vmGenerator == nil || t.vmDiscriminator == nil {
		return losses, errors.Wrap(ErrUninitialized, "[Trainer]")
	}

	/* Generator */
	lets := []struct {
		node  *gorgonia.Node
		value *tensor.Dense
	}{
		{t.embeddingGen, batch.Embeddings},
		{t.noise, batch.Noise},
		{t.embeddingDisc, batch.Embeddings},
	}
	for _, l := range lets {
		if err := gorgonia.Let(l.node, l.value); err != nil {
			return losses, errors.Wrap(err, fmt.Sprintf("Can't init value of '%s'", l.node.Name()))
		}
	}
	if err := t.gan.Resample(t.rng); err != nil {
		return losses, err
	}
	if err := t.vmGenerator.RunAll(); err != nil {
		return losses, errors.Wrap(err, "Can't run adversarial graph")
	}
	fakes := t.fakeImagesValue.(tensor.Tensor).Clone()
	err := t.solverGenerator.Step(gorgonia.NodesToValueGrads(t.gan.Learnables()))
	if err != nil {
		return losses, errors.Wrap(err, "Can't update generator")
	}
	t.vmGenerator.Reset()
	if losses.Generator, err = scalarValue(t.generatorLossValue); err != nil {
		return losses, errors.Wrap(err, "Generator loss")
	}
	if losses.KL, err = scalarValue(t.klLossValue); err != nil {
		return losses, errors.Wrap(err, "KL loss")
	}

	/* Discriminator */
	if err = gorgonia.Let(t.realImages, batch.Images); err != nil {
		return losses, errors.Wrap(err, "Can't init real images")
	}
	if err = gorgonia.Let(t.fakeImages, fakes); err != nil {
		return losses, errors.Wrap(err, "Can't init fake images")
	}
	if err = gorgonia.Let(t.embedding, batch.Embeddings); err != nil {
		return losses, errors.Wrap(err, "Can't init embedding")
	}
	if err = gorgonia.Let(t.wrongEmbedding, batch.WrongEmbeddings); err != nil {
		return losses, errors.Wrap(err, "Can't init wrong embedding")
	}
	if err = t.vmDiscriminator.RunAll(); err != nil {
		return losses, errors.Wrap(err, "Can't run discriminator graph")
	}
	err = t.solverDiscriminator.Step(gorgonia.NodesToValueGrads(t.Discriminator.Learnables()))
	if err != nil {
		return losses, errors.Wrap(err, "Can't update discriminator")
	}
	t.vmDiscriminator.Reset()
	if losses.Discriminator, err = scalarValue(t.discriminatorLossValue); err != nil {
		return losses, errors.Wrap(err, "Discriminator loss")
	}

	t.History.Generator = append(t.History.Generator, losses.Generator)
	t.History.KL = append(t.History.KL, losses.KL)
	t.History.Discriminator = append(t.History.Discriminator, losses.Discriminator)
	return losses, nil
}

// EpochCallback Called after every epoch. Returning error stops training.
type EpochCallback func(epoch int) error

// Train Runs cfg.Epochs passes over shuffled train set. Incomplete last batch is skipped.
func (t *Trainer) Train(set *TrainSet, callbacks ...EpochCallback) error {
	n := t.cfg.BatchSize
	if set.EmbeddingDim() != t.cfg.EmbeddingDim {
		return fmt.Errorf("Train set has embeddings of size %d, model expects %d", set.EmbeddingDim(), t.cfg.EmbeddingDim)
	}
	batches := set.DataLength / n
	if batches == 0 {
		return fmt.Errorf("Train set has %d samples, batch size is %d", set.DataLength, n)
	}
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		st := time.Now()
		perm := t.rng.Perm(set.DataLength)
		var genSum, discSum float64
		for b := 0; b < batches; b++ {
			batch, err := set.Batch(t.rng, perm[b*n:(b+1)*n], t.cfg.NoiseDim)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't prepare batch #%d", b))
			}
			losses, err := t.Step(batch)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("Epoch %d, batch #%d", epoch, b))
			}
			if math.IsNaN(losses.Generator) || math.IsNaN(losses.Discriminator) {
				return fmt.Errorf("Epoch %d, batch #%d: loss is NaN", epoch, b)
			}
			genSum += losses.Generator
			discSum += losses.Discriminator
			log.Debug().
				Int("epoch", epoch).
				Int("batch", b).
				Float64("generator_loss", losses.Generator).
				Float64("kl_loss", losses.KL).
				Float64("discriminator_loss", losses.Discriminator).
				Msg("Step done")
		}
		log.Info().
			Int("epoch", epoch).
			Float64("generator_loss", genSum/float64(batches)).
			Float64("discriminator_loss", discSum/float64(batches)).
			Dur("taken", time.Since(st)).
			Msg("Epoch done")
		for _, callback := range callbacks {
			if err := callback(epoch); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close Releases both VMs
func (t *Trainer) Close() error {
	var err error
	if t.vmGenerator != nil {
		err = t.vmGenerator.Close()
	}
	if t.vmDiscriminator != nil {
		if e := t.vmDiscriminator.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
