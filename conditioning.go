package stackgan

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ConditioningAugmentation Maps text embedding to stochastic conditioning vector.
//
// mean_logsigma = LeakyReLU(Dense(embedding)), split into halves: mean and log_sigma.
// c = mean + epsilon .* exp(log_sigma), where epsilon ~ N(0, 1) is refilled by Resample before every run.
//
type ConditioningAugmentation struct {
	name         string
	projection   *Network
	embeddingDim int
	conditionDim int

	// one noise input per application
	epsilons []*gorgonia.Node
}

// Conditioning Nodes produced by one application of ConditioningAugmentation
type Conditioning struct {
	C            *gorgonia.Node
	MeanLogSigma *gorgonia.Node
	Mean         *gorgonia.Node
	LogSigma     *gorgonia.Node
	Stddev       *gorgonia.Node
	Epsilon      *gorgonia.Node
}

// NewConditioningAugmentation Creates CA unit with its own projection parameters on the graph
func NewConditioningAugmentation(g *gorgonia.ExprGraph, name string, embeddingDim, conditionDim int, slope float64) *ConditioningAugmentation {
	return newConditioningAugmentation(newParamBuilder(g), name, embeddingDim, conditionDim, slope)
}

func newConditioningAugmentation(pb *paramBuilder, name string, embeddingDim, conditionDim int, slope float64) *ConditioningAugmentation {
	return &ConditioningAugmentation{
		name: name,
		projection: &Network{
			Name:   name,
			Layers: []*Layer{pb.dense(name+"_dense", embeddingDim, 2*conditionDim, LeakyRectify(slope))},
		},
		embeddingDim: embeddingDim,
		conditionDim: conditionDim,
	}
}

// Learnables Returns learnables nodes
func (ca *ConditioningAugmentation) Learnables() gorgonia.Nodes {
	if ca.projection == nil {
		return nil
	}
	return ca.projection.Learnables()
}

// Fwd Initializates feedforward for (N, embeddingDim) embedding
func (ca *ConditioningAugmentation) Fwd(embedding *gorgonia.Node) (*Conditioning, error) {
	if ca.projection == nil {
		return nil, errors.Wrap(ErrUninitialized, "ConditioningAugmentation")
	}
	if err := checkTrailing("ConditioningAugmentation", embedding.Shape(), 2, -1, ca.embeddingDim); err != nil {
		return nil, err
	}
	meanLogSigma, err := ca.projection.Fwd(embedding)
	if err != nil {
		return nil, errors.Wrap(err, "Can't project embedding")
	}
	gorgonia.WithName(ca.name + "_mean_logsigma")(meanLogSigma)
	mean, err := gorgonia.Slice(meanLogSigma, nil, gorgonia.S(0, ca.conditionDim))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice mean")
	}
	logSigma, err := gorgonia.Slice(meanLogSigma, nil, gorgonia.S(ca.conditionDim, 2*ca.conditionDim))
	if err != nil {
		return nil, errors.Wrap(err, "Can't slice log_sigma")
	}
	stddev, err := gorgonia.Exp(logSigma)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do exp(log_sigma)")
	}
	batchSize := embedding.Shape()[0]
	epsilon := gorgonia.NewMatrix(embedding.Graph(), gorgonia.Float64, gorgonia.WithShape(batchSize, ca.conditionDim), gorgonia.WithName(auxName(ca.name+"_epsilon")), gorgonia.WithInit(gorgonia.Zeroes()))
	ca.epsilons = append(ca.epsilons, epsilon)
	noise, err := gorgonia.HadamardProd(epsilon, stddev)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (epsilon.*stddev)")
	}
	c, err := gorgonia.Add(mean, noise)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (mean+x)")
	}
	gorgonia.WithName(ca.name + "_c")(c)
	return &Conditioning{
		C:            c,
		MeanLogSigma: meanLogSigma,
		Mean:         mean,
		LogSigma:     logSigma,
		Stddev:       stddev,
		Epsilon:      epsilon,
	}, nil
}

// Resample Draws fresh epsilon for every application of the unit. Must be called before each run of the graph.
func (ca *ConditioningAugmentation) Resample(rng *rand.Rand) error {
	for _, eps := range ca.epsilons {
		if err := gorgonia.Let(eps, NormRandDense(rng, eps.Shape()...)); err != nil {
			return errors.Wrap(err, "Can't set epsilon")
		}
	}
	return nil
}
