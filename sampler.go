package stackgan

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Sampler Inference graph: embedding + noise => stage-1 image => stage-2 image.
// Parameters are shared with the generators it was created from, so it always sees their current values.
type Sampler struct {
	batchSize int
	cfg       Config
	stage1    *Stage1Generator
	stage2    *Stage2Generator

	embedding *gorgonia.Node
	noise     *gorgonia.Node

	lowResValue  gorgonia.Value
	highResValue gorgonia.Value

	vm gorgonia.VM
}

// Samples Generated images, both (N, H, W, 3) in [-1, 1]
type Samples struct {
	LowResolution  tensor.Tensor
	HighResolution tensor.Tensor
}

// NewSampler Defines inference graph for fixed batch size
func NewSampler(stage1 *Stage1Generator, stage2 *Stage2Generator, batchSize int) (*Sampler, error) {
	if stage1 == nil || stage2 == nil {
		return nil, errors.Wrap(ErrUninitialized, "[Sampler]")
	}
	g := gorgonia.NewGraph()
	s1, err := stage1.Share(g)
	if err != nil {
		return nil, errors.Wrap(err, "[Sampler] Can't share stage-1 generator")
	}
	s2, err := stage2.Share(g)
	if err != nil {
		return nil, errors.Wrap(err, "[Sampler] Can't share stage-2 generator")
	}
	cfg := stage2.cfg
	s := &Sampler{
		batchSize: batchSize,
		cfg:       cfg,
		stage1:    s1,
		stage2:    s2,
		embedding: gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, cfg.EmbeddingDim), gorgonia.WithName("sampler_embedding")),
		noise:     gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, stage1.cfg.NoiseDim), gorgonia.WithName("sampler_noise")),
	}
	lowRes, _, err := s1.Fwd(s.embedding, s.noise)
	if err != nil {
		return nil, errors.Wrap(err, "[Sampler]")
	}
	highRes, _, err := s2.Fwd(s.embedding, lowRes)
	if err != nil {
		return nil, errors.Wrap(err, "[Sampler]")
	}
	gorgonia.Read(lowRes, &s.lowResValue)
	gorgonia.Read(highRes, &s.highResValue)
	s.vm = gorgonia.NewTapeMachine(g)
	return s, nil
}

// Sample Generates images for (N, embedding_dim) embeddings. Noise and conditioning noise are drawn from rng.
func (s *Sampler) Sample(rng *rand.Rand, embeddings *tensor.Dense) (*Samples, error) {
	if err := checkTrailing("Sampler", embeddings.Shape(), 2, s.batchSize, s.cfg.EmbeddingDim); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(s.embedding, embeddings); err != nil {
		return nil, errors.Wrap(err, "Can't init embedding value")
	}
	if err := gorgonia.Let(s.noise, NormRandDense(rng, s.noise.Shape()...)); err != nil {
		return nil, errors.Wrap(err, "Can't init noise value")
	}
	if err := s.stage1.Resample(rng); err != nil {
		return nil, err
	}
	if err := s.stage2.Resample(rng); err != nil {
		return nil, err
	}
	defer s.vm.Reset()
	if err := s.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run VM")
	}
	return &Samples{
		LowResolution:  s.lowResValue.(tensor.Tensor).Clone().(tensor.Tensor),
		HighResolution: s.highResValue.(tensor.Tensor).Clone().(tensor.Tensor),
	}, nil
}

// Close Releases VM
func (s *Sampler) Close() error {
	if s.vm == nil {
		return nil
	}
	return s.vm.Close()
}
