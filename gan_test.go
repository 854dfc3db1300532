package stackgan

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestGANLearnables(t *testing.T) {
	cfg := testConfig()
	g := gorgonia.NewGraph()
	stage1, err := NewStage1Generator(g, cfg)
	require.NoError(t, err)
	stage2, err := NewStage2Generator(g, cfg)
	require.NoError(t, err)
	disc, err := NewStage2Discriminator(g, cfg)
	require.NoError(t, err)

	gan, err := NewGAN(stage1, stage2, disc)
	require.NoError(t, err)
	assert.Equal(t, stage2.Learnables(), gan.Learnables())
	assert.NotEmpty(t, stage1.Learnables(), "composition must not alter stage-1 generator")
	assert.NotEmpty(t, disc.Learnables(), "composition must not alter discriminator")

	_, err = NewGAN(nil, stage2, disc)
	assert.True(t, errors.Is(err, ErrUninitialized))
	_, err = NewGAN(stage1, stage2, nil)
	assert.True(t, errors.Is(err, ErrUninitialized))
	assert.True(t, errors.Is((&GAN{}).Fwd(nil, nil, nil), ErrUninitialized))
}

func TestGANStep(t *testing.T) {
	cfg := testConfig()
	g := gorgonia.NewGraph()
	stage1, err := NewStage1Generator(g, cfg)
	require.NoError(t, err)
	stage2, err := NewStage2Generator(g, cfg)
	require.NoError(t, err)
	disc, err := NewStage2Discriminator(g, cfg)
	require.NoError(t, err)
	gan, err := NewGAN(stage1, stage2, disc)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	embedding := NormRandDense(rng, 1, cfg.EmbeddingDim)
	embeddingGen := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, cfg.EmbeddingDim), gorgonia.WithName("embedding_generator"), gorgonia.WithValue(embedding))
	noise := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, cfg.NoiseDim), gorgonia.WithName("noise"), gorgonia.WithValue(NormRandDense(rng, 1, cfg.NoiseDim)))
	embeddingDisc := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, cfg.EmbeddingDim), gorgonia.WithName("embedding_discriminator"), gorgonia.WithValue(embedding.Clone()))

	require.NoError(t, gan.Fwd(embeddingGen, noise, embeddingDisc))
	assert.Equal(t, tensor.Shape{1, 1}, gan.Out().Shape())
	assert.Equal(t, tensor.Shape{1, HighResolution, HighResolution, ImageChannels}, gan.GeneratorOut().Shape())
	assert.Equal(t, tensor.Shape{1, LowResolution, LowResolution, ImageChannels}, gan.LowResolutionOut().Shape())
	assert.Equal(t, tensor.Shape{1, 2 * cfg.ConditionDim}, gan.MeanLogSigma().Shape())
	assert.Equal(t, tensor.Shape{1, 2 * cfg.ConditionDim}, gan.Stage1MeanLogSigma().Shape())

	bce, err := BinaryCrossEntropyLoss(gan.Out(), labels(g, 1, 1.0))
	require.NoError(t, err)
	kl, err := KLLoss(gan.MeanLogSigma(), cfg.ConditionDim)
	require.NoError(t, err)
	cost, err := gorgonia.Add(bce, kl)
	require.NoError(t, err)
	_, err = gorgonia.Grad(cost, gan.Learnables()...)
	require.NoError(t, err)

	stage1Before := snapshot(t, stage1.Learnables())
	stage2Before := snapshot(t, stage2.Learnables())
	discBefore := snapshot(t, disc.Learnables())

	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(gan.Learnables()...))
	defer vm.Close()
	require.NoError(t, gan.Resample(rng))
	require.NoError(t, vm.RunAll())

	var gradNorm float64
	for _, n := range gan.Learnables() {
		grad, err := n.Grad()
		require.NoError(t, err, "no gradient for '%s'", n.Name())
		values := elements(t, grad)
		require.True(t, allFinite(values), "gradient of '%s'", n.Name())
		for _, v := range values {
			gradNorm += v * v
		}
	}
	assert.Greater(t, gradNorm, 0.0)

	solver := gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(0.1))
	require.NoError(t, solver.Step(gorgonia.NodesToValueGrads(gan.Learnables())))
	vm.Reset()

	assert.Equal(t, stage1Before, snapshot(t, stage1.Learnables()), "stage-1 generator must stay frozen")
	assert.Equal(t, discBefore, snapshot(t, disc.Learnables()), "discriminator must stay frozen")
	assert.NotEqual(t, stage2Before, snapshot(t, stage2.Learnables()), "stage-2 generator must be updated")
}
