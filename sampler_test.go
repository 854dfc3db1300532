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

func TestSampler(t *testing.T) {
	cfg := testConfig()
	g := gorgonia.NewGraph()
	stage1, err := NewStage1Generator(g, cfg)
	require.NoError(t, err)
	stage2, err := NewStage2Generator(g, cfg)
	require.NoError(t, err)

	sampler, err := NewSampler(stage1, stage2, 2)
	require.NoError(t, err)
	defer sampler.Close()

	rng := rand.New(rand.NewSource(99))
	embeddings := NormRandDense(rng, 2, cfg.EmbeddingDim)
	first, err := sampler.Sample(rng, embeddings)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, LowResolution, LowResolution, ImageChannels}, first.LowResolution.Shape())
	assert.Equal(t, tensor.Shape{2, HighResolution, HighResolution, ImageChannels}, first.HighResolution.Shape())
	assertImage(t, first.LowResolution.Data().([]float64))
	assertImage(t, first.HighResolution.Data().([]float64))

	second, err := sampler.Sample(rng, embeddings)
	require.NoError(t, err)
	assert.NotEqual(t, first.HighResolution.Data(), second.HighResolution.Data(), "every call draws fresh noise")

	_, err = sampler.Sample(rng, NormRandDense(rng, 3, cfg.EmbeddingDim))
	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)

	_, err = NewSampler(nil, stage2, 1)
	assert.True(t, errors.Is(err, ErrUninitialized))
}
