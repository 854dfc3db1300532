package stackgan

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

const imageSize = HighResolution * HighResolution * ImageChannels

func solidImage(value float64) []float64 {
	img := make([]float64, imageSize)
	for i := range img {
		img[i] = value
	}
	return img
}

func TestLoadEmbeddings(t *testing.T) {
	embeddings, err := LoadEmbeddings("testdata/embeddings.pickle")
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.Equal(t, [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}, embeddings[0])
	assert.Equal(t, [][]float64{{1, 2, 3, 4}}, embeddings[1], "single vector is a sample with one caption")
	assert.Equal(t, [][]float64{{1.5, -2, 0, 3}}, embeddings[2])

	_, err = LoadEmbeddings("testdata/not_a_list.pickle")
	assert.Error(t, err)
	_, err = LoadEmbeddings("testdata/missing.pickle")
	assert.Error(t, err)
}

func TestLoadFilenames(t *testing.T) {
	names, err := LoadFilenames("testdata/filenames.pickle")
	require.NoError(t, err)
	assert.Equal(t, []string{"001.Black_footed_Albatross/img_0001", "img_0002.png", "img_0003"}, names)

	_, err = LoadFilenames("testdata/embeddings.pickle")
	assert.Error(t, err)
}

func TestNewTrainSetErrors(t *testing.T) {
	_, err := NewTrainSet(nil, nil)
	assert.Error(t, err)

	_, err = NewTrainSet([][][]float64{{{1, 2}}}, [][]float64{solidImage(0), solidImage(0)})
	assert.Error(t, err)

	_, err = NewTrainSet([][][]float64{{{1, 2}}, {}}, [][]float64{solidImage(0), solidImage(0)})
	assert.Error(t, err)

	_, err = NewTrainSet([][][]float64{{{1, 2}}, {{1, 2, 3}}}, [][]float64{solidImage(0), solidImage(0)})
	assert.Error(t, err)

	_, err = NewTrainSet([][][]float64{{{1, 2}}}, [][]float64{{0, 0, 0}})
	assert.Error(t, err)
}

func TestTrainSetBatch(t *testing.T) {
	embeddings := [][][]float64{
		{{0, 0}},
		{{1, 1}, {1, 1}},
		{{2, 2}},
	}
	set, err := NewTrainSet(embeddings, [][]float64{solidImage(-1), solidImage(0), solidImage(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, set.DataLength)
	assert.Equal(t, 2, set.EmbeddingDim())

	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 20; i++ {
		batch, err := set.Batch(rng, []int{2, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 2}, batch.Embeddings.Shape())
		assert.Equal(t, tensor.Shape{2, 2}, batch.WrongEmbeddings.Shape())
		assert.Equal(t, tensor.Shape{2, 5}, batch.Noise.Shape())
		assert.Equal(t, tensor.Shape{2, HighResolution, HighResolution, ImageChannels}, batch.Images.Shape())

		emb := batch.Embeddings.Data().([]float64)
		assert.Equal(t, []float64{2, 2, 0, 0}, emb)
		wrong := batch.WrongEmbeddings.Data().([]float64)
		assert.NotEqual(t, 2.0, wrong[0], "wrong caption must come from another sample")
		assert.NotEqual(t, 0.0, wrong[2], "wrong caption must come from another sample")

		images := batch.Images.Data().([]float64)
		assert.Equal(t, 1.0, images[0])
		assert.Equal(t, -1.0, images[imageSize])
	}

	_, err = set.Batch(rng, []int{3}, 5)
	assert.Error(t, err)
	_, err = set.Batch(rng, nil, 5)
	assert.Error(t, err)
}

func TestFlipHorizontal(t *testing.T) {
	// 2x3 image with 2 channels
	src := []float64{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	expected := []float64{
		5, 6, 3, 4, 1, 2,
		11, 12, 9, 10, 7, 8,
	}
	assert.Equal(t, expected, flipHorizontal(src, 2, 3, 2))
	assert.Equal(t, src, flipHorizontal(flipHorizontal(src, 2, 3, 2), 2, 3, 2))
}

func TestTrainSetBatchFlip(t *testing.T) {
	img := make([]float64, imageSize)
	// left column is bright, the rest is dark
	for y := 0; y < HighResolution; y++ {
		for x := 0; x < HighResolution; x++ {
			for c := 0; c < ImageChannels; c++ {
				if x == 0 {
					img[(y*HighResolution+x)*ImageChannels+c] = 1
				} else {
					img[(y*HighResolution+x)*ImageChannels+c] = -1
				}
			}
		}
	}
	set, err := NewTrainSet([][][]float64{{{1}}}, [][]float64{img})
	require.NoError(t, err)
	set.Flip = true

	rng := rand.New(rand.NewSource(1))
	flipped, kept := 0, 0
	for i := 0; i < 40; i++ {
		batch, err := set.Batch(rng, []int{0}, 1)
		require.NoError(t, err)
		data := batch.Images.Data().([]float64)
		if data[0] == 1 {
			kept++
		} else {
			assert.Equal(t, 1.0, data[(HighResolution-1)*ImageChannels], "flipped image has bright right column")
			flipped++
		}
	}
	assert.NotZero(t, flipped)
	assert.NotZero(t, kept)
	assert.Equal(t, -1.0, set.Images[0][(HighResolution-1)*ImageChannels], "source image must stay untouched")
}
