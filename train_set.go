package stackgan

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorgonia.org/tensor"
)

// TrainSet Text embeddings and matching high resolution images
//
// Embeddings - sample => caption => embedding vector. Every sample has one caption atleast
// Images - sample => (HighResolution, HighResolution, 3) pixels in [-1, 1], row-major HWC
// DataLength - number of samples
//
type TrainSet struct {
	Embeddings [][][]float64
	Images     [][]float64
	DataLength int
	// Flip Mirror images horizontally with probability 0.5 while batching
	Flip bool
}

// Batch Dense values for one training step
//
// Embeddings - (N, embedding_dim), random caption of every sample
// WrongEmbeddings - (N, embedding_dim), caption of some other sample: (real image, wrong text) pairs
// Noise - (N, noise_dim) standard normal noise for stage-1 generator
// Images - (N, 256, 256, 3) real images
//
type Batch struct {
	Embeddings      *tensor.Dense
	WrongEmbeddings *tensor.Dense
	Noise           *tensor.Dense
	Images          *tensor.Dense
}

// NewTrainSet Checks that samples are consistent and wraps them
func NewTrainSet(embeddings [][][]float64, images [][]float64) (*TrainSet, error) {
	if len(embeddings) != len(images) {
		return nil, fmt.Errorf("Number of embeddings (%d) and images (%d) differ", len(embeddings), len(images))
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("Train set is empty")
	}
	dim := -1
	for i := range embeddings {
		if len(embeddings[i]) == 0 {
			return nil, fmt.Errorf("Sample #%d has no embeddings", i)
		}
		for j := range embeddings[i] {
			if dim < 0 {
				dim = len(embeddings[i][j])
			}
			if len(embeddings[i][j]) != dim {
				return nil, fmt.Errorf("Sample #%d caption #%d has embedding of size %d, expected %d", i, j, len(embeddings[i][j]), dim)
			}
		}
		if len(images[i]) != HighResolution*HighResolution*ImageChannels {
			return nil, fmt.Errorf("Sample #%d image has %d values, expected %d", i, len(images[i]), HighResolution*HighResolution*ImageChannels)
		}
	}
	return &TrainSet{
		Embeddings: embeddings,
		Images:     images,
		DataLength: len(embeddings),
	}, nil
}

// EmbeddingDim Returns size of a single embedding vector
func (ts *TrainSet) EmbeddingDim() int {
	if ts.DataLength == 0 {
		return 0
	}
	return len(ts.Embeddings[0][0])
}

// Batch Gathers samples with provided indices into dense values
func (ts *TrainSet) Batch(rng *rand.Rand, indices []int, noiseDim int) (*Batch, error) {
	n := len(indices)
	if n == 0 {
		return nil, fmt.Errorf("Batch must have one sample atleast")
	}
	dim := ts.EmbeddingDim()
	pixels := HighResolution * HighResolution * ImageChannels
	embeddings := make([]float64, 0, n*dim)
	wrong := make([]float64, 0, n*dim)
	images := make([]float64, 0, n*pixels)
	for _, idx := range indices {
		if idx < 0 || idx >= ts.DataLength {
			return nil, fmt.Errorf("Sample index %d is out of range [0, %d)", idx, ts.DataLength)
		}
		captions := ts.Embeddings[idx]
		embeddings = append(embeddings, captions[rng.Intn(len(captions))]...)

		wrongIdx := idx
		if ts.DataLength > 1 {
			// any sample but the current one
			wrongIdx = rng.Intn(ts.DataLength - 1)
			if wrongIdx >= idx {
				wrongIdx++
			}
		}
		wrongCaptions := ts.Embeddings[wrongIdx]
		wrong = append(wrong, wrongCaptions[rng.Intn(len(wrongCaptions))]...)

		if ts.Flip && rng.Intn(2) == 1 {
			images = append(images, flipHorizontal(ts.Images[idx], HighResolution, HighResolution, ImageChannels)...)
		} else {
			images = append(images, ts.Images[idx]...)
		}
	}
	return &Batch{
		Embeddings:      tensor.New(tensor.WithShape(n, dim), tensor.WithBacking(embeddings)),
		WrongEmbeddings: tensor.New(tensor.WithShape(n, dim), tensor.WithBacking(wrong)),
		Noise:           NormRandDense(rng, n, noiseDim),
		Images:          tensor.New(tensor.WithShape(n, HighResolution, HighResolution, ImageChannels), tensor.WithBacking(images)),
	}, nil
}

func flipHorizontal(src []float64, h, w, c int) []float64 {
	dst := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copy(dst[(y*w+x)*c:(y*w+x+1)*c], src[(y*w+w-1-x)*c:(y*w+w-x)*c])
		}
	}
	return dst
}

// LoadEmbeddings Reads pickled list of samples. Every sample is either a single embedding vector
// or a list of caption embeddings.
func LoadEmbeddings(fname string) ([][][]float64, error) {
	raw, err := pickle.Load(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpickle embeddings")
	}
	samples, err := pickledSequence(raw)
	if err != nil {
		return nil, errors.Wrap(err, "Embeddings")
	}
	result := make([][][]float64, len(samples))
	for i, sample := range samples {
		items, err := pickledSequence(sample)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Sample #%d", i))
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("Sample #%d is empty", i)
		}
		if _, nested := items[0].(*types.List); !nested {
			if _, nested = items[0].(*types.Tuple); !nested {
				vec, err := pickledVector(items)
				if err != nil {
					return nil, errors.Wrap(err, fmt.Sprintf("Sample #%d", i))
				}
				result[i] = [][]float64{vec}
				continue
			}
		}
		result[i] = make([][]float64, len(items))
		for j, item := range items {
			caption, err := pickledSequence(item)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("Sample #%d caption #%d", i, j))
			}
			result[i][j], err = pickledVector(caption)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("Sample #%d caption #%d", i, j))
			}
		}
	}
	log.Debug().Str("file", fname).Int("samples", len(result)).Msg("Embeddings loaded")
	return result, nil
}

// LoadFilenames Reads pickled list of image names
func LoadFilenames(fname string) ([]string, error) {
	raw, err := pickle.Load(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpickle filenames")
	}
	items, err := pickledSequence(raw)
	if err != nil {
		return nil, errors.Wrap(err, "Filenames")
	}
	names := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("Filename #%d has type %T, expected string", i, item)
		}
		names[i] = s
	}
	return names, nil
}

// LoadTrainSet Reads embeddings, filenames and the images they point to.
// Names without extension are treated as JPEG files.
func LoadTrainSet(embeddingsFile, filenamesFile, imagesDir string) (*TrainSet, error) {
	embeddings, err := LoadEmbeddings(embeddingsFile)
	if err != nil {
		return nil, err
	}
	names, err := LoadFilenames(filenamesFile)
	if err != nil {
		return nil, err
	}
	if len(names) != len(embeddings) {
		return nil, fmt.Errorf("Number of embeddings (%d) and filenames (%d) differ", len(embeddings), len(names))
	}
	images := make([][]float64, len(names))
	for i, name := range names {
		if filepath.Ext(name) == "" {
			name += ".jpg"
		}
		images[i], err = LoadImage(filepath.Join(imagesDir, name), HighResolution)
		if err != nil {
			return nil, err
		}
	}
	log.Info().Int("samples", len(images)).Str("images_dir", imagesDir).Msg("Train set loaded")
	return NewTrainSet(embeddings, images)
}

func pickledSequence(v interface{}) ([]interface{}, error) {
	var seq interface {
		Len() int
		Get(i int) interface{}
	}
	switch t := v.(type) {
	case *types.List:
		seq = t
	case *types.Tuple:
		seq = t
	default:
		return nil, fmt.Errorf("Expected pickled list or tuple, got %T", v)
	}
	items := make([]interface{}, seq.Len())
	for i := range items {
		items[i] = seq.Get(i)
	}
	return items, nil
}

func pickledVector(items []interface{}) ([]float64, error) {
	vec := make([]float64, len(items))
	for i, item := range items {
		switch t := item.(type) {
		case float64:
			vec[i] = t
		case int:
			vec[i] = float64(t)
		case bool:
			if t {
				vec[i] = 1
			}
		default:
			return nil, fmt.Errorf("Element #%d has type %T, expected number", i, item)
		}
	}
	return vec, nil
}
