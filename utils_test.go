package stackgan

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestNormRandDense(t *testing.T) {
	a := NormRandDense(rand.New(rand.NewSource(5)), 3, 4)
	b := NormRandDense(rand.New(rand.NewSource(5)), 3, 4)
	c := NormRandDense(rand.New(rand.NewSource(6)), 3, 4)
	assert.Equal(t, tensor.Shape{3, 4}, a.Shape())
	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())
}

func TestScalarValue(t *testing.T) {
	v, err := scalarValue(tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{1.5})))
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = scalarValue(nil)
	assert.Error(t, err)
	_, err = scalarValue(tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, 2})))
	assert.Error(t, err)
}

func TestPlotLosses(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "losses.png")
	require.NoError(t, PlotLosses([]float64{3, 2, 1.5}, []float64{0.5, 0.7, 0.6}, fname))
	info, err := os.Stat(fname)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
