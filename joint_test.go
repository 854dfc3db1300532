package stackgan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestFuse(t *testing.T) {
	const (
		n  = 2
		h  = 4
		w  = 3
		cf = 5
		d  = 3
	)
	g := gorgonia.NewGraph()
	cData := []float64{1, 2, 3, -4, -5, -6}
	fmData := make([]float64, n*h*w*cf)
	for i := range fmData {
		fmData[i] = float64(i) / 10
	}
	c := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(n, d), gorgonia.WithName("c"), gorgonia.WithValue(tensor.New(tensor.WithShape(n, d), tensor.WithBacking(cData))))
	fm := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(n, h, w, cf), gorgonia.WithName("feature_map"), gorgonia.WithValue(tensor.New(tensor.WithShape(n, h, w, cf), tensor.WithBacking(fmData))))

	fused, err := Fuse(c, fm)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{n, h, w, cf + d}, fused.Shape())

	var fusedValue gorgonia.Value
	gorgonia.Read(fused, &fusedValue)
	runGraph(t, g)

	out := elements(t, fusedValue)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pos := ((b*h+y)*w + x)
				for ch := 0; ch < cf; ch++ {
					assert.Equal(t, fmData[pos*cf+ch], out[pos*(cf+d)+ch], "feature map must pass unchanged")
				}
				for ch := 0; ch < d; ch++ {
					assert.Equal(t, cData[b*d+ch], out[pos*(cf+d)+cf+ch], "condition must be copied exactly")
				}
			}
		}
	}
}

func TestFuseErrors(t *testing.T) {
	g := gorgonia.NewGraph()
	var shapeErr *ShapeError

	_, err := Fuse(input(g, "c_vector", 4), input(g, "fm", 1, 16, 16, 8))
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)

	_, err = Fuse(input(g, "c", 1, 4), input(g, "fm_rank3", 16, 16, 8))
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)

	_, err = Fuse(input(g, "c_batch2", 2, 4), input(g, "fm_batch1", 1, 16, 16, 8))
	assert.Error(t, err)
}

func TestTile(t *testing.T) {
	g := gorgonia.NewGraph()
	v := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 2), gorgonia.WithName("v"), gorgonia.WithValue(tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{7, -1}))))
	tiled, err := tile(v, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, tiled.Shape())
	var tiledValue gorgonia.Value
	gorgonia.Read(tiled, &tiledValue)
	runGraph(t, g)
	assert.Equal(t, []float64{7, 7, 7, 7, -1, -1, -1, -1}, elements(t, tiledValue))
}
