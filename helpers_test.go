package stackgan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// testConfig Full resolution, narrow layers
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EmbeddingDim = 16
	cfg.NoiseDim = 8
	cfg.ConditionDim = 4
	cfg.CompressedEmbeddingDim = 4
	cfg.Stage1Filters = 2
	cfg.Stage2Filters = 2
	cfg.DiscriminatorFilters = 1
	cfg.BatchSize = 1
	cfg.Epochs = 1
	return cfg
}

func input(g *gorgonia.ExprGraph, name string, shape ...int) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name))
}

func constDense(value float64, shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = value
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func runGraph(t *testing.T, g *gorgonia.ExprGraph) {
	t.Helper()
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
}

// elements Copies values of any (possibly non-contiguous) tensor in row-major order
func elements(t *testing.T, v gorgonia.Value) []float64 {
	t.Helper()
	tt, ok := v.(tensor.Tensor)
	require.True(t, ok, "value %T is not a tensor", v)
	shp := tt.Shape()
	out := make([]float64, 0, shp.TotalSize())
	coords := make([]int, len(shp))
	for i := 0; i < shp.TotalSize(); i++ {
		rem := i
		for d := len(shp) - 1; d >= 0; d-- {
			coords[d] = rem % shp[d]
			rem /= shp[d]
		}
		x, err := tt.At(coords...)
		require.NoError(t, err)
		out = append(out, x.(float64))
	}
	return out
}

func snapshot(t *testing.T, nodes gorgonia.Nodes) [][]float64 {
	t.Helper()
	values := make([][]float64, len(nodes))
	for i, n := range nodes {
		data, err := nodeData(n)
		require.NoError(t, err)
		values[i] = append([]float64(nil), data...)
	}
	return values
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
