package stackgan

import (
	"fmt"
	"image/color"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense filled with standard normal float64 values
//
// rng - source of randomness. The same seed gives the same tensor
// shape - shape of resulting dense
//
func NormRandDense(rng *rand.Rand, shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// scalarValue Extracts float64 from a scalar node value (e.g. loss)
func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("value is nil")
	}
	switch t := v.Data().(type) {
	case float64:
		return t, nil
	case []float64:
		if len(t) == 1 {
			return t[0], nil
		}
	}
	return 0, fmt.Errorf("value of type %T is not a float64 scalar", v.Data())
}

// PlotLosses Plot loss curves of generator and discriminator (one point per step)
func PlotLosses(generator, discriminator []float64, fname string) error {
	p := plot.New()
	p.Title.Text = "Losses"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	curves := []struct {
		name   string
		values []float64
		color  color.Color
	}{
		{"generator", generator, color.RGBA{R: 255, B: 128, A: 255}},
		{"discriminator", discriminator, color.RGBA{G: 128, B: 255, A: 255}},
	}
	for _, curve := range curves {
		if len(curve.values) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(curve.values))
		for i, v := range curve.values {
			xys[i].X = float64(i)
			xys[i].Y = v
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init new line for %s", curve.name))
		}
		line.LineStyle.Color = curve.color
		p.Add(line)
		p.Legend.Add(curve.name, line)
	}
	// Save the plot to a PNG file.
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
