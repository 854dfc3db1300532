package stackgan

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// LoadImage Decodes PNG or JPEG file, resizes it to (size, size) and returns row-major HWC pixels in [-1, 1]
func LoadImage(fname string, size int) ([]float64, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open image")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode image '%s'", fname))
	}
	return ImageToPixels(img, size), nil
}

// ImageToPixels Resizes image with Catmull-Rom kernel and scales channels from [0, 255] to [-1, 1]
func ImageToPixels(img image.Image, size int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	pixels := make([]float64, 0, size*size*ImageChannels)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := dst.RGBAAt(x, y)
			pixels = append(pixels, float64(c.R), float64(c.G), float64(c.B))
		}
	}
	floats.Scale(1.0/127.5, pixels)
	floats.AddConst(-1.0, pixels)
	return pixels
}

// ImageFromTensor Converts index-th image of (N, H, W, 3) tensor with values in [-1, 1] back to RGBA image.
// Values outside of [-1, 1] are clamped.
func ImageFromTensor(t tensor.Tensor, index int) (*image.RGBA, error) {
	shp := t.Shape()
	if len(shp) != 4 || shp[3] != ImageChannels {
		return nil, &ShapeError{Op: "ImageFromTensor", Expected: []int{-1, -1, -1, ImageChannels}, Actual: shp.Clone()}
	}
	if index < 0 || index >= shp[0] {
		return nil, fmt.Errorf("Image index %d is out of range [0, %d)", index, shp[0])
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Expected float64 data, got %T", t.Data())
	}
	h, w := shp[1], shp[2]
	size := h * w * ImageChannels
	pixels := make([]float64, size)
	copy(pixels, data[index*size:(index+1)*size])
	floats.AddConst(1.0, pixels)
	floats.Scale(127.5, pixels)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			offset := (y*w + x) * ImageChannels
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(pixels[offset]),
				G: toByte(pixels[offset+1]),
				B: toByte(pixels[offset+2]),
				A: 255,
			})
		}
	}
	return img, nil
}

func toByte(v float64) uint8 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// SaveImages Writes every image of (N, H, W, 3) tensor into dir as '<prefix>_<i>.png'. Returns written file names.
func SaveImages(t tensor.Tensor, dir, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "Can't create output directory")
	}
	if t.Dims() != 4 {
		return nil, &ShapeError{Op: "SaveImages", Expected: []int{-1, -1, -1, ImageChannels}, Actual: t.Shape().Clone()}
	}
	names := make([]string, 0, t.Shape()[0])
	for i := 0; i < t.Shape()[0]; i++ {
		img, err := ImageFromTensor(t, i)
		if err != nil {
			return names, err
		}
		fname := filepath.Join(dir, fmt.Sprintf("%s_%d.png", prefix, i))
		if err = writePNG(fname, img); err != nil {
			return names, err
		}
		names = append(names, fname)
	}
	return names, nil
}

func writePNG(fname string, img image.Image) error {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create image file")
	}
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrap(err, "Can't encode PNG")
	}
	return f.Close()
}
