// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/Brownie44l1/plant-identifier/internal/model"
	"github.com/nfnt/resize"
)

// ErrUnsupportedFormat is returned for images that are not JPEG or PNG.
var ErrUnsupportedFormat = errors.New("invalid image format. Supported: JPEG, PNG")

type Options struct {
	Size   int
	Layout string
	// Scale multiplies each 8-bit channel value.
	Scale float32
}

// Decode reads a JPEG or PNG image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, format, ErrUnsupportedFormat
	}
	return img, format, nil
}

// Tensor resizes img to Size x Size and lays out its RGB channels as float32 values.
func Tensor(img image.Image, opts Options) ([]float32, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", opts.Size)
	}
	if opts.Layout == "" {
		opts.Layout = model.LayoutNCHW
	}
	if opts.Layout != model.LayoutNCHW && opts.Layout != model.LayoutNHWC {
		return nil, fmt.Errorf("unknown tensor layout %q", opts.Layout)
	}

	size := uint(opts.Size)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	const channels = 3
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [channels]float32{
				float32(r>>8) * opts.Scale,
				float32(g>>8) * opts.Scale,
				float32(b>>8) * opts.Scale,
			}

			pixel := y*width + x
			for c, v := range rgb {
				if opts.Layout == model.LayoutNCHW {
					data[c*plane+pixel] = v
				} else {
					data[pixel*channels+c] = v
				}
			}
		}
	}

	return data, nil
}
