package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/Brownie44l1/plant-identifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 2, color.RGBA{R: 255, A: 255})))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 3, img.Bounds().Dx())
}

func TestDecode_Rejects(t *testing.T) {
	_, _, err := Decode(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// gif is registered by the import above but still not accepted
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, solid(2, 2, color.RGBA{A: 255}), nil))
	_, format, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "gif", format)
}

func TestTensor_Layouts(t *testing.T) {
	img := solid(8, 8, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	t.Run("nchw", func(t *testing.T) {
		data, err := Tensor(img, Options{Size: 4, Layout: model.LayoutNCHW, Scale: 1.0 / 255.0})
		require.NoError(t, err)
		require.Len(t, data, 3*4*4)

		assert.InDelta(t, 1.0, data[0], 1e-3)
		assert.InDelta(t, 0.0, data[16], 1e-3)
		assert.InDelta(t, 0.2, data[32], 1e-3)
	})

	t.Run("nhwc", func(t *testing.T) {
		data, err := Tensor(img, Options{Size: 4, Layout: model.LayoutNHWC, Scale: 1})
		require.NoError(t, err)
		require.Len(t, data, 3*4*4)

		assert.InDelta(t, 255, data[0], 0.5)
		assert.InDelta(t, 0, data[1], 0.5)
		assert.InDelta(t, 51, data[2], 0.5)
	})
}

func TestTensor_InvalidOptions(t *testing.T) {
	img := solid(2, 2, color.RGBA{A: 255})

	_, err := Tensor(img, Options{Size: 0})
	assert.Error(t, err)

	_, err = Tensor(img, Options{Size: 2, Layout: "chw"})
	assert.Error(t, err)
}
