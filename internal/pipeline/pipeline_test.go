package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func pngBytes(t *testing.T, w, h int, at func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, at(x, y))
		}
	}
	var buf bytes.Buffer
	assert.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func black(x, y int) color.Color { return color.Black }

// gradient is horizontally asymmetric so flips and crops are observable.
func gradient(x, y int) color.Color {
	return color.RGBA{R: uint8(x * 5 % 256), G: uint8(y * 7 % 256), B: 128, A: 255}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		data   func(t *testing.T) []byte
		expect func(t *testing.T, img image.Image, err error)
	}{
		{
			name: "empty payload",
			data: func(t *testing.T) []byte { return nil },
			expect: func(t *testing.T, img image.Image, err error) {
				assert.True(t, errors.Is(err, ErrInvalidImage))
				assert.Nil(t, img)
			},
		},
		{
			name: "garbage bytes",
			data: func(t *testing.T) []byte { return []byte("not an image at all") },
			expect: func(t *testing.T, img image.Image, err error) {
				assert.True(t, errors.Is(err, ErrInvalidImage))
			},
		},
		{
			name: "truncated png",
			data: func(t *testing.T) []byte {
				full := pngBytes(t, 16, 16, gradient)
				return full[:len(full)/2]
			},
			expect: func(t *testing.T, img image.Image, err error) {
				assert.True(t, errors.Is(err, ErrInvalidImage))
			},
		},
		{
			name: "valid png",
			data: func(t *testing.T) []byte { return pngBytes(t, 3, 3, black) },
			expect: func(t *testing.T, img image.Image, err error) {
				assert.NoError(t, err)
				assert.NotNil(t, img)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := Decode(tc.data(t))
			tc.expect(t, img, err)
		})
	}
}

func TestFromBytes_ShapeAndNormalization(t *testing.T) {
	tensor, err := FromBytes(pngBytes(t, 3, 3, black))
	assert.NoError(t, err)
	assert.Equal(t, Channels, tensor.C)
	assert.Equal(t, ImageSize, tensor.H)
	assert.Equal(t, ImageSize, tensor.W)

	// All-black pixels land at (0 - mean) / std on every channel.
	for c := 0; c < Channels; c++ {
		want := -channelMean[c] / channelStd[c]
		assert.InDelta(t, want, tensor.At(c, 0, 0), 1e-9)
		assert.InDelta(t, want, tensor.At(c, ImageSize-1, ImageSize-1), 1e-9)
	}
}

func TestFromBytes_StretchesAspectRatio(t *testing.T) {
	// A wide image still yields the fixed square shape.
	tensor, err := FromBytes(pngBytes(t, 100, 10, gradient))
	assert.NoError(t, err)
	assert.Equal(t, ImageSize, tensor.H)
	assert.Equal(t, ImageSize, tensor.W)
}

func TestEval_Deterministic(t *testing.T) {
	img, err := Decode(pngBytes(t, 50, 40, gradient))
	assert.NoError(t, err)

	first := Eval().Apply(img)
	second := Eval().Apply(img)
	assert.Equal(t, first.Data, second.Data)
}

func TestTrain_SeedReproducible(t *testing.T) {
	img, err := Decode(pngBytes(t, 50, 40, gradient))
	assert.NoError(t, err)

	first := Train(rand.New(rand.NewSource(9))).Apply(img)
	second := Train(rand.New(rand.NewSource(9))).Apply(img)
	assert.Equal(t, first.Data, second.Data)
}

func TestTrain_DiffersFromEval(t *testing.T) {
	img, err := Decode(pngBytes(t, 50, 40, gradient))
	assert.NoError(t, err)

	augmented := Train(rand.New(rand.NewSource(9))).Apply(img)
	plain := Eval().Apply(img)
	assert.NotEqual(t, plain.Data, augmented.Data)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.png")
	assert.NoError(t, os.WriteFile(good, pngBytes(t, 4, 4, black), 0o644))
	assert.NoError(t, ValidateFile(good))

	bad := filepath.Join(dir, "bad.png")
	assert.NoError(t, os.WriteFile(bad, []byte("junk"), 0o644))
	assert.True(t, errors.Is(ValidateFile(bad), ErrInvalidImage))

	assert.Error(t, ValidateFile(filepath.Join(dir, "missing.png")))
}
