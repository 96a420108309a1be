// Package pipeline turns raw image bytes into the fixed-shape normalized
// tensors the classifier consumes. Training and serving share the same
// resize and normalization; only training adds augmentation.
package pipeline

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/internal/nn"
)

const (
	// ImageSize is the square dimension every image is stretched to.
	// Aspect ratio is deliberately ignored.
	ImageSize = 224

	// Channels is the RGB channel count.
	Channels = 3

	// cropPad is the extra border used by the training-time random crop.
	cropPad = 8
)

// ErrInvalidImage marks a corrupt or undecodable input. The pipeline never
// substitutes a placeholder.
var ErrInvalidImage = errors.New("invalid image")

// Per-channel normalization constants, identical for training and serving.
var (
	channelMean = [Channels]float64{0.485, 0.456, 0.406}
	channelStd  = [Channels]float64{0.229, 0.224, 0.225}
)

// Decode parses JPEG or PNG bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidImage, "empty payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidImage, "decode: %v", err)
	}
	return img, nil
}

// Transform maps a decoded image to a normalized CHW tensor of constant
// shape.
type Transform interface {
	Apply(img image.Image) *nn.Tensor
}

// Eval returns the deterministic serving-time transform: stretch-resize,
// scale to [0,1], normalize.
func Eval() Transform {
	return evalTransform{}
}

// Train returns the training-time transform: random horizontal flip and a
// random crop out of a slightly enlarged resize, then the same
// normalization. Randomness comes from rng, independent per sample.
func Train(rng *rand.Rand) Transform {
	return &trainTransform{rng: rng}
}

// FromBytes decodes and applies the serving-time transform.
func FromBytes(data []byte) (*nn.Tensor, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Eval().Apply(img), nil
}

// ValidateFile reports whether a file on disk holds a decodable image.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if _, err := Decode(data); err != nil {
		return errors.Wrapf(err, "validate %s", path)
	}
	return nil
}

type evalTransform struct{}

func (evalTransform) Apply(img image.Image) *nn.Tensor {
	resized := resize.Resize(ImageSize, ImageSize, img, resize.Bilinear)
	return toTensor(resized, 0, 0, false)
}

type trainTransform struct {
	rng *rand.Rand
}

func (t *trainTransform) Apply(img image.Image) *nn.Tensor {
	padded := ImageSize + 2*cropPad
	resized := resize.Resize(uint(padded), uint(padded), img, resize.Bilinear)
	offX := t.rng.Intn(2*cropPad + 1)
	offY := t.rng.Intn(2*cropPad + 1)
	flip := t.rng.Float64() < 0.5
	return toTensor(resized, offX, offY, flip)
}

// toTensor samples an ImageSize crop at (offX, offY), optionally mirrored,
// scales 16-bit channel values to [0,1] and applies the per-channel
// normalization.
func toTensor(img image.Image, offX, offY int, flip bool) *nn.Tensor {
	t := nn.NewTensor(Channels, ImageSize, ImageSize)
	bounds := img.Bounds()
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			srcX := offX + x
			if flip {
				srcX = offX + ImageSize - 1 - x
			}
			r, g, b, _ := img.At(bounds.Min.X+srcX, bounds.Min.Y+offY+y).RGBA()

			t.Set(0, y, x, (float64(r)/65535.0-channelMean[0])/channelStd[0])
			t.Set(1, y, x, (float64(g)/65535.0-channelMean[1])/channelStd[1])
			t.Set(2, y, x, (float64(b)/65535.0-channelMean[2])/channelStd[2])
		}
	}
	return t
}
