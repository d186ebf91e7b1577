package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// DefaultPadColor is the grey used to fill letterbox borders.
var DefaultPadColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// ErrInvalidLetterbox is returned for letterbox parameters that cannot be inverted.
var ErrInvalidLetterbox = errors.New("invalid letterbox parameters")

// Letterbox describes how an original image was fitted into the model input:
// model = original*Scale + Pad.
type Letterbox struct {
	// Scale is the uniform resize factor. Must be > 0.
	Scale float32 `json:"scale" yaml:"scale"`
	// PadX and PadY are the left and top borders in model pixels.
	PadX int `json:"pad_x" yaml:"pad_x"`
	PadY int `json:"pad_y" yaml:"pad_y"`
}

// IdentityLetterbox returns the letterbox of an image already at the model input size.
func IdentityLetterbox() Letterbox {
	return Letterbox{Scale: 1}
}

// Validate checks that the letterbox can be inverted.
func (l Letterbox) Validate() error {
	if !(l.Scale > 0) {
		return errors.Wrapf(ErrInvalidLetterbox, "scale %v must be > 0", l.Scale)
	}
	if l.PadX < 0 || l.PadY < 0 {
		return errors.Wrapf(ErrInvalidLetterbox, "pads (%d, %d) must be >= 0", l.PadX, l.PadY)
	}
	return nil
}

// ToModel maps an original-image point into model-input space.
func (l Letterbox) ToModel(x, y float32) (float32, float32) {
	return x*l.Scale + float32(l.PadX), y*l.Scale + float32(l.PadY)
}

// ComputeLetterbox fits a srcW x srcH image into dstW x dstH without
// distortion. The limiting side is scaled to fill the destination and the
// other side is centred with padding.
//
// Arguments:
//   - srcW, srcH: The original image size.
//   - dstW, dstH: The model input size.
//
// Returns:
//   - Letterbox: The scale and padding.
//   - image.Point: The size of the resized image inside the padding.
func ComputeLetterbox(srcW, srcH, dstW, dstH int) (Letterbox, image.Point) {
	scaleW := float32(dstW) / float32(srcW)
	scaleH := float32(dstH) / float32(srcH)

	lb := Letterbox{}
	size := image.Point{X: dstW, Y: dstH}
	if scaleW < scaleH {
		lb.Scale = scaleW
		size.Y = int(float32(srcH) * scaleW)
		lb.PadY = (dstH - size.Y) / 2
	} else {
		lb.Scale = scaleH
		size.X = int(float32(srcW) * scaleH)
		lb.PadX = (dstW - size.X) / 2
	}
	return lb, size
}

// ApplyLetterbox resizes img into a dstW x dstH canvas filled with pad.
//
// Arguments:
//   - img: The original image.
//   - dstW, dstH: The model input size.
//   - pad: The border colour.
//
// Returns:
//   - *image.RGBA: The letterboxed image.
//   - Letterbox: The parameters needed to map detections back.
//   - error: An error if either size is not positive.
func ApplyLetterbox(img image.Image, dstW, dstH int, pad color.Color) (*image.RGBA, Letterbox, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, Letterbox{}, errors.Errorf("empty source image %v", b)
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, Letterbox{}, errors.Errorf("invalid dimensions: width=%d, height=%d", dstW, dstH)
	}

	lb, size := ComputeLetterbox(b.Dx(), b.Dy(), dstW, dstH)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(pad), image.Point{}, draw.Src)

	resized := resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
	at := image.Rect(lb.PadX, lb.PadY, lb.PadX+size.X, lb.PadY+size.Y)
	draw.Draw(dst, at, resized, resized.Bounds().Min, draw.Src)

	return dst, lb, nil
}
