package inference

import (
	"image"

	"github.com/pkg/errors"
)

// PrepareInput writes an image into a planar RGB float32 buffer normalised
// to [0, 1]. The image must already be at the model input size.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination buffer of 3*W*H floats.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, dst []float32) error {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channelSize := w * h
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
