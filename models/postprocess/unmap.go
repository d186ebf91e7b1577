package postprocess

import (
	"github.com/nvr-ai/go-yolo-decode/images"
)

// Unmap removes letterbox padding and scale from a candidate box.
//
// The corners are clamped to the model input before division, so the result
// always satisfies Left <= Right and Top <= Bottom for boxes of non-negative
// size. lb.Scale must be > 0.
//
// Arguments:
//   - c: The candidate in model-input pixels.
//   - lb: The letterbox used to build the model input.
//   - modelW, modelH: The model input size.
//
// Returns:
//   - Detection: The detection in original-image pixels, truncated toward zero.
func Unmap(c Candidate, lb images.Letterbox, modelW, modelH int) Detection {
	x1 := c.Box.X - float32(lb.PadX)
	y1 := c.Box.Y - float32(lb.PadY)
	x2 := x1 + c.Box.W
	y2 := y1 + c.Box.H

	w, h := float32(modelW), float32(modelH)
	return Detection{
		Left:   int(clamp(x1, 0, w) / lb.Scale),
		Top:    int(clamp(y1, 0, h) / lb.Scale),
		Right:  int(clamp(x2, 0, w) / lb.Scale),
		Bottom: int(clamp(y2, 0, h) / lb.Scale),
		Score:  c.Score,
		Class:  c.Class,
	}
}

func clamp(v, lo, hi float32) float32 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
