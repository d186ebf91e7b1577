// Package images - Box geometry and letterboxing for detector inputs and outputs.
package images

import "github.com/chewxy/math32"

// Box is a detection box in model-input pixels, stored as origin and size.
type Box struct {
	X, Y, W, H float32
}

// Rect converts the box into corner form.
func (b Box) Rect() Rect {
	return Rect{X1: b.X, Y1: b.Y, X2: b.X + b.W, Y2: b.Y + b.H}
}

// Rect is a bounding box in corner form. Both corners are inclusive pixel
// coordinates, so a box from 0 to 9 is 10 pixels wide.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Area returns the inclusive pixel area of r.
func (r Rect) Area() float32 {
	return (r.X2 - r.X1 + 1) * (r.Y2 - r.Y1 + 1)
}

// InclusiveIoU computes Intersection over Union using the inclusive-pixel
// convention of the detector's reference post-processing.
//
// The overlap of two boxes is found from the maximum of the starting corners
// and the minimum of the ending corners, with one pixel added to each side:
//
//	overlap = max(0, min(x2a, x2b) - max(x1a, x1b) + 1) *
//	          max(0, min(y2a, y2b) - max(y1a, y1b) + 1)
//	union   = area(a) + area(b) - overlap
//
// Boxes that merely touch therefore share one column or row of pixels and
// produce a small but non-zero IoU.
//
// Arguments:
//   - a: The first rectangle.
//   - b: The second rectangle.
//
// Returns:
//   - float32: overlap/union, or 0 if the union is not positive.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 9, Y2: 9}   // 10x10 pixels
//	b := Rect{X1: 5, Y1: 5, X2: 14, Y2: 14} // 10x10 pixels
//
//	iou := InclusiveIoU(a, b) // overlap 5x5=25, union 175, iou 0.142857
//
// ```
func InclusiveIoU(a, b Rect) float32 {
	w := math32.Max(0, math32.Min(a.X2, b.X2)-math32.Max(a.X1, b.X1)+1)
	h := math32.Max(0, math32.Min(a.Y2, b.Y2)-math32.Max(a.Y1, b.Y1)+1)
	overlap := w * h
	union := a.Area() + b.Area() - overlap
	if union <= 0 {
		return 0
	}
	return overlap / union
}
