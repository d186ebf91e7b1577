package yolov8

import "github.com/chewxy/math32"

// DFL decodes the four edge distributions of one cell into continuous
// offsets in grid-cell units.
//
// logits holds four consecutive groups of dflLen bins (left, top, right,
// bottom). Each group is turned into a distribution with a softmax and the
// offset is the expected bin index under it.
//
// Arguments:
//   - logits: 4*dflLen real-valued logits.
//   - dflLen: The number of bins per edge.
//
// Returns:
//   - The left, top, right and bottom offsets.
func DFL(logits []float32, dflLen int) [4]float32 {
	var box [4]float32
	DFLInto(&box, logits, dflLen)
	return box
}

// DFLInto is DFL writing into dst.
func DFLInto(dst *[4]float32, logits []float32, dflLen int) {
	for b := 0; b < 4; b++ {
		group := logits[b*dflLen : (b+1)*dflLen]

		peak := group[0]
		for _, v := range group[1:] {
			peak = math32.Max(peak, v)
		}

		var sum, acc float32
		for i, v := range group {
			e := math32.Exp(v - peak)
			sum += e
			acc += e * float32(i)
		}
		dst[b] = acc / sum
	}
}
