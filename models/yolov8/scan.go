package yolov8

import (
	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference/quant"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

// ScanScale walks one branch grid in row-major order and appends a candidate
// for every cell whose best class score exceeds conf.
//
// Thresholds are compared in the tensors' native representation: for
// quantized branches conf is quantized once per tensor and cells are filtered
// with integer comparisons. Only emitted scores and box logits are
// dequantized.
//
// Arguments:
//   - s: The branch.
//   - numClasses: The number of score planes to scan.
//   - conf: The confidence threshold in [0, 1].
//   - dst: The slice to append to.
//
// Returns:
//   - dst with the branch candidates appended.
func ScanScale[T quant.Element](s Scale[T], numClasses int, conf float32, dst []postprocess.Candidate) []postprocess.Candidate {
	scoreCodec := s.Score.Codec()
	boxCodec := s.Box.Codec()

	scoreThreshold := scoreCodec.Threshold(conf)
	floor := scoreCodec.Threshold(0)

	var sumThreshold T
	if s.ScoreSum != nil {
		sumThreshold = s.ScoreSum.Codec().Threshold(conf)
	}

	dflLen := s.DFLLen()
	logits := make([]float32, 4*dflLen)
	stride := float32(s.Stride)
	var box [4]float32

	for row := 0; row < s.Box.GridH; row++ {
		for col := 0; col < s.Box.GridW; col++ {
			if s.ScoreSum != nil && s.ScoreSum.At(row, col, 0) < sumThreshold {
				continue
			}

			maxScore := floor
			maxClass := -1
			for c := 0; c < numClasses; c++ {
				v := s.Score.At(row, col, c)
				if v > scoreThreshold && v > maxScore {
					maxScore = v
					maxClass = c
				}
			}
			if maxScore <= scoreThreshold {
				continue
			}

			for k := range logits {
				logits[k] = boxCodec.Value(s.Box.At(row, col, k))
			}
			DFLInto(&box, logits, dflLen)

			cx := float32(col) + 0.5
			cy := float32(row) + 0.5
			x1 := (cx - box[0]) * stride
			y1 := (cy - box[1]) * stride
			x2 := (cx + box[2]) * stride
			y2 := (cy + box[3]) * stride

			dst = append(dst, postprocess.Candidate{
				Box:   images.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1},
				Score: scoreCodec.Value(maxScore),
				Class: maxClass,
			})
		}
	}
	return dst
}

// Candidates scans every branch and returns the candidates in branch order.
func Candidates[T quant.Element](scales []Scale[T], numClasses int, conf float32) []postprocess.Candidate {
	var cands []postprocess.Candidate
	for _, s := range scales {
		cands = ScanScale(s, numClasses, conf, cands)
	}
	return cands
}
