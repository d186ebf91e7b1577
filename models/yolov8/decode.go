// Package yolov8 - Decoding of YOLOv8 DFL-head outputs.
//
// The head emits, per branch, a box tensor of 4*dflLen planes, a score tensor
// of one plane per class and optionally a single-plane score sum. Decode turns
// the branches into a bounded list of detections in original-image pixels.
package yolov8

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference/quant"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid decode params")

// Params are the fixed settings of a decode call.
type Params struct {
	// ConfThreshold is the minimum class score, in [0, 1].
	ConfThreshold float32
	// NMSThreshold is the IoU above which a lower-scored same-class box is removed, in [0, 1].
	NMSThreshold float32
	// NumClasses is the number of score planes per branch.
	NumClasses int
	// MaxDetections bounds the output list.
	MaxDetections int
	// InputWidth and InputHeight are the model input size in pixels.
	InputWidth, InputHeight int
}

// Validate checks the decode constraints.
func (p Params) Validate() error {
	switch {
	case !(p.ConfThreshold >= 0 && p.ConfThreshold <= 1):
		return errors.Wrapf(ErrInvalidParams, "confidence threshold %v not in [0, 1]", p.ConfThreshold)
	case !(p.NMSThreshold >= 0 && p.NMSThreshold <= 1):
		return errors.Wrapf(ErrInvalidParams, "nms threshold %v not in [0, 1]", p.NMSThreshold)
	case p.NumClasses < 1:
		return errors.Wrapf(ErrInvalidParams, "num classes %d < 1", p.NumClasses)
	case p.MaxDetections < 0:
		return errors.Wrapf(ErrInvalidParams, "max detections %d < 0", p.MaxDetections)
	case p.InputWidth <= 0 || p.InputHeight <= 0:
		return errors.Wrapf(ErrInvalidParams, "input size %dx%d", p.InputWidth, p.InputHeight)
	}
	return nil
}

// Decode converts the branches of one inference into detections.
//
// The call is pure: it reads the branch tensors and the letterbox, and
// allocates its working set locally, so independent calls may run
// concurrently. Shapes are assumed valid (see Scale.Validate) and lb.Scale
// must be > 0.
//
// Arguments:
//   - scales: The head branches.
//   - lb: The letterbox used to build the model input.
//   - p: The decode settings.
//
// Returns:
//   - postprocess.DetectionList: At most p.MaxDetections detections by descending score.
func Decode[T quant.Element](scales []Scale[T], lb images.Letterbox, p Params) postprocess.DetectionList {
	list, _ := DecodeWithStats(scales, lb, p)
	return list
}

// Stats are the stage counts of one decode call.
type Stats struct {
	// Candidates is the number of cells above the confidence threshold.
	Candidates int
	// Survivors is the number of candidates left after per-class NMS.
	Survivors int
}

// DecodeWithStats is Decode also reporting its stage counts.
func DecodeWithStats[T quant.Element](scales []Scale[T], lb images.Letterbox, p Params) (postprocess.DetectionList, Stats) {
	cands := Candidates(scales, p.NumClasses, p.ConfThreshold)
	order := postprocess.ApplyClassNMS(cands, p.NMSThreshold)
	list := postprocess.Aggregate(cands, order, lb, p.InputWidth, p.InputHeight, p.MaxDetections)

	stats := Stats{Candidates: len(cands)}
	for _, n := range order {
		if n != postprocess.Suppressed {
			stats.Survivors++
		}
	}
	return list, stats
}
