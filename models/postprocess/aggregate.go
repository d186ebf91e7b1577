package postprocess

import (
	"github.com/nvr-ai/go-yolo-decode/images"
)

// Aggregate unmaps surviving candidates into a bounded detection list.
//
// Arguments:
//   - cands: The candidates.
//   - order: The ranked order produced by ApplyClassNMS.
//   - lb: The letterbox used to build the model input.
//   - modelW, modelH: The model input size.
//   - maxDetections: The capacity of the list. Lower-ranked survivors past it are dropped.
//
// Returns:
//   - DetectionList: The detections in descending score order.
func Aggregate(cands []Candidate, order []int, lb images.Letterbox, modelW, modelH, maxDetections int) DetectionList {
	capacity := min(len(order), max(maxDetections, 0))
	list := DetectionList{Results: make([]Detection, 0, capacity)}
	for _, n := range order {
		if len(list.Results) >= maxDetections {
			break
		}
		if n == Suppressed {
			continue
		}
		list.Results = append(list.Results, Unmap(cands[n], lb, modelW, modelH))
	}
	list.Count = len(list.Results)
	return list
}
