package postprocess

import (
	"github.com/nvr-ai/go-yolo-decode/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// SuppressClass runs greedy suppression over the candidates of one class.
//
// Candidates are visited in order. Every live candidate n suppresses each
// later live candidate m of the same class whose IoU with n exceeds
// threshold, by setting its order slot to Suppressed. Suppressed slots are
// never restored.
//
// Arguments:
//   - cands: The candidates.
//   - order: Candidate indices sorted by descending score. Modified in place.
//   - class: The class to suppress within.
//   - threshold: The IoU above which the lower-ranked box is removed.
func SuppressClass(cands []Candidate, order []int, class int, threshold float32) {
	for i := 0; i < len(order); i++ {
		n := order[i]
		if n == Suppressed || cands[n].Class != class {
			continue
		}
		anchor := cands[n].Box.Rect()
		for j := i + 1; j < len(order); j++ {
			m := order[j]
			if m == Suppressed || cands[m].Class != class {
				continue
			}
			if images.InclusiveIoU(anchor, cands[m].Box.Rect()) > threshold {
				order[j] = Suppressed
			}
		}
	}
}

// ApplyClassNMS ranks candidates by score and suppresses overlaps within each
// class independently.
//
// Arguments:
//   - cands: The candidates.
//   - threshold: The IoU threshold.
//
// Returns:
//   - The ranked order with suppressed slots set to Suppressed.
func ApplyClassNMS(cands []Candidate, threshold float32) []int {
	order := Rank(cands)
	for _, c := range Classes(cands) {
		SuppressClass(cands, order, c, threshold)
	}
	return order
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression over
// detections that are already in output coordinates. It is used to merge
// lists decoded separately, for example from tiles of one frame.
//
// Arguments:
//   - detections: Slice of detections sorted by descending score.
//   - config: NMS configuration. If ClassAware, only same-class boxes suppress each other.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Detection, config *NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && detections[j].Class != anchor.Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.InclusiveIoU(anchor.Rect(), detections[j].Rect()) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
