// Package postprocess - Ranking, suppression and coordinate mapping of detections.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-yolo-decode/images"
)

// Candidate is one raw detection in model-input pixel space.
type Candidate struct {
	// The box as origin and size in model-input pixels.
	Box images.Box
	// The confidence score of the candidate, in [0, 1].
	Score float32
	// The winning class index of the candidate.
	Class int
}

// Detection is one final detection in original-image pixel coordinates.
type Detection struct {
	Left   int     `json:"left" yaml:"left"`
	Top    int     `json:"top" yaml:"top"`
	Right  int     `json:"right" yaml:"right"`
	Bottom int     `json:"bottom" yaml:"bottom"`
	Score  float32 `json:"score" yaml:"score"`
	Class  int     `json:"class_id" yaml:"class_id"`
}

// Rect returns the detection corners as an inclusive rectangle.
func (d Detection) Rect() images.Rect {
	return images.Rect{X1: float32(d.Left), Y1: float32(d.Top), X2: float32(d.Right), Y2: float32(d.Bottom)}
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (score %.3f): (%d, %d), (%d, %d)",
		d.Class, d.Score, d.Left, d.Top, d.Right, d.Bottom)
}

// DetectionList is the bounded, score-ordered output of a decode call.
type DetectionList struct {
	// Results are ordered by descending score.
	Results []Detection `json:"results" yaml:"results"`
	// Count is len(Results).
	Count int `json:"count" yaml:"count"`
}
