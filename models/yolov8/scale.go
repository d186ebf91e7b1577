package yolov8

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/inference/quant"
	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
)

// ErrInvalidShape is returned when a branch's tensors do not fit together.
var ErrInvalidShape = errors.New("invalid branch shape")

// Scale is one detection branch of the head.
type Scale[T quant.Element] struct {
	// Stride is the number of input pixels per grid cell.
	Stride int
	// Box holds 4*dflLen planes of edge distribution logits.
	Box tensors.View[T]
	// Score holds one plane per class.
	Score tensors.View[T]
	// ScoreSum is an optional single-plane early-reject signal. Nil disables it.
	ScoreSum *tensors.View[T]
}

// NewScale builds a branch and derives its stride from the model input height.
//
// Arguments:
//   - inputHeight: The model input height in pixels.
//   - box: The box regression tensor.
//   - score: The per-class score tensor.
//   - sum: The optional score-sum tensor, or nil.
//
// Returns:
//   - Scale[T]: The branch.
func NewScale[T quant.Element](inputHeight int, box, score tensors.View[T], sum *tensors.View[T]) Scale[T] {
	return Scale[T]{
		Stride:   inputHeight / box.GridH,
		Box:      box,
		Score:    score,
		ScoreSum: sum,
	}
}

// DFLLen returns the number of distribution bins per box edge.
func (s Scale[T]) DFLLen() int {
	return s.Box.Channels / 4
}

// Validate checks that the branch tensors share a grid, the box tensor holds
// four equal edge groups and the score tensor holds numClasses planes.
func (s Scale[T]) Validate(numClasses int) error {
	if s.Stride <= 0 {
		return errors.Wrapf(ErrInvalidShape, "stride %d must be positive", s.Stride)
	}
	if s.Box.Channels == 0 || s.Box.Channels%4 != 0 {
		return errors.Wrapf(ErrInvalidShape, "box channels %d are not a positive multiple of 4", s.Box.Channels)
	}
	if s.Score.Channels != numClasses {
		return errors.Wrapf(ErrInvalidShape, "score channels %d, want %d classes", s.Score.Channels, numClasses)
	}
	views := []tensors.View[T]{s.Box, s.Score}
	if s.ScoreSum != nil {
		views = append(views, *s.ScoreSum)
	}
	for _, v := range views {
		if err := v.Validate(); err != nil {
			return err
		}
		if v.GridH != s.Box.GridH || v.GridW != s.Box.GridW {
			return errors.Wrapf(ErrInvalidShape, "grid %dx%d does not match box grid %dx%d",
				v.GridH, v.GridW, s.Box.GridH, s.Box.GridW)
		}
	}
	return nil
}
