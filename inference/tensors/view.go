// Package tensors - Read-only indexed views over detector output tensors.
//
// A detector head emits NCHW tensors with a batch of one. A View addresses an
// element by (row, col, channel) using the planar offset
// `channel*GridH*GridW + row*GridW + col`.
package tensors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/inference/quant"
)

// ErrInvalidShape is returned when a tensor's dimensions do not match its buffer.
var ErrInvalidShape = errors.New("invalid tensor shape")

// ErrUnsupportedType is returned for element types outside int8, uint8 and float32.
var ErrUnsupportedType = errors.New("unsupported tensor element type")

// DType tags the numeric representation of a tensor.
type DType int

const (
	// Int8Affine is a signed 8-bit affine-quantized tensor.
	Int8Affine DType = iota
	// Uint8Affine is an unsigned 8-bit affine-quantized tensor.
	Uint8Affine
	// Float32 is an unquantized 32-bit float tensor.
	Float32
)

func (d DType) String() string {
	switch d {
	case Int8Affine:
		return "int8-affine"
	case Uint8Affine:
		return "uint8-affine"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// View is a read-only view of one output tensor.
type View[T quant.Element] struct {
	// Data is the planar tensor buffer. The view never mutates it.
	Data []T
	// Channels is the number of planes in the tensor.
	Channels int
	// GridH and GridW are the spatial grid dimensions.
	GridH, GridW int
	// ZeroPoint and Scale are the affine parameters of quantized tensors.
	ZeroPoint int32
	Scale     float32
}

// NewView creates a view and validates that the buffer covers the shape.
//
// Arguments:
//   - data: The planar tensor buffer.
//   - channels: The number of channels.
//   - gridH: The grid height.
//   - gridW: The grid width.
//   - zp: The affine zero point (ignored for float32).
//   - scale: The affine scale (ignored for float32).
//
// Returns:
//   - View[T]: The view.
//   - error: ErrInvalidShape if the dimensions are not positive or the buffer is too short.
func NewView[T quant.Element](data []T, channels, gridH, gridW int, zp int32, scale float32) (View[T], error) {
	v := View[T]{
		Data:      data,
		Channels:  channels,
		GridH:     gridH,
		GridW:     gridW,
		ZeroPoint: zp,
		Scale:     scale,
	}
	return v, v.Validate()
}

// Validate checks that the dimensions are positive and the buffer holds
// Channels*GridH*GridW elements.
func (v View[T]) Validate() error {
	if v.Channels <= 0 || v.GridH <= 0 || v.GridW <= 0 {
		return errors.Wrapf(ErrInvalidShape, "dims [%d, %d, %d] must be positive",
			v.Channels, v.GridH, v.GridW)
	}
	if need := v.Channels * v.GridH * v.GridW; len(v.Data) < need {
		return errors.Wrapf(ErrInvalidShape, "buffer holds %d elements, needs %d", len(v.Data), need)
	}
	return nil
}

// ChannelStride is the distance between two planes of the same cell.
func (v View[T]) ChannelStride() int {
	return v.GridH * v.GridW
}

// Offset returns the buffer index of (row, col, channel).
func (v View[T]) Offset(row, col, channel int) int {
	return channel*v.GridH*v.GridW + row*v.GridW + col
}

// At returns the stored element at (row, col, channel).
func (v View[T]) At(row, col, channel int) T {
	return v.Data[v.Offset(row, col, channel)]
}

// Codec returns the representation codec of the view's element type.
func (v View[T]) Codec() quant.Codec[T] {
	return quant.For[T](v.ZeroPoint, v.Scale)
}

// DType reports the numeric representation of the view.
func (v View[T]) DType() DType {
	return DTypeOf[T]()
}

// DTypeOf reports the numeric representation of T.
func DTypeOf[T quant.Element]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8Affine
	case uint8:
		return Uint8Affine
	default:
		return Float32
	}
}
