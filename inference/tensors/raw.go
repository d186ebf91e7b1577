package tensors

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/inference/quant"
)

// Raw is one engine output before its element type is resolved.
type Raw struct {
	// Name is the engine's output name, if any.
	Name string `json:"name" yaml:"name"`
	// Data is a []int8, []uint8 or []float32 buffer.
	Data any `json:"-" yaml:"-"`
	// Dims is the NCHW shape ([1, C, H, W] or [C, H, W]).
	Dims []int `json:"dims" yaml:"dims"`
	// ZeroPoint and Scale are the affine parameters of quantized outputs.
	ZeroPoint int32   `json:"zp" yaml:"zp"`
	Scale     float32 `json:"scale" yaml:"scale"`
}

// DType reports the element type of the raw buffer.
//
// Returns:
//   - DType: The element type.
//   - error: ErrUnsupportedType if the buffer is not int8, uint8 or float32.
func (r Raw) DType() (DType, error) {
	switch r.Data.(type) {
	case []int8:
		return Int8Affine, nil
	case []uint8:
		return Uint8Affine, nil
	case []float32:
		return Float32, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "%T", r.Data)
	}
}

// CHW returns the channel, height and width dimensions.
func (r Raw) CHW() (c, h, w int, err error) {
	dims := r.Dims
	if len(dims) == 4 {
		if dims[0] != 1 {
			return 0, 0, 0, errors.Wrapf(ErrInvalidShape, "batch %d, only batch 1 is supported", dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 3 {
		return 0, 0, 0, errors.Wrapf(ErrInvalidShape, "dims %v are not NCHW", r.Dims)
	}
	return dims[0], dims[1], dims[2], nil
}

// AsView resolves a raw output into a typed View.
//
// Arguments:
//   - r: The raw output.
//
// Returns:
//   - View[T]: The typed view.
//   - error: ErrUnsupportedType if the buffer is not []T, ErrInvalidShape for bad dims.
func AsView[T quant.Element](r Raw) (View[T], error) {
	data, ok := r.Data.([]T)
	if !ok {
		return View[T]{}, errors.Wrapf(ErrUnsupportedType, "output %q holds %T, want %s",
			r.Name, r.Data, DTypeOf[T]())
	}
	c, h, w, err := r.CHW()
	if err != nil {
		return View[T]{}, errors.Wrapf(err, "output %q", r.Name)
	}
	v, err := NewView(data, c, h, w, r.ZeroPoint, r.Scale)
	if err != nil {
		return View[T]{}, errors.Wrapf(err, "output %q", r.Name)
	}
	return v, nil
}

// Clone returns a copy of r that owns its buffer.
func (r Raw) Clone() Raw {
	out := r
	out.Dims = append([]int(nil), r.Dims...)
	switch d := r.Data.(type) {
	case []int8:
		out.Data = append([]int8(nil), d...)
	case []uint8:
		out.Data = append([]uint8(nil), d...)
	case []float32:
		out.Data = append([]float32(nil), d...)
	}
	return out
}
