package tensors

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// FromDense wraps a gorgonia dense tensor. The buffer is borrowed.
//
// Arguments:
//   - name: The output name.
//   - d: The dense tensor; its backing data must be []int8, []uint8 or []float32.
//   - zp: The affine zero point.
//   - scale: The affine scale.
//
// Returns:
//   - Raw: The raw output.
//   - error: ErrUnsupportedType for other element types.
func FromDense(name string, d *tensor.Dense, zp int32, scale float32) (Raw, error) {
	r := Raw{
		Name:      name,
		Data:      d.Data(),
		Dims:      append([]int(nil), d.Shape()...),
		ZeroPoint: zp,
		Scale:     scale,
	}
	if _, err := r.DType(); err != nil {
		return Raw{}, errors.Wrapf(err, "dense output %q", name)
	}
	return r, nil
}
