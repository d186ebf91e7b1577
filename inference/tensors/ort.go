package tensors

import (
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-yolo-decode/inference/quant"
)

// FromORT wraps an onnxruntime output tensor. The buffer is borrowed, so the
// tensor must outlive any decode call made with the result.
//
// Arguments:
//   - name: The output name.
//   - t: The onnxruntime tensor.
//   - zp: The affine zero point (0 for float outputs).
//   - scale: The affine scale (1 for float outputs).
//
// Returns:
//   - Raw: The raw output.
func FromORT[T quant.Element](name string, t *ort.Tensor[T], zp int32, scale float32) Raw {
	shape := t.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	return Raw{
		Name:      name,
		Data:      t.GetData(),
		Dims:      dims,
		ZeroPoint: zp,
		Scale:     scale,
	}
}
