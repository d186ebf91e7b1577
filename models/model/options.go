// Package model - Model options.
package model

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
)

// Precision represents the numeric precision of the model outputs.
type Precision string

const (
	// PrecisionINT8 represents signed 8-bit affine-quantized outputs.
	PrecisionINT8 Precision = "INT8"
	// PrecisionUINT8 represents unsigned 8-bit affine-quantized outputs.
	PrecisionUINT8 Precision = "UINT8"
	// PrecisionFP32 represents 32-bit floating point outputs.
	PrecisionFP32 Precision = "FP32"
)

// DType maps the precision onto the tensor element type.
func (p Precision) DType() (tensors.DType, error) {
	switch p {
	case PrecisionINT8:
		return tensors.Int8Affine, nil
	case PrecisionUINT8:
		return tensors.Uint8Affine, nil
	case PrecisionFP32:
		return tensors.Float32, nil
	default:
		return 0, errors.Wrapf(tensors.ErrUnsupportedType, "precision %q", p)
	}
}
