// Package quant - Affine quantization helpers for detector output tensors.
//
// Quantized tensors encode a real value as `stored = round(real/scale) + zp`
// and decode it as `real = (stored - zp) * scale`.
package quant

import (
	"github.com/chewxy/math32"
)

// Integer is the set of stored integer representations supported by the
// affine codec.
type Integer interface {
	int8 | uint8
}

// Element is the closed set of tensor element types a detector head may emit.
type Element interface {
	int8 | uint8 | float32
}

// Dequantize converts a stored affine value back into real units.
//
// Arguments:
//   - stored: The stored integer value.
//   - zp: The zero point of the tensor.
//   - scale: The scale of the tensor.
//
// Returns:
//   - The real value `(stored - zp) * scale`.
func Dequantize[T Integer](stored T, zp int32, scale float32) float32 {
	return (float32(stored) - float32(zp)) * scale
}

// Quantize converts a real value into the stored representation of T,
// clamping silently to the range of T.
//
// Arguments:
//   - real: The real value to encode.
//   - zp: The zero point of the tensor.
//   - scale: The scale of the tensor.
//
// Returns:
//   - The stored value `clamp(round(real/scale) + zp, min(T), max(T))`.
func Quantize[T Integer](real float32, zp int32, scale float32) T {
	return encode[T](math32.Round(real/scale), zp)
}

// QuantizeFloor is Quantize rounding toward negative infinity. For a
// positive scale and any stored s, `s > QuantizeFloor(t)` holds exactly when
// `Dequantize(s) > t`, which makes it the encoding of comparison thresholds.
//
// Arguments:
//   - real: The real value to encode.
//   - zp: The zero point of the tensor.
//   - scale: The scale of the tensor.
//
// Returns:
//   - The stored value `clamp(floor(real/scale) + zp, min(T), max(T))`.
func QuantizeFloor[T Integer](real float32, zp int32, scale float32) T {
	return encode[T](math32.Floor(real/scale), zp)
}

func encode[T Integer](steps float32, zp int32) T {
	lo, hi := Bounds[T]()
	v := steps + float32(zp)
	if math32.IsNaN(v) {
		v = float32(zp)
	}
	switch {
	case v < float32(lo):
		return lo
	case v > float32(hi):
		return hi
	}
	return T(v)
}

// Bounds returns the inclusive range of the stored representation T.
func Bounds[T Integer]() (lo, hi T) {
	var zero T
	if _, signed := any(zero).(int8); signed {
		minI8, maxI8 := int8(-128), int8(127)
		return T(minI8), T(maxI8)
	}
	maxU8 := uint8(255)
	return 0, T(maxU8)
}
