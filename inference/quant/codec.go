package quant

// Codec converts between a tensor's native element representation and real
// units. Scanners compare thresholds in the native representation and only
// decode values that are emitted.
type Codec[T Element] interface {
	// Value decodes a stored element into real units.
	Value(stored T) float32
	// Threshold encodes a real threshold t into the native representation
	// such that `stored > Threshold(t)` exactly when `Value(stored) > t`.
	Threshold(real float32) T
}

// Affine is the codec for int8 and uint8 affine-quantized tensors.
type Affine[T Integer] struct {
	ZeroPoint int32
	Scale     float32
}

// Value implements Codec.
func (a Affine[T]) Value(stored T) float32 {
	return Dequantize(stored, a.ZeroPoint, a.Scale)
}

// Threshold implements Codec.
func (a Affine[T]) Threshold(real float32) T {
	return QuantizeFloor[T](real, a.ZeroPoint, a.Scale)
}

// Identity is the codec for float32 tensors, which are already in real units.
type Identity struct{}

// Value implements Codec.
func (Identity) Value(stored float32) float32 { return stored }

// Threshold implements Codec.
func (Identity) Threshold(real float32) float32 { return real }

// For returns the codec matching the element type T. The zero point and
// scale are ignored for float32.
//
// Arguments:
//   - zp: The zero point of the tensor.
//   - scale: The scale of the tensor.
//
// Returns:
//   - The codec for T.
func For[T Element](zp int32, scale float32) Codec[T] {
	var zero T
	var c any
	switch any(zero).(type) {
	case int8:
		c = Affine[int8]{ZeroPoint: zp, Scale: scale}
	case uint8:
		c = Affine[uint8]{ZeroPoint: zp, Scale: scale}
	default:
		c = Identity{}
	}
	return c.(Codec[T])
}
