package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float16ToFloat32 converts one IEEE 754 half-precision value.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var bits uint32
	switch {
	case exp == 0 && frac == 0:
		// Signed zero.
		bits = sign << 31
	case exp == 0:
		// Subnormal: normalize into float32 range.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		bits = sign<<31 | e<<23 | frac<<13
	case exp == 0x1f:
		// Inf / NaN.
		bits = sign<<31 | 0xff<<23 | frac<<13
	default:
		bits = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}

// BFloat16ToFloat32 converts one bfloat16 value (truncated float32).
func BFloat16ToFloat32(b uint16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// WidenHalf converts a raw little-endian buffer of 16-bit floats into a
// float32 RawTensor. Half-precision checkpoints are widened on load; the
// export pipeline is float32 end to end.
func WidenHalf(data []byte, shape Shape, bfloat bool) (*RawTensor, error) {
	n := shape.NumElements()
	if len(data) != n*2 {
		return nil, fmt.Errorf("half buffer is %d bytes, shape %v needs %d", len(data), shape, n*2)
	}
	out, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	dst := out.AsFloat32()
	for i := 0; i < n; i++ {
		h := binary.LittleEndian.Uint16(data[i*2:])
		if bfloat {
			dst[i] = BFloat16ToFloat32(h)
		} else {
			dst[i] = Float16ToFloat32(h)
		}
	}
	return out, nil
}
