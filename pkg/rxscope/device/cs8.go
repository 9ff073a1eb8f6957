package device

import (
	"github.com/norasector/turbine-common/types"
)

const cs8Scale = 1.0 / 128

// DecodeCS8 converts interleaved I-first signed 8-bit samples, as produced by
// libhackrf and hackrf_transfer, to complex64 in [-1, 1). The segment
// conversion in turbine-common reads each pair Q first and leaves it
// unscaled, so its output is swapped and scaled in place.
func DecodeCS8(seg *types.SegmentCS8Raw) []complex64 {
	samples := seg.ToComplex64().Data
	for i, v := range samples {
		samples[i] = complex(imag(v)*cs8Scale, real(v)*cs8Scale)
	}
	return samples
}

// EncodeCS8 appends the interleaved I-first signed 8-bit form of samples to
// dst. Components are clipped to [-1, 1].
func EncodeCS8(dst []byte, samples []complex64) []byte {
	for _, v := range samples {
		dst = append(dst, byte(toInt8(real(v))), byte(toInt8(imag(v))))
	}
	return dst
}

func toInt8(f float32) int8 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int8(f * 127)
}
