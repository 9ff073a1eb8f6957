package rtlsdr

import "testing"

func TestNearestGain(t *testing.T) {
	// R820T gain table, tenths of dB.
	gains := []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207, 229, 254, 280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439, 445, 480, 496}
	tests := []struct {
		gain float64
		want int
	}{
		{0, 0},
		{50, 496},
		{20, 197},
		{30, 297},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := NearestGain(gains, tt.gain); got != tt.want {
			t.Errorf("NearestGain(%v) = %d, want %d", tt.gain, got, tt.want)
		}
	}
	if got := NearestGain(nil, 12.5); got != 125 {
		t.Errorf("NearestGain(nil) = %d, want 125", got)
	}
}

func TestFromCU8(t *testing.T) {
	dst := make([]complex64, 4)
	n := FromCU8(dst, []byte{255, 0, 128, 127, 0})
	if n != 2 {
		t.Fatalf("FromCU8() = %d samples, want 2", n)
	}
	if real(dst[0]) != 1 || imag(dst[0]) != -1 {
		t.Errorf("dst[0] = %v, want (1-1i)", dst[0])
	}
	if r := real(dst[1]); r <= 0 || r > 0.01 {
		t.Errorf("real(dst[1]) = %v, want just above zero", r)
	}

	short := make([]complex64, 1)
	if n := FromCU8(short, []byte{1, 2, 3, 4}); n != 1 {
		t.Errorf("FromCU8() into short buffer = %d, want 1", n)
	}
}
