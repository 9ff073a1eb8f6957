package util

import (
	"testing"
	"time"
)

func TestMHzToString(t *testing.T) {
	tests := []struct {
		hz   float64
		want string
	}{
		{863.5e6, "863.5MHz"},
		{868e6, "868MHz"},
		{433.92e6, "433.92MHz"},
		{0, "0MHz"},
	}
	for _, tt := range tests {
		if got := MHzToString(tt.hz); got != tt.want {
			t.Errorf("MHzToString(%v) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}

func TestFrequencySpan(t *testing.T) {
	low, high := FrequencySpan(863.5e6, 862e6, 865e6)
	if low != 862e6 || high != 865e6 {
		t.Errorf("FrequencySpan() = %v, %v", low, high)
	}
}

func TestBandEdges(t *testing.T) {
	low, high := BandEdges(863.5e6, 2e6)
	if low != 862.5e6 || high != 864.5e6 {
		t.Errorf("BandEdges() = %v, %v", low, high)
	}
}

func TestTimeOperationMicroseconds(t *testing.T) {
	us := TimeOperationMicroseconds(func() { time.Sleep(2 * time.Millisecond) })
	if us < 2000 {
		t.Errorf("TimeOperationMicroseconds() = %d, want >= 2000", us)
	}
}
