package util

import (
	"math"
	"strconv"
)

// MHzToString formats a frequency in Hz as MHz with trailing zeros dropped,
// e.g. 863.5e6 -> "863.5MHz".
func MHzToString(hz float64) string {
	return strconv.FormatFloat(hz/1e6, 'f', -1, 64) + "MHz"
}

// FrequencySpan returns the lowest and highest frequency of a set, used to
// place a spectrum window around them.
func FrequencySpan(freqs ...float64) (low, high float64) {
	low = math.Inf(1)
	high = math.Inf(-1)

	for _, freq := range freqs {
		if freq < low {
			low = freq
		}
		if freq > high {
			high = freq
		}
	}

	return
}

// BandEdges returns the edges of the band captured at sampleRate around
// centerFreq.
func BandEdges(centerFreq, sampleRate float64) (low, high float64) {
	return centerFreq - sampleRate/2, centerFreq + sampleRate/2
}
