package mixer

import (
	"math"
)

const (
	tau float64 = math.Pi * 2
)

// WaveformMixer is a numerically controlled oscillator. It either rotates
// an input stream by its frequency (WorkBuffer) or emits the bare complex
// exponential (Generate). Phase is continuous across calls.
type WaveformMixer struct {
	sampleRate     float64
	frequency      float64
	phase          float64
	phaseIncrement float64
}

func (w *WaveformMixer) incrementPhase() {
	w.phase += w.phaseIncrement
	if w.phase > tau {
		w.phase -= tau
	} else if w.phase < -tau {
		w.phase += tau
	}
}

func NewWaveformMixer(sampleRate, frequency float64) *WaveformMixer {
	ret := &WaveformMixer{
		sampleRate:     sampleRate,
		frequency:      frequency,
		phaseIncrement: frequency * tau / sampleRate,
		phase:          0.0,
	}

	return ret
}

func (w *WaveformMixer) Frequency() float64 {
	return w.frequency
}

func (w *WaveformMixer) Reset() {
	w.phase = 0
}

func (w *WaveformMixer) WorkBuffer(input []complex64, output []complex64) int {

	for i := 0; i < len(input); i++ {

		sin, cos := math.Sincos(w.phase)

		output[i] = complex(float32(cos), float32(sin)) * input[i]
		w.incrementPhase()
	}

	return len(input)

}

func (w *WaveformMixer) Work(vals []complex64) []complex64 {

	ret := make([]complex64, len(vals))
	w.WorkBuffer(vals, ret)
	return ret

}

// Generate fills output with amplitude·e^(jφ) and advances the phase.
func (w *WaveformMixer) Generate(output []complex64, amplitude float32) int {
	for i := range output {
		sin, cos := math.Sincos(w.phase)
		output[i] = complex(amplitude*float32(cos), amplitude*float32(sin))
		w.incrementPhase()
	}
	return len(output)
}

func (w *WaveformMixer) PredictOutputSize(inputSize int) int {
	return inputSize
}
