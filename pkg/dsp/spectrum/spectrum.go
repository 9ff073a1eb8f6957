// Package spectrum turns a batch of complex baseband samples into a
// centred, log-scaled magnitude spectrum on an absolute frequency axis.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Epsilon keeps log10 finite for empty bins.
const Epsilon = 1e-6

type WindowType int

const (
	Hann WindowType = iota
	Hamming
	Blackman
	Bartlett
	FlatTop
	Rectangular
)

var windowFuncs = map[WindowType]func(int) []float64{
	Hann:        window.Hann,
	Hamming:     window.Hamming,
	Blackman:    window.Blackman,
	Bartlett:    window.Bartlett,
	FlatTop:     window.FlatTop,
	Rectangular: window.Rectangular,
}

var windowNames = map[string]WindowType{
	"hann":        Hann,
	"hanning":     Hann,
	"hamming":     Hamming,
	"blackman":    Blackman,
	"bartlett":    Bartlett,
	"flattop":     FlatTop,
	"rectangular": Rectangular,
	"none":        Rectangular,
}

func ParseWindow(name string) (WindowType, error) {
	if name == "" {
		return Hann, nil
	}
	w, ok := windowNames[strings.ToLower(name)]
	if !ok {
		return Hann, fmt.Errorf("unknown window %q", name)
	}
	return w, nil
}

// Frame is one spectrum: Power[i] in dB at Frequencies[i] Hz.
type Frame struct {
	Frequencies []float64
	Power       []float64
}

func (f Frame) Len() int {
	return len(f.Power)
}

// Peak returns the index and power of the strongest bin, or (-1, -Inf) for
// an empty frame.
func (f Frame) Peak() (int, float64) {
	if len(f.Power) == 0 {
		return -1, math.Inf(-1)
	}
	idx := floats.MaxIdx(f.Power)
	return idx, f.Power[idx]
}

// Transform applies a Hann window, takes the DFT, centres zero frequency
// and maps bins to absolute frequency. It allocates everything it uses and
// is safe for concurrent use.
func Transform(samples []complex64, sampleRate, centerFreq float64) Frame {
	return NewAnalyzer(Hann).Transform(samples, sampleRate, centerFreq)
}

// Analyzer caches the window and FFT plan for the last batch length seen.
// Output is identical to a fresh computation. Not safe for concurrent use.
type Analyzer struct {
	windowType WindowType
	n          int
	win        []float64
	fft        *fourier.CmplxFFT
	work       []complex128
	coeffs     []complex128
}

func NewAnalyzer(w WindowType) *Analyzer {
	if _, ok := windowFuncs[w]; !ok {
		w = Hann
	}
	return &Analyzer{windowType: w}
}

func (a *Analyzer) prepare(n int) {
	if a.n == n && a.win != nil {
		return
	}
	a.n = n
	a.win = windowFuncs[a.windowType](n)
	if n > 1 {
		a.fft = fourier.NewCmplxFFT(n)
	}
	a.work = make([]complex128, n)
	a.coeffs = make([]complex128, n)
}

// Transform returns a newly allocated Frame of len(samples) bins.
func (a *Analyzer) Transform(samples []complex64, sampleRate, centerFreq float64) Frame {
	n := len(samples)
	frame := Frame{
		Frequencies: make([]float64, n),
		Power:       make([]float64, n),
	}
	if n == 0 {
		return frame
	}
	a.prepare(n)

	for i, v := range samples {
		a.work[i] = complex(float64(real(v))*a.win[i], float64(imag(v))*a.win[i])
	}
	if n == 1 {
		copy(a.coeffs, a.work)
	} else {
		a.fft.Coefficients(a.coeffs, a.work)
	}

	binWidth := sampleRate / float64(n)
	half := n / 2
	for i := 0; i < n; i++ {
		frame.Power[i] = 20 * math.Log10(cmplx.Abs(a.coeffs[ShiftIdx(i, n)])+Epsilon)
		frame.Frequencies[i] = centerFreq + float64(i-half)*binWidth
	}
	return frame
}

// ShiftIdx maps a position in the centred spectrum to the DFT output index,
// so that position n/2 holds zero frequency and negative frequencies come
// first.
func ShiftIdx(i, n int) int {
	return (i + n - n/2) % n
}

// Shift reorders DFT output so zero frequency is centred.
func Shift(coeffs []complex128) []complex128 {
	n := len(coeffs)
	ret := make([]complex128, n)
	for i := range ret {
		ret[i] = coeffs[ShiftIdx(i, n)]
	}
	return ret
}
