package hackrf

import (
	"fmt"
	"sync"

	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/samuel/go-hackrf/hackrf"
)

const (
	maxSampleRate = 20e6
	maxLNAGain    = 40
	lnaGainStep   = 8
	maxVGAGain    = 62
	vgaGainStep   = 2
	maxTXVGAGain  = 47
	ampGain       = 14

	// USB transfers carry 262144 bytes, i.e. 131072 CS8 samples. A few of
	// them are enough to ride out a slow display refresh.
	chunkQueueDepth = 8
)

// Baseband filter bandwidths supported by the MAX2837.
var basebandFilterBandwidths = []int{
	1750000, 2500000, 3500000, 5000000, 5500000, 6000000, 7000000, 8000000,
	9000000, 10000000, 12000000, 14000000, 15000000, 20000000, 24000000, 28000000,
}

type HackRFDevice struct {
	device   *hackrf.Device
	identity string

	mu         sync.Mutex
	sampleRate float64
	centerFreq float64
	stream     *stream
}

// Open opens the first free HackRF. hackrf.Init must have been called.
// go-hackrf exposes no serial-number lookup, so identities that name a
// serial are refused rather than silently bound to another board.
func Open(args device.Args) (device.Device, error) {
	if serial, ok := args["serial"]; ok {
		return nil, fmt.Errorf("hackrf: selecting serial %q: %w", serial, device.ErrUnsupported)
	}
	d, err := hackrf.Open()
	if err != nil {
		return nil, fmt.Errorf("hackrf: open: %w", err)
	}
	return &HackRFDevice{
		device:   d,
		identity: "driver=hackrf",
	}, nil
}

func (h *HackRFDevice) Identity() string {
	return h.identity
}

func checkChannel(channel int) error {
	if channel != 0 {
		return fmt.Errorf("hackrf: channel %d: %w", channel, device.ErrUnsupported)
	}
	return nil
}

func (h *HackRFDevice) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if rate <= 0 || rate > maxSampleRate {
		return fmt.Errorf("hackrf: sample rate %.0f outside (0, %.0f]", rate, float64(maxSampleRate))
	}
	if err := h.device.SetSampleRateManual(int(rate)*2, 2); err != nil {
		return err
	}
	if err := h.device.SetBasebandFilterBandwidth(BasebandFilterBandwidth(rate)); err != nil {
		return err
	}
	h.mu.Lock()
	h.sampleRate = rate
	h.mu.Unlock()
	return nil
}

func (h *HackRFDevice) SetFrequency(dir device.Direction, channel int, freq float64) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if err := h.device.SetFreq(uint64(freq)); err != nil {
		return err
	}
	h.mu.Lock()
	h.centerFreq = freq
	h.mu.Unlock()
	return nil
}

// SetGain spreads the requested gain over the RF amp, LNA and VGA stages,
// filling the LNA first.
func (h *HackRFDevice) SetGain(dir device.Direction, channel int, gain float64) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if dir == device.TX {
		amp, vga := SplitTXGain(gain)
		if err := h.device.SetTXVGAGain(vga); err != nil {
			return err
		}
		return h.device.SetAmpEnable(amp)
	}

	amp, lna, vga := SplitGain(gain)
	if err := h.device.SetLNAGain(lna); err != nil {
		return err
	}
	if err := h.device.SetVGAGain(vga); err != nil {
		return err
	}
	return h.device.SetAmpEnable(amp)
}

// SetDCOffsetMode is accepted but has no effect: the HackRF has no DC
// offset correction block.
func (h *HackRFDevice) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return checkChannel(channel)
}

// ClockSources reports both references. The board switches to CLKIN on its
// own as soon as a 10 MHz signal is present.
func (h *HackRFDevice) ClockSources() []string {
	return []string{device.ClockInternal, device.ClockExternal}
}

func (h *HackRFDevice) SetClockSource(source string) error {
	switch source {
	case device.ClockInternal, device.ClockExternal:
		return nil
	default:
		return fmt.Errorf("hackrf: clock source %q: %w", source, device.ErrUnsupported)
	}
}

func (h *HackRFDevice) SetupStream(dir device.Direction, format device.Format) (device.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream != nil && !h.stream.isClosed() {
		return nil, fmt.Errorf("hackrf: stream already set up")
	}
	h.stream = newStream(h, dir, int(h.sampleRate), int(h.centerFreq))
	return h.stream, nil
}

func (h *HackRFDevice) Close() error {
	h.mu.Lock()
	s := h.stream
	h.mu.Unlock()
	if s != nil {
		s.Close()
	}
	return h.device.Close()
}

// SplitGain divides a total receive gain over the LNA (8 dB steps), the
// 14 dB RF amp and the VGA (2 dB steps), in that order. The applied total
// never exceeds the request.
func SplitGain(gain float64) (amp bool, lna, vga int) {
	rest := int(gain)
	if rest < 0 {
		rest = 0
	}
	lna = rest / lnaGainStep * lnaGainStep
	if lna > maxLNAGain {
		lna = maxLNAGain
	}
	rest -= lna
	if rest >= ampGain {
		amp = true
		rest -= ampGain
	}
	vga = rest / vgaGainStep * vgaGainStep
	if vga > maxVGAGain {
		vga = maxVGAGain
	}
	return amp, lna, vga
}

// SplitTXGain fills the TX VGA (1 dB steps) and enables the RF amp only for
// the part the VGA cannot cover.
func SplitTXGain(gain float64) (amp bool, vga int) {
	vga = int(gain)
	if vga < 0 {
		vga = 0
	}
	if vga >= maxTXVGAGain+ampGain {
		return true, maxTXVGAGain
	}
	if vga > maxTXVGAGain {
		vga = maxTXVGAGain
	}
	return false, vga
}

// BasebandFilterBandwidth picks the widest supported filter below 75% of
// the sample rate, falling back to the narrowest.
func BasebandFilterBandwidth(sampleRate float64) int {
	target := int(sampleRate * 0.75)
	best := basebandFilterBandwidths[0]
	for _, bw := range basebandFilterBandwidths {
		if bw <= target {
			best = bw
		}
	}
	return best
}
