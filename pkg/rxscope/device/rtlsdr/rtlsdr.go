package rtlsdr

import (
	"fmt"
	"sync"
	"time"

	gsdr "github.com/jpoirier/gortlsdr"
	"github.com/norasector/rxscope/pkg/rxscope/device"
)

const (
	maxSampleRate = 3.2e6
	// ReadSync lengths must be a multiple of the USB packet size.
	usbPacketSize = 512
)

type RTLSDRDevice struct {
	deviceIdx int
	device    *gsdr.Context

	mu     sync.Mutex
	stream *stream
}

// Open addresses a dongle by "serial" or by "index" (default 0).
func Open(args device.Args) (device.Device, error) {
	idx, err := args.Int("index", 0)
	if err != nil {
		return nil, err
	}
	if serial, ok := args["serial"]; ok {
		idx, err = gsdr.GetIndexBySerial(serial)
		if err != nil {
			return nil, fmt.Errorf("rtlsdr: serial %q: %w", serial, err)
		}
	}
	if count := gsdr.GetDeviceCount(); idx < 0 || idx >= count {
		return nil, fmt.Errorf("rtlsdr: device index %d not present (%d attached)", idx, count)
	}
	dev, err := gsdr.Open(idx)
	if err != nil {
		return nil, fmt.Errorf("rtlsdr: open %d: %w", idx, err)
	}
	return &RTLSDRDevice{deviceIdx: idx, device: dev}, nil
}

func (r *RTLSDRDevice) Identity() string {
	return fmt.Sprintf("driver=rtlsdr,index=%d", r.deviceIdx)
}

func checkRX(dir device.Direction, channel int) error {
	if dir != device.RX {
		return fmt.Errorf("rtlsdr: %s: %w", dir, device.ErrUnsupported)
	}
	if channel != 0 {
		return fmt.Errorf("rtlsdr: channel %d: %w", channel, device.ErrUnsupported)
	}
	return nil
}

func (r *RTLSDRDevice) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	if err := checkRX(dir, channel); err != nil {
		return err
	}
	if rate <= 0 || rate > maxSampleRate {
		return fmt.Errorf("rtlsdr: sample rate %.0f outside (0, %.0f]", rate, float64(maxSampleRate))
	}
	return r.device.SetSampleRate(int(rate))
}

func (r *RTLSDRDevice) SetFrequency(dir device.Direction, channel int, freq float64) error {
	if err := checkRX(dir, channel); err != nil {
		return err
	}
	return r.device.SetCenterFreq(int(freq))
}

// SetGain switches the tuner to manual gain and picks the closest step the
// tuner supports.
func (r *RTLSDRDevice) SetGain(dir device.Direction, channel int, gain float64) error {
	if err := checkRX(dir, channel); err != nil {
		return err
	}
	gains, err := r.device.GetTunerGains()
	if err != nil {
		return err
	}
	if err := r.device.SetTunerGainMode(true); err != nil {
		return err
	}
	return r.device.SetTunerGain(NearestGain(gains, gain))
}

// SetDCOffsetMode is accepted but has no effect on RTL2832U dongles.
func (r *RTLSDRDevice) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return checkRX(dir, channel)
}

func (r *RTLSDRDevice) ClockSources() []string {
	return []string{device.ClockInternal}
}

func (r *RTLSDRDevice) SetClockSource(source string) error {
	if source != device.ClockInternal {
		return fmt.Errorf("rtlsdr: clock source %q: %w", source, device.ErrUnsupported)
	}
	return nil
}

func (r *RTLSDRDevice) SetupStream(dir device.Direction, format device.Format) (device.Stream, error) {
	if err := checkRX(dir, 0); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil && !r.stream.closed {
		return nil, fmt.Errorf("rtlsdr: stream already set up")
	}
	r.stream = &stream{r: r}
	return r.stream, nil
}

func (r *RTLSDRDevice) Close() error {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
	return r.device.Close()
}

// NearestGain returns the supported gain (tenths of dB) closest to gain dB.
func NearestGain(gains []int, gain float64) int {
	want := int(gain * 10)
	if len(gains) == 0 {
		return want
	}
	best := gains[0]
	for _, g := range gains[1:] {
		if abs(g-want) < abs(best-want) {
			best = g
		}
	}
	return best
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

type stream struct {
	r      *RTLSDRDevice
	raw    []byte
	active bool
	closed bool
}

func (s *stream) Activate() error {
	if s.closed {
		return device.ErrStreamClosed
	}
	if s.active {
		return nil
	}
	if err := s.r.device.ResetBuffer(); err != nil {
		return err
	}
	s.active = true
	return nil
}

func (s *stream) Deactivate() error {
	if s.closed {
		return device.ErrStreamClosed
	}
	s.active = false
	return nil
}

// Read blocks in ReadSync; librtlsdr offers no timeout for synchronous
// transfers, so timeout is not honoured here.
func (s *stream) Read(buf []complex64, timeout time.Duration) (int, error) {
	if s.closed {
		return 0, device.ErrStreamClosed
	}
	if !s.active {
		return 0, nil
	}
	want := len(buf) * 2
	want -= want % usbPacketSize
	if want == 0 {
		return 0, nil
	}
	if cap(s.raw) < want {
		s.raw = make([]byte, want)
	}
	raw := s.raw[:want]
	n, err := s.r.device.ReadSync(raw, want)
	if err != nil {
		return 0, err
	}
	return FromCU8(buf, raw[:n]), nil
}

func (s *stream) Write(buf []complex64, timeout time.Duration) (int, error) {
	return 0, fmt.Errorf("rtlsdr: write: %w", device.ErrUnsupported)
}

func (s *stream) Close() error {
	s.active = false
	s.closed = true
	return nil
}

// FromCU8 converts interleaved unsigned 8-bit I/Q into dst and returns the
// number of samples written.
func FromCU8(dst []complex64, raw []byte) int {
	n := len(raw) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = complex(
			(float32(raw[2*i])-127.5)/127.5,
			(float32(raw[2*i+1])-127.5)/127.5,
		)
	}
	return n
}
