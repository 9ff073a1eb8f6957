package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/norasector/rxscope/pkg/dsp/mixer"
	"github.com/norasector/rxscope/pkg/rxscope/device"
)

// SimDevice synthesizes a single tone plus Gaussian noise, paced at the
// configured sample rate. It stands in for hardware in demos and tests.
type SimDevice struct {
	identity      string
	toneOffset    float64
	amplitude     float32
	noise         float64
	externalClock bool
	seed          int64

	mu          sync.Mutex
	sampleRate  float64
	centerFreq  float64
	gain        float64
	clockSource string
	written     int
}

// Open accepts "tone" (offset from centre in Hz, default 100e3), "amplitude"
// (default 0.05), "noise" (standard deviation, default 0.002), "seed" and
// "external_clock" (default true).
func Open(args device.Args) (device.Device, error) {
	tone, err := args.Float("tone", 100e3)
	if err != nil {
		return nil, err
	}
	amp, err := args.Float("amplitude", 0.05)
	if err != nil {
		return nil, err
	}
	noise, err := args.Float("noise", 0.002)
	if err != nil {
		return nil, err
	}
	seed, err := args.Int("seed", 1)
	if err != nil {
		return nil, err
	}
	ext, err := args.Bool("external_clock", true)
	if err != nil {
		return nil, err
	}
	return &SimDevice{
		identity:      fmt.Sprintf("driver=sim,tone=%g", tone),
		toneOffset:    tone,
		amplitude:     float32(amp),
		noise:         noise,
		externalClock: ext,
		seed:          int64(seed),
		clockSource:   device.ClockInternal,
	}, nil
}

func (s *SimDevice) Identity() string {
	return s.identity
}

func (s *SimDevice) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("sim: sample rate %v", rate)
	}
	s.mu.Lock()
	s.sampleRate = rate
	s.mu.Unlock()
	return nil
}

func (s *SimDevice) SetFrequency(dir device.Direction, channel int, freq float64) error {
	s.mu.Lock()
	s.centerFreq = freq
	s.mu.Unlock()
	return nil
}

func (s *SimDevice) SetGain(dir device.Direction, channel int, gain float64) error {
	s.mu.Lock()
	s.gain = gain
	s.mu.Unlock()
	return nil
}

func (s *SimDevice) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return nil
}

func (s *SimDevice) ClockSources() []string {
	if s.externalClock {
		return []string{device.ClockInternal, device.ClockExternal}
	}
	return []string{device.ClockInternal}
}

func (s *SimDevice) SetClockSource(source string) error {
	if !device.HasClockSource(s, source) {
		return fmt.Errorf("sim: clock source %q: %w", source, device.ErrUnsupported)
	}
	s.mu.Lock()
	s.clockSource = source
	s.mu.Unlock()
	return nil
}

func (s *SimDevice) ClockSource() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clockSource
}

// Written returns the number of samples accepted by transmit streams.
func (s *SimDevice) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *SimDevice) SetupStream(dir device.Direction, format device.Format) (device.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("sim: sample rate not set")
	}
	return &stream{
		s:          s,
		dir:        dir,
		sampleRate: s.sampleRate,
		osc:        mixer.NewWaveformMixer(s.sampleRate, s.toneOffset),
		rnd:        rand.New(rand.NewSource(s.seed)),
	}, nil
}

func (s *SimDevice) Close() error {
	return nil
}

type stream struct {
	s          *SimDevice
	dir        device.Direction
	sampleRate float64
	osc        *mixer.WaveformMixer
	rnd        *rand.Rand
	due        time.Time
	active     bool
	closed     bool
}

func (st *stream) Activate() error {
	if st.closed {
		return device.ErrStreamClosed
	}
	if !st.active {
		st.active = true
		st.due = time.Now()
	}
	return nil
}

func (st *stream) Deactivate() error {
	if st.closed {
		return device.ErrStreamClosed
	}
	st.active = false
	return nil
}

// pace blocks until n samples are due. It reports false when that would
// take longer than timeout.
func (st *stream) pace(n int, timeout time.Duration) bool {
	if wait := time.Until(st.due); wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return false
		}
		time.Sleep(wait)
	}
	st.due = st.due.Add(time.Duration(float64(n) / st.sampleRate * float64(time.Second)))
	return true
}

func (st *stream) Read(buf []complex64, timeout time.Duration) (int, error) {
	if st.closed {
		return 0, device.ErrStreamClosed
	}
	if st.dir != device.RX {
		return 0, fmt.Errorf("sim: read on %s stream: %w", st.dir, device.ErrUnsupported)
	}
	if !st.active || !st.pace(len(buf), timeout) {
		return 0, nil
	}
	st.osc.Generate(buf, st.s.amplitude)
	for i := range buf {
		buf[i] += complex(float32(st.rnd.NormFloat64()*st.s.noise), float32(st.rnd.NormFloat64()*st.s.noise))
	}
	return len(buf), nil
}

func (st *stream) Write(buf []complex64, timeout time.Duration) (int, error) {
	if st.closed {
		return 0, device.ErrStreamClosed
	}
	if st.dir != device.TX {
		return 0, fmt.Errorf("sim: write on %s stream: %w", st.dir, device.ErrUnsupported)
	}
	if !st.active || !st.pace(len(buf), timeout) {
		return 0, nil
	}
	st.s.mu.Lock()
	st.s.written += len(buf)
	st.s.mu.Unlock()
	return len(buf), nil
}

func (st *stream) Close() error {
	st.active = false
	st.closed = true
	return nil
}
