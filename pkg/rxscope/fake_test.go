package rxscope

import (
	"fmt"
	"sync"
	"time"

	"github.com/norasector/rxscope/pkg/rxscope/device"
)

type readResult struct {
	n   int
	err error
}

// fakeDevice is a scripted device. Reads follow script in order and then
// fill the whole buffer.
type fakeDevice struct {
	identity string
	clocks   []string
	fill     complex64
	script   []readResult
	// onRead runs after every read with the 1-based read count.
	onRead func(reads int)

	mu         sync.Mutex
	sampleRate float64
	centerFreq float64
	gain       float64
	dcOffset   bool
	clock      string
	closed     int
	setupErr   error
	streams    []*fakeStream
}

func newFakeDevice(identity string, external bool) *fakeDevice {
	clocks := []string{device.ClockInternal}
	if external {
		clocks = append(clocks, device.ClockExternal)
	}
	return &fakeDevice{identity: identity, clocks: clocks, fill: complex(0.05, -0.05), clock: device.ClockInternal}
}

func (d *fakeDevice) Identity() string {
	return d.identity
}

func (d *fakeDevice) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	d.sampleRate = rate
	return nil
}

func (d *fakeDevice) SetFrequency(dir device.Direction, channel int, freq float64) error {
	d.centerFreq = freq
	return nil
}

func (d *fakeDevice) SetGain(dir device.Direction, channel int, gain float64) error {
	d.gain = gain
	return nil
}

func (d *fakeDevice) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	d.dcOffset = automatic
	return nil
}

func (d *fakeDevice) ClockSources() []string {
	return d.clocks
}

func (d *fakeDevice) SetClockSource(source string) error {
	if !device.HasClockSource(d, source) {
		return device.ErrUnsupported
	}
	d.clock = source
	return nil
}

func (d *fakeDevice) SetupStream(dir device.Direction, format device.Format) (device.Stream, error) {
	if d.setupErr != nil {
		return nil, d.setupErr
	}
	s := &fakeStream{dev: d}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeStream struct {
	dev         *fakeDevice
	activated   int
	deactivated int
	closed      int
	active      bool
	reads       int
}

func (s *fakeStream) Activate() error {
	if s.closed > 0 {
		return device.ErrStreamClosed
	}
	s.activated++
	s.active = true
	return nil
}

func (s *fakeStream) Deactivate() error {
	if s.closed > 0 {
		return device.ErrStreamClosed
	}
	s.deactivated++
	s.active = false
	return nil
}

func (s *fakeStream) Read(buf []complex64, timeout time.Duration) (int, error) {
	if s.closed > 0 {
		return 0, device.ErrStreamClosed
	}
	s.reads++
	n, err := len(buf), error(nil)
	if s.reads <= len(s.dev.script) {
		r := s.dev.script[s.reads-1]
		n, err = r.n, r.err
	}
	if err == nil {
		for i := 0; i < n && i < len(buf); i++ {
			buf[i] = s.dev.fill
		}
	}
	if s.dev.onRead != nil {
		s.dev.onRead(s.reads)
	}
	return n, err
}

func (s *fakeStream) Write(buf []complex64, timeout time.Duration) (int, error) {
	return 0, device.ErrUnsupported
}

func (s *fakeStream) Close() error {
	s.closed++
	s.active = false
	return nil
}

type fakeOpener map[string]*fakeDevice

func (o fakeOpener) Open(identity string) (device.Device, error) {
	d, ok := o[identity]
	if !ok {
		return nil, fmt.Errorf("%w %q", device.ErrUnknownDriver, identity)
	}
	return d, nil
}

func dualConfigs() []DeviceConfig {
	return []DeviceConfig{
		{Identity: "slave-dev", SampleRate: 2e6, CenterFreq: 863.5e6, Gain: 50, DCOffset: true, ClockRole: SlaveExternal},
		{Identity: "master-dev", SampleRate: 2e6, CenterFreq: 863.5e6, Gain: 50, DCOffset: true, ClockRole: Master},
	}
}
