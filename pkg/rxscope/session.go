package rxscope

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/norasector/rxscope/pkg/util"
)

type ClockRole string

const (
	FreeRunning   ClockRole = "free-running"
	Master        ClockRole = "master"
	SlaveExternal ClockRole = "slave-external"
)

// DeviceConfig is applied once by Configure and not changed afterwards.
type DeviceConfig struct {
	Name       string
	Identity   string
	SampleRate float64
	CenterFreq float64
	Gain       float64
	DCOffset   bool
	ClockRole  ClockRole
}

type StreamState int

const (
	StreamClosed StreamState = iota
	StreamOpened
	StreamActivated
	StreamDeactivated
)

func (s StreamState) String() string {
	switch s {
	case StreamClosed:
		return "closed"
	case StreamOpened:
		return "opened"
	case StreamActivated:
		return "activated"
	case StreamDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Session owns one device and at most one stream on it. It is not safe for
// concurrent use.
type Session struct {
	name   string
	dir    device.Direction
	opener device.Opener
	logger zerolog.Logger

	cfg        DeviceConfig
	configured bool
	dev        device.Device
	stream     device.Stream
	state      StreamState
}

func NewSession(name string, dir device.Direction, opener device.Opener) *Session {
	return &Session{
		name:   name,
		dir:    dir,
		opener: opener,
		logger: log.Logger.With().Str("channel", name).Logger(),
	}
}

func (s *Session) WithLogger(logger zerolog.Logger) *Session {
	s.logger = logger.With().Str("channel", s.name).Logger()
	return s
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) State() StreamState {
	return s.state
}

func (s *Session) Config() DeviceConfig {
	return s.cfg
}

// Device returns the opened device, or nil before Configure.
func (s *Session) Device() device.Device {
	return s.dev
}

// Configure opens the device named by cfg.Identity (once) and applies the
// sample rate, frequency, gain, DC offset mode and clock role.
func (s *Session) Configure(cfg DeviceConfig) error {
	if s.state != StreamClosed {
		return &LifecycleError{Op: "configure", State: s.state}
	}
	if cfg.SampleRate <= 0 {
		return &ConfigurationError{Identity: cfg.Identity, Op: "sample rate", Err: fmt.Errorf("must be positive, got %v", cfg.SampleRate)}
	}
	if cfg.CenterFreq <= 0 {
		return &ConfigurationError{Identity: cfg.Identity, Op: "center frequency", Err: fmt.Errorf("must be positive, got %v", cfg.CenterFreq)}
	}

	if s.dev == nil {
		dev, err := s.opener.Open(cfg.Identity)
		if err != nil {
			return &ConfigurationError{Identity: cfg.Identity, Op: "open", Err: err}
		}
		s.dev = dev
	}

	steps := []struct {
		op string
		fn func() error
	}{
		{"sample rate", func() error { return s.dev.SetSampleRate(s.dir, 0, cfg.SampleRate) }},
		{"center frequency", func() error { return s.dev.SetFrequency(s.dir, 0, cfg.CenterFreq) }},
		{"gain", func() error { return s.dev.SetGain(s.dir, 0, cfg.Gain) }},
		{"dc offset", func() error { return s.dev.SetDCOffsetMode(s.dir, 0, cfg.DCOffset) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return &ConfigurationError{Identity: cfg.Identity, Op: step.op, Err: err}
		}
	}

	if cfg.ClockRole == SlaveExternal {
		if !device.HasClockSource(s.dev, device.ClockExternal) {
			return &ClockConfigurationError{Channel: s.name, Role: cfg.ClockRole,
				Err: fmt.Errorf("device %s reports no external clock: %w", cfg.Identity, device.ErrUnsupported)}
		}
		if err := s.dev.SetClockSource(device.ClockExternal); err != nil {
			return &ClockConfigurationError{Channel: s.name, Role: cfg.ClockRole, Err: err}
		}
	}

	s.cfg = cfg
	s.configured = true
	s.logger.Info().
		Str("identity", s.dev.Identity()).
		Str("freq", util.MHzToString(cfg.CenterFreq)).
		Float64("sample_rate", cfg.SampleRate).
		Float64("gain", cfg.Gain).
		Str("clock_role", string(cfg.ClockRole)).
		Msg("configured device")
	return nil
}

func (s *Session) OpenStream(format device.Format) error {
	if !s.configured {
		return &LifecycleError{Op: "open stream", State: s.state, Err: errors.New("device not configured")}
	}
	if s.state != StreamClosed {
		return &LifecycleError{Op: "open stream", State: s.state}
	}
	stream, err := s.dev.SetupStream(s.dir, format)
	if err != nil {
		return &ConfigurationError{Identity: s.cfg.Identity, Op: "setup stream", Err: err}
	}
	s.stream = stream
	s.state = StreamOpened
	return nil
}

func (s *Session) Activate() error {
	switch s.state {
	case StreamClosed:
		return &LifecycleError{Op: "activate", State: s.state}
	case StreamActivated:
		return nil
	}
	if err := s.stream.Activate(); err != nil {
		return &LifecycleError{Op: "activate", State: s.state, Err: err}
	}
	s.state = StreamActivated
	return nil
}

func (s *Session) Deactivate() error {
	switch s.state {
	case StreamClosed:
		return &LifecycleError{Op: "deactivate", State: s.state}
	case StreamOpened, StreamDeactivated:
		return nil
	}
	if err := s.stream.Deactivate(); err != nil {
		return &LifecycleError{Op: "deactivate", State: s.state, Err: err}
	}
	s.state = StreamDeactivated
	return nil
}

// CloseStream releases the stream. Closing an already closed stream is a
// no-op.
func (s *Session) CloseStream() error {
	if s.state == StreamClosed {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	s.state = StreamClosed
	if err != nil {
		return fmt.Errorf("close stream %s: %w", s.name, err)
	}
	return nil
}

// Close releases the stream, if any, and the device.
func (s *Session) Close() error {
	streamErr := s.CloseStream()
	if s.dev == nil {
		return streamErr
	}
	err := s.dev.Close()
	s.dev = nil
	s.configured = false
	if err != nil {
		return fmt.Errorf("close device %s: %w", s.name, err)
	}
	return streamErr
}

func (s *Session) Read(buf []complex64, timeout time.Duration) (int, error) {
	if s.state != StreamActivated {
		return 0, &LifecycleError{Op: "read", State: s.state}
	}
	return s.stream.Read(buf, timeout)
}

func (s *Session) Write(buf []complex64, timeout time.Duration) (int, error) {
	if s.state != StreamActivated {
		return 0, &LifecycleError{Op: "write", State: s.state}
	}
	return s.stream.Write(buf, timeout)
}
