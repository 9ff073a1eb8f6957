package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/rxscope/pkg/dsp/spectrum"
	"github.com/norasector/rxscope/pkg/rxscope"
	"github.com/norasector/rxscope/pkg/rxscope/transmit"
)

const (
	ModeRX = "rx"
	ModeTX = "tx"
)

type Config struct {
	Mode                string         `yaml:"mode"`
	BatchLength         int            `yaml:"batch_length"`
	Window              string         `yaml:"window"`
	ReadTimeoutMs       int            `yaml:"read_timeout"`
	IdleWaitMs          int            `yaml:"idle_wait"`
	TimeYLimit          float64        `yaml:"time_y_limit"`
	DegradeOnClockError bool           `yaml:"degrade_on_clock_error"`
	Devices             []DeviceConfig `yaml:"devices"`
	Transmit            TransmitConfig `yaml:"transmit"`
	LogFile             string         `yaml:"log_file"`
	LogLevel            string         `yaml:"log_level"`
	Retry               struct {
		MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	} `yaml:"retry"`
	VizServer struct {
		Port             int `yaml:"port"`
		UpdateIntervalMs int `yaml:"update_interval_ms"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type DeviceConfig struct {
	Name       string  `yaml:"name"`
	Identity   string  `yaml:"identity"`
	SampleRate float64 `yaml:"sample_rate"`
	CenterFreq float64 `yaml:"center_freq"`
	Gain       float64 `yaml:"gain"`
	DCOffset   *bool   `yaml:"dc_offset"`
	ClockRole  string  `yaml:"clock_role"`
}

type TransmitConfig struct {
	Identity    string  `yaml:"identity"`
	SampleRate  float64 `yaml:"sample_rate"`
	CenterFreq  float64 `yaml:"center_freq"`
	Gain        float64 `yaml:"gain"`
	Waveform    string  `yaml:"waveform"`
	Amplitude   float64 `yaml:"amplitude"`
	ToneFreq    float64 `yaml:"tone_freq"`
	DurationSec float64 `yaml:"duration"`
	BlockLength int     `yaml:"block_length"`
}

// Option overrides a field after the file is read and before defaults and
// validation are applied.
type Option func(*Config)

// WithMode replaces the file's mode. An empty mode leaves it unchanged.
func WithMode(mode string) Option {
	return func(c *Config) {
		if mode != "" {
			c.Mode = mode
		}
	}
}

func Load(path string, opts ...Option) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(contents, opts...)
}

// Parse unmarshals YAML, applies opts, fills defaults and validates.
func Parse(contents []byte, opts ...Option) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return nil, fmt.Errorf("error unmarshaling yaml: %w", err)
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeRX
	}
	if c.BatchLength == 0 {
		c.BatchLength = rxscope.DefaultBatchLength
	}
	if c.ReadTimeoutMs == 0 {
		c.ReadTimeoutMs = int(rxscope.DefaultReadTimeout / time.Millisecond)
	}
	if c.TimeYLimit == 0 {
		c.TimeYLimit = rxscope.DefaultTimeYLimit
	}
	if c.VizServer.Port == 0 {
		c.VizServer.Port = 8080
	}
	if c.VizServer.UpdateIntervalMs == 0 {
		c.VizServer.UpdateIntervalMs = 250
	}
	if c.Transmit.Amplitude == 0 {
		c.Transmit.Amplitude = 1.5
	}
}

// Validate checks field ranges. Clock roles are checked by the channel set.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRX:
		if len(c.Devices) == 0 {
			return fmt.Errorf("no devices configured")
		}
		if len(c.Devices) > rxscope.MaxChannels {
			return fmt.Errorf("at most %d devices supported, got %d", rxscope.MaxChannels, len(c.Devices))
		}
		for i, d := range c.Devices {
			if d.Identity == "" {
				return fmt.Errorf("devices[%d]: identity is required", i)
			}
			if d.SampleRate <= 0 || d.CenterFreq <= 0 {
				return fmt.Errorf("devices[%d]: sample_rate and center_freq must be positive", i)
			}
		}
	case ModeTX:
		t := c.Transmit
		if t.Identity == "" {
			return fmt.Errorf("transmit: identity is required")
		}
		if t.SampleRate <= 0 || t.CenterFreq <= 0 {
			return fmt.Errorf("transmit: sample_rate and center_freq must be positive")
		}
		if t.DurationSec < 0 {
			return fmt.Errorf("transmit: negative duration")
		}
		if _, err := transmit.ParseWaveform(t.Waveform); err != nil {
			return fmt.Errorf("transmit: %w", err)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.BatchLength < 0 {
		return fmt.Errorf("batch_length must be positive")
	}
	if c.ReadTimeoutMs < 0 || c.IdleWaitMs < 0 {
		return fmt.Errorf("read_timeout and idle_wait must not be negative")
	}
	if c.Retry.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("retry.max_consecutive_errors must not be negative")
	}
	if _, err := spectrum.ParseWindow(c.Window); err != nil {
		return err
	}
	return nil
}

// DeviceConfigs converts the device list. dc_offset defaults to on.
func (c *Config) DeviceConfigs() []rxscope.DeviceConfig {
	ret := make([]rxscope.DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		dc := true
		if d.DCOffset != nil {
			dc = *d.DCOffset
		}
		ret = append(ret, rxscope.DeviceConfig{
			Name:       d.Name,
			Identity:   d.Identity,
			SampleRate: d.SampleRate,
			CenterFreq: d.CenterFreq,
			Gain:       d.Gain,
			DCOffset:   dc,
			ClockRole:  rxscope.ClockRole(d.ClockRole),
		})
	}
	return ret
}

func (c *Config) ScopeOptions() rxscope.Options {
	window, _ := spectrum.ParseWindow(c.Window)
	return rxscope.Options{
		BatchLength:          c.BatchLength,
		ReadTimeout:          time.Duration(c.ReadTimeoutMs) * time.Millisecond,
		IdleWait:             time.Duration(c.IdleWaitMs) * time.Millisecond,
		TimeYLimit:           c.TimeYLimit,
		Window:               window,
		MaxConsecutiveErrors: c.Retry.MaxConsecutiveErrors,
	}
}

func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.VizServer.UpdateIntervalMs) * time.Millisecond
}

func (c *Config) TransmitDevice() rxscope.DeviceConfig {
	return rxscope.DeviceConfig{
		Name:       "tx",
		Identity:   c.Transmit.Identity,
		SampleRate: c.Transmit.SampleRate,
		CenterFreq: c.Transmit.CenterFreq,
		Gain:       c.Transmit.Gain,
	}
}

func (c *Config) TransmitOptions() transmit.Options {
	waveform, _ := transmit.ParseWaveform(c.Transmit.Waveform)
	return transmit.Options{
		Waveform:    waveform,
		Amplitude:   c.Transmit.Amplitude,
		ToneFreq:    c.Transmit.ToneFreq,
		Duration:    time.Duration(c.Transmit.DurationSec * float64(time.Second)),
		BlockLength: c.Transmit.BlockLength,
	}
}
