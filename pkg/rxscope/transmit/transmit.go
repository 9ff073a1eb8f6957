// Package transmit drives a single transmit channel with a constant carrier
// or a complex tone for a bounded time.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/rxscope/pkg/dsp/mixer"
	"github.com/norasector/rxscope/pkg/rxscope"
	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/norasector/rxscope/pkg/util"
)

type Waveform string

const (
	Constant Waveform = "constant"
	Tone     Waveform = "tone"
)

const (
	DefaultBlockLength  = 1 << 14
	DefaultWriteTimeout = time.Second
)

func ParseWaveform(name string) (Waveform, error) {
	switch Waveform(strings.ToLower(name)) {
	case "", Constant:
		return Constant, nil
	case Tone:
		return Tone, nil
	default:
		return "", fmt.Errorf("unknown waveform %q", name)
	}
}

type Options struct {
	Waveform  Waveform
	Amplitude float64
	// ToneFreq is the tone offset from the centre frequency in Hz.
	ToneFreq     float64
	Duration     time.Duration
	BlockLength  int
	WriteTimeout time.Duration
}

// Stats summarises a transmission.
type Stats struct {
	Blocks      int
	Samples     int
	ShortWrites int
	Underflows  int
}

type Transmitter struct {
	session  *rxscope.Session
	cfg      rxscope.DeviceConfig
	opts     Options
	logger   zerolog.Logger
	writeAPI api.WriteAPI
	runID    string

	block []complex64
	osc   *mixer.WaveformMixer
	once  sync.Once
}

type TransmitterOption func(t *Transmitter) error

func WithLogger(logger zerolog.Logger) TransmitterOption {
	return func(t *Transmitter) error {
		t.logger = logger
		return nil
	}
}

func WithInfluxDB(writeAPI api.WriteAPI, runID string) TransmitterOption {
	return func(t *Transmitter) error {
		t.writeAPI = writeAPI
		t.runID = runID
		return nil
	}
}

func NewTransmitter(opener device.Opener, cfg rxscope.DeviceConfig, options Options, opts ...TransmitterOption) (*Transmitter, error) {
	if options.BlockLength <= 0 {
		options.BlockLength = DefaultBlockLength
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultWriteTimeout
	}
	if options.Waveform == "" {
		options.Waveform = Constant
	}
	if options.Waveform != Constant && options.Waveform != Tone {
		return nil, fmt.Errorf("unknown waveform %q", options.Waveform)
	}
	if options.Duration < 0 {
		return nil, fmt.Errorf("negative duration %v", options.Duration)
	}
	if cfg.Name == "" {
		cfg.Name = "tx"
	}

	t := &Transmitter{
		session:  rxscope.NewSession(cfg.Name, device.TX, opener),
		cfg:      cfg,
		opts:     options,
		logger:   log.Logger,
		writeAPI: &util.MockWriteAPI{},
		block:    make([]complex64, options.BlockLength),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	t.session.WithLogger(t.logger)

	switch options.Waveform {
	case Constant:
		for i := range t.block {
			t.block[i] = complex(float32(options.Amplitude), 0)
		}
	case Tone:
		t.osc = mixer.NewWaveformMixer(cfg.SampleRate, options.ToneFreq)
	}
	return t, nil
}

func (t *Transmitter) Session() *rxscope.Session {
	return t.session
}

// Run transmits until the duration elapses or ctx is cancelled. A zero
// duration transmits until cancelled. The stream and device are released
// before Run returns.
func (t *Transmitter) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	defer t.teardown()

	if err := t.session.Configure(t.cfg); err != nil {
		return stats, err
	}
	if err := t.session.OpenStream(device.FormatCF32); err != nil {
		return stats, err
	}
	if err := t.session.Activate(); err != nil {
		return stats, err
	}

	t.logger.Info().
		Str("freq", util.MHzToString(t.cfg.CenterFreq)).
		Str("waveform", string(t.opts.Waveform)).
		Dur("duration", t.opts.Duration).
		Msg("transmitting")

	start := time.Now()
	for {
		if ctx.Err() != nil {
			break
		}
		if t.opts.Duration > 0 && time.Since(start) >= t.opts.Duration {
			break
		}

		if t.osc != nil {
			t.osc.Generate(t.block, float32(t.opts.Amplitude))
		}
		n, err := t.session.Write(t.block, t.opts.WriteTimeout)
		switch {
		case errors.Is(err, device.ErrUnderflow):
			stats.Underflows++
			t.logger.Warn().Err(err).Msg("transmit underflow")
		case err != nil:
			return stats, fmt.Errorf("write %s: %w", t.session.Name(), err)
		}
		stats.Blocks++
		stats.Samples += n
		if err == nil && n != len(t.block) {
			stats.ShortWrites++
			t.logger.Warn().Int("written", n).Int("block", len(t.block)).Msg("short write")
		}
	}

	t.logger.Info().Int("blocks", stats.Blocks).Int("samples", stats.Samples).Dur("elapsed", time.Since(start)).Msg("stopping transmission")
	t.writeAPI.WritePoint(influxdb2.NewPoint("rxscope.transmit",
		map[string]string{
			"run_id":  t.runID,
			"channel": t.session.Name(),
		},
		map[string]interface{}{
			"blocks":       stats.Blocks,
			"samples":      stats.Samples,
			"short_writes": stats.ShortWrites,
			"underflows":   stats.Underflows,
		},
		time.Now()))
	return stats, nil
}

func (t *Transmitter) teardown() {
	t.once.Do(func() {
		if t.session.State() == rxscope.StreamActivated {
			if err := t.session.Deactivate(); err != nil {
				t.logger.Error().Err(err).Msg("error deactivating stream")
			}
		}
		if err := t.session.Close(); err != nil {
			t.logger.Error().Err(err).Msg("error closing device")
		}
	})
}
