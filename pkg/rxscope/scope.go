package rxscope

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/rxscope/pkg/dsp/spectrum"
	"github.com/norasector/rxscope/pkg/dsp/viz"
	"github.com/norasector/rxscope/pkg/util"
)

const (
	DefaultBatchLength = 4096
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultTimeYLimit  = 0.1

	// Spectrum y-axis span around the strongest bin, in dB.
	spectrumFloorDB    = 60
	spectrumHeadroomDB = 5
)

type State int32

const (
	Idle State = iota
	Reading
	Transforming
	Updating
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Transforming:
		return "transforming"
	case Updating:
		return "updating"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Options struct {
	BatchLength int
	ReadTimeout time.Duration
	// IdleWait is slept after an iteration that produced no samples.
	IdleWait   time.Duration
	TimeYLimit float64
	Window     spectrum.WindowType
	// MaxConsecutiveErrors is how many failed iterations in a row are
	// tolerated. Zero makes the first acquisition error fatal.
	MaxConsecutiveErrors int
}

func (o Options) withDefaults() Options {
	if o.BatchLength <= 0 {
		o.BatchLength = DefaultBatchLength
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.TimeYLimit <= 0 {
		o.TimeYLimit = DefaultTimeYLimit
	}
	return o
}

// Scope is the render loop: read every channel, transform, update the
// display surface, repeat until cancelled.
type Scope struct {
	lifecycle *Lifecycle
	opts      Options
	surface   viz.Surface
	writeAPI  api.WriteAPI
	logger    zerolog.Logger
	runID     string
	state     int32

	readers   []*Reader
	analyzers []*spectrum.Analyzer
	frames    uint64
}

type ScopeOption func(s *Scope) error

func WithInfluxDB(writeAPI api.WriteAPI) ScopeOption {
	return func(s *Scope) error {
		s.writeAPI = writeAPI
		return nil
	}
}

func WithSurface(surface viz.Surface) ScopeOption {
	return func(s *Scope) error {
		s.surface = surface
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ScopeOption {
	return func(s *Scope) error {
		s.logger = logger
		return nil
	}
}

func WithRunID(id string) ScopeOption {
	return func(s *Scope) error {
		if id == "" {
			return fmt.Errorf("empty run id")
		}
		s.runID = id
		return nil
	}
}

func NewScope(lifecycle *Lifecycle, options Options, opts ...ScopeOption) (*Scope, error) {
	if options.MaxConsecutiveErrors < 0 {
		return nil, fmt.Errorf("max consecutive errors must not be negative, got %d", options.MaxConsecutiveErrors)
	}
	s := &Scope{
		lifecycle: lifecycle,
		opts:      options.withDefaults(),
		writeAPI:  &util.MockWriteAPI{}, // overwritten with option
		logger:    log.Logger,
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.surface == nil {
		return nil, fmt.Errorf("no display surface")
	}
	return s, nil
}

func (s *Scope) RunID() string {
	return s.runID
}

func (s *Scope) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Scope) setState(state State) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Frames returns the number of frames displayed so far.
func (s *Scope) Frames() uint64 {
	return atomic.LoadUint64(&s.frames)
}

// Run sets the channels up and loops until ctx is cancelled or a fatal
// error occurs. Teardown runs before Run returns on every path.
// Cancellation is not an error.
func (s *Scope) Run(ctx context.Context) error {
	s.setState(Idle)
	defer func() {
		s.setState(Stopping)
		s.lifecycle.Teardown()
		s.setState(Stopped)
	}()

	if err := s.lifecycle.Setup(); err != nil {
		return err
	}

	channels := s.lifecycle.Channels().Channels()
	s.readers = make([]*Reader, len(channels))
	s.analyzers = make([]*spectrum.Analyzer, len(channels))
	for i, ch := range channels {
		s.readers[i] = NewReader(ch.Session, s.opts.BatchLength, s.opts.ReadTimeout)
		s.analyzers[i] = spectrum.NewAnalyzer(s.opts.Window)
	}
	if layout, ok := s.surface.(viz.Layout); ok {
		declarePanels(layout, channels)
	}
	s.logger.Info().Str("run_id", s.runID).Int("channels", len(channels)).Int("batch_length", s.opts.BatchLength).Msg("starting render loop")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(Reading)
		batches, readMicros, err := s.readAll(ctx, channels)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var acqErr *AcquisitionError
			if !errors.As(err, &acqErr) {
				return err
			}
			s.reportError(acqErr)
			failures++
			if failures > s.opts.MaxConsecutiveErrors {
				return err
			}
			s.logger.Warn().Err(err).Int("consecutive", failures).Int("max", s.opts.MaxConsecutiveErrors).Msg("skipping iteration after read error")
			s.setState(Idle)
			continue
		}
		if batches == nil {
			s.setState(Idle)
			if !s.idle(ctx) {
				return nil
			}
			continue
		}

		s.setState(Transforming)
		frames := make([]spectrum.Frame, len(channels))
		for i, ch := range channels {
			frames[i] = s.analyzers[i].Transform(batches[i].Samples(), ch.Config.SampleRate, ch.Config.CenterFreq)
		}

		s.setState(Updating)
		for i, ch := range channels {
			s.update(ch, batches[i], frames[i])
		}
		s.surface.Refresh()
		atomic.AddUint64(&s.frames, 1)
		failures = 0

		for i, ch := range channels {
			s.reportFrame(ch, batches[i], frames[i], readMicros[i])
		}
		s.setState(Idle)
	}
}

// readAll reads every channel in order. It returns nil batches when any
// channel had no samples or ctx was cancelled between reads.
func (s *Scope) readAll(ctx context.Context, channels []*Channel) ([]Batch, []int64, error) {
	batches := make([]Batch, len(channels))
	micros := make([]int64, len(channels))
	empty := false
	for i := range channels {
		if ctx.Err() != nil {
			return nil, nil, nil
		}
		var err error
		micros[i] = util.TimeOperationMicroseconds(func() {
			batches[i], err = s.readers[i].Read()
		})
		if err != nil {
			return nil, nil, err
		}
		if batches[i].Valid <= 0 {
			empty = true
		}
	}
	if empty {
		return nil, nil, nil
	}
	return batches, micros, nil
}

func (s *Scope) idle(ctx context.Context) bool {
	if s.opts.IdleWait <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.opts.IdleWait):
		return true
	}
}

func TimePanel(channel string) string {
	return channel + " time"
}

func SpectrumPanel(channel string) string {
	return channel + " spectrum"
}

var (
	inPhaseColor    = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	quadratureColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	powerColor      = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

func declarePanels(layout viz.Layout, channels []*Channel) {
	for _, ch := range channels {
		timePanel := TimePanel(ch.Name())
		layout.AddPanel(timePanel, "Sample Index", "Amplitude")
		layout.AddLine(timePanel, "I", inPhaseColor)
		layout.AddLine(timePanel, "Q", quadratureColor)

		spectrumPanel := SpectrumPanel(ch.Name())
		layout.AddPanel(spectrumPanel, "Frequency (MHz)", "Power (dB)")
		layout.AddLine(spectrumPanel, "power", powerColor)
	}
}

func (s *Scope) update(ch *Channel, batch Batch, frame spectrum.Frame) {
	samples := batch.Samples()
	n := len(samples)
	idx := make([]float64, n)
	inPhase := make([]float64, n)
	quadrature := make([]float64, n)
	for i, v := range samples {
		idx[i] = float64(i)
		inPhase[i] = float64(real(v))
		quadrature[i] = float64(imag(v))
	}

	timePanel := TimePanel(ch.Name())
	s.surface.SetLine(timePanel, "I", idx, inPhase)
	s.surface.SetLine(timePanel, "Q", idx, quadrature)
	s.surface.SetXRange(timePanel, 0, float64(n))
	s.surface.SetYRange(timePanel, -s.opts.TimeYLimit, s.opts.TimeYLimit)

	mhz := make([]float64, frame.Len())
	for i, f := range frame.Frequencies {
		mhz[i] = f / 1e6
	}
	low, high := util.BandEdges(ch.Config.CenterFreq, ch.Config.SampleRate)
	_, peak := frame.Peak()

	spectrumPanel := SpectrumPanel(ch.Name())
	s.surface.SetLine(spectrumPanel, "power", mhz, frame.Power)
	s.surface.SetXRange(spectrumPanel, low/1e6, high/1e6)
	s.surface.SetYRange(spectrumPanel, peak-spectrumFloorDB, peak+spectrumHeadroomDB)
}

func (s *Scope) reportFrame(ch *Channel, batch Batch, frame spectrum.Frame, readMicros int64) {
	idx, peak := frame.Peak()
	s.writeAPI.WritePoint(influxdb2.NewPoint("rxscope.frame",
		map[string]string{
			"run_id":  s.runID,
			"channel": ch.Name(),
		},
		map[string]interface{}{
			"valid":    batch.Valid,
			"peak_db":  peak,
			"peak_mhz": frame.Frequencies[idx] / 1e6,
			"read_us":  readMicros,
		},
		time.Now()))
}

func (s *Scope) reportError(err *AcquisitionError) {
	s.writeAPI.WritePoint(influxdb2.NewPoint("rxscope.acquisition_error",
		map[string]string{
			"run_id":  s.runID,
			"channel": err.Channel,
		},
		map[string]interface{}{
			"code": err.Code,
		},
		time.Now()))
}
