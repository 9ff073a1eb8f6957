package rxscope

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/rxscope/pkg/rxscope/device"
)

// Lifecycle brings every channel of a ChannelSet up and tears it down
// exactly once.
type Lifecycle struct {
	set     *ChannelSet
	format  device.Format
	degrade bool
	logger  zerolog.Logger

	touched  []*Channel
	once     sync.Once
	torndown bool
	mu       sync.Mutex
}

type LifecycleOption func(l *Lifecycle)

// WithStreamFormat sets the format requested from each stream (default CF32).
func WithStreamFormat(format device.Format) LifecycleOption {
	return func(l *Lifecycle) {
		l.format = format
	}
}

// WithClockDegrade lets a two-channel set fall back to the master alone
// when the slave cannot lock to an external clock.
func WithClockDegrade(degrade bool) LifecycleOption {
	return func(l *Lifecycle) {
		l.degrade = degrade
	}
}

func WithLifecycleLogger(logger zerolog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

func NewLifecycle(set *ChannelSet, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		set:    set,
		format: device.FormatCF32,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, ch := range set.channels {
		ch.Session.WithLogger(l.logger)
	}
	return l
}

func (l *Lifecycle) Channels() *ChannelSet {
	return l.set
}

// Setup configures every session (master first), then opens and activates
// the streams in the same order. On failure everything already touched is
// torn down and the error returned.
func (l *Lifecycle) Setup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.set.Channels() {
		l.touched = append(l.touched, ch)
		if err := ch.Session.Configure(ch.Config); err != nil {
			if l.degradable(ch, err) {
				l.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("slave has no external clock, continuing with master only")
				l.release(ch)
				l.touched = l.touched[:len(l.touched)-1]
				l.set.dropSlave()
				continue
			}
			l.teardownLocked()
			return err
		}
	}

	for _, ch := range l.set.Channels() {
		if err := ch.Session.OpenStream(l.format); err != nil {
			l.teardownLocked()
			return err
		}
	}
	for _, ch := range l.set.Channels() {
		if err := ch.Session.Activate(); err != nil {
			l.teardownLocked()
			return err
		}
		l.logger.Info().Str("channel", ch.Name()).Msg("stream activated")
	}
	return nil
}

func (l *Lifecycle) degradable(ch *Channel, err error) bool {
	var clockErr *ClockConfigurationError
	return l.degrade &&
		ch.Config.ClockRole == SlaveExternal &&
		l.set.Len() == MaxChannels &&
		errors.As(err, &clockErr)
}

// Teardown deactivates, closes the stream of and closes every touched
// session in reverse order. Failures are logged, not returned. Only the
// first call has any effect.
func (l *Lifecycle) Teardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()
}

func (l *Lifecycle) teardownLocked() {
	l.once.Do(func() {
		for i := len(l.touched) - 1; i >= 0; i-- {
			l.release(l.touched[i])
		}
		l.torndown = true
		l.logger.Info().Int("channels", len(l.touched)).Msg("teardown complete")
	})
}

func (l *Lifecycle) release(ch *Channel) {
	s := ch.Session
	if s.State() == StreamActivated {
		if err := s.Deactivate(); err != nil {
			l.logger.Error().Err(err).Str("channel", ch.Name()).Msg("error deactivating stream")
		}
	}
	if err := s.CloseStream(); err != nil {
		l.logger.Error().Err(err).Str("channel", ch.Name()).Msg("error closing stream")
	}
	if err := s.Close(); err != nil {
		l.logger.Error().Err(err).Str("channel", ch.Name()).Msg("error closing device")
	}
}

// TornDown reports whether Teardown has run.
func (l *Lifecycle) TornDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.torndown
}
