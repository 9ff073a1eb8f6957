package device

import (
	"errors"
	"time"
)

type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	switch d {
	case RX:
		return "rx"
	case TX:
		return "tx"
	default:
		return "unknown"
	}
}

// Format is the sample format requested from the stream. Streams always
// hand complex64 samples to the caller; the format names what travels on
// the wire between host and radio.
type Format string

const (
	FormatCF32 Format = "CF32"
	FormatCS8  Format = "CS8"
)

const (
	ClockInternal = "internal"
	ClockExternal = "external"
)

var (
	ErrTimeout       = errors.New("stream timeout")
	ErrOverflow      = errors.New("stream overflow")
	ErrUnderflow     = errors.New("stream underflow")
	ErrStreamClosed  = errors.New("stream closed")
	ErrUnsupported   = errors.New("operation not supported by device")
	ErrUnknownDriver = errors.New("unknown driver")
)

// Device is a single opened radio. Channel-addressed setters mirror the
// per-direction, per-channel register layout of multi-channel hardware;
// single-channel radios only accept channel 0.
type Device interface {
	Identity() string

	SetSampleRate(dir Direction, channel int, rate float64) error
	SetFrequency(dir Direction, channel int, freq float64) error
	SetGain(dir Direction, channel int, gain float64) error
	SetDCOffsetMode(dir Direction, channel int, automatic bool) error

	// ClockSources lists the clock references the hardware reports as usable.
	ClockSources() []string
	SetClockSource(source string) error

	SetupStream(dir Direction, format Format) (Stream, error)
	Close() error
}

// Stream is the per-device sample stream. A read returning (0, nil) means
// no samples were available yet.
type Stream interface {
	Activate() error
	Deactivate() error
	Read(buf []complex64, timeout time.Duration) (int, error)
	Write(buf []complex64, timeout time.Duration) (int, error)
	Close() error
}

func HasClockSource(d Device, source string) bool {
	for _, s := range d.ClockSources() {
		if s == source {
			return true
		}
	}
	return false
}
