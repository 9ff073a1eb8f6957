package rxscope

import (
	"errors"
	"fmt"
	"io"

	"github.com/norasector/rxscope/pkg/rxscope/device"
)

// Status codes carried by AcquisitionError. They follow the negative
// return convention of common SDR driver APIs.
const (
	CodeTimeout     = -1
	CodeStreamError = -2
	CodeOverflow    = -4
	CodeOther       = -5
)

// ConfigurationError reports a device that could not be opened or
// configured as requested.
type ConfigurationError struct {
	Identity string
	Op       string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configure %q: %s: %v", e.Identity, e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LifecycleError reports a session operation issued in the wrong stream
// state.
type LifecycleError struct {
	Op    string
	State StreamState
	Err   error
}

func (e *LifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in state %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// ClockConfigurationError reports an invalid set of clock roles or a slave
// whose hardware cannot take an external reference.
type ClockConfigurationError struct {
	Channel string
	Role    ClockRole
	Err     error
}

func (e *ClockConfigurationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("clock configuration: %v", e.Err)
	}
	return fmt.Sprintf("clock configuration of %s (%s): %v", e.Channel, e.Role, e.Err)
}

func (e *ClockConfigurationError) Unwrap() error {
	return e.Err
}

// AcquisitionError is a failed read on one channel.
type AcquisitionError struct {
	Channel string
	Code    int
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("read %s: code %d: %v", e.Channel, e.Code, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func newAcquisitionError(channel string, err error) *AcquisitionError {
	return &AcquisitionError{Channel: channel, Code: acquisitionCode(err), Err: err}
}

func acquisitionCode(err error) int {
	switch {
	case errors.Is(err, device.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, device.ErrOverflow):
		return CodeOverflow
	case errors.Is(err, device.ErrStreamClosed), errors.Is(err, io.EOF):
		return CodeStreamError
	default:
		return CodeOther
	}
}
