package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/norasector/turbine-common/types"
)

// FileDevice plays back an interleaved CS8 capture (hackrf_transfer -r
// format) at the configured sample rate.
type FileDevice struct {
	path          string
	readFile      *os.File
	loop          bool
	externalClock bool
	sampleRate    float64
	centerFreq    float64
	stream        *stream
}

// Open accepts "path" (required), "loop" (rewind at end of file, default
// true) and "external_clock" (advertise an external reference).
func Open(args device.Args) (device.Device, error) {
	path := args["path"]
	if path == "" {
		return nil, errors.New("file: identity needs a path")
	}
	loop, err := args.Bool("loop", true)
	if err != nil {
		return nil, err
	}
	ext, err := args.Bool("external_clock", false)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileDevice{
		path:          path,
		readFile:      f,
		loop:          loop,
		externalClock: ext,
	}, nil
}

func (f *FileDevice) Identity() string {
	return "driver=file,path=" + f.path
}

func (f *FileDevice) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	f.sampleRate = rate
	return nil
}

func (f *FileDevice) SetFrequency(dir device.Direction, channel int, freq float64) error {
	f.centerFreq = freq
	return nil
}

func (f *FileDevice) SetGain(dir device.Direction, channel int, gain float64) error {
	return nil
}

func (f *FileDevice) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return nil
}

func (f *FileDevice) ClockSources() []string {
	if f.externalClock {
		return []string{device.ClockInternal, device.ClockExternal}
	}
	return []string{device.ClockInternal}
}

func (f *FileDevice) SetClockSource(source string) error {
	if !device.HasClockSource(f, source) {
		return fmt.Errorf("file: clock source %q: %w", source, device.ErrUnsupported)
	}
	return nil
}

func (f *FileDevice) SetupStream(dir device.Direction, format device.Format) (device.Stream, error) {
	if dir != device.RX {
		return nil, fmt.Errorf("file: %s: %w", dir, device.ErrUnsupported)
	}
	if f.sampleRate <= 0 {
		return nil, errors.New("file: sample rate not set")
	}
	f.stream = &stream{f: f}
	return f.stream, nil
}

func (f *FileDevice) Close() error {
	return f.readFile.Close()
}

type stream struct {
	f      *FileDevice
	raw    []byte
	due    time.Time
	active bool
	closed bool
}

func (s *stream) Activate() error {
	if s.closed {
		return device.ErrStreamClosed
	}
	if !s.active {
		s.active = true
		s.due = time.Now()
	}
	return nil
}

func (s *stream) Deactivate() error {
	if s.closed {
		return device.ErrStreamClosed
	}
	s.active = false
	return nil
}

// Read returns (0, nil) when the next batch is not due within timeout,
// which keeps playback at the capture's real-time rate.
func (s *stream) Read(buf []complex64, timeout time.Duration) (int, error) {
	if s.closed {
		return 0, device.ErrStreamClosed
	}
	if !s.active || len(buf) == 0 {
		return 0, nil
	}
	if wait := time.Until(s.due); wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return 0, nil
		}
		time.Sleep(wait)
	}

	want := len(buf) * 2
	if cap(s.raw) < want {
		s.raw = make([]byte, want)
	}
	raw := s.raw[:want]
	n, err := io.ReadFull(s.f.readFile, raw)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if !s.f.loop {
			if n < 2 {
				return 0, io.EOF
			}
		} else if n < 2 {
			if _, err := s.f.readFile.Seek(0, io.SeekStart); err != nil {
				return 0, err
			}
			return 0, nil
		}
	} else if err != nil {
		return 0, err
	}

	samples := device.DecodeCS8(&types.SegmentCS8Raw{
		SampleRate: int(s.f.sampleRate),
		Data:       raw[:n-n%2],
		Frequency:  int(s.f.centerFreq),
	})
	count := copy(buf, samples)
	s.due = s.due.Add(time.Duration(float64(count) / s.f.sampleRate * float64(time.Second)))
	return count, nil
}

func (s *stream) Write(buf []complex64, timeout time.Duration) (int, error) {
	return 0, fmt.Errorf("file: write: %w", device.ErrUnsupported)
}

func (s *stream) Close() error {
	s.active = false
	s.closed = true
	return nil
}
