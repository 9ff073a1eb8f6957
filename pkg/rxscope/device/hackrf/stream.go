package hackrf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/norasector/rxscope/pkg/rxscope/device"
	"github.com/norasector/turbine-common/types"
)

// stream adapts libhackrf's transfer callbacks to blocking reads and writes.
// Callbacks run on the libusb thread and only touch the chunk queue, the
// overflow flag and the tx fields; pending belongs to the reading goroutine.
type stream struct {
	h          *HackRFDevice
	dir        device.Direction
	sampleRate int
	centerFreq int

	chunks    chan []complex64
	pending   []complex64
	txBuf     []byte
	txPending []byte
	txStarted bool

	overflow int32

	mu     sync.Mutex
	active bool
	closed bool
}

func newStream(h *HackRFDevice, dir device.Direction, sampleRate, centerFreq int) *stream {
	return &stream{
		h:          h,
		dir:        dir,
		sampleRate: sampleRate,
		centerFreq: centerFreq,
		chunks:     make(chan []complex64, chunkQueueDepth),
	}
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrStreamClosed
	}
	if s.active {
		return nil
	}
	var err error
	if s.dir == device.TX {
		err = s.h.device.StartTX(s.txCallback)
	} else {
		err = s.h.device.StartRX(s.rxCallback)
	}
	if err != nil {
		return err
	}
	s.active = true
	return nil
}

func (s *stream) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrStreamClosed
	}
	if !s.active {
		return nil
	}
	s.active = false
	if s.dir == device.TX {
		return s.h.device.StopTX()
	}
	return s.h.device.StopRX()
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	active := s.active
	s.mu.Unlock()

	var err error
	if active {
		err = s.Deactivate()
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func (s *stream) rxCallback(buf []byte) error {
	samples := device.DecodeCS8(&types.SegmentCS8Raw{
		SampleRate: s.sampleRate,
		Data:       buf,
		Frequency:  s.centerFreq,
	})

	select {
	case s.chunks <- samples:
		return nil
	default:
	}

	// Reader fell behind: drop the oldest chunk and flag the gap.
	atomic.StoreInt32(&s.overflow, 1)
	select {
	case <-s.chunks:
	default:
	}
	select {
	case s.chunks <- samples:
	default:
	}
	return nil
}

func (s *stream) Read(buf []complex64, timeout time.Duration) (int, error) {
	if s.isClosed() {
		return 0, device.ErrStreamClosed
	}
	if atomic.SwapInt32(&s.overflow, 0) == 1 {
		s.pending = nil
		return 0, device.ErrOverflow
	}
	if len(s.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk := <-s.chunks:
			s.pending = chunk
		case <-timer.C:
			return 0, device.ErrTimeout
		}
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// txCallback fills the whole transfer from queued blocks, carrying any
// partial block over to the next transfer. Running dry after the first block
// has gone out is an underflow.
func (s *stream) txCallback(buf []byte) error {
	n := 0
	for n < len(buf) {
		if len(s.txPending) == 0 && !s.nextTXChunk() {
			break
		}
		c := copy(buf[n:], s.txPending)
		s.txPending = s.txPending[c:]
		n += c
	}
	if n < len(buf) {
		if s.txStarted {
			atomic.StoreInt32(&s.overflow, 1)
		}
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return nil
}

func (s *stream) nextTXChunk() bool {
	select {
	case chunk := <-s.chunks:
		s.txBuf = device.EncodeCS8(s.txBuf[:0], chunk)
		s.txPending = s.txBuf
		s.txStarted = true
		return true
	default:
		return false
	}
}

// Write queues a copy of buf. An underflow since the previous call is
// reported alongside the count; the block is queued either way.
func (s *stream) Write(buf []complex64, timeout time.Duration) (int, error) {
	if s.isClosed() {
		return 0, device.ErrStreamClosed
	}
	chunk := make([]complex64, len(buf))
	copy(chunk, buf)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.chunks <- chunk:
	case <-timer.C:
		return 0, device.ErrTimeout
	}
	if atomic.SwapInt32(&s.overflow, 0) == 1 {
		return len(buf), device.ErrUnderflow
	}
	return len(buf), nil
}
