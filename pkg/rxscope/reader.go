package rxscope

import (
	"errors"
	"fmt"
	"time"
)

// ErrNegativeCount is wrapped by the AcquisitionError returned when a
// backend reports fewer than zero samples without an error.
var ErrNegativeCount = errors.New("negative sample count")

// Batch is the result of one read. Only Data[:Valid] holds samples; Data
// belongs to the Reader and is overwritten by the next read.
type Batch struct {
	Data  []complex64
	Valid int
}

// Samples returns the valid part of the batch.
func (b Batch) Samples() []complex64 {
	if b.Valid <= 0 {
		return nil
	}
	return b.Data[:b.Valid]
}

// Reader reads fixed-capacity batches from one session into a buffer it
// owns exclusively.
type Reader struct {
	session *Session
	timeout time.Duration
	buf     []complex64
}

func NewReader(session *Session, capacity int, timeout time.Duration) *Reader {
	return &Reader{
		session: session,
		timeout: timeout,
		buf:     make([]complex64, capacity),
	}
}

func (r *Reader) Capacity() int {
	return len(r.buf)
}

// Read performs one blocking read of up to Capacity samples. A batch with
// Valid == 0 and a nil error means no samples were ready. Device failures
// are returned as *AcquisitionError; reads on a stream that is not active
// return *LifecycleError.
func (r *Reader) Read() (Batch, error) {
	n, err := r.session.Read(r.buf, r.timeout)
	if err != nil {
		var lcErr *LifecycleError
		if errors.As(err, &lcErr) {
			return Batch{Data: r.buf}, err
		}
		return Batch{Data: r.buf}, newAcquisitionError(r.session.Name(), err)
	}
	if n < 0 {
		return Batch{Data: r.buf}, newAcquisitionError(r.session.Name(), fmt.Errorf("%w: %d", ErrNegativeCount, n))
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	return Batch{Data: r.buf, Valid: n}, nil
}
