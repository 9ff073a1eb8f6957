package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI discards everything. It is the WriteAPI used when no
// InfluxDB server is configured.
type MockWriteAPI struct{}

// WriteRecord writes asynchronously line protocol record into bucket.
func (m *MockWriteAPI) WriteRecord(line string) {}

// WritePoint writes asynchronously Point into bucket.
func (m *MockWriteAPI) WritePoint(point *write.Point) {}

// Flush forces all pending writes from the buffer to be sent
func (m *MockWriteAPI) Flush() {}

// Flushes all pending writes and stop async processes. After this the Write client cannot be used
func (m *MockWriteAPI) Close() {}

// Errors returns a channel for reading errors which occurs during async writes.
func (m *MockWriteAPI) Errors() <-chan error { return nil }

// RecordingWriteAPI keeps every point it is given. Used in tests.
type RecordingWriteAPI struct {
	MockWriteAPI

	mu     sync.Mutex
	points []*write.Point
}

func (r *RecordingWriteAPI) WritePoint(point *write.Point) {
	r.mu.Lock()
	r.points = append(r.points, point)
	r.mu.Unlock()
}

// Points returns the points written with the given measurement name, or all
// points when name is empty.
func (r *RecordingWriteAPI) Points(name string) []*write.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []*write.Point
	for _, p := range r.points {
		if name == "" || p.Name() == name {
			ret = append(ret, p)
		}
	}
	return ret
}
