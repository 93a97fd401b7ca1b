package radiostream

import (
	"time"

	"go.uber.org/atomic"
)

// RecordingMetrics is the counter set written by a stream's receive
// path. All counters are atomics so other goroutines can take
// consistent-enough snapshots without locking the receive loop.
type RecordingMetrics struct {
	packetsReceived   atomic.Uint64
	packetsDropped    atomic.Uint64
	packetsOutOfOrder atomic.Uint64
	bytesReceived     atomic.Uint64
	sequenceErrors    atomic.Uint64
	timestampJumps    atomic.Uint64
	stateChanges      atomic.Uint64
	malformedPackets  atomic.Uint64

	// unix nanoseconds; zero means unset
	recordingStart atomic.Int64
	recordingStop  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of RecordingMetrics.
type MetricsSnapshot struct {
	PacketsReceived   uint64
	PacketsDropped    uint64
	PacketsOutOfOrder uint64
	BytesReceived     uint64
	SequenceErrors    uint64
	TimestampJumps    uint64
	StateChanges      uint64
	MalformedPackets  uint64

	// RecordingStartTime and RecordingStopTime are zero Times until the
	// corresponding transition has happened.
	RecordingStartTime time.Time
	RecordingStopTime  time.Time
	// RecordingDuration is stop-start for a finished recording, or
	// time since start for one still running. Zero if never started.
	RecordingDuration time.Duration
}

// NewRecordingMetrics creates an empty counter set.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{}
}

// markRecordingStart stamps the start of a recording and clears any
// previous stop stamp.
func (m *RecordingMetrics) markRecordingStart(t time.Time) {
	m.recordingStart.Store(t.UnixNano())
	m.recordingStop.Store(0)
}

// markRecordingStop stamps the end of a recording.
func (m *RecordingMetrics) markRecordingStop(t time.Time) {
	m.recordingStop.Store(t.UnixNano())
}

// Snapshot returns a copy of all counters.
func (m *RecordingMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		PacketsReceived:   m.packetsReceived.Load(),
		PacketsDropped:    m.packetsDropped.Load(),
		PacketsOutOfOrder: m.packetsOutOfOrder.Load(),
		BytesReceived:     m.bytesReceived.Load(),
		SequenceErrors:    m.sequenceErrors.Load(),
		TimestampJumps:    m.timestampJumps.Load(),
		StateChanges:      m.stateChanges.Load(),
		MalformedPackets:  m.malformedPackets.Load(),
	}

	start := m.recordingStart.Load()
	stop := m.recordingStop.Load()
	if start != 0 {
		s.RecordingStartTime = time.Unix(0, start)
		if stop != 0 {
			s.RecordingStopTime = time.Unix(0, stop)
			s.RecordingDuration = s.RecordingStopTime.Sub(s.RecordingStartTime)
		} else {
			s.RecordingDuration = time.Since(s.RecordingStartTime)
		}
	}
	return s
}
