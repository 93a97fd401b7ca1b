package radiostream

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sdrkit/radiostream/rtp"
)

// RecorderState is the application-facing lifecycle state of a channel
// recorder.
type RecorderState int

const (
	// StateIdle: no receive loop, no deliveries.
	StateIdle RecorderState = iota
	// StateArmed: receiving and tracking the stream, not delivering.
	StateArmed
	// StateRecording: delivering validated packets to the application.
	StateRecording
	// StateResync: recovering from an excessive sequence gap; packets
	// are dropped until the stream proves contiguous again.
	StateResync
)

// String returns the string representation of RecorderState.
func (s RecorderState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArmed:
		return "Armed"
	case StateRecording:
		return "Recording"
	case StateResync:
		return "Resync"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DeliveredPacket is what OnPacket receives for each ordered position
// of the stream.
type DeliveredPacket struct {
	SSRC        uint32
	Sequence    uint16
	Timestamp   uint32
	PayloadType uint8
	Marker      bool

	// Payload is the packet payload, or shared zero bytes for a filled
	// position. Treat as read-only.
	Payload []byte
	// Filled marks a zero-filled stand-in for lost data.
	Filled bool
	// Resequenced marks a packet that was reordered before delivery.
	Resequenced bool

	// Wallclock is the absolute time of the packet's first sample in
	// seconds, valid only when WallclockValid is true. Conversion needs
	// a timing reference; without one, delivery continues with
	// WallclockValid false.
	Wallclock      float64
	WallclockValid bool
}

// Callbacks are invoked synchronously on the receive path, in strictly
// increasing delivered-sequence order for one stream. They must not
// block and must not call back into the Recorder or Stream that
// invoked them. Nil callbacks are skipped.
type Callbacks struct {
	OnPacket         func(pkt DeliveredPacket)
	OnStateChange    func(oldState, newState RecorderState)
	OnRecordingStart func()
	OnRecordingStop  func(metrics MetricsSnapshot)
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// SSRC of the channel; packets with any other SSRC are rejected
	// silently (other streams sharing the group are expected, not an
	// error).
	SSRC uint32
	// SamplesPerPacket sets the expected per-packet timestamp
	// increment for the timestamp-jump check.
	SamplesPerPacket int
	// MaxPacketGap is the largest tolerated arrival-side sequence jump.
	MaxPacketGap int
	// ResyncThreshold is the number of strictly consecutive packets
	// that ends a Resync.
	ResyncThreshold int
	// PassAllPackets bypasses the gap/resync logic entirely; metrics
	// still update.
	PassAllPackets bool
}

// Recorder is the per-channel state machine layering recording
// lifecycle and packet validity on top of the RTP reception pipeline.
//
// Transitions: Start Idle->Armed, StartRecording Armed->Recording,
// StopRecording Recording/Resync->Armed, Stop Armed->Idle. An
// excessive sequence gap while Recording forces Recording->Resync
// (unless PassAllPackets); Resync heals itself back to Recording after
// ResyncThreshold strictly consecutive packets. Strict contiguity is
// deliberate: a packet only extends the recovery streak when its
// sequence number is exactly one past the previous arrival.
type Recorder struct {
	mu  sync.Mutex
	cfg RecorderConfig

	state       RecorderState
	hasLast     bool
	lastSeq     uint16
	lastTS      uint32
	resyncGood  int
	metrics     *RecordingMetrics
	callbacks   Callbacks
	onResync    func() // internal hook, runs outside the lock
	pendingCbs  []func()
}

// NewRecorder creates a recorder in StateIdle.
//
// metrics may be shared with the owning stream; it must not be nil.
func NewRecorder(cfg RecorderConfig, metrics *RecordingMetrics, callbacks Callbacks) *Recorder {
	if cfg.MaxPacketGap == 0 {
		cfg.MaxPacketGap = DefaultMaxPacketGap
	}
	if cfg.ResyncThreshold == 0 {
		cfg.ResyncThreshold = DefaultResyncThreshold
	}

	logrus.WithFields(logrus.Fields{
		"function":         "NewRecorder",
		"ssrc":             cfg.SSRC,
		"max_packet_gap":   cfg.MaxPacketGap,
		"resync_threshold": cfg.ResyncThreshold,
		"pass_all_packets": cfg.PassAllPackets,
	}).Debug("Creating recorder")

	return &Recorder{
		cfg:       cfg,
		state:     StateIdle,
		metrics:   metrics,
		callbacks: callbacks,
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start arms the recorder: Idle -> Armed.
func (r *Recorder) Start() error {
	return r.requestTransition(StateIdle, StateArmed)
}

// StartRecording begins delivering packets: Armed -> Recording.
func (r *Recorder) StartRecording() error {
	return r.requestTransition(StateArmed, StateRecording)
}

// StopRecording ends delivery: Recording or Resync -> Armed.
func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	if r.state != StateRecording && r.state != StateResync {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: StopRecording from %s", ErrInvalidStateTransition, state)
	}
	r.transitionLocked(StateArmed)
	cbs := r.takePending()
	r.mu.Unlock()
	r.runCallbacks(cbs)
	return nil
}

// Stop disarms the recorder: Armed -> Idle.
func (r *Recorder) Stop() error {
	return r.requestTransition(StateArmed, StateIdle)
}

// ValidatePacket makes the per-arrival delivery decision for a packet
// header, before resequencing. It applies the SSRC filter, the
// arrival-gap watchdog and the Resync recovery logic, and maintains
// the sequence and timestamp metrics.
//
// It returns true when the packet should continue down the pipeline.
func (r *Recorder) ValidatePacket(ssrc uint32, sequence uint16, timestamp uint32) bool {
	r.mu.Lock()
	deliver := r.validateLocked(ssrc, sequence, timestamp)
	cbs := r.takePending()
	r.mu.Unlock()
	r.runCallbacks(cbs)
	return deliver
}

func (r *Recorder) validateLocked(ssrc uint32, sequence uint16, timestamp uint32) bool {
	// Different stream sharing the multicast group; not an error.
	if ssrc != r.cfg.SSRC {
		return false
	}

	if !r.hasLast {
		r.hasLast = true
		r.lastSeq = sequence
		r.lastTS = timestamp
		return r.deliverableLocked()
	}

	delta := rtp.SequenceDelta(sequence, r.lastSeq)

	// Timestamp progression check, independent of delivery: against
	// the increment the sequence distance implies.
	if r.cfg.SamplesPerPacket > 0 {
		expected := int64(delta) * int64(r.cfg.SamplesPerPacket)
		deviation := rtp.TimestampDelta(timestamp, r.lastTS) - expected
		if deviation < 0 {
			deviation = -deviation
		}
		tolerance := int64(r.cfg.MaxPacketGap) * int64(r.cfg.SamplesPerPacket)
		if deviation > tolerance {
			r.metrics.timestampJumps.Inc()
			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				logrus.WithFields(logrus.Fields{
					"function":  "Recorder.ValidatePacket",
					"ssrc":      ssrc,
					"sequence":  sequence,
					"deviation": deviation,
				}).Debug("Timestamp jump detected")
			}
		}
	}

	contiguous := delta == 1
	switch {
	case contiguous:
		r.lastSeq = sequence
		r.lastTS = timestamp

	case delta <= 0:
		// Late or duplicate arrival; position tracking keeps the most
		// advanced sequence.
		r.metrics.packetsOutOfOrder.Inc()

	default:
		// Forward jump.
		if delta > r.cfg.MaxPacketGap {
			r.metrics.sequenceErrors.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Recorder.ValidatePacket",
				"ssrc":     ssrc,
				"last_seq": r.lastSeq,
				"sequence": sequence,
				"gap":      delta,
			}).Warn("Excessive sequence gap")
			if !r.cfg.PassAllPackets && r.state == StateRecording {
				r.transitionLocked(StateResync)
				r.lastSeq = sequence
				r.lastTS = timestamp
				return false
			}
		}
		r.lastSeq = sequence
		r.lastTS = timestamp
	}

	if r.state == StateResync {
		if contiguous {
			r.resyncGood++
			if r.resyncGood >= r.cfg.ResyncThreshold {
				r.transitionLocked(StateRecording)
				return r.deliverableLocked()
			}
		} else {
			r.resyncGood = 0
		}
		// Still resynchronizing: drop unless the application runs its
		// own resequencer.
		return r.cfg.PassAllPackets
	}

	return r.deliverableLocked()
}

// deliverableLocked reports whether deliveries reach the application in
// the current state.
func (r *Recorder) deliverableLocked() bool {
	return r.state == StateRecording || (r.state == StateResync && r.cfg.PassAllPackets)
}

// requestTransition performs a single-edge lifecycle transition.
func (r *Recorder) requestTransition(from, to RecorderState) error {
	r.mu.Lock()
	if r.state != from {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s requested in %s", ErrInvalidStateTransition, from, to, state)
	}
	r.transitionLocked(to)
	cbs := r.takePending()
	r.mu.Unlock()
	r.runCallbacks(cbs)
	return nil
}

// transitionLocked switches state, stamps the metrics and queues the
// lifecycle callbacks. Caller holds r.mu.
func (r *Recorder) transitionLocked(to RecorderState) {
	from := r.state
	if from == to {
		return
	}
	r.state = to
	r.metrics.stateChanges.Inc()

	logrus.WithFields(logrus.Fields{
		"function": "Recorder.transition",
		"ssrc":     r.cfg.SSRC,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Recorder state change")

	switch {
	case to == StateRecording && from == StateArmed:
		r.metrics.markRecordingStart(time.Now())
		if cb := r.callbacks.OnRecordingStart; cb != nil {
			r.pendingCbs = append(r.pendingCbs, cb)
		}
	case to == StateResync:
		r.resyncGood = 0
		if hook := r.onResync; hook != nil {
			r.pendingCbs = append(r.pendingCbs, hook)
		}
	case to == StateArmed && (from == StateRecording || from == StateResync):
		r.metrics.markRecordingStop(time.Now())
		if cb := r.callbacks.OnRecordingStop; cb != nil {
			snapshot := r.metrics.Snapshot()
			r.pendingCbs = append(r.pendingCbs, func() { cb(snapshot) })
		}
	}

	if cb := r.callbacks.OnStateChange; cb != nil {
		r.pendingCbs = append(r.pendingCbs, func() { cb(from, to) })
	}
}

func (r *Recorder) takePending() []func() {
	cbs := r.pendingCbs
	r.pendingCbs = nil
	return cbs
}

func (r *Recorder) runCallbacks(cbs []func()) {
	for _, cb := range cbs {
		cb()
	}
}
