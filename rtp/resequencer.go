package rtp

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWindowSize is the default resequencing window in packets.
	DefaultWindowSize = 64
	// DefaultResequenceTimeout bounds how long a buffered packet may
	// wait for its missing predecessors before they are zero-filled.
	DefaultResequenceTimeout = 100 * time.Millisecond
)

// ResequencerConfig configures a Resequencer.
type ResequencerConfig struct {
	// WindowSize is the size of the reorder window in packets. It must
	// be a power of two so slot indexing stays collision-free across
	// sequence number wraparound. Defaults to DefaultWindowSize.
	WindowSize int
	// SamplesPerPacket is the number of samples each packet carries,
	// derived from the channel's payload size and encoding.
	SamplesPerPacket int
	// ResequenceTimeout bounds the age of buffered packets. Zero or
	// negative disables timeout flushing.
	ResequenceTimeout time.Duration
}

// Delivery is one ordered unit of resequencer output.
//
// Payloads of filled deliveries share a single zero buffer owned by the
// resequencer; consumers must treat delivered payloads as read-only.
type Delivery struct {
	Sequence    uint16
	Timestamp   uint32
	PayloadType uint8
	Marker      bool
	Payload     []byte
	// Filled marks a zero-filled position standing in for a packet
	// that was never recovered. Timestamp is extrapolated.
	Filled bool
	// Resequenced marks a packet delivered out of the reorder buffer
	// rather than straight off the wire.
	Resequenced bool
}

// slot is one entry of the fixed reorder arena.
type slot struct {
	valid       bool
	seq         uint16
	timestamp   uint32
	payloadType uint8
	marker      bool
	payload     []byte
	arrival     time.Time
}

// Resequencer restores delivery order within a bounded window and
// guarantees that every sequence position is delivered exactly once,
// zero-filled when irrecoverable.
//
// For any contiguous sequence span [a,b] the delivered output always
// contains (b-a+1) positions of SamplesPerPacket samples each; missing
// data is filled, never skipped, so fixed-rate consumers never see a
// cadence break.
//
// A Resequencer is owned by a single stream; Add is safe to call
// concurrently with Quality but is expected to run on one goroutine.
type Resequencer struct {
	mu  sync.Mutex
	cfg ResequencerConfig

	slots       []slot
	initialized bool
	nextSeq     uint16

	lastPayloadLen int
	zeroBuf        []byte

	// positions delivered so far, including filled ones
	deliveredPositions uint64

	received    uint64
	lost        uint64
	resequenced uint64
	duplicates  uint64
	gapEvents   uint64
	gapsFilled  uint64

	firstTimestamp uint32
	hasFirst       bool
	batchGaps      []GapEvent
}

// NewResequencer creates a resequencer for one RTP stream.
//
// Returns an error if the window size is not a power of two or
// SamplesPerPacket is not positive.
func NewResequencer(cfg ResequencerConfig) (*Resequencer, error) {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.WindowSize < 2 || cfg.WindowSize&(cfg.WindowSize-1) != 0 || cfg.WindowSize > 32768 {
		return nil, fmt.Errorf("window size must be a power of two in [2,32768], got %d", cfg.WindowSize)
	}
	if cfg.SamplesPerPacket <= 0 {
		return nil, fmt.Errorf("samples per packet must be positive, got %d", cfg.SamplesPerPacket)
	}

	logrus.WithFields(logrus.Fields{
		"function":           "NewResequencer",
		"window_size":        cfg.WindowSize,
		"samples_per_packet": cfg.SamplesPerPacket,
		"resequence_timeout": cfg.ResequenceTimeout,
	}).Debug("Creating resequencer")

	return &Resequencer{
		cfg:   cfg,
		slots: make([]slot, cfg.WindowSize),
	}, nil
}

// Add processes one received packet and returns the deliveries it
// unlocks, in ascending sequence order. The packet's payload is copied;
// the caller may reuse its receive buffer.
//
// receiveTime drives the resequence-timeout check; pass the arrival
// time of the datagram (normally time.Now()).
func (r *Resequencer) Add(pkt *rtp.Packet, receiveTime time.Time) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Delivery
	seq := pkt.SequenceNumber

	if !r.initialized {
		r.initialized = true
		r.nextSeq = seq
	}

	delta := SequenceDelta(seq, r.nextSeq)
	switch {
	case delta == 0:
		// In order: deliver and drain any buffered successors.
		out = r.deliverPacket(out, pkt, false)
		r.nextSeq++
		out = r.flushContiguous(out)

	case delta > 0 && delta < r.cfg.WindowSize:
		// Early but recoverable: park it until its turn arrives.
		sl := &r.slots[int(seq)%r.cfg.WindowSize]
		if sl.valid && sl.seq == seq {
			r.duplicates++
			break
		}
		if sl.valid {
			// Stale occupant from a non-advancing window; it lost
			// its chance at delivery.
			logrus.WithFields(logrus.Fields{
				"function":  "Resequencer.Add",
				"stale_seq": sl.seq,
				"new_seq":   seq,
			}).Debug("Evicting stale reorder slot")
		}
		sl.valid = true
		sl.seq = seq
		sl.timestamp = pkt.Timestamp
		sl.payloadType = pkt.PayloadType
		sl.marker = pkt.Marker
		sl.payload = append(sl.payload[:0], pkt.Payload...)
		sl.arrival = receiveTime

	case delta >= r.cfg.WindowSize:
		// Unrecoverable forward jump: fill everything up to the new
		// packet, then adopt it as the new window position.
		logrus.WithFields(logrus.Fields{
			"function":      "Resequencer.Add",
			"next_expected": r.nextSeq,
			"sequence":      seq,
			"jump":          delta,
		}).Debug("Sequence jump beyond window, zero-filling")
		out = r.fill(out, seq, pkt.Timestamp, GapNetworkLoss)
		out = r.deliverPacket(out, pkt, false)
		r.nextSeq = seq + 1
		out = r.flushContiguous(out)

	default:
		// Behind the window: duplicate or a packet whose position was
		// already delivered (possibly zero-filled). Never re-deliver.
		r.duplicates++
	}

	out = r.checkTimeouts(out, receiveTime)
	return out
}

// Quality returns a snapshot of the stream quality counters and drains
// the per-batch gap list.
func (r *Resequencer) Quality() StreamQuality {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := StreamQuality{
		CompletenessPct:    completeness(r.received, r.lost),
		TotalGapEvents:     r.gapEvents,
		TotalGapsFilled:    r.gapsFilled,
		PacketsReceived:    r.received,
		PacketsLost:        r.lost,
		PacketsResequenced: r.resequenced,
		PacketsDuplicate:   r.duplicates,
		FirstRTPTimestamp:  r.firstTimestamp,
		HasFirstTimestamp:  r.hasFirst,
		BatchGaps:          r.batchGaps,
	}
	r.batchGaps = nil
	return q
}

// Reset discards the reorder window and the current stream position.
// Quality counters survive; the next packet re-anchors the window.
func (r *Resequencer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		r.slots[i] = slot{}
	}
	r.initialized = false

	logrus.WithFields(logrus.Fields{
		"function": "Resequencer.Reset",
	}).Debug("Resequencer window reset")
}

// NextExpected returns the next sequence number the window is waiting
// for, and whether the window has been anchored by a first packet.
func (r *Resequencer) NextExpected() (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextSeq, r.initialized
}

// deliverPacket emits pkt as an in-order (or head-of-window) delivery.
func (r *Resequencer) deliverPacket(out []Delivery, pkt *rtp.Packet, resequenced bool) []Delivery {
	payload := append([]byte(nil), pkt.Payload...)
	r.noteDelivered(pkt.Timestamp, len(payload), resequenced)
	return append(out, Delivery{
		Sequence:    pkt.SequenceNumber,
		Timestamp:   pkt.Timestamp,
		PayloadType: pkt.PayloadType,
		Marker:      pkt.Marker,
		Payload:     payload,
		Resequenced: resequenced,
	})
}

// deliverSlot emits a buffered slot and releases it.
func (r *Resequencer) deliverSlot(out []Delivery, sl *slot) []Delivery {
	payload := sl.payload
	d := Delivery{
		Sequence:    sl.seq,
		Timestamp:   sl.timestamp,
		PayloadType: sl.payloadType,
		Marker:      sl.marker,
		Payload:     payload,
		Resequenced: true,
	}
	sl.valid = false
	sl.payload = nil
	r.noteDelivered(d.Timestamp, len(payload), true)
	return append(out, d)
}

func (r *Resequencer) noteDelivered(timestamp uint32, payloadLen int, resequenced bool) {
	if !r.hasFirst {
		r.hasFirst = true
		r.firstTimestamp = timestamp
	}
	r.lastPayloadLen = payloadLen
	r.received++
	if resequenced {
		r.resequenced++
	}
	r.deliveredPositions++
}

// flushContiguous drains buffered packets that are now at the head of
// the window.
func (r *Resequencer) flushContiguous(out []Delivery) []Delivery {
	for {
		sl := &r.slots[int(r.nextSeq)%r.cfg.WindowSize]
		if !sl.valid || sl.seq != r.nextSeq {
			return out
		}
		out = r.deliverSlot(out, sl)
		r.nextSeq++
	}
}

// fill advances the window to target, delivering buffered packets where
// they exist and zero-filling every missing position. Contiguous filled
// runs are folded into single GapEvents with the given source.
//
// anchorTS is the RTP timestamp of the packet at target; filled
// positions get timestamps extrapolated backwards from it.
func (r *Resequencer) fill(out []Delivery, target uint16, anchorTS uint32, source GapSource) []Delivery {
	spp := uint32(r.cfg.SamplesPerPacket)
	inGap := false

	for r.nextSeq != target {
		seq := r.nextSeq
		sl := &r.slots[int(seq)%r.cfg.WindowSize]
		if sl.valid && sl.seq == seq {
			out = r.deliverSlot(out, sl)
			r.nextSeq++
			inGap = false
			continue
		}

		if !inGap {
			r.batchGaps = append(r.batchGaps, GapEvent{
				PositionSamples: r.deliveredPositions * uint64(spp),
				SequenceStart:   seq,
				SequenceEnd:     seq,
				Source:          source,
			})
			r.gapEvents++
			inGap = true
		}
		gap := &r.batchGaps[len(r.batchGaps)-1]
		gap.SequenceEnd = seq
		gap.DurationSamples += uint64(spp)

		ts := anchorTS - spp*uint32(SequenceDelta(target, seq))
		out = append(out, Delivery{
			Sequence:  seq,
			Timestamp: ts,
			Payload:   r.zeroPayload(),
			Filled:    true,
		})
		r.lost++
		r.gapsFilled++
		r.deliveredPositions++
		r.nextSeq++
	}
	return out
}

// checkTimeouts flushes the window past missing packets that have kept
// a buffered successor waiting longer than the resequence timeout.
func (r *Resequencer) checkTimeouts(out []Delivery, now time.Time) []Delivery {
	if r.cfg.ResequenceTimeout <= 0 || !r.initialized {
		return out
	}
	for {
		var oldest *slot
		for i := range r.slots {
			sl := &r.slots[i]
			if !sl.valid {
				continue
			}
			d := SequenceDelta(sl.seq, r.nextSeq)
			if d <= 0 || d >= r.cfg.WindowSize {
				// Position already delivered or beyond the window.
				sl.valid = false
				sl.payload = nil
				continue
			}
			if oldest == nil || sl.arrival.Before(oldest.arrival) {
				oldest = sl
			}
		}
		if oldest == nil || now.Sub(oldest.arrival) < r.cfg.ResequenceTimeout {
			return out
		}

		logrus.WithFields(logrus.Fields{
			"function":      "Resequencer.checkTimeouts",
			"next_expected": r.nextSeq,
			"buffered_seq":  oldest.seq,
			"age":           now.Sub(oldest.arrival),
		}).Debug("Resequence timeout, zero-filling to buffered packet")

		out = r.fill(out, oldest.seq, oldest.timestamp, GapResequenceTimeout)
		out = r.flushContiguous(out)
	}
}

// zeroPayload returns the shared zero buffer sized like the most recent
// real payload. Consumers must not modify delivered payloads.
func (r *Resequencer) zeroPayload() []byte {
	n := r.lastPayloadLen
	if n == 0 {
		n = r.cfg.SamplesPerPacket
	}
	if len(r.zeroBuf) != n {
		r.zeroBuf = make([]byte, n)
	}
	return r.zeroBuf
}
