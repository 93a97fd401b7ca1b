package rtp

import "fmt"

// GapSource identifies how a gap in the delivered sample stream arose.
type GapSource int

const (
	// GapNetworkLoss indicates packets that never arrived: the sender
	// jumped past the resequencing window in one step.
	GapNetworkLoss GapSource = iota
	// GapResequenceTimeout indicates packets that were still missing
	// when a buffered successor aged past the resequence timeout.
	GapResequenceTimeout
)

// String returns the string representation of GapSource.
func (s GapSource) String() string {
	switch s {
	case GapNetworkLoss:
		return "NetworkLoss"
	case GapResequenceTimeout:
		return "ResequenceTimeout"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// GapEvent describes one contiguous zero-filled region of the output.
type GapEvent struct {
	// PositionSamples is the offset of the gap from the start of the
	// delivered stream, in samples.
	PositionSamples uint64
	// DurationSamples is the length of the gap in samples.
	DurationSamples uint64
	// SequenceStart and SequenceEnd bound the missing packets,
	// inclusive on both ends.
	SequenceStart uint16
	SequenceEnd   uint16
	// Source classifies the loss.
	Source GapSource
}

// StreamQuality is a snapshot of reception quality for one stream.
//
// Counters are cumulative since the stream started; BatchGaps holds the
// gap events recorded since the previous snapshot was taken.
type StreamQuality struct {
	// CompletenessPct is received/(received+lost) as a percentage.
	// 100.0 when nothing has been received yet.
	CompletenessPct float64

	TotalGapEvents     uint64
	TotalGapsFilled    uint64 // zero-filled packet positions
	PacketsReceived    uint64
	PacketsLost        uint64
	PacketsResequenced uint64 // delivered out of the reorder buffer
	PacketsDuplicate   uint64 // dropped as duplicate or late

	// FirstRTPTimestamp is the timestamp of the first delivered packet;
	// valid only when HasFirstTimestamp is true.
	FirstRTPTimestamp uint32
	HasFirstTimestamp bool

	// BatchGaps are the gap events since the last snapshot.
	BatchGaps []GapEvent
}

// completeness computes the completeness percentage for the given
// counter values.
func completeness(received, lost uint64) float64 {
	total := received + lost
	if total == 0 {
		return 100.0
	}
	return 100.0 * float64(received) / float64(total)
}
