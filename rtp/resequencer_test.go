package rtp

import (
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSamplesPerPacket = 240

func newTestResequencer(t *testing.T) *Resequencer {
	t.Helper()
	r, err := NewResequencer(ResequencerConfig{
		WindowSize:        64,
		SamplesPerPacket:  testSamplesPerPacket,
		ResequenceTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func testPacket(seq uint16, ts uint32) *pionrtp.Packet {
	payload := make([]byte, 2*testSamplesPerPacket)
	for i := range payload {
		payload[i] = byte(seq) // distinguishable per packet
	}
	return &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           1,
		},
		Payload: payload,
	}
}

// tsFor derives the timestamp a packet at seq would carry, anchored at
// sequence 100 / timestamp 10000.
func tsFor(seq uint16) uint32 {
	return 10000 + uint32(SequenceDelta(seq, 100))*testSamplesPerPacket
}

func TestNewResequencerValidation(t *testing.T) {
	_, err := NewResequencer(ResequencerConfig{WindowSize: 63, SamplesPerPacket: 240})
	assert.Error(t, err, "non power of two window must be rejected")

	_, err = NewResequencer(ResequencerConfig{WindowSize: 65536, SamplesPerPacket: 240})
	assert.Error(t, err, "oversized window must be rejected")

	_, err = NewResequencer(ResequencerConfig{WindowSize: 64})
	assert.Error(t, err, "missing samples per packet must be rejected")

	r, err := NewResequencer(ResequencerConfig{SamplesPerPacket: 240})
	require.NoError(t, err)
	_, initialized := r.NextExpected()
	assert.False(t, initialized)
}

func TestResequencerInOrderDelivery(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	for seq := uint16(100); seq < 110; seq++ {
		out := r.Add(testPacket(seq, tsFor(seq)), now)
		require.Len(t, out, 1)
		assert.Equal(t, seq, out[0].Sequence)
		assert.False(t, out[0].Filled)
		assert.False(t, out[0].Resequenced)
	}

	q := r.Quality()
	assert.Equal(t, uint64(10), q.PacketsReceived)
	assert.Equal(t, uint64(0), q.PacketsLost)
	assert.Equal(t, 100.0, q.CompletenessPct)
	assert.Equal(t, uint32(10000), q.FirstRTPTimestamp)
	assert.True(t, q.HasFirstTimestamp)
}

func TestResequencerReordersWithinWindow(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	out := r.Add(testPacket(100, tsFor(100)), now)
	require.Len(t, out, 1)

	// 102 and 103 arrive before 101.
	assert.Empty(t, r.Add(testPacket(102, tsFor(102)), now))
	assert.Empty(t, r.Add(testPacket(103, tsFor(103)), now))

	out = r.Add(testPacket(101, tsFor(101)), now)
	require.Len(t, out, 3)
	assert.Equal(t, uint16(101), out[0].Sequence)
	assert.Equal(t, uint16(102), out[1].Sequence)
	assert.Equal(t, uint16(103), out[2].Sequence)
	assert.False(t, out[0].Resequenced, "head packet came straight off the wire")
	assert.True(t, out[1].Resequenced)
	assert.True(t, out[2].Resequenced)

	q := r.Quality()
	assert.Equal(t, uint64(4), q.PacketsReceived)
	assert.Equal(t, uint64(2), q.PacketsResequenced)
	assert.Equal(t, uint64(0), q.PacketsLost)
}

func TestResequencerZeroFillsBeyondWindow(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	r.Add(testPacket(100, tsFor(100)), now)
	out := r.Add(testPacket(200, tsFor(200)), now)

	// 101..199 filled, then 200 itself.
	require.Len(t, out, 100)
	for i, d := range out[:99] {
		assert.Equal(t, uint16(101+i), d.Sequence)
		assert.True(t, d.Filled)
		assert.Equal(t, tsFor(uint16(101+i)), d.Timestamp, "filled timestamps extrapolate at the stream cadence")
		assert.Equal(t, make([]byte, 2*testSamplesPerPacket), d.Payload)
	}
	last := out[99]
	assert.Equal(t, uint16(200), last.Sequence)
	assert.False(t, last.Filled)

	q := r.Quality()
	assert.Equal(t, uint64(2), q.PacketsReceived)
	assert.Equal(t, uint64(99), q.PacketsLost)
	assert.Equal(t, uint64(99), q.TotalGapsFilled)
	assert.Equal(t, uint64(1), q.TotalGapEvents, "contiguous loss folds into one event")

	require.Len(t, q.BatchGaps, 1)
	gap := q.BatchGaps[0]
	assert.Equal(t, uint16(101), gap.SequenceStart)
	assert.Equal(t, uint16(199), gap.SequenceEnd)
	assert.Equal(t, uint64(99*testSamplesPerPacket), gap.DurationSamples)
	assert.Equal(t, uint64(1*testSamplesPerPacket), gap.PositionSamples)
	assert.Equal(t, GapNetworkLoss, gap.Source)

	// Gap events drain with the snapshot.
	assert.Empty(t, r.Quality().BatchGaps)
}

func TestResequencerSampleCountInvariant(t *testing.T) {
	// Whatever the arrival order within the window, a contiguous
	// sequence span [a,b] must come out as exactly b-a+1 positions.
	arrival := []uint16{100, 104, 101, 110, 106, 102, 103, 105, 108, 107, 109}
	r := newTestResequencer(t)
	now := time.Now()

	var delivered []uint16
	for _, seq := range arrival {
		for _, d := range r.Add(testPacket(seq, tsFor(seq)), now) {
			delivered = append(delivered, d.Sequence)
		}
	}

	require.Len(t, delivered, 11)
	for i, seq := range delivered {
		assert.Equal(t, uint16(100+i), seq, "deliveries must be in ascending order")
	}

	q := r.Quality()
	assert.Equal(t, uint64(11), q.PacketsReceived)
	assert.Equal(t, uint64(0), q.PacketsLost)
	assert.Equal(t, 100.0, q.CompletenessPct)
}

func TestResequencerSequenceWrap(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	var delivered []uint16
	for _, seq := range []uint16{65534, 65535, 0, 1} {
		for _, d := range r.Add(testPacket(seq, 5000+uint32(SequenceDelta(seq, 65534))*testSamplesPerPacket), now) {
			delivered = append(delivered, d.Sequence)
			assert.False(t, d.Filled)
		}
	}

	assert.Equal(t, []uint16{65534, 65535, 0, 1}, delivered)
	q := r.Quality()
	assert.Equal(t, uint64(0), q.PacketsLost, "wraparound is not a gap")
	assert.Equal(t, uint64(0), q.TotalGapEvents)
}

func TestResequencerReorderAcrossWrap(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	r.Add(testPacket(65534, 1000), now)
	assert.Empty(t, r.Add(testPacket(0, 1000+2*testSamplesPerPacket), now))
	out := r.Add(testPacket(65535, 1000+testSamplesPerPacket), now)
	require.Len(t, out, 2)
	assert.Equal(t, uint16(65535), out[0].Sequence)
	assert.Equal(t, uint16(0), out[1].Sequence)
}

func TestResequencerTimeoutFlush(t *testing.T) {
	r := newTestResequencer(t)
	start := time.Now()

	r.Add(testPacket(100, tsFor(100)), start)
	// 101 never arrives; 102 waits in the buffer.
	assert.Empty(t, r.Add(testPacket(102, tsFor(102)), start))

	// Within the timeout nothing moves.
	assert.Empty(t, r.Add(testPacket(104, tsFor(104)), start.Add(50*time.Millisecond)))

	// Past the timeout the window flushes up to the stuck packet.
	out := r.Add(testPacket(105, tsFor(105)), start.Add(150*time.Millisecond))
	require.NotEmpty(t, out)

	var seqs []uint16
	filled := map[uint16]bool{}
	for _, d := range out {
		seqs = append(seqs, d.Sequence)
		filled[d.Sequence] = d.Filled
	}
	assert.Equal(t, []uint16{101, 102, 103, 104, 105}, seqs)
	assert.True(t, filled[101])
	assert.False(t, filled[102])
	assert.True(t, filled[103])
	assert.False(t, filled[104])
	assert.False(t, filled[105])

	q := r.Quality()
	assert.Equal(t, uint64(2), q.TotalGapEvents)
	require.Len(t, q.BatchGaps, 2)
	assert.Equal(t, GapResequenceTimeout, q.BatchGaps[0].Source)
	assert.Equal(t, GapResequenceTimeout, q.BatchGaps[1].Source)
}

func TestResequencerDuplicatesAndLatecomers(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	r.Add(testPacket(100, tsFor(100)), now)
	r.Add(testPacket(101, tsFor(101)), now)

	// Exact duplicate of a delivered packet.
	assert.Empty(t, r.Add(testPacket(100, tsFor(100)), now))

	// Duplicate of a buffered packet.
	r.Add(testPacket(104, tsFor(104)), now)
	assert.Empty(t, r.Add(testPacket(104, tsFor(104)), now))

	q := r.Quality()
	assert.Equal(t, uint64(2), q.PacketsDuplicate)
	assert.Equal(t, uint64(2), q.PacketsReceived, "duplicates are never delivered")
}

func TestResequencerNeverRedeliversFilledPosition(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	r.Add(testPacket(100, tsFor(100)), now)
	r.Add(testPacket(200, tsFor(200)), now) // fills 101..199

	// 150 finally shows up after its position was zero-filled.
	assert.Empty(t, r.Add(testPacket(150, tsFor(150)), now))

	q := r.Quality()
	assert.Equal(t, uint64(1), q.PacketsDuplicate)
}

func TestResequencerReset(t *testing.T) {
	r := newTestResequencer(t)
	now := time.Now()

	r.Add(testPacket(100, tsFor(100)), now)
	r.Add(testPacket(102, tsFor(102)), now) // buffered

	r.Reset()

	_, initialized := r.NextExpected()
	assert.False(t, initialized)

	// Re-anchors on a far-away sequence with no fill storm.
	out := r.Add(testPacket(30000, 90000), now)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(30000), out[0].Sequence)

	q := r.Quality()
	assert.Equal(t, uint64(2), q.PacketsReceived, "counters survive a reset")
	assert.Equal(t, uint64(0), q.PacketsLost)
}

func TestCompleteness(t *testing.T) {
	assert.Equal(t, 100.0, completeness(0, 0))
	assert.Equal(t, 100.0, completeness(50, 0))
	assert.Equal(t, 99.0, completeness(99, 1))
	assert.Equal(t, 0.0, completeness(0, 10))
}

func TestGapSourceString(t *testing.T) {
	assert.Equal(t, "NetworkLoss", GapNetworkLoss.String())
	assert.Equal(t, "ResequenceTimeout", GapResequenceTimeout.String())
	assert.Equal(t, "Unknown(9)", GapSource(9).String())
}
