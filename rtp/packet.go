package rtp

import (
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// headerMinSize is the fixed portion of an RTP header (RFC 3550 §5.1).
const headerMinSize = 12

// rtpVersion is the only RTP version radiod emits.
const rtpVersion = 2

// ParsePacket decodes a raw datagram into an RTP packet.
//
// The returned packet's payload aliases data; callers that retain the
// payload past the lifetime of the receive buffer must copy it.
//
// ParsePacket never panics and never returns an error: datagrams that
// are too short, carry an unexpected version, or fail header decoding
// yield a nil result. Input is untrusted network data, so rejection is
// an expected, counted condition rather than a failure.
//
// Parameters:
//   - data: One complete UDP datagram (12+ byte header plus payload)
//
// Returns:
//   - *rtp.Packet: Decoded packet, or nil if data is malformed
func ParsePacket(data []byte) *rtp.Packet {
	if len(data) < headerMinSize {
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			logrus.WithFields(logrus.Fields{
				"function":  "ParsePacket",
				"data_size": len(data),
			}).Trace("Datagram shorter than RTP header")
		}
		return nil
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			logrus.WithFields(logrus.Fields{
				"function":  "ParsePacket",
				"data_size": len(data),
				"error":     err.Error(),
			}).Trace("Failed to unmarshal RTP packet")
		}
		return nil
	}

	if pkt.Version != rtpVersion {
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "ParsePacket",
				"version":  pkt.Version,
			}).Trace("Unexpected RTP version")
		}
		return nil
	}

	return pkt
}

// SequenceDelta returns the wrap-aware signed distance from b to a in
// 16-bit sequence number space: ((a-b+32768) mod 65536) - 32768.
//
// A positive result means a is ahead of b; sequence numbers more than
// 32768 apart are ambiguous and fold to the negative side.
func SequenceDelta(a, b uint16) int {
	return int(int16(a - b))
}

// TimestampDelta returns the wrap-aware signed distance from b to a in
// 32-bit RTP timestamp space. Deltas beyond ±2^31 are ambiguous and
// fold; see TimingReference for the documented limitation.
func TimestampDelta(a, b uint32) int64 {
	return int64(int32(a - b))
}
