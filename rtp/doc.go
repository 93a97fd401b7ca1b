// Package rtp implements the RTP reception primitives used by radiostream.
//
// This package handles RTP header parsing, bounded-window packet
// resequencing with zero-fill gap recovery, stream quality accounting,
// and RTP-timestamp-to-wallclock synchronization. It uses the pion/rtp
// library for standards-compliant RTP header handling.
//
// Design principles:
//   - Use pion/rtp for RFC 3550 header parsing and marshalling
//   - Treat all network input as untrusted: malformed datagrams are
//     rejected with a nil result, never an error or a panic
//   - Bound all buffering: the resequencer is a fixed-size slot arena
//     indexed by sequence number modulo the window size
//   - Never break sample cadence: irrecoverable loss is zero-filled and
//     annotated, never skipped
package rtp
