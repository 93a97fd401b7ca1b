package rtp

// TimingReference anchors a channel's relative RTP timestamps to
// absolute wall-clock time. The control daemon periodically publishes a
// (GPS time, RTP timestamp) pair for each channel; a reference is an
// immutable snapshot of one such pair and stays valid until the channel
// is retuned, at which point the caller must refresh it.
type TimingReference struct {
	// SSRC of the channel this reference belongs to.
	SSRC uint32
	// SampleRate of the stream in Hz. A reference with a non-positive
	// sample rate cannot convert timestamps.
	SampleRate uint32
	// GPSTimeNS is the absolute time of the snapshot in nanoseconds.
	GPSTimeNS int64
	// RTPTimesnap is the RTP timestamp the stream carried at GPSTimeNS.
	RTPTimesnap uint32
	// MulticastAddress and Port locate the channel's data stream.
	MulticastAddress string
	Port             int
}

// Valid reports whether the reference can convert timestamps.
func (ref TimingReference) Valid() bool {
	return ref.SampleRate > 0
}

// WallclockNS maps an RTP timestamp to absolute time in nanoseconds.
//
// The conversion is wraparound-safe for timestamps within ±2^31 samples
// of the snapshot. Multiple full 2^32 wraps between the snapshot and
// the timestamp are indistinguishable from zero wraps (at 48 kHz that
// ambiguity begins roughly half a day out); they are a documented
// limitation, not corrected.
//
// Returns false when the reference cannot convert (absent or
// non-positive sample rate); raw delivery continues unaffected at the
// call sites.
func (ref TimingReference) WallclockNS(rtpTimestamp uint32) (int64, bool) {
	if !ref.Valid() {
		return 0, false
	}
	delta := TimestampDelta(rtpTimestamp, ref.RTPTimesnap)
	return ref.GPSTimeNS + delta*1e9/int64(ref.SampleRate), true
}

// Wallclock maps an RTP timestamp to absolute time in seconds.
func (ref TimingReference) Wallclock(rtpTimestamp uint32) (float64, bool) {
	ns, ok := ref.WallclockNS(rtpTimestamp)
	if !ok {
		return 0, false
	}
	return float64(ns) / 1e9, true
}
