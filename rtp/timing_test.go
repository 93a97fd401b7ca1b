package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimingReferenceValid(t *testing.T) {
	assert.False(t, TimingReference{}.Valid())
	assert.False(t, TimingReference{SSRC: 1, GPSTimeNS: 123}.Valid())
	assert.True(t, TimingReference{SampleRate: 48000}.Valid())
}

func TestWallclockNSExactAtSampleRate(t *testing.T) {
	ref := TimingReference{
		SSRC:        1,
		SampleRate:  48000,
		GPSTimeNS:   1_700_000_000_000_000_000,
		RTPTimesnap: 960_000,
	}

	ns, ok := ref.WallclockNS(960_000)
	assert.True(t, ok)
	assert.Equal(t, ref.GPSTimeNS, ns)

	// One full second of samples is exactly one second of wallclock.
	ns, ok = ref.WallclockNS(960_000 + 48000)
	assert.True(t, ok)
	assert.Equal(t, ref.GPSTimeNS+1_000_000_000, ns)

	// Timestamps before the snapshot map backwards.
	ns, ok = ref.WallclockNS(960_000 - 24000)
	assert.True(t, ok)
	assert.Equal(t, ref.GPSTimeNS-500_000_000, ns)
}

func TestWallclockNSAcrossTimestampWrap(t *testing.T) {
	ref := TimingReference{
		SampleRate:  48000,
		GPSTimeNS:   2_000_000_000_000_000_000,
		RTPTimesnap: 0xFFFFFF00,
	}

	// 0x00000200 is 768 samples past the snapshot through the wrap.
	ns, ok := ref.WallclockNS(0x00000200)
	assert.True(t, ok)
	assert.Equal(t, ref.GPSTimeNS+768*1_000_000_000/48000, ns)
}

func TestWallclockWithoutReference(t *testing.T) {
	var ref TimingReference
	_, ok := ref.WallclockNS(1000)
	assert.False(t, ok)

	_, ok = ref.Wallclock(1000)
	assert.False(t, ok)
}

func TestWallclockSeconds(t *testing.T) {
	ref := TimingReference{
		SampleRate:  16000,
		GPSTimeNS:   1_000_000_000,
		RTPTimesnap: 0,
	}
	sec, ok := ref.Wallclock(8000)
	assert.True(t, ok)
	assert.InDelta(t, 1.5, sec, 1e-9)
}
