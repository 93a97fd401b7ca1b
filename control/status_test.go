package control

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStatusPacket assembles a status datagram the way the daemon
// would emit it.
func buildStatusPacket(fields func(buf []byte) []byte) []byte {
	buf := []byte{PacketStatus}
	buf = fields(buf)
	return encodeEOL(buf)
}

func TestDecodeStatusTypedFields(t *testing.T) {
	pkt := buildStatusPacket(func(buf []byte) []byte {
		buf = encodeInt(buf, TypeCommandTag, 0x12345678)
		buf = encodeInt(buf, TypeGPSTime, 1_400_000_000_000_000_000)
		buf = encodeInt(buf, TypeOutputSSRC, 10000000)
		buf = encodeFloat64(buf, TypeRadioFrequency, 14.095e6)
		buf = encodeString(buf, TypePreset, "iq")
		buf = encodeInt(buf, TypeOutputSamprate, 16000)
		buf = encodeInt(buf, TypeOutputEncoding, int64(EncodingS16LE))
		buf = encodeInt(buf, TypeAGCEnable, 1)
		buf = encodeFloat32(buf, TypeGain, 12.5)
		// Destination 239.41.204.101:5004, AF_INET sockaddr layout.
		buf = append(buf, byte(TypeOutputDataDestSocket), 8,
			0x00, 0x02, 0x13, 0x8C, 239, 41, 204, 101)
		return buf
	})

	st, err := DecodeStatus(pkt)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x12345678), st.CommandTag)
	assert.True(t, st.HasGPSTime)
	assert.Equal(t, int64(1_400_000_000_000_000_000), st.GPSTimeNS)
	assert.Equal(t, uint32(10000000), st.SSRC)
	assert.Equal(t, 14.095e6, st.Frequency)
	assert.Equal(t, "iq", st.Preset)
	assert.Equal(t, 16000, st.SampleRate)
	assert.Equal(t, EncodingS16LE, st.Encoding)
	assert.True(t, st.AGCEnable)
	assert.Equal(t, float32(12.5), st.Gain)
	assert.Equal(t, "239.41.204.101:5004", st.Destination)
	assert.False(t, st.HasSNR, "no power fields, no derived SNR")
}

func TestDecodeStatusDerivesSNR(t *testing.T) {
	pkt := buildStatusPacket(func(buf []byte) []byte {
		buf = encodeInt(buf, TypeOutputSSRC, 42)
		buf = encodeFloat32(buf, TypeLowEdge, 0)
		buf = encodeFloat32(buf, TypeHighEdge, 1000)
		buf = encodeFloat32(buf, TypeNoiseDensity, -160)
		buf = encodeFloat32(buf, TypeBasebandPower, -100)
		return buf
	})

	st, err := DecodeStatus(pkt)
	require.NoError(t, err)
	require.True(t, st.HasSNR)
	// Noise over 1 kHz is -130 dB; signal+noise is -100 dB, so the
	// linear ratio is 10^3 - 1.
	assert.InDelta(t, 29.9957, st.SNR, 1e-3)
}

func TestDecodeStatusSNRInvalidBelowNoiseFloor(t *testing.T) {
	pkt := buildStatusPacket(func(buf []byte) []byte {
		buf = encodeFloat32(buf, TypeLowEdge, 0)
		buf = encodeFloat32(buf, TypeHighEdge, 1000)
		buf = encodeFloat32(buf, TypeNoiseDensity, -160)
		buf = encodeFloat32(buf, TypeBasebandPower, -140)
		return buf
	})

	st, err := DecodeStatus(pkt)
	require.NoError(t, err)
	assert.False(t, st.HasSNR, "signal below the noise floor has no meaningful SNR")
}

func TestDecodeStatusSkipsUnknownFields(t *testing.T) {
	pkt := buildStatusPacket(func(buf []byte) []byte {
		buf = append(buf, 200, 2, 0xAA, 0xBB) // unknown type
		buf = encodeInt(buf, TypeOutputSSRC, 7)
		return buf
	})

	st, err := DecodeStatus(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), st.SSRC)
}

func TestDecodeStatusWithLongDescriptionField(t *testing.T) {
	pkt := buildStatusPacket(func(buf []byte) []byte {
		buf = encodeString(buf, TypeDescription, strings.Repeat("x", 130))
		buf = encodeInt(buf, TypeOutputSSRC, 10000000)
		buf = encodeInt(buf, TypeOutputSamprate, 16000)
		return buf
	})

	st, err := DecodeStatus(pkt)
	require.NoError(t, err, "extended-length field must not reject the packet")
	assert.Equal(t, uint32(10000000), st.SSRC)
	assert.Equal(t, 16000, st.SampleRate)
}

func TestDecodeStatusRejectsNonStatusPacket(t *testing.T) {
	_, err := DecodeStatus(nil)
	assert.Error(t, err)

	_, err = DecodeStatus([]byte{PacketCommand, byte(TypeEOL), 0})
	assert.Error(t, err, "command packets are not status")
}

func TestDecodeStatusMalformedBody(t *testing.T) {
	_, err := DecodeStatus([]byte{PacketStatus, byte(TypeOutputSSRC), 4, 0x01})
	assert.Error(t, err)
}

func TestEncodingString(t *testing.T) {
	assert.Equal(t, "s16le", EncodingS16LE.String())
	assert.Equal(t, "f32le", EncodingF32LE.String())
	assert.Equal(t, "opus", EncodingOpus.String())
	assert.Equal(t, "unknown", Encoding(99).String())
}

func TestEncodingBytesPerSample(t *testing.T) {
	assert.Equal(t, 4, EncodingS16LE.BytesPerSample(2))
	assert.Equal(t, 8, EncodingF32LE.BytesPerSample(2))
	assert.Equal(t, 2, EncodingS16BE.BytesPerSample(0), "zero channels treated as mono")
	assert.Equal(t, 0, EncodingOpus.BytesPerSample(2), "variable rate")
}
